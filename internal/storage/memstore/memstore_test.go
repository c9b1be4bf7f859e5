package memstore_test

import (
	"context"
	"testing"

	"github.com/conorfennell/knoldeck/internal/deck"
	"github.com/conorfennell/knoldeck/internal/storage/memstore"
	"github.com/conorfennell/knoldeck/internal/storage/storagetest"
)

func TestMemstore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, _ storagetest.Algorithm) storagetest.Backend {
		return memstore.New[deck.Header, deck.CardData, deck.Event, deck.State]()
	})
}

func TestRandomIDsArePositiveAndDistinct(t *testing.T) {
	ctx := context.Background()
	db := memstore.New[deck.Header, deck.CardData, deck.Event, deck.State]()
	c, err := db.Collections().Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	seen := make(map[int64]bool)
	for range 200 {
		card, err := c.CreateCard(ctx)
		if err != nil {
			t.Fatalf("CreateCard: %v", err)
		}
		id := card.ID().Int64()
		if id <= 0 {
			t.Fatalf("non-positive id %d", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
}
