package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/conorfennell/knoldeck/internal/deck"
	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/scheduler"
	"github.com/conorfennell/knoldeck/internal/storage/memstore"
	"github.com/conorfennell/knoldeck/internal/storage/storagetest"
)

func writeDeck(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func questions(t *testing.T, c Collection) map[string]deck.CardData {
	t.Helper()
	cards, err := c.Cards(context.Background(), domain.Page{Limit: 100})
	if err != nil {
		t.Fatalf("Cards: %v", err)
	}
	out := make(map[string]deck.CardData)
	for _, card := range cards {
		data, err := card.MustRead(context.Background())
		if err != nil {
			t.Fatalf("MustRead: %v", err)
		}
		out[data.Question] = data
	}
	return out
}

func TestSync(t *testing.T) {
	ctx := context.Background()
	db := memstore.New[deck.Header, deck.CardData, deck.Event, deck.State]()
	c, err := db.Collections().Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	dir := t.TempDir()
	writeDeck(t, dir, "go.md", "Q: What is Go?\nA: A language\n---\nQ: Who made Go?\nA: Google\n")
	writeDeck(t, dir, "nested/sql.MD", "Q: What is SQL?\nA: A query language\n")
	writeDeck(t, dir, "notes.txt", "Q: Ignored\nA: Not markdown\n")

	report, err := Sync(ctx, c, dir)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Parsed != 3 || report.Created != 3 || report.Deleted != 0 || len(report.Errors) != 0 {
		t.Fatalf("first sync report = %+v", report)
	}
	got := questions(t, c)
	if len(got) != 3 {
		t.Fatalf("collection has %d cards", len(got))
	}
	if got["What is Go?"].Hash == "" || got["What is Go?"].Answer != "A language" {
		t.Errorf("imported card = %+v", got["What is Go?"])
	}

	// Review a card that stays, and add a manual card without a hash.
	alg := storagetest.DefaultAlgorithm()
	cards, _ := c.Cards(ctx, domain.Page{Limit: 100})
	var kept domain.ID
	for _, card := range cards {
		data, _ := card.MustRead(ctx)
		if data.Question == "Who made Go?" {
			kept = card.ID()
		}
	}
	if err := db.Engine(c.ID(), alg).Push(ctx, kept, deck.Answer(scheduler.Good, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))); err != nil {
		t.Fatalf("Push: %v", err)
	}
	manual, err := c.CreateCard(ctx)
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	if err := manual.Save(ctx, deck.CardData{Question: "Manual"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	writeDeck(t, dir, "go.md", "Q: what is go?  \nA: A LANGUAGE\n---\nQ: Who made Go?\nA: Google\n---\nQ: When was Go released?\nA: 2009\n")
	if err := os.Remove(filepath.Join(dir, "nested", "sql.MD")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	report, err = Sync(ctx, c, dir)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if report.Created != 1 || report.Unchanged != 2 || report.Deleted != 1 {
		t.Fatalf("second sync report = %+v", report)
	}
	got = questions(t, c)
	if _, ok := got["What is SQL?"]; ok {
		t.Errorf("orphaned card survived")
	}
	if _, ok := got["Manual"]; !ok {
		t.Errorf("manual card was deleted")
	}
	released := got["When was Go released?"]
	if released.DiscoveryPriority <= got["Who made Go?"].DiscoveryPriority {
		t.Errorf("new card priority %d not after existing ones", released.DiscoveryPriority)
	}
	if n, _ := mustCard(t, c, kept).EventCount(ctx); n != 1 {
		t.Errorf("reviewed card lost history: %d events", n)
	}
}

func mustCard(t *testing.T, c Collection, id domain.ID) Card {
	t.Helper()
	card, err := c.Card(context.Background(), id)
	if err != nil {
		t.Fatalf("Card %s: %v", id, err)
	}
	return card
}

func TestSyncMissingCollection(t *testing.T) {
	db := memstore.New[deck.Header, deck.CardData, deck.Event, deck.State]()
	_, err := Sync(context.Background(), db.Collections().Get(domain.ID(42)), t.TempDir())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestSyncMissingDirectory(t *testing.T) {
	ctx := context.Background()
	db := memstore.New[deck.Header, deck.CardData, deck.Event, deck.State]()
	c, _ := db.Collections().Create(ctx)
	if _, err := Sync(ctx, c, filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
