package locking_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/conorfennell/knoldeck/internal/deck"
	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/engine"
	"github.com/conorfennell/knoldeck/internal/locking"
	"github.com/conorfennell/knoldeck/internal/scheduler"
	"github.com/conorfennell/knoldeck/internal/storage"
	"github.com/conorfennell/knoldeck/internal/storage/memstore"
	"github.com/conorfennell/knoldeck/internal/storage/storagetest"
)

type lockedBackend struct {
	inner storagetest.Backend
	locks locking.Locks
}

func (b lockedBackend) Collections() storage.CollectionStore[deck.Header, deck.CardData, deck.Event, deck.State] {
	return locking.Collections(b.inner.Collections(), b.locks)
}

func (b lockedBackend) Cards() storage.CardStore[deck.Header, deck.CardData, deck.Event, deck.State] {
	return locking.Cards(b.inner.Cards(), b.locks)
}

func (b lockedBackend) Engine(collection domain.ID, alg storagetest.Algorithm) engine.Store[deck.Event, deck.State] {
	return locking.Engine(b.inner.Engine(collection, alg), b.locks)
}

func TestLockedBackends(t *testing.T) {
	modes := map[string]func() locking.Locks{
		"single": locking.NewSingle,
		"rw":     locking.NewRW,
	}
	for name, newLocks := range modes {
		t.Run(name, func(t *testing.T) {
			storagetest.Run(t, func(t *testing.T, _ storagetest.Algorithm) storagetest.Backend {
				return lockedBackend{
					inner: memstore.New[deck.Header, deck.CardData, deck.Event, deck.State](),
					locks: newLocks(),
				}
			})
		})
	}
}

type countingLocker struct {
	mu    sync.Mutex
	calls atomic.Int32
}

func (l *countingLocker) Lock() {
	l.mu.Lock()
	l.calls.Add(1)
}

func (l *countingLocker) Unlock() { l.mu.Unlock() }

func TestReadsAndWritesTakeTheirLocks(t *testing.T) {
	ctx := context.Background()
	reads, writes := &countingLocker{}, &countingLocker{}
	b := lockedBackend{
		inner: memstore.New[deck.Header, deck.CardData, deck.Event, deck.State](),
		locks: locking.Locks{Read: reads, Write: writes},
	}

	c, err := b.Collections().Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	card, err := c.CreateCard(ctx)
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	if got := writes.calls.Load(); got != 2 {
		t.Errorf("writes after two creates = %d", got)
	}
	if got := reads.calls.Load(); got != 0 {
		t.Errorf("reads after two creates = %d", got)
	}

	if _, _, err := card.Read(ctx); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, err := c.CardCount(ctx); err != nil {
		t.Fatalf("CardCount: %v", err)
	}
	if got := reads.calls.Load(); got != 2 {
		t.Errorf("reads = %d, want 2", got)
	}

	eng := b.Engine(c.ID(), storagetest.DefaultAlgorithm())
	if err := eng.Push(ctx, card.ID(), deck.Answer(scheduler.Good, time.Now())); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if _, _, err := eng.TopCard(ctx, nil); err != nil {
		t.Fatalf("TopCard: %v", err)
	}
	if writes.calls.Load() != 3 || reads.calls.Load() != 3 {
		t.Errorf("after push and top card: writes=%d reads=%d", writes.calls.Load(), reads.calls.Load())
	}
}

func TestConcurrentPushesAreAllRecorded(t *testing.T) {
	ctx := context.Background()
	b := lockedBackend{
		inner: memstore.New[deck.Header, deck.CardData, deck.Event, deck.State](),
		locks: locking.NewRW(),
	}
	c, err := b.Collections().Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	card, err := c.CreateCard(ctx)
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	eng := b.Engine(c.ID(), storagetest.DefaultAlgorithm())

	const n = 40
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := eng.Push(ctx, card.ID(), deck.Answer(scheduler.Good, start.Add(time.Duration(i)*time.Hour))); err != nil {
				t.Errorf("Push: %v", err)
			}
		}()
	}
	wg.Wait()

	entries, err := card.Events(ctx, domain.Page{Limit: n})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(entries) != n {
		t.Fatalf("recorded %d events, want %d", len(entries), n)
	}
	for i, e := range entries {
		if e.Ordinal != int64(i+1) {
			t.Errorf("entry %d has ordinal %d", i, e.Ordinal)
		}
		if e.State.Repeats != i+1 {
			t.Errorf("entry %d folded %d repeats", i, e.State.Repeats)
		}
	}
}
