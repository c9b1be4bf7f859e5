// Package storagetest is the behavioral suite every storage backend must
// pass. Backends run it from their own tests with a constructor for a fresh,
// empty instance.
package storagetest

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/conorfennell/knoldeck/internal/deck"
	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/engine"
	"github.com/conorfennell/knoldeck/internal/scheduler"
	"github.com/conorfennell/knoldeck/internal/storage"
)

type (
	Collection = storage.Collection[deck.Header, deck.CardData, deck.Event, deck.State]
	Card       = storage.Card[deck.Header, deck.CardData, deck.Event, deck.State]
	Algorithm  = engine.Algorithm[deck.Event, deck.State, deck.CardData]
)

// Backend is the surface shared by memstore.DB and sqlstore.DB.
type Backend interface {
	Collections() storage.CollectionStore[deck.Header, deck.CardData, deck.Event, deck.State]
	Cards() storage.CardStore[deck.Header, deck.CardData, deck.Event, deck.State]
	Engine(collection domain.ID, alg Algorithm) engine.Store[deck.Event, deck.State]
}

// Opener returns a fresh backend whose engines will run alg.
type Opener func(t *testing.T, alg Algorithm) Backend

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// absent is never allocated by any backend.
const absent domain.ID = -1

// DefaultAlgorithm is the deck algorithm on the simple model, ascending, with
// unreviewed cards eligible.
func DefaultAlgorithm() Algorithm {
	return deck.NewAlgorithm(scheduler.NewSimple(0.9), engine.Ascending, true)
}

// Run executes the whole suite against open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, open Opener)
	}{
		{"CollectionLifecycle", testCollectionLifecycle},
		{"Pagination", testPagination},
		{"CardOwnership", testCardOwnership},
		{"DeleteCascade", testDeleteCascade},
		{"SaveRecreatesDeletedCard", testSaveRecreates},
		{"CardUpdate", testCardUpdate},
		{"SetCollection", testSetCollection},
		{"SetCollectionRace", testSetCollectionRace},
		{"SaveSetCollectionRace", testSaveSetCollectionRace},
		{"DeleteMovedHistory", testDeleteMovedHistory},
		{"EventHistory", testEventHistory},
		{"PopCard", testPopCard},
		{"GlobalUndo", testGlobalUndo},
		{"ConcreteScenario", testConcreteScenario},
		{"EngineOwnership", testEngineOwnership},
		{"Direction", testDirection},
		{"IncludeUnreviewed", testIncludeUnreviewed},
		{"QueueFilter", testQueueFilter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open)
		})
	}
}

func createCollection(t *testing.T, b Backend, title string) Collection {
	t.Helper()
	ctx := context.Background()
	c, err := b.Collections().Create(ctx)
	if err != nil {
		t.Fatalf("Create collection: %v", err)
	}
	if err := c.Save(ctx, deck.Header{Title: title}); err != nil {
		t.Fatalf("Save header: %v", err)
	}
	return c
}

func createCard(t *testing.T, c Collection, data deck.CardData) Card {
	t.Helper()
	ctx := context.Background()
	card, err := c.CreateCard(ctx)
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	if err := card.Save(ctx, data); err != nil {
		t.Fatalf("Save card: %v", err)
	}
	return card
}

func cardIDs(cards []Card) []domain.ID {
	ids := make([]domain.ID, len(cards))
	for i, c := range cards {
		ids[i] = c.ID()
	}
	return ids
}

func testCollectionLifecycle(t *testing.T, open Opener) {
	ctx := context.Background()
	b := open(t, DefaultAlgorithm())

	c, err := b.Collections().Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.ID() <= 0 {
		t.Errorf("expected positive id, got %s", c.ID())
	}
	header, ok, err := c.Read(ctx)
	if err != nil || !ok {
		t.Fatalf("Read new collection: ok=%v err=%v", ok, err)
	}
	if header.Title != "" {
		t.Errorf("expected zero header, got %+v", header)
	}

	if err := c.Save(ctx, deck.Header{Title: "Go"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := c.Update(ctx, func(h *deck.Header) { h.Description = "language" }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	header, err = b.Collections().Get(c.ID()).MustRead(ctx)
	if err != nil {
		t.Fatalf("MustRead: %v", err)
	}
	if header.Title != "Go" || header.Description != "language" {
		t.Errorf("unexpected header %+v", header)
	}

	ids, err := b.Collections().List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !slices.Contains(ids, c.ID()) {
		t.Errorf("List %v does not contain %s", ids, c.ID())
	}

	if err := c.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := c.Delete(ctx); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if exists, err := c.Exists(ctx); err != nil || exists {
		t.Errorf("Exists after delete = %v, %v", exists, err)
	}
	if _, ok, err := c.Read(ctx); err != nil || ok {
		t.Errorf("Read after delete: ok=%v err=%v", ok, err)
	}
	if _, err := c.MustRead(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("MustRead after delete: got %v, want not found", err)
	}
	if err := c.Update(ctx, func(h *deck.Header) {}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Update after delete: got %v, want not found", err)
	}

	// Save on a handle for an unused id creates the collection.
	orphan := b.Collections().Get(c.ID())
	if err := orphan.Save(ctx, deck.Header{Title: "again"}); err != nil {
		t.Fatalf("Save absent: %v", err)
	}
	if exists, _ := orphan.Exists(ctx); !exists {
		t.Errorf("Save did not create collection %s", c.ID())
	}
}

func testPagination(t *testing.T, open Opener) {
	ctx := context.Background()
	b := open(t, DefaultAlgorithm())
	c := createCollection(t, b, "paged")
	for i := range 7 {
		createCard(t, c, deck.CardData{Question: "q", DiscoveryPriority: int64(i)})
	}

	all, err := c.Cards(ctx, domain.Page{Offset: 0, Limit: 100})
	if err != nil {
		t.Fatalf("Cards: %v", err)
	}
	if len(all) != 7 {
		t.Fatalf("expected 7 cards, got %d", len(all))
	}
	want := cardIDs(all)
	if !slices.IsSorted(want) {
		t.Errorf("cards not ordered by id: %v", want)
	}

	for _, limit := range []int{1, 2, 3, 7} {
		var got []domain.ID
		for offset := 0; offset < 10; offset += limit {
			page, err := c.Cards(ctx, domain.Page{Offset: offset, Limit: limit})
			if err != nil {
				t.Fatalf("Cards(%d, %d): %v", offset, limit, err)
			}
			got = append(got, cardIDs(page)...)
		}
		if !slices.Equal(got, want) {
			t.Errorf("limit %d: pages concatenate to %v, want %v", limit, got, want)
		}
	}

	empty, err := c.Cards(ctx, domain.Page{Offset: 3, Limit: 0})
	if err != nil || len(empty) != 0 {
		t.Errorf("zero limit: got %d cards, err %v", len(empty), err)
	}
	past, err := c.Cards(ctx, domain.Page{Offset: 50, Limit: 5})
	if err != nil || len(past) != 0 {
		t.Errorf("offset past end: got %d cards, err %v", len(past), err)
	}
	for _, p := range []domain.Page{{Offset: -1, Limit: 1}, {Offset: 0, Limit: -1}} {
		if _, err := c.Cards(ctx, p); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("Cards(%+v): got %v, want validation error", p, err)
		}
		if _, err := all[0].Events(ctx, p); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("Events(%+v): got %v, want validation error", p, err)
		}
	}

	n, err := c.CardCount(ctx)
	if err != nil || n != 7 {
		t.Errorf("CardCount = %d, %v", n, err)
	}
}

func testCardOwnership(t *testing.T, open Opener) {
	ctx := context.Background()
	b := open(t, DefaultAlgorithm())
	a := createCollection(t, b, "a")
	other := createCollection(t, b, "b")
	card := createCard(t, a, deck.CardData{Question: "owned"})

	got, err := a.Card(ctx, card.ID())
	if err != nil {
		t.Fatalf("Card: %v", err)
	}
	if got.CollectionID() != a.ID() {
		t.Errorf("CollectionID = %s, want %s", got.CollectionID(), a.ID())
	}
	if _, err := other.Card(ctx, card.ID()); !errors.Is(err, domain.ErrWrongCollection) {
		t.Errorf("Card from other collection: got %v, want wrong collection", err)
	}

	missing := absent
	if _, err := a.Card(ctx, missing); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Card missing: got %v, want not found", err)
	}
	if _, err := b.Cards().Get(ctx, missing); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Cards().Get missing: got %v, want not found", err)
	}

	viaStore, err := b.Cards().Get(ctx, card.ID())
	if err != nil {
		t.Fatalf("Cards().Get: %v", err)
	}
	data, err := viaStore.MustRead(ctx)
	if err != nil || data.Question != "owned" {
		t.Errorf("MustRead = %+v, %v", data, err)
	}
	ids, err := b.Cards().List(ctx)
	if err != nil || !slices.Contains(ids, card.ID()) {
		t.Errorf("Cards().List = %v, %v", ids, err)
	}

	ghost := b.Collections().Get(absent)
	if _, err := ghost.CreateCard(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("CreateCard in missing collection: got %v, want not found", err)
	}
}

func testDeleteCascade(t *testing.T, open Opener) {
	ctx := context.Background()
	alg := DefaultAlgorithm()
	b := open(t, alg)
	c := createCollection(t, b, "doomed")
	keep := createCollection(t, b, "kept")
	k1 := createCard(t, c, deck.CardData{Question: "1"})
	k2 := createCard(t, c, deck.CardData{Question: "2"})
	k3 := createCard(t, keep, deck.CardData{Question: "3"})

	if err := b.Engine(c.ID(), alg).Push(ctx, k1.ID(), deck.Answer(scheduler.Good, t0)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := c.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	for _, card := range []Card{k1, k2} {
		if exists, err := card.Exists(ctx); err != nil || exists {
			t.Errorf("card %s survived collection delete: %v %v", card.ID(), exists, err)
		}
		if _, err := b.Cards().Get(ctx, card.ID()); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Get deleted card %s: got %v", card.ID(), err)
		}
		if n, err := card.EventCount(ctx); err != nil || n != 0 {
			t.Errorf("card %s kept %d events, err %v", card.ID(), n, err)
		}
	}
	if exists, _ := k3.Exists(ctx); !exists {
		t.Errorf("card in other collection was deleted")
	}

	if err := k3.Delete(ctx); err != nil {
		t.Fatalf("card Delete: %v", err)
	}
	if err := k3.Delete(ctx); err != nil {
		t.Fatalf("second card Delete: %v", err)
	}
}

func testSaveRecreates(t *testing.T, open Opener) {
	ctx := context.Background()
	b := open(t, DefaultAlgorithm())
	c := createCollection(t, b, "c")
	card := createCard(t, c, deck.CardData{Question: "first"})

	if err := card.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, err := card.Read(ctx); err != nil || ok {
		t.Fatalf("Read deleted card: ok=%v err=%v", ok, err)
	}
	if err := card.Save(ctx, deck.CardData{Question: "second"}); err != nil {
		t.Fatalf("Save recreate: %v", err)
	}
	got, err := c.Card(ctx, card.ID())
	if err != nil {
		t.Fatalf("Card after recreate: %v", err)
	}
	if data, _ := got.MustRead(ctx); data.Question != "second" {
		t.Errorf("recreated data = %+v", data)
	}

	if err := card.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := c.Delete(ctx); err != nil {
		t.Fatalf("Delete collection: %v", err)
	}
	if err := card.Save(ctx, deck.CardData{Question: "third"}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Save orphan: got %v, want not found", err)
	}
	if _, err := card.MustRead(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("MustRead orphan: got %v, want not found", err)
	}
}

func testCardUpdate(t *testing.T, open Opener) {
	ctx := context.Background()
	b := open(t, DefaultAlgorithm())
	c := createCollection(t, b, "c")
	card := createCard(t, c, deck.CardData{Question: "q", Answer: "a"})

	answer := "b"
	patch := deck.CardPatch{Answer: &answer}
	if err := card.Update(ctx, patch.Apply); err != nil {
		t.Fatalf("Update: %v", err)
	}
	data, err := card.MustRead(ctx)
	if err != nil {
		t.Fatalf("MustRead: %v", err)
	}
	if data.Question != "q" || data.Answer != "b" {
		t.Errorf("patched data = %+v", data)
	}

	if err := card.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := card.Update(ctx, patch.Apply); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Update deleted card: got %v, want not found", err)
	}
	if exists, _ := card.Exists(ctx); exists {
		t.Errorf("Update recreated a deleted card")
	}
}

func testSetCollection(t *testing.T, open Opener) {
	ctx := context.Background()
	alg := DefaultAlgorithm()
	b := open(t, alg)
	from := createCollection(t, b, "from")
	to := createCollection(t, b, "to")
	card := createCard(t, from, deck.CardData{Question: "mobile"})

	if err := b.Engine(from.ID(), alg).Push(ctx, card.ID(), deck.Answer(scheduler.Good, t0)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := card.SetCollection(ctx, to.ID()); err != nil {
		t.Fatalf("SetCollection: %v", err)
	}
	if card.CollectionID() != to.ID() {
		t.Errorf("handle CollectionID = %s, want %s", card.CollectionID(), to.ID())
	}
	if _, err := to.Card(ctx, card.ID()); err != nil {
		t.Errorf("card not found in target: %v", err)
	}
	if n, _ := from.CardCount(ctx); n != 0 {
		t.Errorf("source still has %d cards", n)
	}

	// History is not rewritten by a move.
	entries, err := card.Events(ctx, domain.Page{Limit: 10})
	if err != nil || len(entries) != 1 || entries[0].CollectionID != from.ID() {
		t.Errorf("history after move = %+v, %v", entries, err)
	}

	if err := card.SetCollection(ctx, absent); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("move to missing collection: got %v, want not found", err)
	}
	if card.CollectionID() != to.ID() {
		t.Errorf("failed move changed handle to %s", card.CollectionID())
	}

	if err := card.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := card.SetCollection(ctx, from.ID()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("move deleted card: got %v, want not found", err)
	}
}

// Two handles racing to move the same card: exactly one target ends up
// owning it, and each handle only knows about its own move.
func testSetCollectionRace(t *testing.T, open Opener) {
	ctx := context.Background()
	b := open(t, DefaultAlgorithm())
	home := createCollection(t, b, "home")
	left := createCollection(t, b, "left")
	right := createCollection(t, b, "right")
	card := createCard(t, home, deck.CardData{Question: "contested"})

	h1, err := b.Cards().Get(ctx, card.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	h2, err := b.Cards().Get(ctx, card.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = h1.SetCollection(ctx, left.ID())
	}()
	go func() {
		defer wg.Done()
		errs[1] = h2.SetCollection(ctx, right.ID())
	}()
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("SetCollection %d: %v", i, err)
		}
	}

	if h1.CollectionID() != left.ID() || h2.CollectionID() != right.ID() {
		t.Errorf("handles saw %s and %s", h1.CollectionID(), h2.CollectionID())
	}
	fresh, err := b.Cards().Get(ctx, card.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	winner := fresh.CollectionID()
	if winner != left.ID() && winner != right.ID() {
		t.Fatalf("card ended in %s", winner)
	}
	nl, _ := left.CardCount(ctx)
	nr, _ := right.CardCount(ctx)
	if nl+nr != 1 {
		t.Errorf("card counted %d times across targets", nl+nr)
	}
}

// A stale handle saving a deleted card races another moving it: Save
// recreates the row in its cached collection, and the move either lands
// afterwards or reports the card missing.
func testSaveSetCollectionRace(t *testing.T, open Opener) {
	ctx := context.Background()
	b := open(t, DefaultAlgorithm())
	home := createCollection(t, b, "home")
	left := createCollection(t, b, "left")
	right := createCollection(t, b, "right")

	for round := 0; round < 20; round++ {
		card := createCard(t, home, deck.CardData{Question: "contested"})
		mover, err := b.Cards().Get(ctx, card.ID())
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		saver, err := b.Cards().Get(ctx, card.ID())
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if err := saver.SetCollection(ctx, right.ID()); err != nil {
			t.Fatalf("SetCollection: %v", err)
		}
		if err := card.Delete(ctx); err != nil {
			t.Fatalf("Delete: %v", err)
		}

		var moveErr, saveErr error
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			moveErr = mover.SetCollection(ctx, left.ID())
		}()
		go func() {
			defer wg.Done()
			saveErr = saver.Save(ctx, deck.CardData{Question: "recreated"})
		}()
		wg.Wait()

		if saveErr != nil {
			t.Fatalf("round %d: Save: %v", round, saveErr)
		}
		want := left.ID()
		if moveErr != nil {
			if !errors.Is(moveErr, domain.ErrNotFound) {
				t.Fatalf("round %d: SetCollection: %v", round, moveErr)
			}
			want = right.ID()
		}

		fresh, err := b.Cards().Get(ctx, card.ID())
		if err != nil {
			t.Fatalf("round %d: Get after race: %v", round, err)
		}
		if fresh.CollectionID() != want {
			t.Errorf("round %d: card in %s, want %s (move err %v)", round, fresh.CollectionID(), want, moveErr)
		}
		if data, _ := fresh.MustRead(ctx); data.Question != "recreated" {
			t.Errorf("round %d: data = %+v", round, data)
		}
		var owners int
		for _, c := range []Collection{home, left, right} {
			if _, err := c.Card(ctx, card.ID()); err == nil {
				owners++
			}
		}
		if owners != 1 {
			t.Errorf("round %d: card owned by %d collections", round, owners)
		}
		if err := fresh.Delete(ctx); err != nil {
			t.Fatalf("round %d: cleanup: %v", round, err)
		}
	}
}

// Deleting a collection drops the history its cards recorded there, even
// for cards that have since moved, and their scheduling follows what is
// left.
func testDeleteMovedHistory(t *testing.T, open Opener) {
	ctx := context.Background()
	alg := DefaultAlgorithm()
	b := open(t, alg)
	doomed := createCollection(t, b, "doomed")
	kept := createCollection(t, b, "kept")
	wiped := createCard(t, doomed, deck.CardData{Question: "wiped", DiscoveryPriority: 1})
	partial := createCard(t, doomed, deck.CardData{Question: "partial", DiscoveryPriority: 2})

	for _, card := range []Card{wiped, partial} {
		if err := b.Engine(doomed.ID(), alg).Push(ctx, card.ID(), deck.Answer(scheduler.Good, t0)); err != nil {
			t.Fatalf("Push: %v", err)
		}
		if err := card.SetCollection(ctx, kept.ID()); err != nil {
			t.Fatalf("SetCollection: %v", err)
		}
	}
	eng := b.Engine(kept.ID(), alg)
	if err := eng.Push(ctx, partial.ID(), deck.Answer(scheduler.Again, t0.Add(48*time.Hour))); err != nil {
		t.Fatalf("Push: %v", err)
	}

	if err := doomed.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if n, err := wiped.EventCount(ctx); err != nil || n != 0 {
		t.Errorf("wiped card has %d events, err %v", n, err)
	}
	state, err := eng.CardState(ctx, wiped.ID())
	if err != nil {
		t.Fatalf("CardState: %v", err)
	}
	if state.Queue != domain.QueueNew || state.Repeats != 0 {
		t.Errorf("wiped card state = %+v, want default", state)
	}
	if n, err := partial.EventCount(ctx); err != nil || n != 1 {
		t.Errorf("partial card has %d events, err %v", n, err)
	}
	state, err = eng.CardState(ctx, partial.ID())
	if err != nil {
		t.Fatalf("CardState: %v", err)
	}
	if state.Queue != domain.QueueRelearning || state.Repeats != 2 || state.Lapses != 1 {
		t.Errorf("partial card state = %+v", state)
	}

	tests := []struct {
		name   string
		queues []domain.Queue
		want   domain.ID
		ok     bool
	}{
		{"learned", []domain.Queue{domain.QueueLearned}, 0, false},
		{"new", []domain.Queue{domain.QueueNew}, wiped.ID(), true},
		{"relearning", []domain.Queue{domain.QueueRelearning}, partial.ID(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := eng.TopCard(ctx, tt.queues)
			if err != nil {
				t.Fatalf("TopCard: %v", err)
			}
			if ok != tt.ok || (ok && got != tt.want) {
				t.Errorf("TopCard(%v) = %s, %v; want %s, %v", tt.queues, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func testEventHistory(t *testing.T, open Opener) {
	ctx := context.Background()
	alg := DefaultAlgorithm()
	b := open(t, alg)
	c := createCollection(t, b, "c")
	card := createCard(t, c, deck.CardData{Question: "q"})
	eng := b.Engine(c.ID(), alg)

	if eng.CollectionID() != c.ID() {
		t.Errorf("engine CollectionID = %s", eng.CollectionID())
	}
	state, err := eng.CardState(ctx, card.ID())
	if err != nil {
		t.Fatalf("CardState: %v", err)
	}
	if !state.Equal(alg.Reducer.DefaultState()) {
		t.Errorf("unreviewed state = %+v, want default", state)
	}

	events := []deck.Event{
		deck.Answer(scheduler.Again, t0),
		deck.Answer(scheduler.Good, t0.Add(10*time.Minute)),
		deck.Answer(scheduler.Easy, t0.Add(36*time.Hour)),
		deck.Reset(t0.Add(72 * time.Hour)),
	}
	for _, e := range events {
		if err := eng.Push(ctx, card.ID(), e); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	n, err := card.EventCount(ctx)
	if err != nil || n != len(events) {
		t.Fatalf("EventCount = %d, %v", n, err)
	}
	entries, err := card.Events(ctx, domain.Page{Limit: 10})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	want := alg.Reducer.DefaultState()
	for i, e := range entries {
		want = alg.Reducer.Fold(want, events[i])
		if e.Event.Kind != events[i].Kind || e.Event.Rating != events[i].Rating || !e.Event.At.Equal(events[i].At) {
			t.Errorf("entry %d event = %+v, want %+v", i, e.Event, events[i])
		}
		if !e.State.Equal(want) {
			t.Errorf("entry %d state = %+v, want %+v", i, e.State, want)
		}
		if e.CollectionID != c.ID() {
			t.Errorf("entry %d collection = %s", i, e.CollectionID)
		}
		if i > 0 && e.Ordinal <= entries[i-1].Ordinal {
			t.Errorf("ordinals not increasing: %d after %d", e.Ordinal, entries[i-1].Ordinal)
		}
	}

	tail, err := card.Events(ctx, domain.Page{Offset: 2, Limit: 10})
	if err != nil || len(tail) != 2 {
		t.Fatalf("Events offset 2 = %d entries, %v", len(tail), err)
	}
	if tail[0].Ordinal != entries[2].Ordinal {
		t.Errorf("offset page starts at ordinal %d, want %d", tail[0].Ordinal, entries[2].Ordinal)
	}

	state, err = eng.CardState(ctx, card.ID())
	if err != nil {
		t.Fatalf("CardState: %v", err)
	}
	if !state.Equal(engine.Replay(alg.Reducer, events...)) {
		t.Errorf("CardState = %+v, want replay of history", state)
	}
}

func testPopCard(t *testing.T, open Opener) {
	ctx := context.Background()
	alg := DefaultAlgorithm()
	b := open(t, alg)
	c := createCollection(t, b, "c")
	a := createCard(t, c, deck.CardData{Question: "a"})
	other := createCard(t, c, deck.CardData{Question: "b"})
	eng := b.Engine(c.ID(), alg)

	if err := eng.PopCard(ctx, a.ID()); err != nil {
		t.Fatalf("PopCard on empty history: %v", err)
	}

	first := deck.Answer(scheduler.Good, t0)
	push := func(card Card, e deck.Event) {
		t.Helper()
		if err := eng.Push(ctx, card.ID(), e); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	push(a, first)
	push(a, deck.Answer(scheduler.Again, t0.Add(48*time.Hour)))
	push(other, deck.Answer(scheduler.Easy, t0.Add(time.Hour)))

	if err := eng.PopCard(ctx, a.ID()); err != nil {
		t.Fatalf("PopCard: %v", err)
	}
	state, _ := eng.CardState(ctx, a.ID())
	if !state.Equal(engine.Replay(alg.Reducer, first)) {
		t.Errorf("state after PopCard = %+v", state)
	}
	if n, _ := other.EventCount(ctx); n != 1 {
		t.Errorf("PopCard touched another card's history: %d events", n)
	}
}

func testGlobalUndo(t *testing.T, open Opener) {
	ctx := context.Background()
	alg := DefaultAlgorithm()
	b := open(t, alg)
	c := createCollection(t, b, "c")
	a := createCard(t, c, deck.CardData{Question: "a"})
	bb := createCard(t, c, deck.CardData{Question: "b"})
	eng := b.Engine(c.ID(), alg)

	if err := eng.Pop(ctx); err != nil {
		t.Fatalf("Pop on empty collection: %v", err)
	}

	a1 := deck.Answer(scheduler.Good, t0)
	b1 := deck.Answer(scheduler.Hard, t0.Add(time.Minute))
	a2 := deck.Answer(scheduler.Again, t0.Add(2*time.Minute))
	b2 := deck.Answer(scheduler.Easy, t0.Add(3*time.Minute))
	for _, step := range []struct {
		card Card
		e    deck.Event
	}{{a, a1}, {bb, b1}, {a, a2}, {bb, b2}} {
		if err := eng.Push(ctx, step.card.ID(), step.e); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	expect := []struct {
		a, b []deck.Event
	}{
		{[]deck.Event{a1, a2}, []deck.Event{b1}},
		{[]deck.Event{a1}, []deck.Event{b1}},
		{[]deck.Event{a1}, nil},
		{nil, nil},
	}
	for i, want := range expect {
		if err := eng.Pop(ctx); err != nil {
			t.Fatalf("Pop %d: %v", i, err)
		}
		sa, _ := eng.CardState(ctx, a.ID())
		sb, _ := eng.CardState(ctx, bb.ID())
		if !sa.Equal(engine.Replay(alg.Reducer, want.a...)) {
			t.Errorf("after pop %d card a = %+v", i+1, sa)
		}
		if !sb.Equal(engine.Replay(alg.Reducer, want.b...)) {
			t.Errorf("after pop %d card b = %+v", i+1, sb)
		}
	}

	if err := eng.Pop(ctx); err != nil {
		t.Fatalf("Pop past empty: %v", err)
	}
}

func testConcreteScenario(t *testing.T, open Opener) {
	ctx := context.Background()
	alg := DefaultAlgorithm()
	b := open(t, alg)
	c := createCollection(t, b, "C")
	k1 := createCard(t, c, deck.CardData{Question: "K1", DiscoveryPriority: 100})
	k2 := createCard(t, c, deck.CardData{Question: "K2", DiscoveryPriority: 50})
	eng := b.Engine(c.ID(), alg)

	top, ok, err := eng.TopCard(ctx, nil)
	if err != nil || !ok {
		t.Fatalf("TopCard: ok=%v err=%v", ok, err)
	}
	if top != k2.ID() {
		t.Errorf("TopCard = %s, want K2 %s", top, k2.ID())
	}

	if err := eng.Push(ctx, k1.ID(), deck.Answer(scheduler.Good, t0)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	state, err := eng.CardState(ctx, k1.ID())
	if err != nil || state.Repeats != 1 {
		t.Fatalf("repeats after push = %d, %v", state.Repeats, err)
	}
	if err := eng.PopCard(ctx, k1.ID()); err != nil {
		t.Fatalf("PopCard: %v", err)
	}
	state, err = eng.CardState(ctx, k1.ID())
	if err != nil || state.Repeats != 0 {
		t.Fatalf("repeats after pop = %d, %v", state.Repeats, err)
	}
}

func testEngineOwnership(t *testing.T, open Opener) {
	ctx := context.Background()
	alg := DefaultAlgorithm()
	b := open(t, alg)
	c := createCollection(t, b, "c")
	other := createCollection(t, b, "other")
	foreign := createCard(t, other, deck.CardData{Question: "foreign"})
	eng := b.Engine(c.ID(), alg)

	e := deck.Answer(scheduler.Good, t0)
	if err := eng.Push(ctx, foreign.ID(), e); !errors.Is(err, domain.ErrWrongCollection) {
		t.Errorf("Push foreign card: got %v", err)
	}
	if _, err := eng.CardState(ctx, foreign.ID()); !errors.Is(err, domain.ErrWrongCollection) {
		t.Errorf("CardState foreign card: got %v", err)
	}
	if err := eng.PopCard(ctx, foreign.ID()); !errors.Is(err, domain.ErrWrongCollection) {
		t.Errorf("PopCard foreign card: got %v", err)
	}
	missing := absent
	if err := eng.Push(ctx, missing, e); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Push missing card: got %v", err)
	}

	ghost := b.Engine(absent, alg)
	if _, _, err := ghost.TopCard(ctx, nil); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("TopCard on missing collection: got %v", err)
	}
	if err := ghost.Pop(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Pop on missing collection: got %v", err)
	}

	if _, ok, err := eng.TopCard(ctx, nil); err != nil || ok {
		t.Errorf("TopCard on empty collection: ok=%v err=%v", ok, err)
	}
}

// Both priority directions must pick the same card, with ties broken by
// the smaller id.
func testDirection(t *testing.T, open Opener) {
	ctx := context.Background()
	model := scheduler.NewSimple(0.9)

	tests := []struct {
		name       string
		priorities []int64
	}{
		{"distinct", []int64{30, -5, 77, 12, -3, 1 << 40}},
		{"tied", []int64{30, -5, 77, 12, -5, 1 << 40}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lowest := slices.Min(tt.priorities)
			picks := make(map[engine.Direction]string)
			for _, dir := range []engine.Direction{engine.Ascending, engine.Descending} {
				alg := deck.NewAlgorithm(model, dir, true)
				b := open(t, alg)
				c := createCollection(t, b, dir.String())
				var tied []domain.ID
				for i, p := range tt.priorities {
					card := createCard(t, c, deck.CardData{Question: string(rune('a' + i)), DiscoveryPriority: p})
					if p == lowest {
						tied = append(tied, card.ID())
					}
				}
				top, ok, err := b.Engine(c.ID(), alg).TopCard(ctx, nil)
				if err != nil || !ok {
					t.Fatalf("%s TopCard: ok=%v err=%v", dir, ok, err)
				}
				if top != slices.Min(tied) {
					t.Errorf("%s picked %s, want smallest id %s among %v", dir, top, slices.Min(tied), tied)
				}
				card, _ := c.Card(ctx, top)
				data, _ := card.MustRead(ctx)
				picks[dir] = data.Question
			}
			// Each direction runs on its own backend, whose ids may order
			// tied cards differently.
			if tt.name == "distinct" && picks[engine.Ascending] != picks[engine.Descending] {
				t.Errorf("directions disagree: %v", picks)
			}
		})
	}
}

func testIncludeUnreviewed(t *testing.T, open Opener) {
	ctx := context.Background()
	model := scheduler.NewSimple(0.9)

	for _, include := range []bool{true, false} {
		alg := deck.NewAlgorithm(model, engine.Ascending, include)
		b := open(t, alg)
		c := createCollection(t, b, "c")
		fresh := createCard(t, c, deck.CardData{Question: "fresh", DiscoveryPriority: 1})
		seen := createCard(t, c, deck.CardData{Question: "seen", DiscoveryPriority: 2})
		eng := b.Engine(c.ID(), alg)

		top, ok, err := eng.TopCard(ctx, nil)
		if err != nil {
			t.Fatalf("TopCard: %v", err)
		}
		if include && (!ok || top != fresh.ID()) {
			t.Errorf("include=true: TopCard = %s, %v; want fresh card", top, ok)
		}
		if !include && ok {
			t.Errorf("include=false: TopCard returned unreviewed card %s", top)
		}

		if err := eng.Push(ctx, seen.ID(), deck.Answer(scheduler.Good, t0)); err != nil {
			t.Fatalf("Push: %v", err)
		}
		top, ok, err = eng.TopCard(ctx, nil)
		if err != nil || !ok {
			t.Fatalf("TopCard after review: ok=%v err=%v", ok, err)
		}
		want := fresh.ID()
		if !include {
			want = seen.ID()
		}
		if top != want {
			t.Errorf("include=%v: TopCard after review = %s, want %s", include, top, want)
		}
	}
}

func testQueueFilter(t *testing.T, open Opener) {
	ctx := context.Background()
	alg := DefaultAlgorithm()
	b := open(t, alg)
	c := createCollection(t, b, "c")
	fresh := createCard(t, c, deck.CardData{Question: "fresh", DiscoveryPriority: 1})
	learning := createCard(t, c, deck.CardData{Question: "learning"})
	learned := createCard(t, c, deck.CardData{Question: "learned"})
	eng := b.Engine(c.ID(), alg)

	if err := eng.Push(ctx, learning.ID(), deck.Answer(scheduler.Again, t0)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	// Answered an hour later, so it falls due after the learning card.
	if err := eng.Push(ctx, learned.ID(), deck.Answer(scheduler.Good, t0.Add(time.Hour))); err != nil {
		t.Fatalf("Push: %v", err)
	}

	tests := []struct {
		name   string
		queues []domain.Queue
		want   domain.ID
		ok     bool
	}{
		{"nil matches all", nil, fresh.ID(), true},
		{"empty matches none", []domain.Queue{}, 0, false},
		{"new", []domain.Queue{domain.QueueNew}, fresh.ID(), true},
		{"learning", []domain.Queue{domain.QueueLearning}, learning.ID(), true},
		{"learned", []domain.Queue{domain.QueueLearned}, learned.ID(), true},
		{"learning or learned", []domain.Queue{domain.QueueLearned, domain.QueueLearning}, learning.ID(), true},
		{"relearning", []domain.Queue{domain.QueueRelearning}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := eng.TopCard(ctx, tt.queues)
			if err != nil {
				t.Fatalf("TopCard: %v", err)
			}
			if ok != tt.ok || (ok && got != tt.want) {
				t.Errorf("TopCard(%v) = %s, %v; want %s, %v", tt.queues, got, ok, tt.want, tt.ok)
			}
		})
	}

	// Undoing the only review returns the card to the new queue.
	if err := eng.PopCard(ctx, learned.ID()); err != nil {
		t.Fatalf("PopCard: %v", err)
	}
	if got, ok, _ := eng.TopCard(ctx, []domain.Queue{domain.QueueLearned}); ok {
		t.Errorf("card %s still learned after undo", got)
	}
}
