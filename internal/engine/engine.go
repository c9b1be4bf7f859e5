// Package engine defines the algorithm-agnostic contracts of the
// event-sourced scheduler: a Reducer folds events into state, an Extractor
// projects state onto the columns used to pick the next card, and Store is
// the per-collection engine implemented by each storage backend.
package engine

import (
	"context"

	"github.com/conorfennell/knoldeck/internal/domain"
)

// Reducer folds events of type E into states of type S.
type Reducer[E, S any] interface {
	// DefaultState is the state of a card that has never been reviewed. It
	// must return equal values on every call.
	DefaultState() S
	// Fold returns the state after event. It must not mutate its inputs.
	Fold(state S, event E) S
}

// Extractor derives scheduling columns from a card. state is nil when the
// card has no history, in which case the values come from the card data.
type Extractor[S, D any] interface {
	Priority(state *S, data D) int64
	Queue(state *S, data D) domain.Queue
	Stats(state *S, data D) domain.Stats
}

// Direction says which end of the priority order is studied first.
type Direction int

const (
	// Ascending selects the smallest priority value first.
	Ascending Direction = iota
	// Descending selects the largest priority value first.
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "descending"
	}
	return "ascending"
}

// Less reports whether priority a is studied before b.
func (d Direction) Less(a, b int64) bool {
	if d == Descending {
		return a > b
	}
	return a < b
}

// Algorithm pairs a reducer with an extractor and the ordering conventions
// the extractor's priorities were designed for.
type Algorithm[E, S, D any] struct {
	Reducer   Reducer[E, S]
	Extractor Extractor[S, D]
	Direction Direction
	// IncludeUnreviewed makes cards without history eligible for TopCard,
	// ordered by the priority the extractor derives from their data.
	IncludeUnreviewed bool
}

// Columns projects a card onto its denormalized scheduling columns. A nil
// state is a card without history.
func (a Algorithm[E, S, D]) Columns(state *S, data D) domain.Columns {
	stats := a.Extractor.Stats(state, data)
	return domain.Columns{
		Queue:    a.Extractor.Queue(state, data),
		Priority: a.Extractor.Priority(state, data),
		Repeats:  stats.Repeats,
		Lapses:   stats.Lapses,
	}
}

// Replay folds events onto the default state.
func Replay[E, S any](r Reducer[E, S], events ...E) S {
	state := r.DefaultState()
	for _, e := range events {
		state = r.Fold(state, e)
	}
	return state
}

// Store is the event-sourced scheduler for one collection.
type Store[E, S any] interface {
	CollectionID() domain.ID
	// Push folds event into the card's latest state and records both.
	Push(ctx context.Context, card domain.ID, event E) error
	// PopCard removes the card's latest event. It is a no-op on an empty
	// history.
	PopCard(ctx context.Context, card domain.ID) error
	// Pop removes the latest event pushed anywhere in the collection.
	Pop(ctx context.Context) error
	// CardState returns the latest folded state, or the default state.
	CardState(ctx context.Context, card domain.ID) (S, error)
	// TopCard returns the card studied next. A nil queues slice considers
	// every queue; an empty non-nil slice matches nothing.
	TopCard(ctx context.Context, queues []domain.Queue) (id domain.ID, ok bool, err error)
}
