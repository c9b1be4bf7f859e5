package memstore

import (
	"context"
	"slices"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/engine"
	"github.com/conorfennell/knoldeck/internal/storage"
)

type engineStore[C, D, E, S any] struct {
	db         *DB[C, D, E, S]
	collection domain.ID
	alg        engine.Algorithm[E, S, D]
}

func (s *engineStore[C, D, E, S]) CollectionID() domain.ID { return s.collection }

// ownedRow returns the card row if it belongs to this engine's collection.
// Callers hold db.mu.
func (s *engineStore[C, D, E, S]) ownedRow(card domain.ID) (*cardRow[D], error) {
	row, ok := s.db.cards[card]
	if !ok {
		return nil, storage.CardNotFound(card)
	}
	if row.collection != s.collection {
		return nil, storage.WrongCollection(card, s.collection, row.collection)
	}
	return row, nil
}

// nextOrdinal is one past the largest ordinal recorded in the collection.
// Callers hold db.mu.
func (s *engineStore[C, D, E, S]) nextOrdinal() int64 {
	var last int64
	for _, entries := range s.db.history {
		for _, e := range entries {
			if e.CollectionID == s.collection && e.Ordinal > last {
				last = e.Ordinal
			}
		}
	}
	return last + 1
}

func (s *engineStore[C, D, E, S]) Push(ctx context.Context, card domain.ID, event E) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, err := s.ownedRow(card); err != nil {
		return err
	}
	entries := s.db.history[card]
	state := s.alg.Reducer.DefaultState()
	if len(entries) > 0 {
		state = entries[len(entries)-1].State
	}
	s.db.history[card] = append(entries, storage.Entry[E, S]{
		CollectionID: s.collection,
		Ordinal:      s.nextOrdinal(),
		Event:        event,
		State:        s.alg.Reducer.Fold(state, event),
	})
	return nil
}

func (s *engineStore[C, D, E, S]) PopCard(ctx context.Context, card domain.ID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, err := s.ownedRow(card); err != nil {
		return err
	}
	entries := s.db.history[card]
	if len(entries) == 0 {
		return nil
	}
	s.truncate(card, len(entries)-1)
	return nil
}

func (s *engineStore[C, D, E, S]) Pop(ctx context.Context) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.collections[s.collection]; !ok {
		return storage.CollectionNotFound(s.collection)
	}

	var (
		found  bool
		card   domain.ID
		index  int
		latest int64
	)
	for id, entries := range s.db.history {
		for i, e := range entries {
			if e.CollectionID == s.collection && (!found || e.Ordinal > latest) {
				found, card, index, latest = true, id, i, e.Ordinal
			}
		}
	}
	if !found {
		return nil
	}
	s.truncate(card, index)
	return nil
}

// truncate removes entry i of a card's history. Callers hold db.mu.
func (s *engineStore[C, D, E, S]) truncate(card domain.ID, i int) {
	entries := slices.Delete(s.db.history[card], i, i+1)
	if len(entries) == 0 {
		delete(s.db.history, card)
		return
	}
	s.db.history[card] = entries
}

func (s *engineStore[C, D, E, S]) CardState(ctx context.Context, card domain.ID) (S, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, err := s.ownedRow(card); err != nil {
		var zero S
		return zero, err
	}
	entries := s.db.history[card]
	if len(entries) == 0 {
		return s.alg.Reducer.DefaultState(), nil
	}
	return entries[len(entries)-1].State, nil
}

func (s *engineStore[C, D, E, S]) TopCard(ctx context.Context, queues []domain.Queue) (domain.ID, bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.collections[s.collection]; !ok {
		return 0, false, storage.CollectionNotFound(s.collection)
	}
	if queues != nil && len(queues) == 0 {
		return 0, false, nil
	}

	var (
		best     domain.ID
		bestPrio int64
		found    bool
	)
	for _, id := range s.db.cardsIn(s.collection) {
		var cols domain.Columns
		entries := s.db.history[id]
		if len(entries) == 0 {
			if !s.alg.IncludeUnreviewed {
				continue
			}
			cols = s.alg.Columns(nil, s.db.cards[id].data)
		} else {
			state := entries[len(entries)-1].State
			cols = s.alg.Columns(&state, s.db.cards[id].data)
		}
		if queues != nil && !slices.Contains(queues, cols.Queue) {
			continue
		}
		if !found || s.alg.Direction.Less(cols.Priority, bestPrio) {
			best, bestPrio, found = id, cols.Priority, true
		}
	}
	return best, found, nil
}
