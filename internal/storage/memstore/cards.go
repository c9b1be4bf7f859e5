package memstore

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/storage"
)

type cardStore[C, D, E, S any] struct {
	db *DB[C, D, E, S]
}

func (s *cardStore[C, D, E, S]) List(ctx context.Context) ([]domain.ID, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	ids := make([]domain.ID, 0, len(s.db.cards))
	for id := range s.db.cards {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *cardStore[C, D, E, S]) Get(ctx context.Context, id domain.ID) (storage.Card[C, D, E, S], error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	row, ok := s.db.cards[id]
	if !ok {
		return nil, storage.CardNotFound(id)
	}
	return newCardHandle(s.db, id, row.collection), nil
}

type cardHandle[C, D, E, S any] struct {
	db         *DB[C, D, E, S]
	id         domain.ID
	collection atomic.Int64
}

func newCardHandle[C, D, E, S any](db *DB[C, D, E, S], id, collection domain.ID) *cardHandle[C, D, E, S] {
	h := &cardHandle[C, D, E, S]{db: db, id: id}
	h.collection.Store(int64(collection))
	return h
}

func (h *cardHandle[C, D, E, S]) ID() domain.ID { return h.id }

func (h *cardHandle[C, D, E, S]) CollectionID() domain.ID {
	return domain.ID(h.collection.Load())
}

func (h *cardHandle[C, D, E, S]) Read(ctx context.Context) (D, bool, error) {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()

	row, ok := h.db.cards[h.id]
	if !ok {
		var zero D
		return zero, false, nil
	}
	return row.data, true, nil
}

func (h *cardHandle[C, D, E, S]) MustRead(ctx context.Context) (D, error) {
	data, ok, err := h.Read(ctx)
	if err != nil {
		return data, err
	}
	if !ok {
		return data, storage.CardNotFound(h.id)
	}
	return data, nil
}

func (h *cardHandle[C, D, E, S]) Exists(ctx context.Context) (bool, error) {
	_, ok, err := h.Read(ctx)
	return ok, err
}

func (h *cardHandle[C, D, E, S]) Save(ctx context.Context, data D) error {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()

	if row, ok := h.db.cards[h.id]; ok {
		row.data = data
		return nil
	}
	collection := h.CollectionID()
	if _, ok := h.db.collections[collection]; !ok {
		return storage.CardOrphaned(h.id, collection)
	}
	h.db.cards[h.id] = &cardRow[D]{collection: collection, data: data}
	return nil
}

func (h *cardHandle[C, D, E, S]) Update(ctx context.Context, patch func(*D)) error {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()

	row, ok := h.db.cards[h.id]
	if !ok {
		return storage.CardNotFound(h.id)
	}
	data := row.data
	patch(&data)
	row.data = data
	return nil
}

func (h *cardHandle[C, D, E, S]) Delete(ctx context.Context) error {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()

	delete(h.db.cards, h.id)
	delete(h.db.history, h.id)
	return nil
}

func (h *cardHandle[C, D, E, S]) SetCollection(ctx context.Context, collection domain.ID) error {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()

	row, ok := h.db.cards[h.id]
	if !ok {
		return storage.CardNotFound(h.id)
	}
	if _, ok := h.db.collections[collection]; !ok {
		return storage.CollectionNotFound(collection)
	}
	row.collection = collection
	h.collection.Store(int64(collection))
	return nil
}

func (h *cardHandle[C, D, E, S]) EventCount(ctx context.Context) (int, error) {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()

	return len(h.db.history[h.id]), nil
}

func (h *cardHandle[C, D, E, S]) Events(ctx context.Context, page domain.Page) ([]storage.Entry[E, S], error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}

	h.db.mu.Lock()
	defer h.db.mu.Unlock()

	entries := h.db.history[h.id]
	start, end := page.Window(len(entries))
	return slices.Clone(entries[start:end]), nil
}
