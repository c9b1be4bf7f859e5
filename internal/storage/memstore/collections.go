package memstore

import (
	"context"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/storage"
)

type collectionStore[C, D, E, S any] struct {
	db *DB[C, D, E, S]
}

func (s *collectionStore[C, D, E, S]) List(ctx context.Context) ([]domain.ID, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	ids := make([]domain.ID, 0, len(s.db.collections))
	for id := range s.db.collections {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *collectionStore[C, D, E, S]) Create(ctx context.Context) (storage.Collection[C, D, E, S], error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	id := randomID(func(id domain.ID) bool {
		_, ok := s.db.collections[id]
		return ok
	})
	var header C
	s.db.collections[id] = header
	return &collectionHandle[C, D, E, S]{db: s.db, id: id}, nil
}

func (s *collectionStore[C, D, E, S]) Get(id domain.ID) storage.Collection[C, D, E, S] {
	return &collectionHandle[C, D, E, S]{db: s.db, id: id}
}

type collectionHandle[C, D, E, S any] struct {
	db *DB[C, D, E, S]
	id domain.ID
}

func (h *collectionHandle[C, D, E, S]) ID() domain.ID { return h.id }

func (h *collectionHandle[C, D, E, S]) Read(ctx context.Context) (C, bool, error) {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()

	header, ok := h.db.collections[h.id]
	return header, ok, nil
}

func (h *collectionHandle[C, D, E, S]) MustRead(ctx context.Context) (C, error) {
	header, ok, err := h.Read(ctx)
	if err != nil {
		return header, err
	}
	if !ok {
		return header, storage.CollectionNotFound(h.id)
	}
	return header, nil
}

func (h *collectionHandle[C, D, E, S]) Exists(ctx context.Context) (bool, error) {
	_, ok, err := h.Read(ctx)
	return ok, err
}

func (h *collectionHandle[C, D, E, S]) Save(ctx context.Context, header C) error {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()

	h.db.collections[h.id] = header
	return nil
}

func (h *collectionHandle[C, D, E, S]) Update(ctx context.Context, patch func(*C)) error {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()

	header, ok := h.db.collections[h.id]
	if !ok {
		return storage.CollectionNotFound(h.id)
	}
	patch(&header)
	h.db.collections[h.id] = header
	return nil
}

func (h *collectionHandle[C, D, E, S]) Delete(ctx context.Context) error {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()

	h.db.deleteCollection(h.id)
	return nil
}

func (h *collectionHandle[C, D, E, S]) CardCount(ctx context.Context) (int, error) {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()

	return len(h.db.cardsIn(h.id)), nil
}

func (h *collectionHandle[C, D, E, S]) Cards(ctx context.Context, page domain.Page) ([]storage.Card[C, D, E, S], error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}

	h.db.mu.Lock()
	defer h.db.mu.Unlock()

	ids := h.db.cardsIn(h.id)
	start, end := page.Window(len(ids))
	cards := make([]storage.Card[C, D, E, S], 0, end-start)
	for _, id := range ids[start:end] {
		cards = append(cards, newCardHandle(h.db, id, h.id))
	}
	return cards, nil
}

func (h *collectionHandle[C, D, E, S]) Card(ctx context.Context, id domain.ID) (storage.Card[C, D, E, S], error) {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()

	row, ok := h.db.cards[id]
	if !ok {
		return nil, storage.CardNotFound(id)
	}
	if row.collection != h.id {
		return nil, storage.WrongCollection(id, h.id, row.collection)
	}
	return newCardHandle(h.db, id, h.id), nil
}

func (h *collectionHandle[C, D, E, S]) CreateCard(ctx context.Context) (storage.Card[C, D, E, S], error) {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()

	if _, ok := h.db.collections[h.id]; !ok {
		return nil, storage.CollectionNotFound(h.id)
	}
	id := randomID(func(id domain.ID) bool {
		_, ok := h.db.cards[id]
		return ok
	})
	h.db.cards[id] = &cardRow[D]{collection: h.id}
	return newCardHandle(h.db, id, h.id), nil
}
