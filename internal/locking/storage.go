package locking

import (
	"context"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/storage"
)

// Collections wraps a collection store.
func Collections[C, D, E, S any](inner storage.CollectionStore[C, D, E, S], l Locks) storage.CollectionStore[C, D, E, S] {
	return &collectionStore[C, D, E, S]{inner: inner, locks: l}
}

// Cards wraps a card store.
func Cards[C, D, E, S any](inner storage.CardStore[C, D, E, S], l Locks) storage.CardStore[C, D, E, S] {
	return &cardStore[C, D, E, S]{inner: inner, locks: l}
}

type collectionStore[C, D, E, S any] struct {
	inner storage.CollectionStore[C, D, E, S]
	locks Locks
}

func (s *collectionStore[C, D, E, S]) List(ctx context.Context) ([]domain.ID, error) {
	return read(s.locks, func() ([]domain.ID, error) { return s.inner.List(ctx) })
}

func (s *collectionStore[C, D, E, S]) Create(ctx context.Context) (storage.Collection[C, D, E, S], error) {
	var c storage.Collection[C, D, E, S]
	err := write(s.locks, func() (err error) {
		c, err = s.inner.Create(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &collection[C, D, E, S]{inner: c, locks: s.locks}, nil
}

func (s *collectionStore[C, D, E, S]) Get(id domain.ID) storage.Collection[C, D, E, S] {
	return &collection[C, D, E, S]{inner: s.inner.Get(id), locks: s.locks}
}

type collection[C, D, E, S any] struct {
	inner storage.Collection[C, D, E, S]
	locks Locks
}

func (h *collection[C, D, E, S]) ID() domain.ID { return h.inner.ID() }

func (h *collection[C, D, E, S]) Read(ctx context.Context) (C, bool, error) {
	h.locks.Read.Lock()
	defer h.locks.Read.Unlock()
	return h.inner.Read(ctx)
}

func (h *collection[C, D, E, S]) MustRead(ctx context.Context) (C, error) {
	return read(h.locks, func() (C, error) { return h.inner.MustRead(ctx) })
}

func (h *collection[C, D, E, S]) Exists(ctx context.Context) (bool, error) {
	return read(h.locks, func() (bool, error) { return h.inner.Exists(ctx) })
}

func (h *collection[C, D, E, S]) Save(ctx context.Context, header C) error {
	return write(h.locks, func() error { return h.inner.Save(ctx, header) })
}

func (h *collection[C, D, E, S]) Update(ctx context.Context, patch func(*C)) error {
	return write(h.locks, func() error { return h.inner.Update(ctx, patch) })
}

func (h *collection[C, D, E, S]) Delete(ctx context.Context) error {
	return write(h.locks, func() error { return h.inner.Delete(ctx) })
}

func (h *collection[C, D, E, S]) CardCount(ctx context.Context) (int, error) {
	return read(h.locks, func() (int, error) { return h.inner.CardCount(ctx) })
}

func (h *collection[C, D, E, S]) Cards(ctx context.Context, page domain.Page) ([]storage.Card[C, D, E, S], error) {
	cards, err := read(h.locks, func() ([]storage.Card[C, D, E, S], error) { return h.inner.Cards(ctx, page) })
	if err != nil {
		return nil, err
	}
	for i, c := range cards {
		cards[i] = &card[C, D, E, S]{inner: c, locks: h.locks}
	}
	return cards, nil
}

func (h *collection[C, D, E, S]) Card(ctx context.Context, id domain.ID) (storage.Card[C, D, E, S], error) {
	c, err := read(h.locks, func() (storage.Card[C, D, E, S], error) { return h.inner.Card(ctx, id) })
	if err != nil {
		return nil, err
	}
	return &card[C, D, E, S]{inner: c, locks: h.locks}, nil
}

func (h *collection[C, D, E, S]) CreateCard(ctx context.Context) (storage.Card[C, D, E, S], error) {
	var c storage.Card[C, D, E, S]
	err := write(h.locks, func() (err error) {
		c, err = h.inner.CreateCard(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &card[C, D, E, S]{inner: c, locks: h.locks}, nil
}

type cardStore[C, D, E, S any] struct {
	inner storage.CardStore[C, D, E, S]
	locks Locks
}

func (s *cardStore[C, D, E, S]) List(ctx context.Context) ([]domain.ID, error) {
	return read(s.locks, func() ([]domain.ID, error) { return s.inner.List(ctx) })
}

func (s *cardStore[C, D, E, S]) Get(ctx context.Context, id domain.ID) (storage.Card[C, D, E, S], error) {
	c, err := read(s.locks, func() (storage.Card[C, D, E, S], error) { return s.inner.Get(ctx, id) })
	if err != nil {
		return nil, err
	}
	return &card[C, D, E, S]{inner: c, locks: s.locks}, nil
}

type card[C, D, E, S any] struct {
	inner storage.Card[C, D, E, S]
	locks Locks
}

func (h *card[C, D, E, S]) ID() domain.ID { return h.inner.ID() }

func (h *card[C, D, E, S]) CollectionID() domain.ID {
	h.locks.Read.Lock()
	defer h.locks.Read.Unlock()
	return h.inner.CollectionID()
}

func (h *card[C, D, E, S]) Read(ctx context.Context) (D, bool, error) {
	h.locks.Read.Lock()
	defer h.locks.Read.Unlock()
	return h.inner.Read(ctx)
}

func (h *card[C, D, E, S]) MustRead(ctx context.Context) (D, error) {
	return read(h.locks, func() (D, error) { return h.inner.MustRead(ctx) })
}

func (h *card[C, D, E, S]) Exists(ctx context.Context) (bool, error) {
	return read(h.locks, func() (bool, error) { return h.inner.Exists(ctx) })
}

func (h *card[C, D, E, S]) Save(ctx context.Context, data D) error {
	return write(h.locks, func() error { return h.inner.Save(ctx, data) })
}

func (h *card[C, D, E, S]) Update(ctx context.Context, patch func(*D)) error {
	return write(h.locks, func() error { return h.inner.Update(ctx, patch) })
}

func (h *card[C, D, E, S]) Delete(ctx context.Context) error {
	return write(h.locks, func() error { return h.inner.Delete(ctx) })
}

func (h *card[C, D, E, S]) SetCollection(ctx context.Context, collection domain.ID) error {
	return write(h.locks, func() error { return h.inner.SetCollection(ctx, collection) })
}

func (h *card[C, D, E, S]) EventCount(ctx context.Context) (int, error) {
	return read(h.locks, func() (int, error) { return h.inner.EventCount(ctx) })
}

func (h *card[C, D, E, S]) Events(ctx context.Context, page domain.Page) ([]storage.Entry[E, S], error) {
	return read(h.locks, func() ([]storage.Entry[E, S], error) { return h.inner.Events(ctx, page) })
}
