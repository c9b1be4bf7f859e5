package locking

import (
	"context"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/engine"
)

// Engine wraps an engine store.
func Engine[E, S any](inner engine.Store[E, S], l Locks) engine.Store[E, S] {
	return &engineStore[E, S]{inner: inner, locks: l}
}

type engineStore[E, S any] struct {
	inner engine.Store[E, S]
	locks Locks
}

func (s *engineStore[E, S]) CollectionID() domain.ID { return s.inner.CollectionID() }

func (s *engineStore[E, S]) Push(ctx context.Context, card domain.ID, event E) error {
	return write(s.locks, func() error { return s.inner.Push(ctx, card, event) })
}

func (s *engineStore[E, S]) PopCard(ctx context.Context, card domain.ID) error {
	return write(s.locks, func() error { return s.inner.PopCard(ctx, card) })
}

func (s *engineStore[E, S]) Pop(ctx context.Context) error {
	return write(s.locks, func() error { return s.inner.Pop(ctx) })
}

func (s *engineStore[E, S]) CardState(ctx context.Context, card domain.ID) (S, error) {
	return read(s.locks, func() (S, error) { return s.inner.CardState(ctx, card) })
}

func (s *engineStore[E, S]) TopCard(ctx context.Context, queues []domain.Queue) (domain.ID, bool, error) {
	s.locks.Read.Lock()
	defer s.locks.Read.Unlock()
	return s.inner.TopCard(ctx, queues)
}
