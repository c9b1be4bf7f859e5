// Package storage defines the handle-based contracts shared by every
// collection and card backend.
//
// Type parameters are the product's payload shapes: C is the collection
// header, D the card data, E an engine event and S the folded engine state.
//
// Handles carry no lock of their own. Concurrent callers on the same rows
// interleave freely and the last write wins; wrap a store with the locking
// package when serialization is needed.
package storage

import (
	"context"

	"github.com/conorfennell/knoldeck/internal/domain"
)

// CollectionStore creates and looks up collections.
type CollectionStore[C, D, E, S any] interface {
	// List returns every stored collection id in no particular order.
	List(ctx context.Context) ([]domain.ID, error)
	// Create allocates an id and persists the zero header.
	Create(ctx context.Context) (Collection[C, D, E, S], error)
	// Get returns a handle without touching storage.
	Get(id domain.ID) Collection[C, D, E, S]
}

// Collection is a handle to one collection.
type Collection[C, D, E, S any] interface {
	ID() domain.ID

	// Read returns the header, or ok=false when the collection does not exist.
	Read(ctx context.Context) (header C, ok bool, err error)
	// MustRead is Read but fails with domain.ErrNotFound when absent.
	MustRead(ctx context.Context) (C, error)
	Exists(ctx context.Context) (bool, error)
	// Save replaces the header, creating the collection if it is absent.
	Save(ctx context.Context, header C) error
	// Update applies patch to the current header. It never creates.
	Update(ctx context.Context, patch func(*C)) error
	// Delete removes the collection and every card pointing at it. Deleting
	// a missing collection is not an error.
	Delete(ctx context.Context) error

	CardCount(ctx context.Context) (int, error)
	// Cards returns the collection's cards ordered by id.
	Cards(ctx context.Context, page domain.Page) ([]Card[C, D, E, S], error)
	// Card fails with domain.ErrNotFound when the card does not exist and
	// with domain.ErrWrongCollection when it belongs elsewhere.
	Card(ctx context.Context, id domain.ID) (Card[C, D, E, S], error)
	// CreateCard allocates a card in this collection with zero data.
	CreateCard(ctx context.Context) (Card[C, D, E, S], error)
}

// CardStore looks cards up by id regardless of their collection.
type CardStore[C, D, E, S any] interface {
	List(ctx context.Context) ([]domain.ID, error)
	// Get loads the card's current collection pointer into a handle. It
	// fails with domain.ErrNotFound when the card does not exist.
	Get(ctx context.Context, id domain.ID) (Card[C, D, E, S], error)
}

// Card is a handle to one card.
//
// The handle remembers the collection the card belonged to when the handle
// was obtained or last moved through it. That value goes stale if another
// handle moves the card; it is only used to recreate a deleted row on Save.
type Card[C, D, E, S any] interface {
	ID() domain.ID
	// CollectionID is the last collection this handle saw the card in.
	CollectionID() domain.ID

	Read(ctx context.Context) (data D, ok bool, err error)
	MustRead(ctx context.Context) (D, error)
	Exists(ctx context.Context) (bool, error)
	// Save replaces the card data. A missing row is recreated in
	// CollectionID() as long as that collection still exists.
	Save(ctx context.Context, data D) error
	Update(ctx context.Context, patch func(*D)) error
	Delete(ctx context.Context) error
	// SetCollection moves the card. Event history stays where it is.
	SetCollection(ctx context.Context, collection domain.ID) error

	EventCount(ctx context.Context) (int, error)
	// Events returns the card's history oldest first.
	Events(ctx context.Context, page domain.Page) ([]Entry[E, S], error)
}

// Entry is one step of a card's history: the event and the state folded
// from it.
type Entry[E, S any] struct {
	CollectionID domain.ID
	Ordinal      int64
	Event        E
	State        S
}
