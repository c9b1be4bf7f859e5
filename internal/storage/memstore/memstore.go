// Package memstore is the in-process backend. Every operation is atomic on
// its own, but nothing serializes a sequence of operations: two handles that
// interleave reads and writes see last-write-wins, exactly like the SQL
// backend without row locks.
//
// Payloads are stored by value. Types holding slices or maps share their
// backing memory with the caller.
package memstore

import (
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/engine"
	"github.com/conorfennell/knoldeck/internal/storage"
)

type cardRow[D any] struct {
	collection domain.ID
	data       D
}

// DB holds the maps shared by every store and handle derived from it.
type DB[C, D, E, S any] struct {
	mu          sync.Mutex
	collections map[domain.ID]C
	cards       map[domain.ID]*cardRow[D]
	history     map[domain.ID][]storage.Entry[E, S]
}

// New returns an empty database.
func New[C, D, E, S any]() *DB[C, D, E, S] {
	return &DB[C, D, E, S]{
		collections: make(map[domain.ID]C),
		cards:       make(map[domain.ID]*cardRow[D]),
		history:     make(map[domain.ID][]storage.Entry[E, S]),
	}
}

// Collections returns the collection store over db.
func (db *DB[C, D, E, S]) Collections() storage.CollectionStore[C, D, E, S] {
	return &collectionStore[C, D, E, S]{db: db}
}

// Cards returns the cross-collection card store over db.
func (db *DB[C, D, E, S]) Cards() storage.CardStore[C, D, E, S] {
	return &cardStore[C, D, E, S]{db: db}
}

// Engine returns the scheduler for one collection.
func (db *DB[C, D, E, S]) Engine(collection domain.ID, alg engine.Algorithm[E, S, D]) engine.Store[E, S] {
	return &engineStore[C, D, E, S]{db: db, collection: collection, alg: alg}
}

// randomID draws a fresh positive id that taken does not report as used.
func randomID(taken func(domain.ID) bool) domain.ID {
	for {
		id := domain.ID(rand.Int64N(math.MaxInt64-1) + 1)
		if !taken(id) {
			return id
		}
	}
}

// cardsIn returns the ids of cards pointing at collection, sorted.
// Callers hold db.mu.
func (db *DB[C, D, E, S]) cardsIn(collection domain.ID) []domain.ID {
	var ids []domain.ID
	for id, row := range db.cards {
		if row.collection == collection {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// deleteCollection removes the header, its cards and any history recorded
// against it. Callers hold db.mu.
func (db *DB[C, D, E, S]) deleteCollection(id domain.ID) {
	delete(db.collections, id)
	for cardID, row := range db.cards {
		if row.collection == id {
			delete(db.cards, cardID)
			delete(db.history, cardID)
		}
	}
	for cardID, entries := range db.history {
		kept := slices.DeleteFunc(entries, func(e storage.Entry[E, S]) bool {
			return e.CollectionID == id
		})
		if len(kept) == 0 {
			delete(db.history, cardID)
		} else {
			db.history[cardID] = kept
		}
	}
}
