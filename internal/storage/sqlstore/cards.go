package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/storage"
)

type cardStore[C, D, E, S any] struct {
	db *DB[C, D, E, S]
}

func (s *cardStore[C, D, E, S]) List(ctx context.Context) ([]domain.ID, error) {
	rows, err := s.db.conn.QueryContext(ctx, `SELECT id FROM cards`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	var ids []domain.ID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		ids = append(ids, domain.ID(id))
	}
	return ids, rows.Err()
}

func (s *cardStore[C, D, E, S]) Get(ctx context.Context, id domain.ID) (storage.Card[C, D, E, S], error) {
	var collection int64
	err := s.db.conn.QueryRowContext(ctx, `SELECT collection_id FROM cards WHERE id = ?`, id.Int64()).Scan(&collection)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.CardNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find card %s: %w", id, err)
	}
	return newCardHandle(s.db, id, domain.ID(collection)), nil
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
	var data D
	var blob string
	err := h.db.conn.QueryRowContext(ctx, `SELECT data FROM cards WHERE id = ?`, h.id.Int64()).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return data, false, nil
		}
		return data, false, fmt.Errorf("failed to read card %s: %w", h.id, err)
	}
	data, err = h.db.codecs.Card.Unmarshal([]byte(blob))
	if err != nil {
		return data, false, fmt.Errorf("card %s: %w", h.id, err)
	}
	return data, true, nil
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
	var exists bool
	err := h.db.conn.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM cards WHERE id = ?)`, h.id.Int64()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check card %s: %w", h.id, err)
	}
	return exists, nil
}

func (h *cardHandle[C, D, E, S]) Save(ctx context.Context, data D) error {
	blob, err := h.db.codecs.Card.Marshal(data)
	if err != nil {
		return err
	}
	return h.db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE cards SET data = ? WHERE id = ?`, string(blob), h.id.Int64())
		if err != nil {
			return fmt.Errorf("failed to save card %s: %w", h.id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to save card %s: %w", h.id, err)
		}
		if n == 0 {
			return h.recreate(ctx, tx, blob, data)
		}
		return h.refreshBase(ctx, tx, data)
	})
}

// recreate inserts a deleted card back under its cached collection.
func (h *cardHandle[C, D, E, S]) recreate(ctx context.Context, tx *sql.Tx, blob []byte, data D) error {
	collection := h.CollectionID()
	exists, err := collectionExists(ctx, tx, collection)
	if err != nil {
		return err
	}
	if !exists {
		return storage.CardOrphaned(h.id, collection)
	}
	cols := h.db.base(data)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO cards (id, collection_id, data, queue, priority, repeats, lapses)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, h.id.Int64(), collection.Int64(), string(blob), int(cols.Queue), cols.Priority, cols.Repeats, cols.Lapses)
	if err != nil {
		return fmt.Errorf("failed to recreate card %s: %w", h.id, err)
	}
	return nil
}

// refreshBase recomputes the scheduling columns of a card that has no
// history, since they derive from its data alone. Reviewed cards keep the
// columns written by the engine.
func (h *cardHandle[C, D, E, S]) refreshBase(ctx context.Context, tx *sql.Tx, data D) error {
	reviewed, err := hasHistory(ctx, tx, h.id)
	if err != nil || reviewed {
		return err
	}
	return writeColumns(ctx, tx, h.id, h.db.base(data))
}

func (h *cardHandle[C, D, E, S]) Update(ctx context.Context, patch func(*D)) error {
	return h.db.withTx(ctx, func(tx *sql.Tx) error {
		var blob string
		err := tx.QueryRowContext(ctx, `SELECT data FROM cards WHERE id = ?`, h.id.Int64()).Scan(&blob)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.CardNotFound(h.id)
		}
		if err != nil {
			return fmt.Errorf("failed to read card %s: %w", h.id, err)
		}
		data, err := h.db.codecs.Card.Unmarshal([]byte(blob))
		if err != nil {
			return fmt.Errorf("card %s: %w", h.id, err)
		}
		patch(&data)
		updated, err := h.db.codecs.Card.Marshal(data)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE cards SET data = ? WHERE id = ?`, string(updated), h.id.Int64()); err != nil {
			return fmt.Errorf("failed to update card %s: %w", h.id, err)
		}
		return h.refreshBase(ctx, tx, data)
	})
}

// Delete relies on ON DELETE CASCADE to remove the card's events.
func (h *cardHandle[C, D, E, S]) Delete(ctx context.Context) error {
	if _, err := h.db.conn.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, h.id.Int64()); err != nil {
		return fmt.Errorf("failed to delete card %s: %w", h.id, err)
	}
	return nil
}

func (h *cardHandle[C, D, E, S]) SetCollection(ctx context.Context, collection domain.ID) error {
	err := h.db.withTx(ctx, func(tx *sql.Tx) error {
		var current int64
		err := tx.QueryRowContext(ctx, `SELECT collection_id FROM cards WHERE id = ?`, h.id.Int64()).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.CardNotFound(h.id)
		}
		if err != nil {
			return fmt.Errorf("failed to find card %s: %w", h.id, err)
		}
		exists, err := collectionExists(ctx, tx, collection)
		if err != nil {
			return err
		}
		if !exists {
			return storage.CollectionNotFound(collection)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE cards SET collection_id = ? WHERE id = ?`, collection.Int64(), h.id.Int64()); err != nil {
			return fmt.Errorf("failed to move card %s to collection %s: %w", h.id, collection, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	h.collection.Store(int64(collection))
	return nil
}

func (h *cardHandle[C, D, E, S]) EventCount(ctx context.Context) (int, error) {
	var n int
	err := h.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE card_id = ?`, h.id.Int64()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events of card %s: %w", h.id, err)
	}
	return n, nil
}

func (h *cardHandle[C, D, E, S]) Events(ctx context.Context, page domain.Page) ([]storage.Entry[E, S], error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	rows, err := h.db.conn.QueryContext(ctx, `
		SELECT collection_id, ordinal, event, state
		FROM events
		WHERE card_id = ?
		ORDER BY id
		LIMIT ? OFFSET ?
	`, h.id.Int64(), page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get events of card %s: %w", h.id, err)
	}
	defer rows.Close()

	var entries []storage.Entry[E, S]
	for rows.Next() {
		var (
			collection, ordinal int64
			eventBlob, stateBlob string
		)
		if err := rows.Scan(&collection, &ordinal, &eventBlob, &stateBlob); err != nil {
			return nil, fmt.Errorf("failed to scan event row of card %s: %w", h.id, err)
		}
		entry, err := h.db.decodeEntry(domain.ID(collection), ordinal, eventBlob, stateBlob)
		if err != nil {
			return nil, fmt.Errorf("card %s: %w", h.id, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (db *DB[C, D, E, S]) decodeEntry(collection domain.ID, ordinal int64, eventBlob, stateBlob string) (storage.Entry[E, S], error) {
	event, err := db.codecs.Event.Unmarshal([]byte(eventBlob))
	if err != nil {
		return storage.Entry[E, S]{}, err
	}
	state, err := db.codecs.State.Unmarshal([]byte(stateBlob))
	if err != nil {
		return storage.Entry[E, S]{}, err
	}
	return storage.Entry[E, S]{CollectionID: collection, Ordinal: ordinal, Event: event, State: state}, nil
}
