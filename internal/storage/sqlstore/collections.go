package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/storage"
)

type collectionStore[C, D, E, S any] struct {
	db *DB[C, D, E, S]
}

func (s *collectionStore[C, D, E, S]) List(ctx context.Context) ([]domain.ID, error) {
	rows, err := s.db.conn.QueryContext(ctx, `SELECT id FROM collections`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var ids []domain.ID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan collection row: %w", err)
		}
		ids = append(ids, domain.ID(id))
	}
	return ids, rows.Err()
}

func (s *collectionStore[C, D, E, S]) Create(ctx context.Context) (storage.Collection[C, D, E, S], error) {
	var header C
	blob, err := s.db.codecs.Header.Marshal(header)
	if err != nil {
		return nil, err
	}
	res, err := s.db.conn.ExecContext(ctx, `INSERT INTO collections (header) VALUES (?)`, string(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to insert collection: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID for collection: %w", err)
	}
	return s.Get(domain.ID(id)), nil
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
	var header C
	var blob string
	err := h.db.conn.QueryRowContext(ctx, `SELECT header FROM collections WHERE id = ?`, h.id.Int64()).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return header, false, nil
		}
		return header, false, fmt.Errorf("failed to read collection %s: %w", h.id, err)
	}
	header, err = h.db.codecs.Header.Unmarshal([]byte(blob))
	if err != nil {
		return header, false, fmt.Errorf("collection %s: %w", h.id, err)
	}
	return header, true, nil
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
	var exists bool
	err := h.db.conn.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM collections WHERE id = ?)`, h.id.Int64()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check collection %s: %w", h.id, err)
	}
	return exists, nil
}

func (h *collectionHandle[C, D, E, S]) Save(ctx context.Context, header C) error {
	blob, err := h.db.codecs.Header.Marshal(header)
	if err != nil {
		return err
	}
	_, err = h.db.conn.ExecContext(ctx, `
		INSERT INTO collections (id, header) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET header = excluded.header
	`, h.id.Int64(), string(blob))
	if err != nil {
		return fmt.Errorf("failed to save collection %s: %w", h.id, err)
	}
	return nil
}

func (h *collectionHandle[C, D, E, S]) Update(ctx context.Context, patch func(*C)) error {
	return h.db.withTx(ctx, func(tx *sql.Tx) error {
		var blob string
		err := tx.QueryRowContext(ctx, `SELECT header FROM collections WHERE id = ?`, h.id.Int64()).Scan(&blob)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.CollectionNotFound(h.id)
		}
		if err != nil {
			return fmt.Errorf("failed to read collection %s: %w", h.id, err)
		}
		header, err := h.db.codecs.Header.Unmarshal([]byte(blob))
		if err != nil {
			return fmt.Errorf("collection %s: %w", h.id, err)
		}
		patch(&header)
		updated, err := h.db.codecs.Header.Marshal(header)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE collections SET header = ? WHERE id = ?`, string(updated), h.id.Int64()); err != nil {
			return fmt.Errorf("failed to update collection %s: %w", h.id, err)
		}
		return nil
	})
}

// Delete relies on ON DELETE CASCADE to remove cards and events. Cards moved
// out of the collection lose the events pushed while they lived here, so
// their columns are recomputed from what remains.
func (h *collectionHandle[C, D, E, S]) Delete(ctx context.Context) error {
	return h.db.withTx(ctx, func(tx *sql.Tx) error {
		moved, err := movedCards(ctx, tx, h.id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, h.id.Int64()); err != nil {
			return fmt.Errorf("failed to delete collection %s: %w", h.id, err)
		}
		for _, card := range moved {
			if err := h.db.refresh(ctx, tx, card, h.db.project); err != nil {
				return err
			}
		}
		return nil
	})
}

// movedCards lists cards with history in collection that now live elsewhere.
func movedCards(ctx context.Context, tx *sql.Tx, collection domain.ID) ([]domain.ID, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT DISTINCT e.card_id
		FROM events e
		JOIN cards c ON c.id = e.card_id
		WHERE e.collection_id = ? AND c.collection_id != ?
		ORDER BY e.card_id
	`, collection.Int64(), collection.Int64())
	if err != nil {
		return nil, fmt.Errorf("failed to find cards moved out of collection %s: %w", collection, err)
	}
	defer rows.Close()

	var ids []domain.ID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan card id: %w", err)
		}
		ids = append(ids, domain.ID(id))
	}
	return ids, rows.Err()
}

func (h *collectionHandle[C, D, E, S]) CardCount(ctx context.Context) (int, error) {
	var n int
	err := h.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards WHERE collection_id = ?`, h.id.Int64()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count cards of collection %s: %w", h.id, err)
	}
	return n, nil
}

func (h *collectionHandle[C, D, E, S]) Cards(ctx context.Context, page domain.Page) ([]storage.Card[C, D, E, S], error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	rows, err := h.db.conn.QueryContext(ctx, `
		SELECT id FROM cards
		WHERE collection_id = ?
		ORDER BY id
		LIMIT ? OFFSET ?
	`, h.id.Int64(), page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards of collection %s: %w", h.id, err)
	}
	defer rows.Close()

	var cards []storage.Card[C, D, E, S]
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan card row of collection %s: %w", h.id, err)
		}
		cards = append(cards, newCardHandle(h.db, domain.ID(id), h.id))
	}
	return cards, rows.Err()
}

func (h *collectionHandle[C, D, E, S]) Card(ctx context.Context, id domain.ID) (storage.Card[C, D, E, S], error) {
	var owner int64
	err := h.db.conn.QueryRowContext(ctx, `SELECT collection_id FROM cards WHERE id = ?`, id.Int64()).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.CardNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find card %s: %w", id, err)
	}
	if domain.ID(owner) != h.id {
		return nil, storage.WrongCollection(id, h.id, domain.ID(owner))
	}
	return newCardHandle(h.db, id, h.id), nil
}

func (h *collectionHandle[C, D, E, S]) CreateCard(ctx context.Context) (storage.Card[C, D, E, S], error) {
	var data D
	blob, err := h.db.codecs.Card.Marshal(data)
	if err != nil {
		return nil, err
	}
	cols := h.db.base(data)

	var id int64
	err = h.db.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := collectionExists(ctx, tx, h.id)
		if err != nil {
			return err
		}
		if !exists {
			return storage.CollectionNotFound(h.id)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO cards (collection_id, data, queue, priority, repeats, lapses)
			VALUES (?, ?, ?, ?, ?, ?)
		`, h.id.Int64(), string(blob), int(cols.Queue), cols.Priority, cols.Repeats, cols.Lapses)
		if err != nil {
			return fmt.Errorf("failed to insert card into collection %s: %w", h.id, err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert ID for card: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newCardHandle(h.db, domain.ID(id), h.id), nil
}
