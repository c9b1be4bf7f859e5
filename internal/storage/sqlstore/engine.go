package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

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

// ownedData loads a card's data, checking it belongs to this collection.
func (s *engineStore[C, D, E, S]) ownedData(ctx context.Context, tx *sql.Tx, card domain.ID) (D, error) {
	var (
		data  D
		owner int64
		blob  string
	)
	err := tx.QueryRowContext(ctx, `SELECT collection_id, data FROM cards WHERE id = ?`, card.Int64()).Scan(&owner, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return data, storage.CardNotFound(card)
	}
	if err != nil {
		return data, fmt.Errorf("failed to find card %s: %w", card, err)
	}
	if domain.ID(owner) != s.collection {
		return data, storage.WrongCollection(card, s.collection, domain.ID(owner))
	}
	data, err = s.db.codecs.Card.Unmarshal([]byte(blob))
	if err != nil {
		return data, fmt.Errorf("card %s: %w", card, err)
	}
	return data, nil
}

func (s *engineStore[C, D, E, S]) Push(ctx context.Context, card domain.ID, event E) error {
	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		data, err := s.ownedData(ctx, tx, card)
		if err != nil {
			return err
		}
		state, ok, err := s.db.latestState(ctx, tx, card)
		if err != nil {
			return err
		}
		if !ok {
			state = s.alg.Reducer.DefaultState()
		}
		next := s.alg.Reducer.Fold(state, event)

		eventBlob, err := s.db.codecs.Event.Marshal(event)
		if err != nil {
			return err
		}
		stateBlob, err := s.db.codecs.State.Marshal(next)
		if err != nil {
			return err
		}

		var ordinal int64
		err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(ordinal), 0) + 1 FROM events WHERE collection_id = ?`, s.collection.Int64()).Scan(&ordinal)
		if err != nil {
			return fmt.Errorf("failed to allocate ordinal in collection %s: %w", s.collection, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (card_id, collection_id, ordinal, event, state)
			VALUES (?, ?, ?, ?, ?)
		`, card.Int64(), s.collection.Int64(), ordinal, string(eventBlob), string(stateBlob))
		if err != nil {
			return fmt.Errorf("failed to insert event for card %s: %w", card, err)
		}
		return writeColumns(ctx, tx, card, s.alg.Columns(&next, data))
	})
}

func (s *engineStore[C, D, E, S]) PopCard(ctx context.Context, card domain.ID) error {
	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.ownedData(ctx, tx, card); err != nil {
			return err
		}
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM events WHERE card_id = ? ORDER BY id DESC LIMIT 1`, card.Int64()).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to find latest event of card %s: %w", card, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete event %d: %w", id, err)
		}
		return s.db.refresh(ctx, tx, card, s.alg.Columns)
	})
}

func (s *engineStore[C, D, E, S]) Pop(ctx context.Context) error {
	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := collectionExists(ctx, tx, s.collection)
		if err != nil {
			return err
		}
		if !exists {
			return storage.CollectionNotFound(s.collection)
		}
		var id, card int64
		err = tx.QueryRowContext(ctx, `
			SELECT id, card_id FROM events
			WHERE collection_id = ?
			ORDER BY ordinal DESC
			LIMIT 1
		`, s.collection.Int64()).Scan(&id, &card)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to find latest event of collection %s: %w", s.collection, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete event %d: %w", id, err)
		}
		return s.db.refresh(ctx, tx, domain.ID(card), s.alg.Columns)
	})
}

func (s *engineStore[C, D, E, S]) CardState(ctx context.Context, card domain.ID) (S, error) {
	var state S
	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.ownedData(ctx, tx, card); err != nil {
			return err
		}
		latest, ok, err := s.db.latestState(ctx, tx, card)
		if err != nil {
			return err
		}
		if ok {
			state = latest
		} else {
			state = s.alg.Reducer.DefaultState()
		}
		return nil
	})
	return state, err
}

func (s *engineStore[C, D, E, S]) TopCard(ctx context.Context, queues []domain.Queue) (domain.ID, bool, error) {
	var (
		id    int64
		found bool
	)
	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := collectionExists(ctx, tx, s.collection)
		if err != nil {
			return err
		}
		if !exists {
			return storage.CollectionNotFound(s.collection)
		}
		if queues != nil && len(queues) == 0 {
			return nil
		}

		query, args := s.topCardQuery(queues)
		err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to select top card of collection %s: %w", s.collection, err)
		}
		found = true
		return nil
	})
	return domain.ID(id), found, err
}

func (s *engineStore[C, D, E, S]) topCardQuery(queues []domain.Queue) (string, []any) {
	var b strings.Builder
	args := []any{s.collection.Int64()}

	b.WriteString(`SELECT id FROM cards WHERE collection_id = ?`)
	if queues != nil {
		b.WriteString(` AND queue IN (`)
		for i, q := range queues {
			if i > 0 {
				b.WriteString(`, `)
			}
			b.WriteString(`?`)
			args = append(args, int(q))
		}
		b.WriteString(`)`)
	}
	if !s.alg.IncludeUnreviewed {
		b.WriteString(` AND EXISTS (SELECT 1 FROM events WHERE events.card_id = cards.id)`)
	}
	if s.alg.Direction == engine.Descending {
		b.WriteString(` ORDER BY priority DESC, id ASC LIMIT 1`)
	} else {
		b.WriteString(` ORDER BY priority ASC, id ASC LIMIT 1`)
	}
	return b.String(), args
}
