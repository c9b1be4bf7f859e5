// Package sqlstore is the SQLite backend. Each logical operation runs in a
// single transaction, but no row locks are held between operations, so
// concurrent callers on the same card may interleave and lose writes.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // Registers the sqlite driver

	"github.com/conorfennell/knoldeck/internal/codec"
	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/engine"
	"github.com/conorfennell/knoldeck/internal/storage"
)

// Codecs serialize each stored payload kind.
type Codecs[C, D, E, S any] struct {
	Header *codec.Codec[C]
	Card   *codec.Codec[D]
	Event  *codec.Codec[E]
	State  *codec.Codec[S]
}

// DB is a migrated SQLite database shared by every store and handle derived
// from it.
type DB[C, D, E, S any] struct {
	conn   *sql.DB
	codecs Codecs[C, D, E, S]
	// project computes the scheduling columns of a card from its latest
	// state, or from its data alone when state is nil.
	project func(state *S, data D) domain.Columns
}

// Open connects to dsn with foreign keys enforced and applies pending
// migrations. project computes the scheduling columns stored on each card;
// nil leaves them zero.
func Open[C, D, E, S any](ctx context.Context, dsn string, codecs Codecs[C, D, E, S], project func(state *S, data D) domain.Columns) (*DB[C, D, E, S], error) {
	conn, err := sql.Open("sqlite", withForeignKeys(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases consistent across calls.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	var fk bool
	if err := conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read foreign_keys pragma: %w", err)
	}
	if !fk {
		conn.Close()
		return nil, fmt.Errorf("foreign keys are disabled for %s", dsn)
	}
	if err := Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}

	if project == nil {
		project = func(*S, D) domain.Columns { return domain.Columns{} }
	}
	return &DB[C, D, E, S]{conn: conn, codecs: codecs, project: project}, nil
}

// withForeignKeys adds the foreign_keys pragma to dsn so every pooled
// connection enforces cascades.
func withForeignKeys(dsn string) string {
	const pragma = "_pragma=foreign_keys(1)"
	if strings.Contains(dsn, pragma) {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + pragma
	}
	return dsn + "?" + pragma
}

// base projects a card without history.
func (db *DB[C, D, E, S]) base(data D) domain.Columns {
	return db.project(nil, data)
}

// Close closes the database connection.
func (db *DB[C, D, E, S]) Close() error {
	return db.conn.Close()
}

// Conn exposes the underlying connection for schema lifecycle calls.
func (db *DB[C, D, E, S]) Conn() *sql.DB {
	return db.conn
}

// SchemaVersion reads the applied schema version.
func (db *DB[C, D, E, S]) SchemaVersion(ctx context.Context) (int, error) {
	return SchemaVersion(ctx, db.conn)
}

// Collections returns the collection store over db.
func (db *DB[C, D, E, S]) Collections() storage.CollectionStore[C, D, E, S] {
	return &collectionStore[C, D, E, S]{db: db}
}

// Cards returns the cross-collection card store over db.
func (db *DB[C, D, E, S]) Cards() storage.CardStore[C, D, E, S] {
	return &cardStore[C, D, E, S]{db: db}
}

// Engine returns the scheduler for one collection. alg must project cards
// the same way as the func db was opened with, since TopCard reads the
// stored columns.
func (db *DB[C, D, E, S]) Engine(collection domain.ID, alg engine.Algorithm[E, S, D]) engine.Store[E, S] {
	return &engineStore[C, D, E, S]{db: db, collection: collection, alg: alg}
}

// withTx runs fn in a transaction, committing when it returns nil.
func (db *DB[C, D, E, S]) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback after a successful Commit is a no-op; the deferred call also
	// releases the connection if fn panics.
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// collectionExists reports whether a collection row exists.
func collectionExists(ctx context.Context, tx *sql.Tx, id domain.ID) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM collections WHERE id = ?)`, id.Int64()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check collection %s: %w", id, err)
	}
	return exists, nil
}

// hasHistory reports whether a card has any recorded events.
func hasHistory(ctx context.Context, tx *sql.Tx, card domain.ID) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM events WHERE card_id = ?)`, card.Int64()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check history of card %s: %w", card, err)
	}
	return exists, nil
}

// latestState returns the state folded by the card's most recent event.
func (db *DB[C, D, E, S]) latestState(ctx context.Context, tx *sql.Tx, card domain.ID) (S, bool, error) {
	var state S
	var blob string
	err := tx.QueryRowContext(ctx, `
		SELECT state FROM events
		WHERE card_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, card.Int64()).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return state, false, nil
	}
	if err != nil {
		return state, false, fmt.Errorf("failed to read latest state of card %s: %w", card, err)
	}
	state, err = db.codecs.State.Unmarshal([]byte(blob))
	if err != nil {
		return state, false, fmt.Errorf("card %s: %w", card, err)
	}
	return state, true, nil
}

// refresh recomputes a card's scheduling columns from its remaining history.
// A card that no longer exists is skipped.
func (db *DB[C, D, E, S]) refresh(ctx context.Context, tx *sql.Tx, card domain.ID, project func(*S, D) domain.Columns) error {
	var blob string
	err := tx.QueryRowContext(ctx, `SELECT data FROM cards WHERE id = ?`, card.Int64()).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read card %s: %w", card, err)
	}
	data, err := db.codecs.Card.Unmarshal([]byte(blob))
	if err != nil {
		return fmt.Errorf("card %s: %w", card, err)
	}
	state, ok, err := db.latestState(ctx, tx, card)
	if err != nil {
		return err
	}
	if !ok {
		return writeColumns(ctx, tx, card, project(nil, data))
	}
	return writeColumns(ctx, tx, card, project(&state, data))
}

// writeColumns stores the denormalized scheduling columns of a card.
func writeColumns(ctx context.Context, tx *sql.Tx, card domain.ID, cols domain.Columns) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE cards
		SET queue = ?, priority = ?, repeats = ?, lapses = ?
		WHERE id = ?
	`, int(cols.Queue), cols.Priority, cols.Repeats, cols.Lapses, card.Int64())
	if err != nil {
		return fmt.Errorf("failed to update scheduling columns for card %s: %w", card, err)
	}
	return nil
}
