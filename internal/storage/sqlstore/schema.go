package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

type migration struct {
	name string
	stmt string
}

// migrations are applied in order and never edited once released. The
// schema version stored in PRAGMA user_version is the number applied.
var migrations = []migration{
	{
		name: "create collections, cards and events",
		stmt: `
-- Collections hold an opaque versioned header.
CREATE TABLE IF NOT EXISTS collections (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    header TEXT NOT NULL
);

-- Cards carry the denormalized scheduling columns recomputed on every
-- push and pop, so the next card is an indexed lookup.
CREATE TABLE IF NOT EXISTS cards (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    collection_id INTEGER NOT NULL,
    data TEXT NOT NULL,
    queue INTEGER NOT NULL DEFAULT 0,
    priority INTEGER NOT NULL DEFAULT 0,
    repeats INTEGER NOT NULL DEFAULT 0,
    lapses INTEGER NOT NULL DEFAULT 0,

    FOREIGN KEY(collection_id) REFERENCES collections(id) ON DELETE CASCADE ON UPDATE CASCADE
);

-- Events store each event with the state folded from it. ordinal orders
-- events across all cards of a collection for global undo.
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    card_id INTEGER NOT NULL,
    collection_id INTEGER NOT NULL,
    ordinal INTEGER NOT NULL,
    event TEXT NOT NULL,
    state TEXT NOT NULL,

    FOREIGN KEY(card_id) REFERENCES cards(id) ON DELETE CASCADE ON UPDATE CASCADE,
    FOREIGN KEY(collection_id) REFERENCES collections(id) ON DELETE CASCADE ON UPDATE CASCADE,
    UNIQUE(collection_id, ordinal)
);
`,
	},
	{
		name: "index card lookups",
		stmt: `
CREATE INDEX IF NOT EXISTS idx_cards_collection ON cards(collection_id, id);
CREATE INDEX IF NOT EXISTS idx_cards_schedule ON cards(collection_id, queue, priority);
CREATE INDEX IF NOT EXISTS idx_events_card ON events(card_id, id);
`,
	},
}

// LatestVersion is the schema version after every migration is applied.
func LatestVersion() int { return len(migrations) }

// SchemaVersion reads the applied schema version.
func SchemaVersion(ctx context.Context, conn *sql.DB) (int, error) {
	var v int
	if err := conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

// Migrate applies every pending migration, each in its own transaction.
func Migrate(ctx context.Context, conn *sql.DB) error {
	current, err := SchemaVersion(ctx, conn)
	if err != nil {
		return err
	}
	if current > len(migrations) {
		return fmt.Errorf("schema version %d is newer than this build (%d)", current, len(migrations))
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		m := migrations[i]

		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, m.stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d (%s): %w", version, m.name, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
		slog.Info("applied migration", "version", version, "name", m.name)
	}
	return nil
}
