package sqlstore_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/conorfennell/knoldeck/internal/deck"
	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/scheduler"
	"github.com/conorfennell/knoldeck/internal/storage/sqlstore"
	"github.com/conorfennell/knoldeck/internal/storage/storagetest"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type deckDB = sqlstore.DB[deck.Header, deck.CardData, deck.Event, deck.State]

func openDB(t *testing.T, dsn string, alg storagetest.Algorithm) *deckDB {
	t.Helper()
	db, err := sqlstore.Open(context.Background(), dsn, deck.Codecs(), alg.Columns)
	if err != nil {
		t.Fatalf("Open(%q): %v", dsn, err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, alg storagetest.Algorithm) storagetest.Backend {
		return openDB(t, ":memory:", alg)
	})
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "deck.db")
	db := openDB(t, path, storagetest.DefaultAlgorithm())

	v, err := db.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != sqlstore.LatestVersion() {
		t.Errorf("schema version = %d, want %d", v, sqlstore.LatestVersion())
	}

	// A second run has nothing to apply.
	if err := sqlstore.Migrate(ctx, db.Conn()); err != nil {
		t.Fatalf("Migrate again: %v", err)
	}
	if v, _ := db.SchemaVersion(ctx); v != sqlstore.LatestVersion() {
		t.Errorf("schema version after rerun = %d", v)
	}
}

func TestMigrateRejectsNewerSchema(t *testing.T) {
	ctx := context.Background()
	conn, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "future.db"))
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, "PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	if err := sqlstore.Migrate(ctx, conn); err == nil {
		t.Fatal("expected error migrating a newer schema")
	}
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "deck.db")
	alg := storagetest.DefaultAlgorithm()

	db, err := sqlstore.Open(ctx, path, deck.Codecs(), alg.Columns)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c, err := db.Collections().Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	card, err := c.CreateCard(ctx)
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	if err := card.Save(ctx, deck.CardData{Question: "persisted"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	eng := db.Engine(c.ID(), alg)
	if err := eng.Push(ctx, card.ID(), deck.Answer(scheduler.Good, t0)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openDB(t, path, alg)
	got, err := reopened.Collections().Get(c.ID()).Card(ctx, card.ID())
	if err != nil {
		t.Fatalf("Card after reopen: %v", err)
	}
	data, err := got.MustRead(ctx)
	if err != nil || data.Question != "persisted" {
		t.Errorf("data after reopen = %+v, %v", data, err)
	}
	state, err := reopened.Engine(c.ID(), alg).CardState(ctx, card.ID())
	if err != nil || state.Repeats != 1 {
		t.Errorf("state after reopen = %+v, %v", state, err)
	}
}

// Records written by earlier releases must still load.
func TestLegacyRows(t *testing.T) {
	ctx := context.Background()
	alg := storagetest.DefaultAlgorithm()
	db := openDB(t, ":memory:", alg)
	conn := db.Conn()

	if _, err := conn.ExecContext(ctx, `INSERT INTO collections (id, header) VALUES (7, '{"version":1,"data":{"title":"old"}}')`); err != nil {
		t.Fatalf("insert collection: %v", err)
	}
	if _, err := conn.ExecContext(ctx, `INSERT INTO cards (id, collection_id, data) VALUES (11, 7, '{"version":1,"data":{"front":"f","back":"b"}}')`); err != nil {
		t.Fatalf("insert card: %v", err)
	}
	if _, err := conn.ExecContext(ctx, `
		INSERT INTO events (card_id, collection_id, ordinal, event, state)
		VALUES (11, 7, 1, '{"version":1,"data":{"grade":2,"at":1772355600000}}',
		        '{"version":1,"data":{"due":1772442000000,"stability":1,"difficulty":0,"reps":1,"lapses":0,"queue":"review"}}')
	`); err != nil {
		t.Fatalf("insert event: %v", err)
	}

	c := db.Collections().Get(domain.ID(7))
	header, err := c.MustRead(ctx)
	if err != nil || header.Title != "old" {
		t.Fatalf("legacy header = %+v, %v", header, err)
	}
	card, err := c.Card(ctx, domain.ID(11))
	if err != nil {
		t.Fatalf("Card: %v", err)
	}
	data, err := card.MustRead(ctx)
	if err != nil || data.Question != "f" || data.Answer != "b" {
		t.Fatalf("legacy card = %+v, %v", data, err)
	}
	entries, err := card.Events(ctx, domain.Page{Limit: 5})
	if err != nil || len(entries) != 1 {
		t.Fatalf("legacy events = %+v, %v", entries, err)
	}
	if entries[0].Event.Rating != scheduler.Good || entries[0].State.Queue != domain.QueueLearned {
		t.Errorf("legacy entry = %+v", entries[0])
	}

	// Pushing on top of legacy state writes the current version.
	if err := db.Engine(c.ID(), alg).Push(ctx, card.ID(), deck.Answer(scheduler.Again, t0.Add(24*time.Hour))); err != nil {
		t.Fatalf("Push: %v", err)
	}
	var stored string
	if err := conn.QueryRowContext(ctx, `SELECT state FROM events WHERE card_id = 11 ORDER BY id DESC LIMIT 1`).Scan(&stored); err != nil {
		t.Fatalf("read state: %v", err)
	}
	if _, err := deck.StateCodec.Unmarshal([]byte(stored)); err != nil {
		t.Errorf("new state not decodable: %v", err)
	}
	state, err := db.Engine(c.ID(), alg).CardState(ctx, card.ID())
	if err != nil || state.Repeats != 2 || state.Lapses != 1 {
		t.Errorf("state on top of legacy = %+v, %v", state, err)
	}
}

func TestForeignKeysOnEveryConnection(t *testing.T) {
	ctx := context.Background()
	alg := storagetest.DefaultAlgorithm()
	tests := []struct {
		name string
		dsn  func(dir string) string
	}{
		{"plain path", func(dir string) string { return filepath.Join(dir, "deck.db") }},
		{"path with query", func(dir string) string { return filepath.Join(dir, "deck.db") + "?_pragma=busy_timeout(5000)" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openDB(t, tt.dsn(t.TempDir()), alg)

			// Without idle connections every query below runs on a newly
			// opened connection.
			db.Conn().SetMaxIdleConns(0)
			for i := 0; i < 3; i++ {
				var fk bool
				if err := db.Conn().QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
					t.Fatalf("PRAGMA foreign_keys: %v", err)
				}
				if !fk {
					t.Fatalf("connection %d has foreign keys disabled", i)
				}
			}

			c, err := db.Collections().Create(ctx)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			card, err := c.CreateCard(ctx)
			if err != nil {
				t.Fatalf("CreateCard: %v", err)
			}
			if err := c.Delete(ctx); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if exists, err := card.Exists(ctx); err != nil || exists {
				t.Errorf("card survived cascade on a fresh connection: %v %v", exists, err)
			}
		})
	}
}
