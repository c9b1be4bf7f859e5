// Package app is the composition root: it turns a Config into wired stores,
// engines and the study workflows the CLI exposes.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/conorfennell/knoldeck/internal/config"
	"github.com/conorfennell/knoldeck/internal/deck"
	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/engine"
	"github.com/conorfennell/knoldeck/internal/gitsource"
	"github.com/conorfennell/knoldeck/internal/importer"
	"github.com/conorfennell/knoldeck/internal/locking"
	"github.com/conorfennell/knoldeck/internal/scheduler"
	"github.com/conorfennell/knoldeck/internal/storage"
	"github.com/conorfennell/knoldeck/internal/storage/memstore"
	"github.com/conorfennell/knoldeck/internal/storage/sqlstore"
)

type (
	Collections = storage.CollectionStore[deck.Header, deck.CardData, deck.Event, deck.State]
	Cards       = storage.CardStore[deck.Header, deck.CardData, deck.Event, deck.State]
	Card        = storage.Card[deck.Header, deck.CardData, deck.Event, deck.State]
	Engine      = engine.Store[deck.Event, deck.State]
	Algorithm   = engine.Algorithm[deck.Event, deck.State, deck.CardData]
)

type backend interface {
	Collections() Collections
	Cards() Cards
	Engine(collection domain.ID, alg Algorithm) Engine
}

// App owns the storage backend for its lifetime.
type App struct {
	cfg       config.Config
	backend   backend
	algorithm Algorithm
	locks     *locking.Locks
	sql       *sqlstore.DB[deck.Header, deck.CardData, deck.Event, deck.State]
}

// NewModel builds the scheduling model named by cfg.
func NewModel(cfg config.Scheduler) (scheduler.Model, error) {
	switch cfg.Algorithm {
	case "fsrs":
		return scheduler.NewFSRS(cfg.Retention, cfg.MaximumInterval), nil
	case "simple":
		return scheduler.NewSimple(cfg.Retention), nil
	default:
		return nil, fmt.Errorf("unknown scheduler %q: %w", cfg.Algorithm, domain.ErrValidation)
	}
}

// NewAlgorithm builds the deck algorithm described by cfg.
func NewAlgorithm(cfg config.Config) (Algorithm, error) {
	model, err := NewModel(cfg.Scheduler)
	if err != nil {
		return Algorithm{}, err
	}
	direction := engine.Ascending
	if cfg.Engine.Direction == "descending" {
		direction = engine.Descending
	}
	return deck.NewAlgorithm(model, direction, cfg.Engine.IncludeUnreviewed), nil
}

func newLocks(mode string) (*locking.Locks, error) {
	switch mode {
	case "none":
		return nil, nil
	case "single":
		l := locking.NewSingle()
		return &l, nil
	case "rw":
		l := locking.NewRW()
		return &l, nil
	default:
		return nil, fmt.Errorf("unknown locking mode %q: %w", mode, domain.ErrValidation)
	}
}

// New validates cfg and opens the configured backend.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	alg, err := NewAlgorithm(cfg)
	if err != nil {
		return nil, err
	}
	locks, err := newLocks(cfg.Locking.Mode)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, algorithm: alg, locks: locks}
	switch cfg.Database.Driver {
	case "memory":
		a.backend = memstore.New[deck.Header, deck.CardData, deck.Event, deck.State]()
	case "sqlite":
		db, err := sqlstore.Open(ctx, cfg.Database.DSN, deck.Codecs(), alg.Columns)
		if err != nil {
			return nil, err
		}
		a.sql = db
		a.backend = db
	default:
		return nil, fmt.Errorf("unknown driver %q: %w", cfg.Database.Driver, domain.ErrValidation)
	}
	slog.Debug("storage ready",
		"driver", cfg.Database.Driver,
		"algorithm", cfg.Scheduler.Algorithm,
		"direction", alg.Direction,
		"locking", cfg.Locking.Mode,
	)
	return a, nil
}

// Close releases the backend.
func (a *App) Close() error {
	if a.sql != nil {
		return a.sql.Close()
	}
	return nil
}

// Algorithm is the reducer/extractor pairing every engine runs.
func (a *App) Algorithm() Algorithm { return a.algorithm }

// Collections returns the collection store, locked per the configured mode.
func (a *App) Collections() Collections {
	if a.locks == nil {
		return a.backend.Collections()
	}
	return locking.Collections(a.backend.Collections(), *a.locks)
}

// Cards returns the card store, locked per the configured mode.
func (a *App) Cards() Cards {
	if a.locks == nil {
		return a.backend.Cards()
	}
	return locking.Cards(a.backend.Cards(), *a.locks)
}

// Engine returns the scheduler for one collection.
func (a *App) Engine(collection domain.ID) Engine {
	e := a.backend.Engine(collection, a.algorithm)
	if a.locks == nil {
		return e
	}
	return locking.Engine(e, *a.locks)
}

// ErrNoSchema is returned by schema commands on a backend without one.
var ErrNoSchema = errors.New("backend has no schema")

// Migrate applies pending migrations and returns the resulting version.
func (a *App) Migrate(ctx context.Context) (int, error) {
	if a.sql == nil {
		return 0, ErrNoSchema
	}
	if err := sqlstore.Migrate(ctx, a.sql.Conn()); err != nil {
		return 0, err
	}
	return a.sql.SchemaVersion(ctx)
}

// SchemaVersion reports the applied schema version.
func (a *App) SchemaVersion(ctx context.Context) (int, error) {
	if a.sql == nil {
		return 0, ErrNoSchema
	}
	return a.sql.SchemaVersion(ctx)
}

// CreateCollection stores a new collection with the given title.
func (a *App) CreateCollection(ctx context.Context, title, description string, now time.Time) (domain.ID, error) {
	c, err := a.Collections().Create(ctx)
	if err != nil {
		return 0, err
	}
	header := deck.Header{Title: title, Description: description, CreatedAt: now, UpdatedAt: now}
	if err := c.Save(ctx, header); err != nil {
		return 0, err
	}
	slog.Info("collection created", "id", c.ID(), "title", title)
	return c.ID(), nil
}

// Summary describes one collection for listings.
type Summary struct {
	ID     domain.ID
	Header deck.Header
	Cards  int
}

// ListCollections summarizes every collection, skipping any deleted while
// listing.
func (a *App) ListCollections(ctx context.Context) ([]Summary, error) {
	ids, err := a.Collections().List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		c := a.Collections().Get(id)
		header, ok, err := c.Read(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		n, err := c.CardCount(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, Summary{ID: id, Header: header, Cards: n})
	}
	return out, nil
}

// DeleteCollection removes a collection with its cards and history.
func (a *App) DeleteCollection(ctx context.Context, id domain.ID) error {
	if err := a.Collections().Get(id).Delete(ctx); err != nil {
		return err
	}
	slog.Info("collection deleted", "id", id)
	return nil
}

// Import mirrors source when it is a git URL and reconciles the collection
// with its markdown files.
func (a *App) Import(ctx context.Context, collection domain.ID, source string, progress io.Writer) (importer.Report, error) {
	dir, err := gitsource.Resolve(ctx, source, a.cfg.ReposDir, progress)
	if err != nil {
		return importer.Report{}, err
	}
	report, err := importer.Sync(ctx, a.Collections().Get(collection), dir)
	if err != nil {
		return report, err
	}
	if err := a.touch(ctx, collection, time.Now()); err != nil {
		return report, err
	}
	return report, nil
}

func (a *App) touch(ctx context.Context, collection domain.ID, now time.Time) error {
	patch := deck.HeaderPatch{UpdatedAt: &now}
	return a.Collections().Get(collection).Update(ctx, patch.Apply)
}

// Study is the card to review next together with its state.
type Study struct {
	Card  Card
	Data  deck.CardData
	State deck.State
}

// Next picks the card to study in a collection. ok is false when no card
// qualifies.
func (a *App) Next(ctx context.Context, collection domain.ID, queues []domain.Queue) (Study, bool, error) {
	eng := a.Engine(collection)
	id, ok, err := eng.TopCard(ctx, queues)
	if err != nil || !ok {
		return Study{}, false, err
	}
	card, err := a.Collections().Get(collection).Card(ctx, id)
	if err != nil {
		return Study{}, false, err
	}
	data, err := card.MustRead(ctx)
	if err != nil {
		return Study{}, false, err
	}
	state, err := eng.CardState(ctx, id)
	if err != nil {
		return Study{}, false, err
	}
	return Study{Card: card, Data: data, State: state}, true, nil
}

// Answer records a rating for a card and returns its new state.
func (a *App) Answer(ctx context.Context, collection, card domain.ID, rating scheduler.Rating, now time.Time) (deck.State, error) {
	if !rating.Valid() {
		return deck.State{}, fmt.Errorf("rating %d: %w", rating, domain.ErrValidation)
	}
	eng := a.Engine(collection)
	if err := eng.Push(ctx, card, deck.Answer(rating, now)); err != nil {
		return deck.State{}, err
	}
	state, err := eng.CardState(ctx, card)
	if err != nil {
		return deck.State{}, err
	}
	slog.Debug("card answered", "collection", collection, "card", card, "rating", rating, "due", state.Due)
	return state, nil
}

// Reset forgets a card's memory.
func (a *App) Reset(ctx context.Context, collection, card domain.ID, now time.Time) error {
	return a.Engine(collection).Push(ctx, card, deck.Reset(now))
}

// Undo removes the latest event in the collection, or the latest event of
// card when card is non-zero.
func (a *App) Undo(ctx context.Context, collection, card domain.ID) error {
	eng := a.Engine(collection)
	if card != 0 {
		return eng.PopCard(ctx, card)
	}
	return eng.Pop(ctx)
}
