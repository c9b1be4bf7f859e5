// Package importer reconciles a collection with a directory of markdown
// decks. Cards are matched by content hash: new hashes become new cards and
// imported cards whose hash disappeared from the source are deleted along
// with their history. Cards created by other means carry no hash and are
// left alone.
package importer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/conorfennell/knoldeck/internal/deck"
	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/knol"
	"github.com/conorfennell/knoldeck/internal/parser"
	"github.com/conorfennell/knoldeck/internal/storage"
)

type (
	Collection = storage.Collection[deck.Header, deck.CardData, deck.Event, deck.State]
	Card       = storage.Card[deck.Header, deck.CardData, deck.Event, deck.State]
)

// Report summarizes one reconciliation.
type Report struct {
	Parsed    int
	Created   int
	Unchanged int
	Deleted   int
	// Errors are per-file or per-card failures that did not stop the run.
	Errors []error
}

const pageSize = 100

// existing maps the content hash of every imported card in c to its handle,
// and returns the largest discovery priority seen.
func existing(ctx context.Context, c Collection) (map[string]Card, int64, error) {
	byHash := make(map[string]Card)
	var last int64
	for offset := 0; ; offset += pageSize {
		cards, err := c.Cards(ctx, domain.Page{Offset: offset, Limit: pageSize})
		if err != nil {
			return nil, 0, fmt.Errorf("failed to list cards of collection %s: %w", c.ID(), err)
		}
		for _, card := range cards {
			data, ok, err := card.Read(ctx)
			if err != nil {
				return nil, 0, err
			}
			if !ok {
				continue
			}
			last = max(last, data.DiscoveryPriority)
			if data.Hash != "" {
				byHash[data.Hash] = card
			}
		}
		if len(cards) < pageSize {
			return byHash, last, nil
		}
	}
}

// Sync reconciles c with the markdown files under dir. It fails only when
// the collection is missing or the directory cannot be walked.
func Sync(ctx context.Context, c Collection, dir string) (Report, error) {
	var report Report
	if _, err := c.MustRead(ctx); err != nil {
		return report, err
	}
	known, priority, err := existing(ctx, c)
	if err != nil {
		return report, err
	}

	found := make(map[string]bool)
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		cards, err := parser.ParseFile(path)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("parsing %s: %w", path, err))
			return nil
		}
		for _, f := range cards {
			f.Hash = knol.Hash(f)
			report.Parsed++
			if found[f.Hash] {
				continue
			}
			found[f.Hash] = true
			if _, ok := known[f.Hash]; ok {
				report.Unchanged++
				continue
			}

			priority++
			data := deck.FromFlashcard(f)
			data.DiscoveryPriority = priority
			if err := create(ctx, c, data); err != nil {
				report.Errors = append(report.Errors, fmt.Errorf("inserting %s: %w", f.Hash, err))
				continue
			}
			slog.Debug("new card found", "hash", f.Hash, "file", path)
			report.Created++
		}
		return nil
	})
	if walkErr != nil {
		return report, fmt.Errorf("error walking directory %s: %w", dir, walkErr)
	}

	for hash, card := range known {
		if found[hash] {
			continue
		}
		if err := card.Delete(ctx); err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("deleting orphan %s: %w", hash, err))
			continue
		}
		slog.Debug("orphaned card deleted", "hash", hash)
		report.Deleted++
	}

	slog.Info("reconciliation complete",
		"collection", c.ID(),
		"path", dir,
		"parsed_cards", report.Parsed,
		"created", report.Created,
		"orphaned_deleted", report.Deleted,
		"errors", len(report.Errors),
	)
	return report, nil
}

func create(ctx context.Context, c Collection, data deck.CardData) error {
	card, err := c.CreateCard(ctx)
	if err != nil {
		return err
	}
	return card.Save(ctx, data)
}
