package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/conorfennell/knoldeck/internal/deck"
	"github.com/conorfennell/knoldeck/internal/domain"
)

// ExportedCollection is the YAML document written by Export.
type ExportedCollection struct {
	ID     int64          `yaml:"id"`
	Header deck.Header    `yaml:"header"`
	Cards  []ExportedCard `yaml:"cards"`
}

// ExportedCard is a card with a summary of its scheduling state.
type ExportedCard struct {
	ID      int64         `yaml:"id"`
	Data    deck.CardData `yaml:",inline"`
	Queue   string        `yaml:"queue"`
	Due     *time.Time    `yaml:"due,omitempty"`
	Repeats int           `yaml:"repeats"`
	Lapses  int           `yaml:"lapses"`
	Events  int           `yaml:"events"`
}

// Snapshot reads a collection with every card and its current state.
func (a *App) Snapshot(ctx context.Context, collection domain.ID) (ExportedCollection, error) {
	c := a.Collections().Get(collection)
	header, err := c.MustRead(ctx)
	if err != nil {
		return ExportedCollection{}, err
	}
	out := ExportedCollection{ID: collection.Int64(), Header: header}
	eng := a.Engine(collection)

	for offset := 0; ; offset += 100 {
		cards, err := c.Cards(ctx, domain.Page{Offset: offset, Limit: 100})
		if err != nil {
			return out, err
		}
		for _, card := range cards {
			data, ok, err := card.Read(ctx)
			if err != nil {
				return out, err
			}
			if !ok {
				continue
			}
			events, err := card.EventCount(ctx)
			if err != nil {
				return out, err
			}
			state, err := eng.CardState(ctx, card.ID())
			if err != nil {
				return out, err
			}
			ec := ExportedCard{
				ID:      card.ID().Int64(),
				Data:    data,
				Queue:   state.Queue.String(),
				Repeats: state.Repeats,
				Lapses:  state.Lapses,
				Events:  events,
			}
			if events > 0 {
				due := state.Due
				ec.Due = &due
			}
			out.Cards = append(out.Cards, ec)
		}
		if len(cards) < 100 {
			return out, nil
		}
	}
}

// Export writes a collection as YAML.
func (a *App) Export(ctx context.Context, collection domain.ID, w io.Writer) error {
	snap, err := a.Snapshot(ctx, collection)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("failed to encode collection %s: %w", collection, err)
	}
	return enc.Close()
}
