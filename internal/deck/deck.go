// Package deck is the flashcard product built on the generic core: its
// collection header, card data, review events and scheduling state.
package deck

import (
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/scheduler"
)

// Header describes a collection of cards.
type Header struct {
	Title       string    `yaml:"title"`
	Description string    `yaml:"description,omitempty"`
	CreatedAt   time.Time `yaml:"created_at"`
	UpdatedAt   time.Time `yaml:"updated_at"`
}

// HeaderPatch sets the non-nil fields of a header.
type HeaderPatch struct {
	Title       *string
	Description *string
	UpdatedAt   *time.Time
}

// Apply merges p onto h.
func (p HeaderPatch) Apply(h *Header) {
	if p.Title != nil {
		h.Title = *p.Title
	}
	if p.Description != nil {
		h.Description = *p.Description
	}
	if p.UpdatedAt != nil {
		h.UpdatedAt = *p.UpdatedAt
	}
}

// CardData is the content of a card.
type CardData struct {
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
	Context  string `yaml:"context,omitempty"`
	// Hash identifies the markdown source the card was imported from.
	Hash string `yaml:"hash,omitempty"`
	// DiscoveryPriority orders cards that have never been reviewed.
	DiscoveryPriority int64 `yaml:"discovery_priority"`
}

// CardPatch sets the non-nil fields of card data.
type CardPatch struct {
	Question          *string
	Answer            *string
	Context           *string
	DiscoveryPriority *int64
}

// Apply merges p onto d.
func (p CardPatch) Apply(d *CardData) {
	if p.Question != nil {
		d.Question = *p.Question
	}
	if p.Answer != nil {
		d.Answer = *p.Answer
	}
	if p.Context != nil {
		d.Context = *p.Context
	}
	if p.DiscoveryPriority != nil {
		d.DiscoveryPriority = *p.DiscoveryPriority
	}
}

// FromFlashcard converts a parsed markdown card.
func FromFlashcard(f domain.Flashcard) CardData {
	return CardData{Question: f.Question, Answer: f.Answer, Context: f.Context, Hash: f.Hash}
}

// EventKind discriminates review events.
type EventKind string

const (
	// KindAnswer records the user's rating of a card.
	KindAnswer EventKind = "answer"
	// KindReset forgets the card's memory, putting it back in the new queue.
	KindReset EventKind = "reset"
)

// Event is one interaction with a card.
type Event struct {
	Kind   EventKind
	Rating scheduler.Rating
	At     time.Time
}

// Answer is a review with a rating at a time.
func Answer(r scheduler.Rating, at time.Time) Event {
	return Event{Kind: KindAnswer, Rating: r, At: at}
}

// Reset forgets a card at a time.
func Reset(at time.Time) Event {
	return Event{Kind: KindReset, At: at}
}

// State is a card's folded scheduling state.
type State struct {
	Due           time.Time
	Stability     float64
	Difficulty    float64
	ElapsedDays   uint64
	ScheduledDays uint64
	Repeats       int
	Lapses        int
	Queue         domain.Queue
	LastReview    time.Time
}

// Equal compares states using time.Time.Equal for timestamps.
func (s State) Equal(o State) bool {
	return s.Due.Equal(o.Due) &&
		s.LastReview.Equal(o.LastReview) &&
		s.Stability == o.Stability &&
		s.Difficulty == o.Difficulty &&
		s.ElapsedDays == o.ElapsedDays &&
		s.ScheduledDays == o.ScheduledDays &&
		s.Repeats == o.Repeats &&
		s.Lapses == o.Lapses &&
		s.Queue == o.Queue
}
