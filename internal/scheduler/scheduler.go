// Package scheduler holds the spaced-repetition models. A model is a black
// box: given a card's memory and a rating at a point in time it returns the
// updated memory. Models never read the wall clock.
package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rating is the user's response to a card review.
type Rating int

const (
	Again Rating = 1
	Hard  Rating = 2
	Good  Rating = 3
	Easy  Rating = 4
)

// Valid reports whether r is one of the four ratings.
func (r Rating) Valid() bool { return r >= Again && r <= Easy }

func (r Rating) String() string {
	switch r {
	case Again:
		return "again"
	case Hard:
		return "hard"
	case Good:
		return "good"
	case Easy:
		return "easy"
	default:
		return fmt.Sprintf("rating(%d)", int(r))
	}
}

// ParseRating accepts a rating name or its number.
func ParseRating(s string) (Rating, error) {
	for r := Again; r <= Easy; r++ {
		if strings.EqualFold(s, r.String()) || s == strconv.Itoa(int(r)) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown rating %q", s)
}

// Phase is where a card sits in the learning cycle.
type Phase int

const (
	New Phase = iota
	Learning
	Review
	Relearning
)

// Memory is the scheduling state of one card.
type Memory struct {
	Due           time.Time
	Stability     float64
	Difficulty    float64
	ElapsedDays   uint64
	ScheduledDays uint64
	Reps          uint64
	Lapses        uint64
	Phase         Phase
	LastReview    time.Time
}

// Model computes the memory after a review at now.
type Model interface {
	Review(m Memory, r Rating, now time.Time) Memory
}
