package scheduler

import (
	"time"

	"github.com/open-spaced-repetition/go-fsrs/v3"
)

// FSRS adapts go-fsrs to Model. Fuzzing is disabled so that reviews are
// reproducible from the event history.
type FSRS struct {
	f *fsrs.FSRS
}

// NewFSRS builds the model from the default weights with the given desired
// retention and maximum interval in days.
func NewFSRS(retention, maximumInterval float64) *FSRS {
	p := fsrs.DefaultParam()
	p.RequestRetention = retention
	p.MaximumInterval = maximumInterval
	p.EnableFuzz = false
	return &FSRS{f: fsrs.NewFSRS(p)}
}

func (m *FSRS) Review(mem Memory, r Rating, now time.Time) Memory {
	info := m.f.Next(toCard(mem), now, fsrs.Rating(r))
	return fromCard(info.Card)
}

func toCard(m Memory) fsrs.Card {
	return fsrs.Card{
		Due:           m.Due,
		Stability:     m.Stability,
		Difficulty:    m.Difficulty,
		ElapsedDays:   m.ElapsedDays,
		ScheduledDays: m.ScheduledDays,
		Reps:          m.Reps,
		Lapses:        m.Lapses,
		State:         fsrs.State(m.Phase),
		LastReview:    m.LastReview,
	}
}

func fromCard(c fsrs.Card) Memory {
	return Memory{
		Due:           c.Due,
		Stability:     c.Stability,
		Difficulty:    c.Difficulty,
		ElapsedDays:   c.ElapsedDays,
		ScheduledDays: c.ScheduledDays,
		Reps:          c.Reps,
		Lapses:        c.Lapses,
		Phase:         Phase(c.State),
		LastReview:    c.LastReview,
	}
}
