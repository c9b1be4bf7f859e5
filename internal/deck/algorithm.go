package deck

import (
	"fmt"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/engine"
	"github.com/conorfennell/knoldeck/internal/scheduler"
)

// Reducer folds review events through a scheduling model.
type Reducer struct {
	Model scheduler.Model
}

func (Reducer) DefaultState() State {
	return State{Queue: domain.QueueNew}
}

// Fold panics on events that cannot be produced by Answer or Reset; those
// are rejected by the event codec before they reach storage.
func (r Reducer) Fold(state State, event Event) State {
	switch event.Kind {
	case KindAnswer:
		if !event.Rating.Valid() {
			panic(fmt.Sprintf("deck: invalid rating %d", event.Rating))
		}
		next := fromMemory(r.Model.Review(toMemory(state), event.Rating, event.At))
		return next
	case KindReset:
		return State{
			Due:     event.At,
			Repeats: state.Repeats,
			Lapses:  state.Lapses,
			Queue:   domain.QueueNew,
		}
	default:
		panic(fmt.Sprintf("deck: unknown event kind %q", event.Kind))
	}
}

func toMemory(s State) scheduler.Memory {
	return scheduler.Memory{
		Due:           s.Due,
		Stability:     s.Stability,
		Difficulty:    s.Difficulty,
		ElapsedDays:   s.ElapsedDays,
		ScheduledDays: s.ScheduledDays,
		Reps:          uint64(s.Repeats),
		Lapses:        uint64(s.Lapses),
		Phase:         phaseOf(s.Queue),
		LastReview:    s.LastReview,
	}
}

func fromMemory(m scheduler.Memory) State {
	return State{
		Due:           m.Due,
		Stability:     m.Stability,
		Difficulty:    m.Difficulty,
		ElapsedDays:   m.ElapsedDays,
		ScheduledDays: m.ScheduledDays,
		Repeats:       int(m.Reps),
		Lapses:        int(m.Lapses),
		Queue:         queueOf(m.Phase),
		LastReview:    m.LastReview,
	}
}

func queueOf(p scheduler.Phase) domain.Queue {
	switch p {
	case scheduler.Learning:
		return domain.QueueLearning
	case scheduler.Review:
		return domain.QueueLearned
	case scheduler.Relearning:
		return domain.QueueRelearning
	default:
		return domain.QueueNew
	}
}

func phaseOf(q domain.Queue) scheduler.Phase {
	switch q {
	case domain.QueueLearning:
		return scheduler.Learning
	case domain.QueueLearned:
		return scheduler.Review
	case domain.QueueRelearning:
		return scheduler.Relearning
	default:
		return scheduler.New
	}
}

// Extractor orders reviewed cards by due time and unreviewed cards by their
// discovery priority, smallest first.
type Extractor struct{}

func (Extractor) Priority(state *State, data CardData) int64 {
	if state == nil {
		return data.DiscoveryPriority
	}
	return state.Due.UnixMilli()
}

func (Extractor) Queue(state *State, data CardData) domain.Queue {
	if state == nil {
		return domain.QueueNew
	}
	return state.Queue
}

func (Extractor) Stats(state *State, data CardData) domain.Stats {
	if state == nil {
		return domain.Stats{}
	}
	return domain.Stats{Repeats: state.Repeats, Lapses: state.Lapses}
}

// NegatedExtractor is Extractor with priorities negated, for engines that
// select the largest priority first. Both pick the same card.
type NegatedExtractor struct {
	Extractor
}

func (x NegatedExtractor) Priority(state *State, data CardData) int64 {
	return -x.Extractor.Priority(state, data)
}

// NewAlgorithm pairs the reducer with the extractor matching direction.
func NewAlgorithm(model scheduler.Model, direction engine.Direction, includeUnreviewed bool) engine.Algorithm[Event, State, CardData] {
	var x engine.Extractor[State, CardData] = Extractor{}
	if direction == engine.Descending {
		x = NegatedExtractor{}
	}
	return engine.Algorithm[Event, State, CardData]{
		Reducer:           Reducer{Model: model},
		Extractor:         x,
		Direction:         direction,
		IncludeUnreviewed: includeUnreviewed,
	}
}
