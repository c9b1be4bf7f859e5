package engine

import (
	"testing"

	"github.com/conorfennell/knoldeck/internal/domain"
)

type counter struct{}

func (counter) DefaultState() int { return 0 }

func (counter) Fold(state, event int) int { return state + event }

type counterExtractor struct{}

func (counterExtractor) Priority(state *int, data int64) int64 {
	if state == nil {
		return data
	}
	return int64(*state)
}

func (counterExtractor) Queue(state *int, data int64) domain.Queue {
	if state == nil {
		return domain.QueueNew
	}
	return domain.QueueLearned
}

func (counterExtractor) Stats(state *int, data int64) domain.Stats {
	if state == nil {
		return domain.Stats{}
	}
	return domain.Stats{Repeats: *state}
}

func TestReplay(t *testing.T) {
	if got := Replay[int, int](counter{}); got != 0 {
		t.Errorf("expected default state 0, got %d", got)
	}
	if got := Replay[int, int](counter{}, 1, 2, 3); got != 6 {
		t.Errorf("expected 6, got %d", got)
	}
}

func TestDirectionLess(t *testing.T) {
	if !Ascending.Less(1, 2) || Ascending.Less(2, 1) {
		t.Error("ascending should order smaller values first")
	}
	if !Descending.Less(2, 1) || Descending.Less(1, 2) {
		t.Error("descending should order larger values first")
	}
	if Ascending.Less(1, 1) || Descending.Less(1, 1) {
		t.Error("equal priorities are not ordered")
	}
}

func TestColumns(t *testing.T) {
	alg := Algorithm[int, int, int64]{Reducer: counter{}, Extractor: counterExtractor{}}

	base := alg.Columns(nil, 42)
	if base != (domain.Columns{Queue: domain.QueueNew, Priority: 42}) {
		t.Errorf("unexpected base columns %+v", base)
	}

	state := 3
	cols := alg.Columns(&state, 42)
	want := domain.Columns{Queue: domain.QueueLearned, Priority: 3, Repeats: 3}
	if cols != want {
		t.Errorf("expected %+v, got %+v", want, cols)
	}
}
