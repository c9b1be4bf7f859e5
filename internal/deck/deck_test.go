package deck

import (
	"errors"
	"testing"
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/engine"
	"github.com/conorfennell/knoldeck/internal/scheduler"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestReducerIsPure(t *testing.T) {
	models := map[string]scheduler.Model{
		"fsrs":   scheduler.NewFSRS(0.9, 36500),
		"simple": scheduler.NewSimple(0.9),
	}
	events := []Event{
		Answer(scheduler.Good, t0),
		Answer(scheduler.Again, t0.Add(48*time.Hour)),
		Answer(scheduler.Easy, t0.Add(72*time.Hour)),
	}

	for name, model := range models {
		t.Run(name, func(t *testing.T) {
			r := Reducer{Model: model}
			first := engine.Replay[Event, State](r, events...)
			time.Sleep(5 * time.Millisecond)
			second := engine.Replay[Event, State](r, events...)
			if !first.Equal(second) {
				t.Fatalf("replay differs:\n%+v\n%+v", first, second)
			}
			if first.Repeats != 3 {
				t.Errorf("Repeats = %d, want 3", first.Repeats)
			}
		})
	}
}

func TestDefaultStateIsStable(t *testing.T) {
	r := Reducer{Model: scheduler.NewSimple(0.9)}
	a := r.DefaultState()
	time.Sleep(5 * time.Millisecond)
	b := r.DefaultState()
	if !a.Equal(b) {
		t.Fatalf("default state changed over time: %+v vs %+v", a, b)
	}
	if a.Queue != domain.QueueNew {
		t.Errorf("default queue = %v, want new", a.Queue)
	}
}

func TestReset(t *testing.T) {
	r := Reducer{Model: scheduler.NewSimple(0.9)}
	state := engine.Replay[Event, State](r,
		Answer(scheduler.Good, t0),
		Answer(scheduler.Again, t0.Add(24*time.Hour)),
		Reset(t0.Add(48*time.Hour)),
	)

	if state.Queue != domain.QueueNew {
		t.Errorf("Queue = %v, want new", state.Queue)
	}
	if state.Stability != 0 || state.Difficulty != 0 {
		t.Errorf("memory not cleared: %+v", state)
	}
	if state.Repeats != 2 || state.Lapses != 1 {
		t.Errorf("counters = %d/%d, want 2/1", state.Repeats, state.Lapses)
	}
	if !state.Due.Equal(t0.Add(48 * time.Hour)) {
		t.Errorf("Due = %v, want reset time", state.Due)
	}
}

func TestFoldPanicsOnInvalidRating(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	Reducer{Model: scheduler.NewSimple(0.9)}.Fold(State{}, Answer(scheduler.Rating(9), t0))
}

func TestExtractor(t *testing.T) {
	data := CardData{Question: "q", DiscoveryPriority: 42}
	state := &State{Due: t0, Queue: domain.QueueLearning, Repeats: 3, Lapses: 1}

	tests := []struct {
		name      string
		x         engine.Extractor[State, CardData]
		state     *State
		wantPrio  int64
		wantQueue domain.Queue
		wantStats domain.Stats
	}{
		{"unreviewed", Extractor{}, nil, 42, domain.QueueNew, domain.Stats{}},
		{"reviewed", Extractor{}, state, t0.UnixMilli(), domain.QueueLearning, domain.Stats{Repeats: 3, Lapses: 1}},
		{"negated unreviewed", NegatedExtractor{}, nil, -42, domain.QueueNew, domain.Stats{}},
		{"negated reviewed", NegatedExtractor{}, state, -t0.UnixMilli(), domain.QueueLearning, domain.Stats{Repeats: 3, Lapses: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.x.Priority(tt.state, data); got != tt.wantPrio {
				t.Errorf("Priority = %d, want %d", got, tt.wantPrio)
			}
			if got := tt.x.Queue(tt.state, data); got != tt.wantQueue {
				t.Errorf("Queue = %v, want %v", got, tt.wantQueue)
			}
			if got := tt.x.Stats(tt.state, data); got != tt.wantStats {
				t.Errorf("Stats = %+v, want %+v", got, tt.wantStats)
			}
		})
	}
}

func TestNewAlgorithmDirection(t *testing.T) {
	model := scheduler.NewSimple(0.9)
	asc := NewAlgorithm(model, engine.Ascending, true)
	desc := NewAlgorithm(model, engine.Descending, true)

	early := CardData{DiscoveryPriority: 10}
	late := CardData{DiscoveryPriority: 20}

	ascPick := asc.Direction.Less(asc.Extractor.Priority(nil, early), asc.Extractor.Priority(nil, late))
	descPick := desc.Direction.Less(desc.Extractor.Priority(nil, early), desc.Extractor.Priority(nil, late))
	if !ascPick || !descPick {
		t.Fatalf("both directions should prefer the early card: asc=%v desc=%v", ascPick, descPick)
	}
}

// Discovery priorities are small import positions and due times are epoch
// milliseconds, so new cards come before any review, however overdue.
func TestUnreviewedBeforeReviews(t *testing.T) {
	model := scheduler.NewSimple(0.9)
	fresh := CardData{DiscoveryPriority: 1_000_000}
	overdue := &State{Due: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), Queue: domain.QueueLearned}

	for _, dir := range []engine.Direction{engine.Ascending, engine.Descending} {
		alg := NewAlgorithm(model, dir, true)
		newFirst := alg.Direction.Less(alg.Extractor.Priority(nil, fresh), alg.Extractor.Priority(overdue, CardData{}))
		if !newFirst {
			t.Errorf("%s: overdue review ranked before a new card", dir)
		}
	}
}

func TestHeaderCodecHistory(t *testing.T) {
	tests := []struct {
		name   string
		stored string
		want   Header
	}{
		{"v1", `{"version":1,"data":{"title":"Go"}}`, Header{Title: "Go"}},
		{"v2", `{"version":2,"data":{"title":"Go","description":"lang","created_at":"2026-03-01T09:00:00Z","updated_at":"2026-03-01T09:00:00Z"}}`,
			Header{Title: "Go", Description: "lang", CreatedAt: t0, UpdatedAt: t0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HeaderCodec.Unmarshal([]byte(tt.stored))
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if got.Title != tt.want.Title || got.Description != tt.want.Description ||
				!got.CreatedAt.Equal(tt.want.CreatedAt) || !got.UpdatedAt.Equal(tt.want.UpdatedAt) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCardCodecHistory(t *testing.T) {
	got, err := CardCodec.Unmarshal([]byte(`{"version":1,"data":{"front":"2+2","back":"4"}}`))
	if err != nil {
		t.Fatalf("Unmarshal v1: %v", err)
	}
	if got != (CardData{Question: "2+2", Answer: "4"}) {
		t.Errorf("v1 decoded to %+v", got)
	}

	in := CardData{Question: "q", Answer: "a", Context: "c", Hash: "h", DiscoveryPriority: 7}
	b, err := CardCodec.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out, err := CardCodec.Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal v2: %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestEventCodecHistory(t *testing.T) {
	got, err := EventCodec.Unmarshal([]byte(`{"version":1,"data":{"grade":2,"at":1772355600000}}`))
	if err != nil {
		t.Fatalf("Unmarshal v1: %v", err)
	}
	if got.Kind != KindAnswer || got.Rating != scheduler.Good || !got.At.Equal(t0) {
		t.Errorf("v1 decoded to %+v", got)
	}

	bad := []string{
		`{"version":1,"data":{"grade":4,"at":0}}`,
		`{"version":2,"data":{"kind":"skip","rating":0,"at":"2026-03-01T09:00:00Z"}}`,
		`{"version":2,"data":{"kind":"answer","rating":0,"at":"2026-03-01T09:00:00Z"}}`,
		`{"version":3,"data":{}}`,
		`{"data":{"kind":"reset"}}`,
	}
	for _, b := range bad {
		if _, err := EventCodec.Unmarshal([]byte(b)); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("Unmarshal(%s) = %v, want validation error", b, err)
		}
	}
}

func TestStateCodecHistory(t *testing.T) {
	got, err := StateCodec.Unmarshal([]byte(`{"version":1,"data":{"due":1772355600000,"stability":3.5,"difficulty":5,"reps":4,"lapses":1,"queue":"review"}}`))
	if err != nil {
		t.Fatalf("Unmarshal v1: %v", err)
	}
	want := State{Due: t0, Stability: 3.5, Difficulty: 5, Repeats: 4, Lapses: 1, Queue: domain.QueueLearned}
	if !got.Equal(want) {
		t.Errorf("v1 decoded to %+v, want %+v", got, want)
	}

	r := Reducer{Model: scheduler.NewFSRS(0.9, 36500)}
	in := engine.Replay[Event, State](r, Answer(scheduler.Good, t0), Answer(scheduler.Hard, t0.Add(72*time.Hour)))
	b, err := StateCodec.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out, err := StateCodec.Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal v2: %v", err)
	}
	if !out.Equal(in) {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}

	if _, err := StateCodec.Unmarshal([]byte(`{"version":2,"data":{"queue":7}}`)); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("out of range queue: got %v, want validation error", err)
	}
}
