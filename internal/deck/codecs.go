package deck

import (
	"fmt"
	"time"

	"github.com/conorfennell/knoldeck/internal/codec"
	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/scheduler"
	"github.com/conorfennell/knoldeck/internal/storage/sqlstore"
)

// Version 1 records predate descriptions and timestamps on collections.
type headerV1 struct {
	Title string `json:"title"`
}

type headerV2 struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HeaderCodec stores collection headers.
var HeaderCodec = codec.New("collection header", 2,
	func(h Header) headerV2 {
		return headerV2{
			Title:       h.Title,
			Description: h.Description,
			CreatedAt:   h.CreatedAt.UTC(),
			UpdatedAt:   h.UpdatedAt.UTC(),
		}
	},
	codec.Define(1, func(v headerV1) (Header, error) {
		return Header{Title: v.Title}, nil
	}),
	codec.Define(2, func(v headerV2) (Header, error) {
		return Header{
			Title:       v.Title,
			Description: v.Description,
			CreatedAt:   v.CreatedAt,
			UpdatedAt:   v.UpdatedAt,
		}, nil
	}),
)

// Version 1 cards were plain front/back pairs.
type cardV1 struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

type cardV2 struct {
	Question          string `json:"question"`
	Answer            string `json:"answer"`
	Context           string `json:"context"`
	Hash              string `json:"hash"`
	DiscoveryPriority int64  `json:"discovery_priority"`
}

// CardCodec stores card data.
var CardCodec = codec.New("card", 2,
	func(d CardData) cardV2 {
		return cardV2(d)
	},
	codec.Define(1, func(v cardV1) (CardData, error) {
		return CardData{Question: v.Front, Answer: v.Back}, nil
	}),
	codec.Define(2, func(v cardV2) (CardData, error) {
		return CardData(v), nil
	}),
)

// Version 1 events carried a zero-based grade and a unix millisecond time.
type eventV1 struct {
	Grade int   `json:"grade" validate:"min=0,max=3"`
	At    int64 `json:"at"`
}

type eventV2 struct {
	Kind   string    `json:"kind" validate:"oneof=answer reset"`
	Rating int       `json:"rating" validate:"min=0,max=4"`
	At     time.Time `json:"at"`
}

// EventCodec stores review events.
var EventCodec = codec.New("event", 2,
	func(e Event) eventV2 {
		return eventV2{Kind: string(e.Kind), Rating: int(e.Rating), At: e.At.UTC()}
	},
	codec.Define(1, func(v eventV1) (Event, error) {
		return Answer(scheduler.Rating(v.Grade+1), time.UnixMilli(v.At).UTC()), nil
	}),
	codec.Define(2, func(v eventV2) (Event, error) {
		e := Event{Kind: EventKind(v.Kind), Rating: scheduler.Rating(v.Rating), At: v.At}
		if e.Kind == KindAnswer && !e.Rating.Valid() {
			return Event{}, fmt.Errorf("answer with rating %d", v.Rating)
		}
		return e, nil
	}),
)

// Version 1 states named their queue and kept only the counters and due time.
type stateV1 struct {
	Due        int64   `json:"due"`
	Stability  float64 `json:"stability" validate:"gte=0"`
	Difficulty float64 `json:"difficulty" validate:"gte=0"`
	Reps       int     `json:"reps" validate:"gte=0"`
	Lapses     int     `json:"lapses" validate:"gte=0"`
	Queue      string  `json:"queue" validate:"oneof=new learning review relearning"`
}

type stateV2 struct {
	Due           time.Time `json:"due"`
	Stability     float64   `json:"stability" validate:"gte=0"`
	Difficulty    float64   `json:"difficulty" validate:"gte=0"`
	ElapsedDays   uint64    `json:"elapsed_days"`
	ScheduledDays uint64    `json:"scheduled_days"`
	Repeats       int       `json:"repeats" validate:"gte=0"`
	Lapses        int       `json:"lapses" validate:"gte=0"`
	Queue         int       `json:"queue" validate:"min=0,max=3"`
	LastReview    time.Time `json:"last_review"`
}

// StateCodec stores folded scheduling states.
var StateCodec = codec.New("state", 2,
	func(s State) stateV2 {
		return stateV2{
			Due:           s.Due.UTC(),
			Stability:     s.Stability,
			Difficulty:    s.Difficulty,
			ElapsedDays:   s.ElapsedDays,
			ScheduledDays: s.ScheduledDays,
			Repeats:       s.Repeats,
			Lapses:        s.Lapses,
			Queue:         int(s.Queue),
			LastReview:    s.LastReview.UTC(),
		}
	},
	codec.Define(1, func(v stateV1) (State, error) {
		queue := domain.QueueLearned
		if v.Queue != "review" {
			q, err := domain.ParseQueue(v.Queue)
			if err != nil {
				return State{}, err
			}
			queue = q
		}
		return State{
			Due:        time.UnixMilli(v.Due).UTC(),
			Stability:  v.Stability,
			Difficulty: v.Difficulty,
			Repeats:    v.Reps,
			Lapses:     v.Lapses,
			Queue:      queue,
		}, nil
	}),
	codec.Define(2, func(v stateV2) (State, error) {
		return State{
			Due:           v.Due,
			Stability:     v.Stability,
			Difficulty:    v.Difficulty,
			ElapsedDays:   v.ElapsedDays,
			ScheduledDays: v.ScheduledDays,
			Repeats:       v.Repeats,
			Lapses:        v.Lapses,
			Queue:         domain.Queue(v.Queue),
			LastReview:    v.LastReview,
		}, nil
	}),
)

// Codecs bundles the deck codecs for the SQL backend.
func Codecs() sqlstore.Codecs[Header, CardData, Event, State] {
	return sqlstore.Codecs[Header, CardData, Event, State]{
		Header: HeaderCodec,
		Card:   CardCodec,
		Event:  EventCodec,
		State:  StateCodec,
	}
}
