package domain

import (
	"fmt"
	"strings"
)

// Queue is the scheduling bucket a card occupies.
type Queue int

const (
	QueueNew Queue = iota
	QueueLearning
	QueueLearned
	QueueRelearning
)

// Queues lists every queue variant in declaration order.
var Queues = []Queue{QueueNew, QueueLearning, QueueLearned, QueueRelearning}

func (q Queue) String() string {
	switch q {
	case QueueNew:
		return "new"
	case QueueLearning:
		return "learning"
	case QueueLearned:
		return "learned"
	case QueueRelearning:
		return "relearning"
	default:
		return fmt.Sprintf("queue(%d)", int(q))
	}
}

// Valid reports whether q is one of the declared variants.
func (q Queue) Valid() bool {
	return q >= QueueNew && q <= QueueRelearning
}

// ParseQueue is the inverse of Queue.String.
func ParseQueue(s string) (Queue, error) {
	for _, q := range Queues {
		if strings.EqualFold(q.String(), s) {
			return q, nil
		}
	}
	return 0, fmt.Errorf("unknown queue %q: %w", s, ErrValidation)
}

// Stats are the review counters derived from a card's state.
type Stats struct {
	Repeats int
	Lapses  int
}

// Columns are the scheduling fields denormalized onto a card row so that the
// next card to study can be selected without folding history.
type Columns struct {
	Queue    Queue
	Priority int64
	Repeats  int
	Lapses   int
}
