package scheduler

import (
	"math"
	"time"
)

// Params holds the parameters of the closed-form stability model.
type Params struct {
	A                float64 // scales the overall memory increase
	B                float64 // difficulty exponent
	C                float64 // stability exponent
	D                float64 // retention effect scaler
	DesiredRetention float64 // desired retention rate (e.g., 0.9 for 90%)
}

// DefaultParams provides a set of sensible default parameters to start with.
func DefaultParams() Params {
	return Params{
		A:                0.2,
		B:                0.5,
		C:                0.1,
		D:                4.0,
		DesiredRetention: 0.9,
	}
}

// Simple is a lightweight Model: a lapse resets stability to one day, any
// successful review grows it multiplicatively.
type Simple struct {
	Params Params
}

// NewSimple returns the model with default parameters and the given
// desired retention.
func NewSimple(retention float64) *Simple {
	p := DefaultParams()
	p.DesiredRetention = retention
	return &Simple{Params: p}
}

func (m *Simple) Review(mem Memory, r Rating, now time.Time) Memory {
	next := mem
	next.Reps++
	next.LastReview = now
	if !mem.LastReview.IsZero() && now.After(mem.LastReview) {
		next.ElapsedDays = uint64(now.Sub(mem.LastReview) / (24 * time.Hour))
	}

	switch {
	case r == Again:
		next.Stability = 1
		next.Difficulty = math.Min(10, mem.Difficulty+0.5)
		if mem.Phase == Review {
			next.Lapses++
			next.Phase = Relearning
		} else if mem.Phase == New {
			next.Phase = Learning
		}
	default:
		next.Stability = m.Params.newStability(mem.Stability, mem.Difficulty)
		if r == Hard {
			next.Difficulty = math.Min(10, mem.Difficulty+0.1)
		}
		next.Phase = Review
	}

	days := math.Round(next.Stability)
	next.ScheduledDays = uint64(days)
	next.Due = now.Add(time.Duration(days) * 24 * time.Hour)
	return next
}

// newStability applies the stability formula for a successful review.
func (p Params) newStability(stability, difficulty float64) float64 {
	// S' = S * (1 + a * D^(-b) * S^c * (e^(d * (1-R)) - 1))
	if stability < 1 {
		stability = 1
	}
	if difficulty < 1 {
		difficulty = 1
	}

	factor := p.A * math.Pow(difficulty, -p.B) * math.Pow(stability, p.C)
	exponent := p.D * (1 - p.DesiredRetention)
	multiplier := math.Exp(exponent) - 1

	return stability * (1 + factor*multiplier)
}
