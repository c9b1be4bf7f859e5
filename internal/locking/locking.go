// Package locking decorates storage and engine components so that every
// read runs under a shared lock and every write under an exclusive one.
// Handles returned through a wrapped store are wrapped with the same locks.
package locking

import (
	"sync"
)

// Locks holds the primitives taken around reads and writes.
type Locks struct {
	Read  sync.Locker
	Write sync.Locker
}

// NewSingle wires both roles to one mutex, serializing every call. This is
// the default safe mode.
func NewSingle() Locks {
	mu := &sync.Mutex{}
	return Locks{Read: mu, Write: mu}
}

// NewRW lets reads proceed concurrently while writes stay exclusive.
func NewRW() Locks {
	rw := &sync.RWMutex{}
	return Locks{Read: rw.RLocker(), Write: rw}
}

func read[T any](l Locks, fn func() (T, error)) (T, error) {
	l.Read.Lock()
	defer l.Read.Unlock()
	return fn()
}

func write(l Locks, fn func() error) error {
	l.Write.Lock()
	defer l.Write.Unlock()
	return fn()
}
