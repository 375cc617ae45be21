package pipeline

import (
	"context"
	"sync"
)

// TurnCounter reports the highest stored turn number of a call
type TurnCounter interface {
	MaxTurnNumber(ctx context.Context, callID string) (int, error)
}

// TurnSequencer hands out turn numbers per call. Each call's counter is
// seeded once from storage and then advanced under its own mutex, so
// concurrent chunks of one call never share a number.
type TurnSequencer struct {
	store TurnCounter

	mu    sync.Mutex
	calls map[string]*turnCounter
}

type turnCounter struct {
	mu     sync.Mutex
	seeded bool
	last   int
}

// NewTurnSequencer creates a sequencer seeded from store
func NewTurnSequencer(store TurnCounter) *TurnSequencer {
	return &TurnSequencer{
		store: store,
		calls: make(map[string]*turnCounter),
	}
}

func (s *TurnSequencer) counter(callID string) *turnCounter {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[callID]
	if !ok {
		c = &turnCounter{}
		s.calls[callID] = c
	}
	return c
}

// Next returns the next turn number of the call
func (s *TurnSequencer) Next(ctx context.Context, callID string) (int, error) {
	c := s.counter(callID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.seeded {
		last, err := s.store.MaxTurnNumber(ctx, callID)
		if err != nil {
			return 0, err
		}
		c.last = last
		c.seeded = true
	}
	c.last++
	return c.last, nil
}

// Reseed forces the next call to Next to re-read the stored maximum
func (s *TurnSequencer) Reseed(callID string) {
	c := s.counter(callID)
	c.mu.Lock()
	c.seeded = false
	c.mu.Unlock()
}

// Forget drops the call's counter
func (s *TurnSequencer) Forget(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.calls, callID)
}

// callLocks serialises work per call id
type callLocks struct {
	mu    sync.Mutex
	locks map[string]*callLock
}

type callLock struct {
	sync.Mutex
	refs int
}

func newCallLocks() *callLocks {
	return &callLocks{locks: make(map[string]*callLock)}
}

// lock acquires the call's lock and returns its release func
func (l *callLocks) lock(callID string) func() {
	l.mu.Lock()
	cl, ok := l.locks[callID]
	if !ok {
		cl = &callLock{}
		l.locks[callID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.Lock()
	return func() {
		cl.Unlock()

		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.locks, callID)
		}
		l.mu.Unlock()
	}
}
