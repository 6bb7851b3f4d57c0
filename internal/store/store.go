package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	eventbus "github.com/hanpama/countergraph/internal/eventbus"
	events "github.com/hanpama/countergraph/internal/events"
)

// ErrInvalidArgument is returned when an increment amount is not strictly positive.
var ErrInvalidArgument = errors.New("invalid argument")

// Counter is a snapshot of the shared counter.
type Counter struct {
	Count int `json:"count"`
}

// Notifier is told about every successful mutation.
type Notifier interface {
	Notify()
}

// NotifierFunc adapts a plain function to a Notifier.
type NotifierFunc func()

func (f NotifierFunc) Notify() { f() }

// Store owns the single counter resource. The zero value is not usable; use New.
type Store struct {
	mu       sync.Mutex
	current  *Counter
	notifier Notifier
}

// New returns a Store holding a zero counter.
func New() *Store {
	return &Store{current: &Counter{}}
}

// SetNotifier installs n as the mutation listener. Passing nil disables notification.
func (s *Store) SetNotifier(n Notifier) {
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()
}

// Read returns the current snapshot.
func (s *Store) Read() Counter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.current
}

// Increment adds by to the counter. A nil by adds one.
func (s *Store) Increment(by *int) (Counter, error) {
	n := 1
	if by != nil {
		n = *by
	}
	if n <= 0 {
		return Counter{}, fmt.Errorf("increment by %d: %w", n, ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := &Counter{Count: s.current.Count + n}
	s.swap(next)
	return *next, nil
}

// Reset replaces the counter with a fresh zero-valued one.
func (s *Store) Reset() Counter {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := &Counter{}
	s.swap(next)
	return *next
}

// swap installs next and notifies. Callers hold s.mu.
func (s *Store) swap(next *Counter) {
	s.current = next
	if s.notifier != nil {
		s.notifier.Notify()
	}
	eventbus.Publish(context.Background(), events.CounterChanged{Count: next.Count})
}
