// Package subscription keeps the registry of live subscribers and turns
// store notifications into a lazily produced sequence of results per
// subscriber.
//
// Each subscriber owns a single-slot wake channel. Notify fills every slot
// without blocking; a slot that is already full absorbs the notification, so
// a slow subscriber sees the latest state once rather than a queue of
// intermediate ones.
package subscription

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	eventbus "github.com/hanpama/countergraph/internal/eventbus"
	events "github.com/hanpama/countergraph/internal/events"
	executor "github.com/hanpama/countergraph/internal/executor"
	language "github.com/hanpama/countergraph/internal/language"
	validation "github.com/hanpama/countergraph/internal/validation"
)

var (
	// ErrClosed is returned by Stream.Next once the stream has been closed.
	ErrClosed = errors.New("subscription closed")
	// ErrNotSubscription is returned by Subscribe for queries and mutations.
	ErrNotSubscription = errors.New("operation is not a subscription")
	// ErrManagerClosed is returned by Subscribe after Close.
	ErrManagerClosed = errors.New("subscription manager closed")
)

type Option func(*Manager)

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.log = l } }

// Manager owns the subscriber registry. It is safe for concurrent use.
type Manager struct {
	exec *executor.Executor
	log  *zap.Logger

	mu     sync.RWMutex
	subs   map[uuid.UUID]*subscriber
	closed bool
}

type subscriber struct {
	id        uuid.UUID
	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	started   time.Time
}

// NewManager returns a Manager that evaluates events with exec.
func NewManager(exec *executor.Executor, opts ...Option) *Manager {
	m := &Manager{
		exec: exec,
		log:  zap.NewNop(),
		subs: make(map[uuid.UUID]*subscriber),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Notify wakes every registered subscriber. It never blocks.
func (m *Manager) Notify() {
	m.mu.RLock()
	snapshot := make([]*subscriber, 0, len(m.subs))
	for _, s := range m.subs {
		snapshot = append(snapshot, s)
	}
	m.mu.RUnlock()

	for _, s := range snapshot {
		select {
		case s.wake <- struct{}{}:
		default:
			// already pending
		}
	}
}

// Subscribe registers a subscriber for req. The returned stream produces a
// value after each notification until it is closed.
func (m *Manager) Subscribe(ctx context.Context, req *validation.Request) (*Stream, error) {
	if req.Kind != language.Subscription {
		return nil, ErrNotSubscription
	}
	s := &subscriber{
		id:      uuid.New(),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		started: time.Now(),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	m.subs[s.id] = s
	active := len(m.subs)
	m.mu.Unlock()

	m.log.Debug("subscriber registered", zap.Stringer("id", s.id), zap.Int("active", active))
	eventbus.Publish(ctx, events.SubscriptionStart{ID: s.id.String(), Active: active})
	return &Stream{m: m, sub: s, req: req}, nil
}

// Len reports the number of registered subscribers.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// Close closes every stream and refuses new subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	snapshot := make([]*subscriber, 0, len(m.subs))
	for _, s := range m.subs {
		snapshot = append(snapshot, s)
	}
	m.mu.Unlock()

	for _, s := range snapshot {
		m.remove(s)
	}
}

// remove deletes s from the registry and signals its stream. Only the first
// call for a given subscriber has any effect.
func (m *Manager) remove(s *subscriber) {
	s.closeOnce.Do(func() {
		m.mu.Lock()
		delete(m.subs, s.id)
		active := len(m.subs)
		m.mu.Unlock()
		close(s.done)

		lifetime := time.Since(s.started)
		m.log.Debug("subscriber removed", zap.Stringer("id", s.id), zap.Int("active", active), zap.Duration("lifetime", lifetime))
		eventbus.Publish(context.Background(), events.SubscriptionEnd{ID: s.id.String(), Active: active, Lifetime: lifetime})
	})
}

// Stream is one subscriber's view of the counter. Next and Close may be
// called from different goroutines; Next must not be called concurrently
// with itself.
type Stream struct {
	m   *Manager
	sub *subscriber
	req *validation.Request
}

// ID returns the registry key of the stream.
func (s *Stream) ID() uuid.UUID { return s.sub.id }

// Next blocks until the store changes, then evaluates the subscription
// against the current state. It returns ErrClosed after Close and ctx.Err()
// when ctx ends first.
func (s *Stream) Next(ctx context.Context) (*executor.ExecutionResult, error) {
	select {
	case <-s.sub.done:
		return nil, ErrClosed
	default:
	}

	select {
	case <-s.sub.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.sub.wake:
	}

	res := s.m.exec.ExecuteEvent(ctx, s.req)
	eventbus.Publish(ctx, events.SubscriptionEvent{ID: s.sub.id.String(), Errors: len(res.Errors)})
	return res, nil
}

// Close removes the stream from the registry. It is safe to call more than
// once and unblocks a pending Next.
func (s *Stream) Close() { s.m.remove(s.sub) }
