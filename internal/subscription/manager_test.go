package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	counter "github.com/hanpama/countergraph/internal/counter"
	executor "github.com/hanpama/countergraph/internal/executor"
	schema "github.com/hanpama/countergraph/internal/schema"
	store "github.com/hanpama/countergraph/internal/store"
	validation "github.com/hanpama/countergraph/internal/validation"
)

type fixture struct {
	store   *store.Store
	schema  *schema.Schema
	manager *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := counter.LoadSchema()
	require.NoError(t, err)
	st := store.New()
	m := NewManager(executor.New(counter.NewRuntime(st), s))
	st.SetNotifier(m)
	t.Cleanup(m.Close)
	return &fixture{store: st, schema: s, manager: m}
}

func (f *fixture) subscribe(t *testing.T) *Stream {
	t.Helper()
	req, err := validation.Validate(f.schema, validation.Params{Query: "subscription { counter { count } }"})
	require.NoError(t, err)
	stream, err := f.manager.Subscribe(context.Background(), req)
	require.NoError(t, err)
	return stream
}

func countOf(t *testing.T, res *executor.ExecutionResult) int {
	t.Helper()
	require.Empty(t, res.Errors)
	return res.Data.(map[string]any)["counter"].(map[string]any)["count"].(int)
}

func next(t *testing.T, s *Stream) *executor.ExecutionResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := s.Next(ctx)
	require.NoError(t, err)
	return res
}

func by(n int) *int { return &n }

func TestSubscribeThenIncrement(t *testing.T) {
	f := newFixture(t)
	stream := f.subscribe(t)

	done := make(chan *executor.ExecutionResult, 1)
	go func() {
		res, err := stream.Next(context.Background())
		if err == nil {
			done <- res
		}
		close(done)
	}()

	_, err := f.store.Increment(by(3))
	require.NoError(t, err)

	select {
	case res, ok := <-done:
		require.True(t, ok, "stream ended without a value")
		require.Equal(t, map[string]any{"counter": map[string]any{"count": 3}}, res.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("no value produced")
	}
}

func TestNoInitialValue(t *testing.T) {
	f := newFixture(t)
	stream := f.subscribe(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := stream.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLatestValueWins(t *testing.T) {
	f := newFixture(t)
	stream := f.subscribe(t)

	for range 10 {
		_, err := f.store.Increment(by(1))
		require.NoError(t, err)
	}
	require.Equal(t, 10, countOf(t, next(t, stream)))

	// The burst was coalesced into the single pending wake.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := stream.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	f.store.Reset()
	require.Equal(t, 0, countOf(t, next(t, stream)))
}

func TestCloseRemovesRegistryEntry(t *testing.T) {
	f := newFixture(t)
	a := f.subscribe(t)
	b := f.subscribe(t)
	require.NotEqual(t, a.ID(), b.ID())
	require.Equal(t, 2, f.manager.Len())

	a.Close()
	require.Equal(t, 1, f.manager.Len())
	a.Close()
	require.Equal(t, 1, f.manager.Len())

	_, err := f.store.Increment(nil)
	require.NoError(t, err)
	_, err = a.Next(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	require.Equal(t, 1, countOf(t, next(t, b)))
}

func TestCloseUnblocksNext(t *testing.T) {
	f := newFixture(t)
	stream := f.subscribe(t)

	errc := make(chan error, 1)
	go func() {
		_, err := stream.Next(context.Background())
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	stream.Close()

	select {
	case err := <-errc:
		require.True(t, errors.Is(err, ErrClosed))
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not observe close")
	}
	require.Zero(t, f.manager.Len())
}

func TestSubscribeRejectsNonSubscription(t *testing.T) {
	f := newFixture(t)
	req, err := validation.Validate(f.schema, validation.Params{Query: "{ counter { count } }"})
	require.NoError(t, err)
	_, err = f.manager.Subscribe(context.Background(), req)
	require.ErrorIs(t, err, ErrNotSubscription)
	require.Zero(t, f.manager.Len())
}

func TestManagerClose(t *testing.T) {
	f := newFixture(t)
	streams := []*Stream{f.subscribe(t), f.subscribe(t), f.subscribe(t)}
	f.manager.Close()
	require.Zero(t, f.manager.Len())
	for _, s := range streams {
		_, err := s.Next(context.Background())
		require.ErrorIs(t, err, ErrClosed)
	}

	req, err := validation.Validate(f.schema, validation.Params{Query: "subscription { counter { count } }"})
	require.NoError(t, err)
	_, err = f.manager.Subscribe(context.Background(), req)
	require.ErrorIs(t, err, ErrManagerClosed)
}

func TestConcurrentRegistrationDuringBroadcast(t *testing.T) {
	f := newFixture(t)
	const workers = 8

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_, _ = f.store.Increment(nil)
			}
		}
	}()

	var churn sync.WaitGroup
	for range workers {
		churn.Add(1)
		go func() {
			defer churn.Done()
			for range 50 {
				s := f.subscribe(t)
				s.Close()
			}
		}()
	}
	churn.Wait()
	close(stop)
	wg.Wait()

	require.Zero(t, f.manager.Len())
}

func TestSubscriberObservesFinalState(t *testing.T) {
	f := newFixture(t)
	stream := f.subscribe(t)

	const writers, rounds = 4, 100
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range rounds {
				_, _ = f.store.Increment(nil)
			}
		}()
	}
	wg.Wait()

	// Drain until the final state shows up; each value must be monotonic.
	last := -1
	for last != writers*rounds {
		got := countOf(t, next(t, stream))
		require.GreaterOrEqual(t, got, last)
		last = got
	}
}
