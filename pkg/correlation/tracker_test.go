package correlation

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"epos/pkg/messaging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestResolveThenAwaitDeliversOnce(t *testing.T) {
	tracker := NewTracker(time.Minute)
	require.NoError(t, tracker.Register("a"))

	assert.True(t, tracker.Resolve("a", messaging.Reply{"klijent_id": "7"}))

	// Any deadline, even one already passed, returns a result that is present.
	got, err := tracker.Await(context.Background(), "a", time.Now().Add(-time.Second))
	require.NoError(t, err)
	assert.Equal(t, messaging.Reply{"klijent_id": "7"}, got)

	_, err = tracker.Await(context.Background(), "a", time.Now().Add(time.Second))
	assert.ErrorIs(t, err, ErrUnknownCorrelationID)
	assert.Zero(t, tracker.Len())
}

func TestResolveWithoutRegister(t *testing.T) {
	tracker := NewTracker(time.Minute)

	assert.False(t, tracker.Resolve("ghost", messaging.Reply{"x": 1}))
	assert.Zero(t, tracker.Len())
}

func TestRegisterDuplicate(t *testing.T) {
	tracker := NewTracker(time.Minute)
	require.NoError(t, tracker.Register("a"))

	assert.ErrorIs(t, tracker.Register("a"), ErrDuplicateCorrelationID)
	assert.Equal(t, 1, tracker.Len())
}

func TestResultIsNeverOverwritten(t *testing.T) {
	tracker := NewTracker(time.Minute)
	require.NoError(t, tracker.Register("a"))

	assert.True(t, tracker.Resolve("a", messaging.Reply{"n": 1}))
	assert.False(t, tracker.Resolve("a", messaging.Reply{"n": 2}))

	got, err := tracker.Await(context.Background(), "a", time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, messaging.Reply{"n": 1}, got)
}

func TestAwaitTimesOutAndRemovesSlot(t *testing.T) {
	tracker := NewTracker(time.Minute)
	require.NoError(t, tracker.Register("a"))

	start := time.Now()
	_, err := tracker.Await(context.Background(), "a", start.Add(50*time.Millisecond))
	assert.ErrorIs(t, err, ErrTimedOut)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	assert.False(t, tracker.Resolve("a", messaging.Reply{"late": true}))
	assert.Zero(t, tracker.Len())
}

func TestAwaitWakesOnResolve(t *testing.T) {
	tracker := NewTracker(time.Minute)
	require.NoError(t, tracker.Register("a"))

	go func() {
		time.Sleep(20 * time.Millisecond)
		tracker.Resolve("a", messaging.Reply{"ok": true})
	}()

	start := time.Now()
	got, err := tracker.Await(context.Background(), "a", start.Add(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, true, got["ok"])
	assert.Less(t, time.Since(start), time.Second)
}

func TestAwaitHonoursContext(t *testing.T) {
	tracker := NewTracker(time.Minute)
	require.NoError(t, tracker.Register("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tracker.Await(ctx, "a", time.Now().Add(time.Minute))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, tracker.Len())
}

func TestSweepEvictsStaleSlots(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	tracker := NewTracker(time.Minute, WithClock(clock))

	require.NoError(t, tracker.Register("old"))
	now = now.Add(2 * time.Minute)
	require.NoError(t, tracker.Register("fresh"))

	done := make(chan error, 1)
	go func() {
		_, err := tracker.Await(context.Background(), "old", time.Now().Add(time.Minute))
		done <- err
	}()
	// Let the waiter block before the sweep.
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, tracker.Sweep())
	assert.Equal(t, 1, tracker.Len())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSlotEvicted)
		assert.ErrorIs(t, err, ErrTimedOut)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by eviction")
	}

	assert.False(t, tracker.Resolve("old", messaging.Reply{}))
	assert.True(t, tracker.Resolve("fresh", messaging.Reply{}))
}

func TestRemove(t *testing.T) {
	tracker := NewTracker(time.Minute)
	require.NoError(t, tracker.Register("a"))

	assert.True(t, tracker.Remove("a"))
	assert.False(t, tracker.Remove("a"))
	assert.False(t, tracker.Resolve("a", messaging.Reply{}))
	assert.NoError(t, tracker.Register("a"), "id can be registered again once it is no longer outstanding")
}

func TestConcurrentWaitersGetTheirOwnReplies(t *testing.T) {
	const n = 500
	tracker := NewTracker(time.Minute)

	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		id := fmt.Sprintf("req-%d", i)
		require.NoError(t, tracker.Register(id))

		wg.Add(2)
		go func(id string, delay time.Duration) {
			defer wg.Done()
			time.Sleep(delay)
			got, err := tracker.Await(context.Background(), id, time.Now().Add(10*time.Second))
			if err != nil {
				errs <- fmt.Errorf("%s: %w", id, err)
				return
			}
			if got["id"] != id {
				errs <- fmt.Errorf("%s received reply for %v", id, got["id"])
			}
		}(id, time.Duration(rand.Intn(5))*time.Millisecond)

		go func(id string, delay time.Duration) {
			defer wg.Done()
			time.Sleep(delay)
			if !tracker.Resolve(id, messaging.Reply{"id": id}) {
				errs <- fmt.Errorf("%s: resolve found no slot", id)
			}
		}(id, time.Duration(rand.Intn(5))*time.Millisecond)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Zero(t, tracker.Len())
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var (
		mu  sync.Mutex
		now = time.Now()
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	tracker := NewTracker(time.Minute, WithClock(clock))
	require.NoError(t, tracker.Register("stale"))

	mu.Lock()
	now = now.Add(time.Hour)
	mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		tracker.Run(ctx, 5*time.Millisecond, logger)
		close(stopped)
	}()

	assert.Eventually(t, func() bool { return tracker.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-stopped
}

func TestMetricsDistinguishTimeoutFromEviction(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	tracker := NewTracker(0, WithMetrics(metrics))

	require.NoError(t, tracker.Register("timeout"))
	_, err = tracker.Await(context.Background(), "timeout", time.Now().Add(10*time.Millisecond))
	require.ErrorIs(t, err, ErrTimedOut)

	require.NoError(t, tracker.Register("evicted"))
	time.Sleep(time.Millisecond)
	require.Equal(t, 1, tracker.Sweep())

	assert.False(t, tracker.Resolve("timeout", messaging.Reply{}))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.outcomes.WithLabelValues(OutcomeTimedOut)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.outcomes.WithLabelValues(OutcomeSwept)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.outcomes.WithLabelValues(OutcomeUnmatched)))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.pending))
}

func TestNewMetricsDisabled(t *testing.T) {
	metrics, err := NewMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, metrics)

	tracker := NewTracker(time.Minute, WithMetrics(metrics))
	require.NoError(t, tracker.Register("a"))
	assert.True(t, tracker.Resolve("a", nil))
}
