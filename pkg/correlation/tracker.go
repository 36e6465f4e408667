// Package correlation matches replies arriving on the reply queue to the
// requests waiting for them.
//
// A Tracker holds one pending slot per outstanding correlation id. The waiter
// registers the id before publishing, the reply consumer resolves it, and the
// waiter removes it when it returns, whether it got the reply or gave up.
// Every map access happens under one mutex; waiting happens outside it on a
// per-slot channel that Resolve closes.
package correlation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"epos/pkg/messaging"
)

var (
	ErrDuplicateCorrelationID = errors.New("correlation id already registered")
	ErrUnknownCorrelationID   = errors.New("unknown correlation id")
	ErrTimedOut               = errors.New("timed out waiting for reply")
	// ErrSlotEvicted is returned when the slot was removed by cleanup before a
	// reply arrived. Callers treat it as a timeout.
	ErrSlotEvicted = fmt.Errorf("%w: pending slot evicted", ErrTimedOut)
)

type slot struct {
	result    messaging.Reply
	resolved  bool
	createdAt time.Time
	done      chan struct{}
}

type Tracker struct {
	mu        sync.Mutex
	slots     map[string]*slot
	retention time.Duration
	now       func() time.Time
	metrics   *Metrics
}

type Option func(*Tracker)

func WithMetrics(m *Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// WithClock replaces the clock used to age slots.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates an empty tracker. Slots older than retention are dropped by Sweep.
func NewTracker(retention time.Duration, opts ...Option) *Tracker {
	t := &Tracker{
		slots:     make(map[string]*slot),
		retention: retention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register creates the pending slot for id.
func (t *Tracker) Register(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.slots[id]; exists {
		t.metrics.record(OutcomeDuplicate)
		return fmt.Errorf("%w: %s", ErrDuplicateCorrelationID, id)
	}

	t.slots[id] = &slot{
		createdAt: t.now(),
		done:      make(chan struct{}),
	}
	t.metrics.record(OutcomeRegistered)
	t.metrics.setPending(len(t.slots))
	return nil
}

// Resolve stores result in the slot for id and wakes its waiter. It reports
// false, without error, when there is no slot or the slot already has a result.
func (t *Tracker) Resolve(id string, result messaging.Reply) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.slots[id]
	if !ok {
		t.metrics.record(OutcomeUnmatched)
		return false
	}
	if s.resolved {
		t.metrics.record(OutcomeDuplicateReply)
		return false
	}

	s.result = result
	s.resolved = true
	close(s.done)
	t.metrics.record(OutcomeResolved)
	return true
}

// Await blocks until the slot for id is resolved, deadline passes or ctx is
// done. The slot is removed in every case. A result that is present when the
// wait ends is returned even if the deadline fired at the same time.
func (t *Tracker) Await(ctx context.Context, id string, deadline time.Time) (messaging.Reply, error) {
	t.mu.Lock()
	s, ok := t.slots[id]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCorrelationID, id)
	}

	started := time.Now()
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	var waitErr error
	select {
	case <-s.done:
	case <-timer.C:
		waitErr = ErrTimedOut
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	owned := t.slots[id] == s
	if owned {
		delete(t.slots, id)
		t.metrics.setPending(len(t.slots))
	}

	switch {
	case s.resolved:
		t.metrics.observeWait(OutcomeDelivered, time.Since(started))
		return s.result, nil
	case !owned:
		t.metrics.observeWait(OutcomeEvicted, time.Since(started))
		return nil, ErrSlotEvicted
	case errors.Is(waitErr, ErrTimedOut):
		t.metrics.observeWait(OutcomeTimedOut, time.Since(started))
		return nil, ErrTimedOut
	default:
		t.metrics.observeWait(OutcomeCancelled, time.Since(started))
		return nil, waitErr
	}
}

// Remove drops the slot for id, waking a waiter if there is one.
func (t *Tracker) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.slots[id]
	if !ok {
		return false
	}
	t.evict(id, s)
	t.metrics.record(OutcomeRemoved)
	return true
}

func (t *Tracker) evict(id string, s *slot) {
	delete(t.slots, id)
	if !s.resolved {
		close(s.done)
	}
	t.metrics.setPending(len(t.slots))
}

// Len returns the number of pending slots.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}

// Sweep drops slots older than the retention window and returns how many it removed.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.retention)
	removed := 0
	for id, s := range t.slots {
		if s.createdAt.Before(cutoff) {
			t.evict(id, s)
			t.metrics.record(OutcomeSwept)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (t *Tracker) Run(ctx context.Context, interval time.Duration, logger logrus.FieldLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.Sweep(); n > 0 {
				logger.WithField("removed", n).Warn("Swept stale pending requests")
			}
		}
	}
}
