package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/carepoint/server/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	future := now.Add(10 * time.Minute)
	past := now.Add(-time.Second)

	state, _, rec := evaluate(model.AttemptRecord{FailedAttempts: 3}, now)
	assert.Equal(t, stateOpen, state)
	assert.Equal(t, 3, rec.FailedAttempts)

	state, retry, _ := evaluate(model.AttemptRecord{FailedAttempts: 5, LockedUntil: &future}, now)
	assert.Equal(t, stateLocked, state)
	assert.Equal(t, 10*time.Minute, retry)

	state, _, rec = evaluate(model.AttemptRecord{FailedAttempts: 5, LockedUntil: &past}, now)
	assert.Equal(t, stateOpen, state)
	assert.Equal(t, 0, rec.FailedAttempts, "expired lock restarts the count")
	assert.Nil(t, rec.LockedUntil)

	exact := now
	state, _, _ = evaluate(model.AttemptRecord{FailedAttempts: 5, LockedUntil: &exact}, now)
	assert.Equal(t, stateOpen, state, "lock ends at its expiry instant")
}

func TestFail(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	p := DefaultLockoutPolicy()

	rec := model.AttemptRecord{}
	for i := 1; i < p.MaxAttempts; i++ {
		rec = fail(rec, now, p)
		assert.Equal(t, i, rec.FailedAttempts)
		assert.Nil(t, rec.LockedUntil)
	}
	rec = fail(rec, now, p)
	assert.Equal(t, p.MaxAttempts, rec.FailedAttempts)
	require.NotNil(t, rec.LockedUntil)
	assert.Equal(t, now.Add(15*time.Minute), *rec.LockedUntil)
	assert.True(t, rec.LockedUntil.After(now))
}

func TestTrackerLocksAfterMaxFailures(t *testing.T) {
	ctx := context.Background()
	clock := newManualClock()
	tr := NewTracker(newMemAttempts(), LockoutPolicy{MaxAttempts: 3, Window: time.Minute}, clock, nil)

	for i := 1; i <= 3; i++ {
		adm, err := tr.CheckAccess(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, i, adm.Attempt)
		tr.RecordFailure(ctx, adm)
		if i < 3 {
			assert.Nil(t, adm.LockedUntil)
		} else {
			require.NotNil(t, adm.LockedUntil)
		}
	}

	_, err := tr.CheckAccess(ctx, "a@x.com")
	require.ErrorIs(t, err, ErrAccountLocked)
	var authErr *Error
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, time.Minute, authErr.RetryAfter)

	// Other emails are unaffected.
	_, err = tr.CheckAccess(ctx, "b@x.com")
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	_, err = tr.CheckAccess(ctx, "a@x.com")
	require.ErrorIs(t, err, ErrAccountLocked)
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, 30*time.Second, authErr.RetryAfter)

	clock.Advance(30 * time.Second)
	adm, err := tr.CheckAccess(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 1, adm.Attempt, "count restarts after the lock expires")
}

func TestTrackerSuccessResets(t *testing.T) {
	ctx := context.Background()
	store := newMemAttempts()
	tr := NewTracker(store, DefaultLockoutPolicy(), newManualClock(), nil)

	for i := 0; i < 4; i++ {
		adm, err := tr.CheckAccess(ctx, "a@x.com")
		require.NoError(t, err)
		tr.RecordFailure(ctx, adm)
	}
	_, err := tr.CheckAccess(ctx, "a@x.com")
	require.NoError(t, err)
	require.NoError(t, tr.RecordSuccess(ctx, "a@x.com"))

	rec, err := store.GetAttempts(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.FailedAttempts)
	assert.Nil(t, rec.LockedUntil)
}

func TestTrackerUnlock(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(newMemAttempts(), LockoutPolicy{MaxAttempts: 1, Window: time.Hour}, newManualClock(), nil)

	adm, err := tr.CheckAccess(ctx, "a@x.com")
	require.NoError(t, err)
	tr.RecordFailure(ctx, adm)
	_, err = tr.CheckAccess(ctx, "a@x.com")
	require.ErrorIs(t, err, ErrAccountLocked)

	require.NoError(t, tr.Unlock(ctx, "a@x.com"))
	_, err = tr.CheckAccess(ctx, "a@x.com")
	require.NoError(t, err)
}

func TestTrackerPrune(t *testing.T) {
	ctx := context.Background()
	store := newMemAttempts()
	clock := newManualClock()
	tr := NewTracker(store, LockoutPolicy{MaxAttempts: 1, Window: time.Hour, Retention: 2 * time.Hour}, clock, nil)

	_, err := tr.CheckAccess(ctx, "locked@x.com")
	require.NoError(t, err)
	clock.Advance(30 * time.Minute)
	_, err = tr.CheckAccess(ctx, "fresh@x.com")
	require.NoError(t, err)

	n, err := tr.Prune(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.Advance(2 * time.Hour)
	n, err = tr.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only the record idle past retention goes")
	assert.Equal(t, 1, store.len())

	// A pruned email starts over with a clean count.
	adm, err := tr.CheckAccess(ctx, "locked@x.com")
	require.NoError(t, err)
	assert.Equal(t, 1, adm.Attempt)
}

func TestTrackerRetentionNeverShorterThanWindow(t *testing.T) {
	tr := NewTracker(newMemAttempts(), LockoutPolicy{MaxAttempts: 5, Window: 48 * time.Hour, Retention: time.Hour}, newManualClock(), nil)
	assert.Equal(t, 48*time.Hour, tr.policy.Retention)
}

func TestTrackerSweepsAsNewEmailsArrive(t *testing.T) {
	ctx := context.Background()
	store := newMemAttempts()
	clock := newManualClock()
	tr := NewTracker(store, DefaultLockoutPolicy(), clock, nil)

	for i := 0; i < pruneEvery-1; i++ {
		_, err := tr.CheckAccess(ctx, fmt.Sprintf("user%d@x.com", i))
		require.NoError(t, err)
	}
	require.Equal(t, pruneEvery-1, store.len())

	clock.Advance(DefaultAttemptRetention + time.Minute)
	_, err := tr.CheckAccess(ctx, "last@x.com")
	require.NoError(t, err)
	assert.Equal(t, 1, store.len(), "idle records are swept once enough new emails are tracked")
}

func TestTrackerConcurrentAdmissionNeverExceedsMax(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(newMemAttempts(), DefaultLockoutPolicy(), newManualClock(), nil)

	const workers = 40
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		locked   int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			adm, err := tr.CheckAccess(ctx, "a@x.com")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
				tr.RecordFailure(ctx, adm)
			case errors.Is(err, ErrAccountLocked):
				locked++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, DefaultMaxAttempts, admitted)
	assert.Equal(t, workers-DefaultMaxAttempts, locked)
}

func TestLockedErrorMessage(t *testing.T) {
	err := lockedError(14*time.Minute + time.Second)
	assert.Equal(t, CodeAccountLocked, err.Code)
	assert.Contains(t, err.Message, "15 minute")
	assert.True(t, errors.Is(err, ErrAccountLocked))
	assert.False(t, errors.Is(err, ErrInvalidCredentials))

	assert.Equal(t, time.Second, lockedError(0).RetryAfter)
}
