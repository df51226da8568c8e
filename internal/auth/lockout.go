package auth

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/carepoint/server/internal/logging"
	"github.com/carepoint/server/internal/metrics"
	"github.com/carepoint/server/internal/model"
	"github.com/carepoint/server/internal/repo"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts      = 5
	DefaultLockoutWindow    = 15 * time.Minute
	DefaultAttemptRetention = 24 * time.Hour

	// maxCASRetries bounds admission retries under write contention on one email.
	maxCASRetries = 50

	// pruneEvery is how many newly tracked emails trigger one stale-record sweep.
	pruneEvery = 256
)

// LockoutPolicy configures the login attempt tracker.
type LockoutPolicy struct {
	MaxAttempts int
	Window      time.Duration
	// Retention is how long an idle, unlocked record is kept. Never shorter
	// than Window.
	Retention time.Duration
}

// DefaultLockoutPolicy allows 5 consecutive failures, locks for 15 minutes
// and forgets idle records after a day.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: DefaultMaxAttempts, Window: DefaultLockoutWindow, Retention: DefaultAttemptRetention}
}

type lockState int

const (
	stateOpen lockState = iota
	stateLocked
)

// evaluate returns the state of rec at now. An expired lock is cleared on
// observation and the counter starts again from zero.
func evaluate(rec model.AttemptRecord, now time.Time) (lockState, time.Duration, model.AttemptRecord) {
	if rec.LockedUntil == nil {
		return stateOpen, 0, rec
	}
	if now.Before(*rec.LockedUntil) {
		return stateLocked, rec.LockedUntil.Sub(now), rec
	}
	rec.FailedAttempts = 0
	rec.LockedUntil = nil
	return stateOpen, 0, rec
}

// fail counts one failure against an OPEN record and arms the lock when the
// count reaches the limit.
func fail(rec model.AttemptRecord, now time.Time, p LockoutPolicy) model.AttemptRecord {
	rec.FailedAttempts++
	rec.UpdatedAt = now
	if rec.FailedAttempts >= p.MaxAttempts {
		until := now.Add(p.Window)
		rec.LockedUntil = &until
	}
	return rec
}

// Admission is a granted login attempt. The attempt has already been counted
// as a failure; RecordSuccess refunds it.
type Admission struct {
	Email string
	// Attempt is the failure count including this attempt.
	Attempt int
	// LockedUntil is set when this attempt armed the lock.
	LockedUntil *time.Time
}

// AttemptTracker admits or rejects login attempts per email.
type AttemptTracker interface {
	CheckAccess(ctx context.Context, email string) (Admission, error)
	RecordFailure(ctx context.Context, adm Admission)
	RecordSuccess(ctx context.Context, email string) error
	Unlock(ctx context.Context, email string) error
	Prune(ctx context.Context) (int64, error)
}

// Tracker implements AttemptTracker over the persisted attempt records.
// Admission and lock arming happen in one compare-and-set write, so
// concurrent failures for one email can never exceed the limit.
type Tracker struct {
	attempts repo.AttemptRepo
	policy   LockoutPolicy
	clock    Clock
	log      *zap.Logger

	// created counts records inserted by admissions since the last sweep.
	created atomic.Int64
}

// NewTracker creates a tracker. Zero policy fields take the defaults.
func NewTracker(attempts repo.AttemptRepo, policy LockoutPolicy, clock Clock, log *zap.Logger) *Tracker {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultMaxAttempts
	}
	if policy.Window <= 0 {
		policy.Window = DefaultLockoutWindow
	}
	if policy.Retention <= 0 {
		policy.Retention = DefaultAttemptRetention
	}
	if policy.Retention < policy.Window {
		policy.Retention = policy.Window
	}
	if clock == nil {
		clock = SystemClock
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{attempts: attempts, policy: policy, clock: clock, log: log}
}

// CheckAccess admits one attempt for email or returns an ACCOUNT_LOCKED error
// carrying the remaining lock duration.
func (t *Tracker) CheckAccess(ctx context.Context, email string) (Admission, error) {
	for i := 0; i < maxCASRetries; i++ {
		stored, err := t.attempts.GetAttempts(ctx, email)
		if err != nil {
			return Admission{}, fmt.Errorf("check access: %w", err)
		}

		now := t.clock.Now()
		state, retryAfter, current := evaluate(stored, now)
		if state == stateLocked {
			return Admission{}, lockedError(retryAfter)
		}

		next := fail(current, now, t.policy)
		next.Email = email
		ok, err := t.attempts.UpdateAttempts(ctx, next, stored.Version)
		if err != nil {
			return Admission{}, fmt.Errorf("check access: %w", err)
		}
		if !ok {
			continue
		}
		if stored.Version == 0 {
			t.maybePrune(ctx)
		}
		return Admission{Email: email, Attempt: next.FailedAttempts, LockedUntil: next.LockedUntil}, nil
	}
	return Admission{}, fmt.Errorf("check access for %s: gave up after %d conflicting updates", logging.MaskEmail(email), maxCASRetries)
}

// RecordFailure finalizes a failed attempt. The counter was charged at admission.
func (t *Tracker) RecordFailure(ctx context.Context, adm Admission) {
	if adm.LockedUntil == nil {
		t.log.Debug("login failed",
			zap.String("email", logging.MaskEmail(adm.Email)),
			zap.Int("attempt", adm.Attempt),
			zap.Int("max_attempts", t.policy.MaxAttempts))
		return
	}
	metrics.AccountLockoutsTotal.Inc()
	t.log.Warn("account locked after repeated failures",
		zap.String("email", logging.MaskEmail(adm.Email)),
		zap.Int("attempts", adm.Attempt),
		zap.Time("locked_until", *adm.LockedUntil))
}

// RecordSuccess resets the counter and clears any lock.
func (t *Tracker) RecordSuccess(ctx context.Context, email string) error {
	if err := t.attempts.ResetAttempts(ctx, email, t.clock.Now()); err != nil {
		return fmt.Errorf("record success: %w", err)
	}
	return nil
}

// Unlock is the administrative reset of an email's attempt record.
func (t *Tracker) Unlock(ctx context.Context, email string) error {
	if err := t.attempts.ResetAttempts(ctx, email, t.clock.Now()); err != nil {
		return fmt.Errorf("unlock: %w", err)
	}
	t.log.Info("login attempts reset", zap.String("email", logging.MaskEmail(email)))
	return nil
}

// Prune removes records that have been idle for the retention period and no
// longer hold a lock. Their absence reads as a clean record, so nothing is lost.
func (t *Tracker) Prune(ctx context.Context) (int64, error) {
	now := t.clock.Now()
	n, err := t.attempts.PruneAttempts(ctx, now.Add(-t.policy.Retention), now)
	if err != nil {
		return 0, fmt.Errorf("prune attempts: %w", err)
	}
	if n > 0 {
		t.log.Info("pruned idle login attempt records", zap.Int64("removed", n))
	}
	return n, nil
}

// maybePrune sweeps once every pruneEvery new records, keeping the table
// bounded even when callers try many distinct emails.
func (t *Tracker) maybePrune(ctx context.Context) {
	if t.created.Add(1)%pruneEvery != 0 {
		return
	}
	if _, err := t.Prune(ctx); err != nil {
		t.log.Warn("login attempt sweep failed", zap.Error(err))
	}
}
