package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/carepoint/server/internal/db/dbtest"
	"github.com/carepoint/server/internal/model"
	"github.com/carepoint/server/internal/repo"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret-that-is-at-least-32-bytes-long"

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memAttempts is an in-memory AttemptRepo with the same compare-and-set
// semantics as the SQL implementation.
type memAttempts struct {
	mu   sync.Mutex
	recs map[string]model.AttemptRecord
}

func newMemAttempts() *memAttempts {
	return &memAttempts{recs: make(map[string]model.AttemptRecord)}
}

func (m *memAttempts) GetAttempts(_ context.Context, email string) (model.AttemptRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.recs[email]; ok {
		return rec, nil
	}
	return model.AttemptRecord{Email: email}, nil
}

func (m *memAttempts) UpdateAttempts(_ context.Context, rec model.AttemptRecord, expected int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.recs[rec.Email]
	if (!ok && expected != 0) || (ok && cur.Version != expected) {
		return false, nil
	}
	rec.Version = expected + 1
	m.recs[rec.Email] = rec
	return true, nil
}

func (m *memAttempts) ResetAttempts(_ context.Context, email string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.recs[email]; ok {
		cur.FailedAttempts = 0
		cur.LockedUntil = nil
		cur.Version++
		cur.UpdatedAt = at
		m.recs[email] = cur
	}
	return nil
}

func (m *memAttempts) PruneAttempts(_ context.Context, idleBefore, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for email, rec := range m.recs {
		if rec.UpdatedAt.Before(idleBefore) && (rec.LockedUntil == nil || !rec.LockedUntil.After(now)) {
			delete(m.recs, email)
			n++
		}
	}
	return n, nil
}

func (m *memAttempts) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

var _ repo.AttemptRepo = (*memAttempts)(nil)

type testEnv struct {
	svc    *Service
	clock  *manualClock
	conn   *sqlx.DB
	tokens *JWTService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn := dbtest.NewSQLite(t)
	clock := newManualClock()

	hasher, err := NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)
	tokens := NewJWTService(testSecret, "hms", time.Hour, clock)
	tracker := NewTracker(repo.NewAttemptRepo(conn), DefaultLockoutPolicy(), clock, nil)

	svc, err := NewService(repo.NewAccountRepo(conn), tracker, hasher, tokens, DefaultPasswordPolicy(), clock, nil)
	require.NoError(t, err)
	return &testEnv{svc: svc, clock: clock, conn: conn, tokens: tokens}
}
