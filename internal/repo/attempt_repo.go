package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/carepoint/server/internal/model"
	"github.com/jmoiron/sqlx"
)

// AttemptRepo stores login throttling state per normalized email.
type AttemptRepo interface {
	GetAttempts(ctx context.Context, email string) (model.AttemptRecord, error)
	UpdateAttempts(ctx context.Context, rec model.AttemptRecord, expectedVersion int64) (bool, error)
	ResetAttempts(ctx context.Context, email string, at time.Time) error
	PruneAttempts(ctx context.Context, idleBefore, now time.Time) (int64, error)
}

type attemptRepo struct {
	db *sqlx.DB
}

// NewAttemptRepo creates a new AttemptRepo instance
func NewAttemptRepo(db *sqlx.DB) AttemptRepo {
	return &attemptRepo{db: db}
}

// GetAttempts returns the stored record, or a zero record with version 0
// when the email has never failed.
func (r *attemptRepo) GetAttempts(ctx context.Context, email string) (model.AttemptRecord, error) {
	var rec model.AttemptRecord
	err := r.db.GetContext(ctx, &rec, r.db.Rebind(`
		SELECT email, failed_attempts, locked_until, version, updated_at
		FROM login_attempts
		WHERE email = ?
	`), email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.AttemptRecord{Email: email}, nil
		}
		return model.AttemptRecord{}, fmt.Errorf("failed to query login attempts: %w", err)
	}
	return rec, nil
}

// UpdateAttempts writes rec only if the stored version still equals
// expectedVersion (0 meaning no row yet). It reports whether the write won.
func (r *attemptRepo) UpdateAttempts(ctx context.Context, rec model.AttemptRecord, expectedVersion int64) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if expectedVersion == 0 {
		res, err = r.db.ExecContext(ctx, r.db.Rebind(`
			INSERT INTO login_attempts (email, failed_attempts, locked_until, version, updated_at)
			VALUES (?, ?, ?, 1, ?)
			ON CONFLICT (email) DO NOTHING
		`), rec.Email, rec.FailedAttempts, rec.LockedUntil, rec.UpdatedAt)
	} else {
		res, err = r.db.ExecContext(ctx, r.db.Rebind(`
			UPDATE login_attempts
			SET failed_attempts = ?, locked_until = ?, version = version + 1, updated_at = ?
			WHERE email = ? AND version = ?
		`), rec.FailedAttempts, rec.LockedUntil, rec.UpdatedAt, rec.Email, expectedVersion)
	}
	if err != nil {
		return false, fmt.Errorf("failed to update login attempts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// ResetAttempts clears the counter and any lock. Bumping the version makes
// in-flight compare-and-set writers retry against the cleared state.
func (r *attemptRepo) ResetAttempts(ctx context.Context, email string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE login_attempts
		SET failed_attempts = 0, locked_until = NULL, version = version + 1, updated_at = ?
		WHERE email = ?
	`), at, email)
	if err != nil {
		return fmt.Errorf("failed to reset login attempts: %w", err)
	}
	return nil
}

// PruneAttempts deletes records untouched since idleBefore that hold no active
// lock, and returns how many were removed. Timestamps are written in UTC, so
// SQLite's text ordering agrees with time ordering.
func (r *attemptRepo) PruneAttempts(ctx context.Context, idleBefore, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		DELETE FROM login_attempts
		WHERE updated_at < ?
		  AND (locked_until IS NULL OR locked_until <= ?)
	`), idleBefore.UTC(), now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune login attempts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}
