package repo

import (
	"context"
	"testing"
	"time"

	"github.com/carepoint/server/internal/db/dbtest"
	"github.com/carepoint/server/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccount(email string, role model.Role, at time.Time) *model.Account {
	return &model.Account{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "$2a$04$notarealhash",
		Role:         role,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

func TestAccountRepo_InsertAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepo(dbtest.NewSQLite(t))
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	acc := newAccount("a@x.com", model.RoleDoctor, now)
	require.NoError(t, repo.Insert(ctx, acc))

	got, err := repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)
	assert.Equal(t, "a@x.com", got.Email)
	assert.Equal(t, model.RoleDoctor, got.Role)
	assert.Equal(t, acc.PasswordHash, got.PasswordHash)
	assert.Equal(t, 0, got.FailedAttempts)
	assert.Nil(t, got.LockedUntil)
	assert.Nil(t, got.LastLoginAt)
	assert.True(t, now.Equal(got.CreatedAt))
}

func TestAccountRepo_FindMissing(t *testing.T) {
	repo := NewAccountRepo(dbtest.NewSQLite(t))

	_, err := repo.FindByEmail(context.Background(), "nobody@x.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAccountRepo_InsertDuplicate(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.NewSQLite(t)
	repo := NewAccountRepo(conn)
	now := time.Now().UTC()

	require.NoError(t, repo.Insert(ctx, newAccount("a@x.com", model.RolePatient, now)))
	err := repo.Insert(ctx, newAccount("a@x.com", model.RoleAdmin, now))
	require.ErrorIs(t, err, ErrDuplicate)

	var count int
	require.NoError(t, conn.GetContext(ctx, &count, `SELECT COUNT(*) FROM accounts WHERE email = ?`, "a@x.com"))
	assert.Equal(t, 1, count)
}

func TestAccountRepo_FindReadsAttemptCounters(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.NewSQLite(t)
	accounts := NewAccountRepo(conn)
	attempts := NewAttemptRepo(conn)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	until := now.Add(15 * time.Minute)

	require.NoError(t, accounts.Insert(ctx, newAccount("a@x.com", model.RoleNurse, now)))
	ok, err := attempts.UpdateAttempts(ctx, model.AttemptRecord{
		Email:          "a@x.com",
		FailedAttempts: 5,
		LockedUntil:    &until,
		UpdatedAt:      now,
	}, 0)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := accounts.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 5, got.FailedAttempts)
	require.NotNil(t, got.LockedUntil)
	assert.True(t, until.Equal(*got.LockedUntil))
}

func TestAccountRepo_UpdateLastLogin(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepo(dbtest.NewSQLite(t))
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	login := created.Add(2 * time.Hour)

	require.NoError(t, repo.Insert(ctx, newAccount("a@x.com", model.RolePatient, created)))
	require.NoError(t, repo.UpdateLastLogin(ctx, "a@x.com", login))

	got, err := repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)
	assert.True(t, login.Equal(*got.LastLoginAt))
	assert.True(t, login.Equal(got.UpdatedAt))

	err = repo.UpdateLastLogin(ctx, "nobody@x.com", login)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAccountRepo_ListAndListByRoles(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepo(dbtest.NewSQLite(t))
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	seed := []struct {
		email string
		role  model.Role
	}{
		{"admin@x.com", model.RoleAdmin},
		{"doc@x.com", model.RoleDoctor},
		{"nurse@x.com", model.RoleNurse},
		{"pat@x.com", model.RolePatient},
	}
	for i, s := range seed {
		require.NoError(t, repo.Insert(ctx, newAccount(s.email, s.role, base.Add(time.Duration(i)*time.Minute))))
	}

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "admin@x.com", all[0].Email)
	assert.Equal(t, "pat@x.com", all[3].Email)

	clinical, err := repo.ListByRoles(ctx, model.RoleDoctor, model.RoleNurse, model.RoleStaff)
	require.NoError(t, err)
	require.Len(t, clinical, 2)
	assert.Equal(t, "doc@x.com", clinical[0].Email)
	assert.Equal(t, "nurse@x.com", clinical[1].Email)

	none, err := repo.ListByRoles(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)
}
