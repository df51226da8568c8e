package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/carepoint/server/internal/logging"
	"github.com/carepoint/server/internal/metrics"
	"github.com/carepoint/server/internal/model"
	"github.com/carepoint/server/internal/repo"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TokenPair is the credential set returned on login and registration.
type TokenPair struct {
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    string
}

// Result is the outcome of a successful login or registration.
type Result struct {
	Identity model.Identity
	Tokens   TokenPair
}

// Service orchestrates authentication operations
type Service struct {
	accounts repo.AccountRepo
	tracker  AttemptTracker
	hasher   Hasher
	tokens   *JWTService
	policy   PasswordPolicy
	clock    Clock
	log      *zap.Logger

	dummyDigest string
}

// NewService creates a new auth service. A nil clock or logger falls back to
// the system clock and a no-op logger.
func NewService(
	accounts repo.AccountRepo,
	tracker AttemptTracker,
	hasher Hasher,
	tokens *JWTService,
	policy PasswordPolicy,
	clock Clock,
	log *zap.Logger,
) (*Service, error) {
	if clock == nil {
		clock = SystemClock
	}
	if log == nil {
		log = zap.NewNop()
	}

	var dummy string
	if d, ok := hasher.(interface{ DummyDigest() string }); ok {
		dummy = d.DummyDigest()
	} else {
		digest, err := hasher.Hash(uuid.NewString())
		if err != nil {
			return nil, fmt.Errorf("failed to prepare dummy digest: %w", err)
		}
		dummy = digest
	}

	return &Service{
		accounts:    accounts,
		tracker:     tracker,
		hasher:      hasher,
		tokens:      tokens,
		policy:      policy,
		clock:       clock,
		log:         log,
		dummyDigest: dummy,
	}, nil
}

// NormalizeEmail is the canonical form used for lookup, storage and throttling.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login verifies credentials and issues tokens. Unknown emails and wrong
// passwords fail identically, and both count toward the lockout.
func (s *Service) Login(ctx context.Context, email, password string) (*Result, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, invalidInput("Email and password are required")
	}

	adm, err := s.tracker.CheckAccess(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountLocked) {
			metrics.LoginAttemptsTotal.WithLabelValues(metrics.OutcomeLocked).Inc()
			s.log.Info("login rejected: account locked", zap.String("email", logging.MaskEmail(email)))
			return nil, err
		}
		metrics.LoginAttemptsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("login: %w", err)
	}

	found := true
	acc, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			metrics.LoginAttemptsTotal.WithLabelValues(metrics.OutcomeError).Inc()
			return nil, fmt.Errorf("login: %w", err)
		}
		found = false
	}

	digest := s.dummyDigest
	if found {
		digest = acc.PasswordHash
	}
	if !s.hasher.Verify(password, digest) || !found {
		s.tracker.RecordFailure(ctx, adm)
		metrics.LoginAttemptsTotal.WithLabelValues(metrics.OutcomeInvalidCredentials).Inc()
		return nil, ErrInvalidCredentials
	}

	if err := s.tracker.RecordSuccess(ctx, email); err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := s.accounts.UpdateLastLogin(ctx, email, s.clock.Now()); err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("login: %w", err)
	}

	res, err := s.issue(acc.Identity())
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("login: %w", err)
	}
	metrics.LoginAttemptsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	s.log.Info("login succeeded",
		zap.String("email", logging.MaskEmail(email)),
		zap.Stringer("role", acc.Role))
	return res, nil
}

// Register creates an account and issues tokens for it. An empty role means
// the lowest-privilege role.
func (s *Service) Register(ctx context.Context, email, password, role string) (*Result, error) {
	res, err := s.register(ctx, email, password, role)
	if err != nil {
		outcome := metrics.OutcomeError
		var authErr *Error
		if errors.As(err, &authErr) {
			outcome = strings.ToLower(string(authErr.Code))
		}
		metrics.RegistrationsTotal.WithLabelValues(outcome).Inc()
		return nil, err
	}
	metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return res, nil
}

func (s *Service) register(ctx context.Context, email, password, roleName string) (*Result, error) {
	email = NormalizeEmail(email)
	if !validEmail(email) {
		return nil, invalidInput("A valid email address is required")
	}

	role := model.DefaultRole
	if strings.TrimSpace(roleName) != "" {
		parsed, err := model.ParseRole(roleName)
		if err != nil {
			return nil, ErrInvalidRole
		}
		role = parsed
	}

	if unmet := s.policy.Check(password); len(unmet) > 0 {
		return nil, weakPasswordError(unmet)
	}

	acc, err := s.createAccount(ctx, email, password, role)
	if err != nil {
		return nil, err
	}
	s.log.Info("account registered",
		zap.String("email", logging.MaskEmail(email)),
		zap.Stringer("role", role))

	res, err := s.issue(acc.Identity())
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return res, nil
}

func (s *Service) createAccount(ctx context.Context, email, password string, role model.Role) (*model.Account, error) {
	_, err := s.accounts.FindByEmail(ctx, email)
	if err == nil {
		return nil, ErrDuplicateAccount
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("register: %w", err)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	now := s.clock.Now()
	acc := &model.Account{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: digest,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.Insert(ctx, acc); err != nil {
		// Lost a race with a concurrent registration of the same email.
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("register: %w", err)
	}
	return acc, nil
}

// Authorize allows identity iff its role is valid and one of roles.
func (s *Service) Authorize(identity model.Identity, roles ...model.Role) error {
	return Authorize(identity, roles...)
}

// Authorize is the role check used by Service.Authorize and the HTTP middleware.
func Authorize(identity model.Identity, roles ...model.Role) error {
	if !identity.Role.Valid() {
		return ErrForbidden
	}
	for _, r := range roles {
		if r == identity.Role {
			return nil
		}
	}
	return ErrForbidden
}

// VerifyAccessToken resolves a bearer token to the identity it was issued for.
func (s *Service) VerifyAccessToken(token string) (model.Identity, error) {
	return s.tokens.VerifyAccessToken(token)
}

// Unlock clears the failed-attempt counter and lock for email.
func (s *Service) Unlock(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return invalidInput("Email is required")
	}
	return s.tracker.Unlock(ctx, email)
}

// PruneAttempts deletes idle attempt records that hold no lock and returns
// how many were removed.
func (s *Service) PruneAttempts(ctx context.Context) (int64, error) {
	return s.tracker.Prune(ctx)
}

// ListAccounts returns every account with its current lock state.
func (s *Service) ListAccounts(ctx context.Context) ([]model.AccountSummary, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	now := s.clock.Now()
	out := make([]model.AccountSummary, 0, len(accounts))
	for _, a := range accounts {
		_, _, rec := evaluate(model.AttemptRecord{
			FailedAttempts: a.FailedAttempts,
			LockedUntil:    a.LockedUntil,
		}, now)
		out = append(out, model.AccountSummary{
			Identity:       a.Identity(),
			FailedAttempts: rec.FailedAttempts,
			LockedUntil:    rec.LockedUntil,
			LastLoginAt:    a.LastLoginAt,
			CreatedAt:      a.CreatedAt,
		})
	}
	return out, nil
}

// StaffDirectory returns the identities of clinical and administrative staff.
func (s *Service) StaffDirectory(ctx context.Context) ([]model.Identity, error) {
	accounts, err := s.accounts.ListByRoles(ctx, model.RoleDoctor, model.RoleNurse, model.RoleStaff)
	if err != nil {
		return nil, fmt.Errorf("staff directory: %w", err)
	}
	out := make([]model.Identity, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.Identity())
	}
	return out, nil
}

// EnsureAdmin creates an admin account unless one already exists under email.
// It reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	email = NormalizeEmail(email)
	if !validEmail(email) {
		return false, invalidInput("A valid email address is required")
	}

	existing, err := s.accounts.FindByEmail(ctx, email)
	if err == nil {
		if existing.Role != model.RoleAdmin {
			return false, &Error{
				Code:    CodeDuplicateAccount,
				Message: fmt.Sprintf("Account exists with role %s", existing.Role),
			}
		}
		return false, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return false, fmt.Errorf("ensure admin: %w", err)
	}

	if unmet := s.policy.Check(password); len(unmet) > 0 {
		return false, weakPasswordError(unmet)
	}
	if _, err := s.createAccount(ctx, email, password, model.RoleAdmin); err != nil {
		return false, err
	}
	s.log.Info("admin account created", zap.String("email", logging.MaskEmail(email)))
	return true, nil
}

func (s *Service) issue(identity model.Identity) (*Result, error) {
	access, expiresAt, err := s.tokens.IssueAccessToken(identity)
	if err != nil {
		return nil, err
	}
	refresh, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	return &Result{
		Identity: identity,
		Tokens: TokenPair{
			AccessToken:     access,
			AccessExpiresAt: expiresAt,
			RefreshToken:    refresh,
		},
	}, nil
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	// Reject display-name forms such as "Bob <bob@x.com>".
	return addr.Address == email && strings.Contains(email[strings.LastIndex(email, "@"):], ".")
}
