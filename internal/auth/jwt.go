package auth

import (
	"fmt"
	"time"

	"github.com/carepoint/server/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultAccessTokenTTL is the access token lifetime when none is configured.
const DefaultAccessTokenTTL = time.Hour

// JWTClaims represents the access token claims. The subject carries the account ID.
type JWTClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// JWTService handles JWT token operations
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  Clock
}

// NewJWTService creates a new JWT service. A nil clock means the system clock.
func NewJWTService(secret, issuer string, ttl time.Duration, clock Clock) *JWTService {
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	if clock == nil {
		clock = SystemClock
	}
	return &JWTService{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		clock:  clock,
	}
}

// IssueAccessToken signs an HS256 token for identity and returns it with its expiry.
func (s *JWTService) IssueAccessToken(identity model.Identity) (string, time.Time, error) {
	if !identity.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("cannot issue token for role %q", identity.Role)
	}
	now := s.clock.Now()
	expiresAt := now.Add(s.ttl)
	claims := &JWTClaims{
		Email: identity.Email,
		Role:  identity.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// VerifyAccessToken checks signature, algorithm, issuer and expiry and returns
// the embedded identity. Every failure is ErrInvalidOrExpiredToken.
func (s *JWTService) VerifyAccessToken(tokenString string) (model.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return model.Identity{}, ErrInvalidOrExpiredToken
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return model.Identity{}, ErrInvalidOrExpiredToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.Identity{}, ErrInvalidOrExpiredToken
	}
	role, err := model.ParseRole(claims.Role)
	if err != nil {
		return model.Identity{}, ErrInvalidOrExpiredToken
	}

	return model.Identity{ID: id, Email: claims.Email, Role: role}, nil
}
