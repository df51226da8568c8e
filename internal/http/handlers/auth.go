package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/carepoint/server/internal/auth"
	"github.com/carepoint/server/internal/middleware"
	"github.com/carepoint/server/internal/model"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 16

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *auth.Service
	log         *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.Service, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{authService: authService, log: log}
}

// loginRequest is the request body for POST /api/auth/login
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// registerRequest is the request body for POST /api/auth/register
type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// authResponse is returned on successful login and registration
type authResponse struct {
	User         model.Identity `json:"user"`
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
	ExpiresAt    int64          `json:"expiresAt"`
}

func newAuthResponse(res *auth.Result) authResponse {
	return authResponse{
		User:         res.Identity,
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		ExpiresAt:    res.Tokens.AccessExpiresAt.Unix(),
	}
}

// HandleLogin handles POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, auth.CodeInvalidInput, "invalid request body")
		return
	}

	res, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondWithAuthError(w, h.log, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newAuthResponse(res))
}

// HandleRegister handles POST /api/auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, auth.CodeInvalidInput, "invalid request body")
		return
	}

	res, err := h.authService.Register(r.Context(), req.Email, req.Password, req.Role)
	if err != nil {
		respondWithAuthError(w, h.log, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, newAuthResponse(res))
}

// HandleMe handles GET /api/auth/me (protected). Returns the caller's identity.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		respondWithAuthError(w, h.log, r, auth.ErrInvalidOrExpiredToken)
		return
	}
	respondJSON(w, http.StatusOK, identity)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}
