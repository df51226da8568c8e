package handlers

import (
	"net/http"
	"net/url"

	"github.com/carepoint/server/internal/auth"
	"github.com/carepoint/server/internal/logging"
	"github.com/carepoint/server/internal/middleware"
	"github.com/carepoint/server/internal/model"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AdminHandler serves account administration for admins and staff.
type AdminHandler struct {
	authService *auth.Service
	log         *zap.Logger
}

func NewAdminHandler(authService *auth.Service, log *zap.Logger) *AdminHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{authService: authService, log: log}
}

// HandleListAccounts handles GET /api/admin/accounts
func (h *AdminHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.authService.ListAccounts(r.Context())
	if err != nil {
		respondWithAuthError(w, h.log, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string][]model.AccountSummary{"accounts": accounts})
}

// HandleUnlock handles POST /api/admin/accounts/{email}/unlock
func (h *AdminHandler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, auth.CodeInvalidInput, "invalid email")
		return
	}
	if err := h.authService.Unlock(r.Context(), email); err != nil {
		respondWithAuthError(w, h.log, r, err)
		return
	}

	actor, _ := middleware.GetIdentity(r.Context())
	h.log.Info("account unlocked by administrator",
		zap.String("email", logging.MaskEmail(auth.NormalizeEmail(email))),
		zap.String("actor", actor.ID.String()))
	respondJSON(w, http.StatusOK, map[string]string{"message": "account unlocked"})
}

// HandleStaffDirectory handles GET /api/staff
func (h *AdminHandler) HandleStaffDirectory(w http.ResponseWriter, r *http.Request) {
	staff, err := h.authService.StaffDirectory(r.Context())
	if err != nil {
		respondWithAuthError(w, h.log, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string][]model.Identity{"staff": staff})
}
