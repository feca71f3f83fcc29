package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/clicker/internal/domain/model"
	"github.com/okian/clicker/pkg/logger"
)

// AuthDependencies defines the interface for session handling.
type AuthDependencies interface {
	Login(ctx context.Context, username, password string) (model.Session, error)
	CurrentUser(ctx context.Context, token string) (model.User, error)
}

// AuthHandler handles login, logout and identity requests.
type AuthHandler struct {
	deps AuthDependencies
	settings
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(deps AuthDependencies, s settings) *AuthHandler {
	return &AuthHandler{deps: deps, settings: s}
}

type loginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

// HandleLogin handles POST /api/auth/login. Unknown usernames are registered.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	const op = "api.login"
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(ctx, h.logger, w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		writeError(ctx, h.logger, w, WrapKind(op, model.ErrInvalidInput, err))
		return
	}

	session, err := h.deps.Login(ctx, req.Username, req.Password)
	if err != nil {
		writeError(ctx, h.logger, w, Wrap(op, err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session.Token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	h.logger.Debug(ctx, "user logged in", logger.String("user_id", session.ID))
	writeJSON(w, http.StatusOK, session)
}

// HandleMe handles GET /api/auth/me.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	const op = "api.me"
	u, err := h.deps.CurrentUser(r.Context(), tokenFrom(r))
	if err != nil {
		writeError(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// HandleLogout handles POST /api/auth/logout by expiring the session cookie.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
