package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/approvalflow/approval-gateway/internal/transport"
	"github.com/approvalflow/approval-gateway/internal/upstream"
)

// ServiceAPI is what the HTTP layer needs from the auth service.
type ServiceAPI interface {
	Login(ctx context.Context, dto LoginDTO) (*User, string, error)
	Logout(ctx context.Context, sessionID string) error
	Refresh(ctx context.Context, sessionID string) (string, error)
	CurrentUser(ctx context.Context, sessionID string) (*User, error)
	Status(ctx context.Context, sessionID string) (*SessionStatus, error)
	RecordActivity(ctx context.Context, sessionID string, dto ActivityDTO) error
	TokenSource(sessionID string) upstream.TokenSource
	WithSession(ctx context.Context, sessionID string) context.Context
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	Cookies *CookieManager
}

func NewHandler(base *transport.BaseHandler, service ServiceAPI, cookies *CookieManager) *Handler {
	return &Handler{
		BaseHandler: base,
		Service:     service,
		Cookies:     cookies,
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, sessionID, err := h.Service.Login(r.Context(), dto)
	if err != nil {
		h.Logger.Warn("Login: failed", "username", dto.Username, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	if err := h.Cookies.Issue(w, sessionID); err != nil {
		h.Logger.Error("Login: failed to issue session cookie", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.WriteJSON(w, http.StatusOK, LoginResponse{
		User:         user,
		DefaultRoute: user.DefaultRoute(),
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID, ok := h.Cookies.SessionID(r); ok {
		if err := h.Service.Logout(r.Context(), sessionID); err != nil {
			h.Logger.Error("Logout: failed", "session_id", sessionID, "error", err)
			h.HandleServiceError(w, err)
			return
		}
	}
	h.Cookies.Clear(w)
	h.WriteJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.Cookies.SessionID(r)
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	if _, err := h.Service.Refresh(r.Context(), sessionID); err != nil {
		h.Logger.Warn("Refresh: failed", "session_id", sessionID, "error", err)
		h.Cookies.Clear(w)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusNoContent, nil)
}

// Me returns the user the auth guard already resolved.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	h.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.Cookies.SessionID(r)
	if !ok {
		h.WriteJSON(w, http.StatusOK, SessionStatus{Authenticated: false})
		return
	}

	status, err := h.Service.Status(r.Context(), sessionID)
	if err != nil {
		h.Logger.Error("SessionStatus: failed", "session_id", sessionID, "error", err)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, status)
}

// Activity receives input-event beacons that keep the idle clock running.
func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.Cookies.SessionID(r)
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var dto ActivityDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Service.RecordActivity(r.Context(), sessionID, dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusNoContent, nil)
}

// Middleware is the API-route guard: it resolves the session cookie to a
// user, binds the user and the session's token source to the request
// context, and answers 401 when there is no usable session.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := h.Cookies.SessionID(r)
		if !ok {
			h.WriteError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		user, err := h.Service.CurrentUser(r.Context(), sessionID)
		if err != nil {
			h.Cookies.Clear(w)
			h.HandleServiceError(w, err)
			return
		}

		ctx := h.Service.WithSession(r.Context(), sessionID)
		ctx = ContextWithUser(ctx, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PageMiddleware guards browser page routes: instead of a JSON 401 it
// redirects to the login page, carrying the original path so login can
// return the user where they were headed.
func (h *Handler) PageMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := h.Cookies.SessionID(r)
		if !ok {
			redirectToLogin(w, r)
			return
		}

		user, err := h.Service.CurrentUser(r.Context(), sessionID)
		if err != nil {
			h.Cookies.Clear(w)
			redirectToLogin(w, r)
			return
		}

		ctx := h.Service.WithSession(r.Context(), sessionID)
		ctx = ContextWithUser(ctx, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	next := r.URL.Path
	if r.URL.RawQuery != "" {
		next += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, "/login?next="+url.QueryEscape(next), http.StatusFound)
}
