package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/chatterbox/internal/middleware"
	"github.com/chatterbox/internal/model"
)

type Accounts interface {
	Register(ctx context.Context, username, password, confirm string) (*model.Session, error)
	Login(ctx context.Context, username, password string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

type AuthHandler struct {
	accounts     Accounts
	cookieSecure bool
}

func NewAuthHandler(accounts Accounts, cookieSecure bool) *AuthHandler {
	return &AuthHandler{accounts: accounts, cookieSecure: cookieSecure}
}

type sessionResponse struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, s *model.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    s.ID,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	get, err := params(r)
	if err != nil {
		replyError(w, r, err, "/register")
		return
	}
	confirm := get("confirm_password")
	if confirm == "" {
		confirm = get("password_confirm")
	}
	sess, err := h.accounts.Register(r.Context(), get("username"), get("password"), confirm)
	if err != nil {
		replyError(w, r, err, "/register")
		return
	}
	h.setSessionCookie(w, sess)
	reply(w, r, http.StatusCreated, sessionResponse{sess.ID, sess.UserID, sess.Username, sess.ExpiresAt}, "/", "")
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	get, err := params(r)
	if err != nil {
		replyError(w, r, err, "/login")
		return
	}
	sess, err := h.accounts.Login(r.Context(), get("username"), get("password"))
	if err != nil {
		replyError(w, r, err, "/login")
		return
	}
	h.setSessionCookie(w, sess)
	reply(w, r, http.StatusOK, sessionResponse{sess.ID, sess.UserID, sess.Username, sess.ExpiresAt}, "/", "")
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Logout(r.Context(), middleware.SessionIDFromRequest(r)); err != nil {
		replyError(w, r, err, "/")
		return
	}
	h.clearSessionCookie(w)
	reply(w, r, http.StatusOK, map[string]string{"status": "logged out"}, "/login", "")
}
