package handler

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/chatterbox/internal/account"
	"github.com/chatterbox/internal/middleware"
	"github.com/chatterbox/internal/model"
)

type Profiles interface {
	Profile(ctx context.Context, username string) (*model.User, error)
	UpdateProfile(ctx context.Context, p model.Principal, in account.ProfileUpdate) (*model.User, error)
}

type ProfileHandler struct {
	profiles Profiles
}

func NewProfileHandler(profiles Profiles) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// profileResponse adds the private fields when the caller views their own profile.
type profileResponse struct {
	model.UserPublic
	Theme model.Theme `json:"theme_preference,omitempty"`
	IsMe  bool        `json:"is_me"`
}

func profilePage(username string) string {
	return "/profile/" + url.PathEscape(username)
}

func (h *ProfileHandler) View(w http.ResponseWriter, r *http.Request) {
	u, err := h.profiles.Profile(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		replyError(w, r, err, "/")
		return
	}
	resp := profileResponse{UserPublic: u.ToPublic()}
	if p, ok := middleware.GetPrincipal(r.Context()); ok && p.UserID == u.ID {
		resp.Theme = u.Theme
		resp.IsMe = true
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ProfileHandler) Edit(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	get, err := params(r)
	if err != nil {
		replyError(w, r, err, profilePage(p.Username))
		return
	}
	u, err := h.profiles.UpdateProfile(r.Context(), p, account.ProfileUpdate{
		StatusMessage:   get("status_message"),
		AvatarBgColor:   get("avatar_bg_color"),
		AvatarTextColor: get("avatar_text_color"),
		Theme:           model.Theme(get("theme_preference")),
	})
	if err != nil {
		replyError(w, r, err, profilePage(p.Username))
		return
	}
	reply(w, r, http.StatusOK, profileResponse{UserPublic: u.ToPublic(), Theme: u.Theme, IsMe: true}, profilePage(u.Username), "profile updated")
}
