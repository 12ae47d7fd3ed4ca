package handler

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/chatterbox/internal/apperror"
	"github.com/chatterbox/internal/logger"
	"github.com/chatterbox/internal/middleware"
	"github.com/chatterbox/internal/model"
)

const (
	flashCookie   = "flash"
	maxFormMemory = 1 << 20
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// wantsJSON reports whether the caller is a script rather than a browser form post.
func wantsJSON(r *http.Request) bool {
	if r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	return isJSONBody(r)
}

func isJSONBody(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "application/json"
}

// setFlash leaves a one-shot notice for the page the browser is redirected to.
func setFlash(w http.ResponseWriter, kind, msg string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(kind + ":" + msg),
		Path:     "/",
		MaxAge:   60,
		SameSite: http.SameSiteLaxMode,
	})
}

// reply answers a script with status and body as JSON, and a browser with a 303
// redirect carrying notice as flash.
func reply(w http.ResponseWriter, r *http.Request, status int, body any, redirect, notice string) {
	if wantsJSON(r) {
		writeJSON(w, status, body)
		return
	}
	if notice != "" {
		setFlash(w, "success", notice)
	}
	http.Redirect(w, r, redirect, http.StatusSeeOther)
}

// replyError maps err onto its HTTP status. Store failures never leak their cause.
func replyError(w http.ResponseWriter, r *http.Request, err error, redirect string) {
	status := apperror.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	if wantsJSON(r) {
		writeError(w, status, apperror.Message(err))
		return
	}
	setFlash(w, "error", apperror.Message(err))
	http.Redirect(w, r, redirect, http.StatusSeeOther)
}

// denyAnonymous is the RequireSession fallback.
func denyAnonymous(w http.ResponseWriter, r *http.Request, err error) {
	replyError(w, r, err, "/login")
}

// params reads request fields from a JSON object body or a (multipart) form.
func params(r *http.Request) (func(string) string, error) {
	if isJSONBody(r) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, apperror.Wrap(apperror.CodeInvalidArgument, "invalid body", err)
		}
		return func(key string) string {
			s, _ := body[key].(string)
			return s
		}, nil
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			return nil, apperror.Wrap(apperror.CodeInvalidArgument, "invalid form", err)
		}
	} else if err := r.ParseForm(); err != nil {
		return nil, apperror.Wrap(apperror.CodeInvalidArgument, "invalid form", err)
	}
	return r.FormValue, nil
}

// principal is only called behind RequireSession.
func principal(r *http.Request) model.Principal {
	p, _ := middleware.GetPrincipal(r.Context())
	return p
}

func chatPage(channelID string) string {
	if channelID == "" {
		return "/"
	}
	return "/?channel_id=" + url.QueryEscape(channelID)
}
