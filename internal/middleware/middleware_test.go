package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chatterbox/internal/apperror"
	"github.com/chatterbox/internal/model"
	"github.com/stretchr/testify/assert"
)

type stubAuth map[string]model.Principal

func (s stubAuth) Authenticate(_ context.Context, id string) (model.Principal, error) {
	if p, ok := s[id]; ok {
		return p, nil
	}
	return model.Principal{}, apperror.ErrUnauthenticated
}

func whoami(w http.ResponseWriter, r *http.Request) {
	p, ok := GetPrincipal(r.Context())
	if !ok {
		_, _ = w.Write([]byte("anonymous"))
		return
	}
	_, _ = w.Write([]byte(p.Username + ":" + GetSessionID(r.Context())))
}

func TestLoadSession(t *testing.T) {
	auth := stubAuth{"s-1": {UserID: "u1", Username: "alice"}}
	h := LoadSession(auth)(http.HandlerFunc(whoami))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		expect string
	}{
		{"no session", func(*http.Request) {}, "anonymous"},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "s-1"}) }, "alice:s-1"},
		{"header", func(r *http.Request) { r.Header.Set("X-Session-Id", "s-1") }, "alice:s-1"},
		{"unknown", func(r *http.Request) { r.Header.Set("X-Session-Id", "s-2") }, "anonymous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.expect, rec.Body.String())
		})
	}
}

func TestRequireSession(t *testing.T) {
	var denied error
	deny := func(w http.ResponseWriter, _ *http.Request, err error) {
		denied = err
		w.WriteHeader(apperror.HTTPStatus(err))
	}
	h := LoadSession(stubAuth{"s-1": {UserID: "u1", Username: "alice"}})(RequireSession(deny)(http.HandlerFunc(whoami)))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.ErrorIs(t, denied, apperror.ErrUnauthenticated)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Session-Id", "s-1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoverJSON(t *testing.T) {
	h := RecoverJSON(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestRateLimitPerIP(t *testing.T) {
	h := RateLimit(1, 2)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "other clients have their own bucket")
}

func TestLimiterPoolEvictsIdle(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := newLimiterPool(1, 1)
	p.now = func() time.Time { return now }
	p.cleanup.Do(func() {})
	assert.True(t, p.allow("a"))
	now = now.Add(limiterTTL + time.Second)
	p.evict()
	assert.Empty(t, p.m)
}

func TestInternalOnly(t *testing.T) {
	h := InternalOnly("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	tests := []struct {
		name   string
		remote string
		header map[string]string
		code   int
	}{
		{"loopback", "127.0.0.1:5000", nil, 200},
		{"private", "10.1.2.3:5000", nil, 200},
		{"public", "8.8.8.8:5000", nil, 403},
		{"public with secret", "8.8.8.8:5000", map[string]string{"X-Internal-Secret": "s3cret"}, 200},
		{"public with wrong secret", "8.8.8.8:5000", map[string]string{"X-Internal-Secret": "nope"}, 403},
		{"forwarded public", "127.0.0.1:5000", map[string]string{"X-Forwarded-For": "8.8.8.8, 10.0.0.1"}, 403},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestMaskSessionID(t *testing.T) {
	assert.Equal(t, "****", MaskSessionID("abc"))
	assert.Equal(t, "abcd***", MaskSessionID("abcdef-123"))
}
