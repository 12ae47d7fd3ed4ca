package push

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/chatterbox/internal/logger"
	"github.com/chatterbox/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Sender delivers one encrypted payload to a push endpoint and reports the HTTP status.
type Sender interface {
	Send(ctx context.Context, payload []byte, sub Subscription) (int, error)
}

// WebPushSender signs requests with VAPID keys.
type WebPushSender struct {
	opts *webpush.Options
}

func NewWebPushSender(keys *VAPIDKeys, subscriber string) *WebPushSender {
	return &WebPushSender{opts: &webpush.Options{
		Subscriber:      subscriber,
		VAPIDPublicKey:  keys.PublicKey,
		VAPIDPrivateKey: keys.PrivateKey,
		TTL:             30,
	}}
}

func (s *WebPushSender) Send(ctx context.Context, payload []byte, sub Subscription) (int, error) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
	}
	resp, err := webpush.SendNotificationWithContext(ctx, payload, wpSub, s.opts)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// Server is the push service HTTP surface. A nil sender keeps subscriptions but sends nothing.
// The /api routes only answer internal callers (see middleware.InternalOnly).
type Server struct {
	subs      SubscriptionStore
	sender    Sender
	publicKey string
	secret    string
}

func NewServer(subs SubscriptionStore, sender Sender, publicKey, internalSecret string) *Server {
	return &Server{subs: subs, sender: sender, publicKey: publicKey, secret: internalSecret}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.InternalOnly(s.secret))
		r.Get("/vapid-public", s.handleVAPIDPublic)
		r.Post("/subscribe", s.handleSubscribe)
		r.Delete("/subscribe", s.handleUnsubscribe)
		r.Post("/notify", s.handleNotify)
	})
	return r
}

func (s *Server) handleVAPIDPublic(w http.ResponseWriter, r *http.Request) {
	if s.publicKey == "" {
		http.Error(w, "push not configured", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(s.publicKey))
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" || !req.Subscription.Valid() {
		http.Error(w, "user_id and subscription (endpoint, keys.p256dh, keys.auth) required", http.StatusBadRequest)
		return
	}
	if err := s.subs.Add(r.Context(), req.UserID, req.Subscription); err != nil {
		logger.Errorf("subscribe user=%s: %v", req.UserID, err)
		http.Error(w, "failed to save subscription", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" || req.Endpoint == "" {
		http.Error(w, "user_id and endpoint required", http.StatusBadRequest)
		return
	}
	if err := s.subs.Remove(r.Context(), req.UserID, req.Endpoint); err != nil {
		logger.Errorf("unsubscribe user=%s: %v", req.UserID, err)
		http.Error(w, "failed to remove subscription", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	subs, err := s.subs.List(ctx, req.UserID)
	if err != nil {
		logger.Errorf("notify user=%s: %v", req.UserID, err)
		http.Error(w, "failed to get subscriptions", http.StatusInternalServerError)
		return
	}
	if s.sender != nil {
		s.deliver(ctx, req, subs)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deliver(ctx context.Context, req NotifyRequest, subs []Subscription) {
	payload, _ := json.Marshal(map[string]any{"title": req.Title, "body": req.Body, "data": req.Data})
	for _, sub := range subs {
		status, err := s.sender.Send(ctx, payload, sub)
		if err != nil {
			logger.Errorf("push send %s: %v", shortEndpoint(sub.Endpoint), err)
			continue
		}
		// the browser dropped the subscription
		if status == http.StatusGone || status == http.StatusNotFound {
			if err := s.subs.Remove(ctx, req.UserID, sub.Endpoint); err != nil {
				logger.Errorf("push remove stale %s: %v", shortEndpoint(sub.Endpoint), err)
			}
		}
	}
}

func shortEndpoint(e string) string {
	if len(e) > 50 {
		return e[:50]
	}
	return e
}
