package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/chatterbox/internal/account"
	"github.com/chatterbox/internal/chat"
	"github.com/chatterbox/internal/metrics"
	"github.com/chatterbox/internal/middleware"
	"github.com/chatterbox/internal/push"
	"github.com/chatterbox/internal/upload"
	"github.com/chatterbox/internal/ws"
)

// Deps is everything the HTTP surface needs; main builds it once.
type Deps struct {
	Accounts *account.Service
	Chat     *chat.Service
	Hub      *ws.Hub
	Images   upload.ImageStore
	// Uploads serves locally stored images; nil when images live in a bucket.
	Uploads http.Handler
	Push    *push.Client

	MaxUploadBytes     int64
	CookieSecure       bool
	CORSAllowedOrigins string
	RateLimitRPS       float64
	RateLimitBurst     int
	// Static is an optional frontend handler mounted at /*.
	Static http.Handler
}

func NewRouter(d Deps) http.Handler {
	authH := NewAuthHandler(d.Accounts, d.CookieSecure)
	chatH := NewChatHandler(d.Chat, d.Images, d.MaxUploadBytes)
	profileH := NewProfileHandler(d.Accounts)
	pushH := NewPushHandler(d.Push)
	configH := NewConfigHandler(d.Push, d.MaxUploadBytes>>20)
	wsH := NewWSHandler(d.Hub, d.CORSAllowedOrigins)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(middleware.RecoverJSON)
	// compression would hide http.Hijacker from the WebSocket upgrade
	r.Use(func(next http.Handler) http.Handler {
		compress := chimw.Compress(5)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			compress.ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   splitOrigins(d.CORSAllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With", "X-Session-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.LoadSession(d.Accounts))
	r.Use(middleware.RateLimit(d.RateLimitRPS, d.RateLimitBurst))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/api/config", configH.Get)
	if d.Uploads != nil {
		r.Method(http.MethodGet, "/uploads/{name}", d.Uploads)
	}

	r.Post("/register", authH.Register)
	r.Post("/login", authH.Login)
	r.Post("/logout", authH.Logout)
	r.Get("/logout", authH.Logout)
	r.Get("/profile/{username}", profileH.View)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(denyAnonymous))

		r.Route("/chat", func(r chi.Router) {
			r.Get("/channels", chatH.Channels)
			r.Get("/channels/search", chatH.SearchChannels)
			r.Post("/channels/create", chatH.CreateChannel)
			r.Post("/channels/{id}/edit", chatH.RenameChannel)
			r.Post("/channels/{id}/delete", chatH.DeleteChannel)
			r.Delete("/channels/{id}/delete", chatH.DeleteChannel)

			r.Get("/messages", chatH.Messages)
			r.Post("/send", chatH.Send)
			r.Post("/messages/{id}/edit", chatH.EditMessage)
			r.Put("/messages/{id}/edit", chatH.EditMessage)
			r.Post("/messages/{id}/delete", chatH.DeleteMessage)
			r.Delete("/messages/{id}/delete", chatH.DeleteMessage)
			r.Post("/messages/{id}/reaction", chatH.ToggleReaction)
			r.Get("/messages/{id}/reactions", chatH.Reactions)
			r.Get("/search", chatH.SearchMessages)
		})

		r.Post("/profile/edit", profileH.Edit)
		r.Post("/api/push/subscribe", pushH.Subscribe)
		r.Delete("/api/push/subscribe", pushH.Unsubscribe)
		r.Get("/ws", wsH.ServeWS)
	})

	if d.Static != nil {
		r.Handle("/*", d.Static)
	}
	return r
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
