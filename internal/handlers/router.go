package handlers

import (
	"net/http"

	"connect-you/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires every route onto a chi mux.
func (s *Server) NewRouter(cors *middleware.CORSConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(s.Logger, s.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cors))

	r.Get("/health", s.HandleHealth())
	r.Handle("/metrics", promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}))
	r.Get("/socket", s.HandleWebSocket())

	// Public history read and the simple send path.
	r.Get("/chats/{user1}/{user2}", s.HandleGetConversation())
	r.With(s.Auth.OptionalAuth).Post("/chats/send", s.HandleSendMessage())

	r.Group(func(r chi.Router) {
		r.Use(s.Auth.RequireAuth)

		r.Post("/send-message", s.HandleSendMessage())
		r.Get("/chats/{userId}", s.HandleListThreads())
		r.Get("/messages", s.HandleGetMessages())
		r.Put("/mark-read", s.HandleMarkRead())
		r.Get("/unread-count/{userId}", s.HandleUnreadCount())
	})

	return r
}
