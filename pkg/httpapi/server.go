package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/idrissimart/souk/pkg/auth"
	"github.com/idrissimart/souk/pkg/chat"
	"github.com/idrissimart/souk/pkg/knowledge"
	"github.com/idrissimart/souk/pkg/otp"
)

// Server is the HTTP surface: the chatbot REST endpoints, the OTP endpoints,
// and the websocket handshake routes that hand connections to the chat hub.
type Server struct {
	router    chi.Router
	auth      auth.Authenticator
	responder *knowledge.Responder
	hub       *chat.Hub
	resolver  *chat.RoomResolver
	otp       *otp.Service
	upgrader  websocket.Upgrader
	validate  *validator.Validate
	logger    zerolog.Logger
}

type ServerConfig struct {
	Auth      auth.Authenticator
	Responder *knowledge.Responder
	Hub       *chat.Hub
	Resolver  *chat.RoomResolver
	OTP       *otp.Service
	// AllowedOrigins feeds both CORS and the websocket origin check.
	AllowedOrigins []string
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Auth == nil {
		return nil, errors.New("httpapi: authenticator is nil")
	}
	if cfg.Responder == nil {
		return nil, errors.New("httpapi: responder is nil")
	}
	if cfg.Hub == nil || cfg.Resolver == nil {
		return nil, errors.New("httpapi: chat hub and resolver are required")
	}
	if cfg.OTP == nil {
		return nil, errors.New("httpapi: otp service is nil")
	}

	s := &Server{
		auth:      cfg.Auth,
		responder: cfg.Responder,
		hub:       cfg.Hub,
		resolver:  cfg.Resolver,
		otp:       cfg.OTP,
		validate:  validator.New(),
		logger:    log.With().Str("component", "httpapi").Logger(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Post("/chatbot/message", s.handleChatbotMessage)
		r.Post("/chatbot/feedback", s.handleChatbotFeedback)
		r.Post("/otp/request", s.handleOTPRequest)
		r.Post("/otp/verify", s.handleOTPVerify)
	})
	r.Route("/ws", func(r chi.Router) {
		r.Get("/chat/{adID}", s.handleClientRoomWS)
		r.Get("/admin/{room}", s.handleAdminRoomWS)
		r.Get("/notifications", s.handleNotificationsWS)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.router = r
	return s, nil
}

// Handler exposes the mounted routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// originChecker allows same-origin handshakes plus the configured origins.
// An empty list (or "*") allows everything, matching the CORS setup.
func originChecker(allowed []string) func(*http.Request) bool {
	all := len(allowed) == 0
	set := map[string]bool{}
	for _, o := range allowed {
		if o == "*" {
			all = true
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		if all {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return set[origin]
	}
}

// identity resolves the caller, if any token was presented.
func (s *Server) identity(r *http.Request) (auth.Identity, error) {
	return s.auth.Authenticate(auth.TokenFromRequest(r))
}
