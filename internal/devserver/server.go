// Package devserver is a local stand-in for the remote chat service. It
// implements the exact endpoint contracts the engine consumes (auth with
// HS256 token pairs, a stateful protected chat path and a stateless
// anonymous one) so the client can be developed and integration-tested
// without the real backend. Replies are canned; it is not an inference
// server.
package devserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/avelin/chatter/internal/security"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds dev server settings.
type Config struct {
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type account struct {
	ID           uuid.UUID
	Email        string
	PasswordHash []byte
	FullName     string
	Company      string
	Role         string
}

// Server keeps accounts in memory; state lives for the process only.
type Server struct {
	jwtManager *security.JWTManager
	validate   *validator.Validate
	log        zerolog.Logger

	mu       sync.Mutex
	accounts map[string]*account // keyed by email
}

// New creates a dev server.
func New(cfg Config, log zerolog.Logger) *Server {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "chatter-dev-secret"
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 15 * time.Minute
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = 168 * time.Hour
	}
	return &Server{
		jwtManager: security.NewJWTManager(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		validate:   validator.New(),
		log:        log.With().Str("component", "devserver").Logger(),
		accounts:   make(map[string]*account),
	}
}

// Handler builds the HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
			r.Post("/refresh", s.handleRefresh)
			r.With(s.authenticate).Get("/me", s.handleMe)
		})
		r.Post("/chat", s.handleChatAnonymous)
		r.With(s.authenticate).Post("/chat/protected", s.handleChatProtected)
	})

	return r
}
