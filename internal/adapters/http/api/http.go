// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/okian/clicker/internal/adapters/fanout"
	"github.com/okian/clicker/internal/domain/dedupe"
	"github.com/okian/clicker/internal/domain/model"
	"github.com/okian/clicker/internal/domain/types"
	"github.com/okian/clicker/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	dedupe.Deduper

	Login(ctx context.Context, username, password string) (model.Session, error)
	CurrentUser(ctx context.Context, token string) (model.User, error)

	CreateRound(ctx context.Context, start, end *time.Time) (model.RoundView, error)
	GetRound(ctx context.Context, id string) (model.RoundView, error)
	ListRounds(ctx context.Context, q types.ListQuery) (types.Page[model.RoundView], error)
	CountRounds(ctx context.Context) (int, error)

	EnsureUserTap(ctx context.Context, userID, roundID string) (model.Tap, error)

	// SubmitTap scores one tap and waits for the outcome.
	SubmitTap(ctx context.Context, userID, roundID, echoID string) (model.TapResult, error)

	SubscribeToRound(ctx context.Context, roundID string) (*fanout.Subscription, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	authHandler   *AuthHandler
	roundsHandler *RoundsHandler
	socketHandler *SocketHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	c := newSettings(opts)
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		authHandler:   NewAuthHandler(deps, c),
		roundsHandler: NewRoundsHandler(deps, c),
		socketHandler: NewSocketHandler(deps, c),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /api/auth/login", MetricsMiddleware(s.authHandler.HandleLogin, "auth_login"))
	mux.HandleFunc("GET /api/auth/me", MetricsMiddleware(s.authHandler.HandleMe, "auth_me"))
	mux.HandleFunc("POST /api/auth/logout", MetricsMiddleware(s.authHandler.HandleLogout, "auth_logout"))

	mux.HandleFunc("GET /api/rounds", MetricsMiddleware(s.roundsHandler.HandleList, "rounds_list"))
	mux.HandleFunc("GET /api/rounds/count", MetricsMiddleware(s.roundsHandler.HandleCount, "rounds_count"))
	mux.HandleFunc("POST /api/rounds", MetricsMiddleware(s.roundsHandler.HandleCreate, "rounds_create"))
	mux.HandleFunc("POST /api/rounds/tap", MetricsMiddleware(s.roundsHandler.HandleTap, "rounds_tap"))
	mux.HandleFunc("GET /api/rounds/{id}", MetricsMiddleware(s.roundsHandler.HandleGet, "rounds_get"))
	mux.HandleFunc("GET /api/rounds/{id}/ws", MetricsMiddleware(s.socketHandler.HandleSocket, "rounds_ws"))
}

// settings are shared by all handlers.
type settings struct {
	pageSizeDefault int
	pageSizeMin     int
	pageSizeMax     int
	defaultSort     string
	validate        *validator.Validate
	logger          logger.Logger
}

// Option configures the API server.
type Option func(*settings)

// WithPageSizes sets the default and the allowed range of list page sizes.
func WithPageSizes(def, minSize, maxSize int) Option {
	return func(s *settings) {
		if minSize > 0 && maxSize >= minSize && def >= minSize && def <= maxSize {
			s.pageSizeDefault, s.pageSizeMin, s.pageSizeMax = def, minSize, maxSize
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		pageSizeDefault: 10,
		pageSizeMin:     2,
		pageSizeMax:     25,
		defaultSort:     "-start",
		validate:        newValidator(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}
	return s
}

// newValidator reports failed fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

const sessionCookie = "sessionToken"

// tokenFrom reads the session token from the cookie or a bearer header.
func tokenFrom(r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err with the status its kind maps to.
func writeError(ctx context.Context, l logger.Logger, w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		l.Error(ctx, "request failed", logger.String("code", code), logger.Error(err))
	}
	msg := http.StatusText(status)
	if status < http.StatusInternalServerError {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg, Form: formErrors(err)})
}
