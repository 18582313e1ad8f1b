package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/auth"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/capture"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/dog"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/journal"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/ledger"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/listing"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/obs"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/resolution"
)

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	LoginAdmin(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (auth.Principal, error)
}

type dogService interface {
	Create(ctx context.Context, params dog.CreateParams) (dog.Record, error)
	Get(ctx context.Context, id string) (dog.Record, error)
	Transition(ctx context.Context, params dog.TransitionParams) (dog.Record, error)
}

type listingService interface {
	Query(ctx context.Context, q listing.Query) ([]listing.Entry, error)
}

type requestService interface {
	Submit(ctx context.Context, params ledger.SubmitParams) (ledger.Record, error)
	ListForDog(ctx context.Context, dogID string, kind *ledger.Kind) ([]ledger.Record, error)
	ListForUser(ctx context.Context, userID string, kind *ledger.Kind) ([]ledger.Record, error)
}

type resolver interface {
	Resolve(ctx context.Context, params resolution.ResolveParams) (resolution.Outcome, error)
}

type captureService interface {
	File(ctx context.Context, params capture.FileParams) (capture.Record, error)
	Resolve(ctx context.Context, params capture.ResolveParams) (capture.Record, error)
	ListForUser(ctx context.Context, userID string) ([]capture.Record, error)
	ListAll(ctx context.Context, status capture.Status) ([]capture.Record, error)
}

type historyReader interface {
	DogHistory(ctx context.Context, dogID string) ([]journal.Event, error)
}

// Server wires HTTP handlers to the domain services.
type Server struct {
	authService    authService
	dogService     dogService
	listingService listingService
	requestService requestService
	resolver       resolver
	captureService captureService
	history        historyReader
	logger         *obs.Logger
	ready          func(ctx context.Context) error
	now            func() time.Time
}

type ctxKey int

const ctxKeyPrincipal ctxKey = iota

func principalFrom(ctx context.Context) auth.Principal {
	p, _ := ctx.Value(ctxKeyPrincipal).(auth.Principal)
	return p
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/admin/login", s.handleAdminLogin)

		r.Get("/dogs", s.handleListDogs)
		r.Get("/dogs/{dogID}", s.handleGetDog)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Use(s.require(auth.RequireUser))

			r.Post("/dogs/{dogID}/requests", s.handleSubmitRequest)
			r.Get("/me/requests", s.handleMyRequests)
			r.Post("/captures", s.handleFileCapture)
			r.Get("/me/captures", s.handleMyCaptures)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Use(s.require(auth.RequireAdmin))

			r.Post("/admin/dogs", s.handleIntake)
			r.Post("/admin/dogs/{dogID}/status", s.handleTransition)
			r.Get("/admin/dogs/{dogID}/history", s.handleDogHistory)
			r.Get("/dogs/{dogID}/requests", s.handleDogRequests)
			r.Post("/admin/requests/{requestID}/resolve", s.handleResolve)
			r.Get("/admin/captures", s.handleAdminCaptures)
			r.Post("/admin/captures/{captureID}/resolve", s.handleResolveCapture)
		})
	})
	return r
}

// requestLogger logs method, path, status and latency for every request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info(map[string]any{
			"op":          "http",
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		})
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing bearer token")
			return
		}
		p, err := s.authService.VerifyToken(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyPrincipal, p)))
	})
}

func (s *Server) require(gate func(auth.Principal) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := gate(principalFrom(r.Context())); err != nil {
				s.fail(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, codeInternalError, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}
