// Package api exposes workflows, reports and documents over HTTP.
package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/evidence"
	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/orchestrator"
	"github.com/sells-group/evidence-cli/internal/store"
	"github.com/sells-group/evidence-cli/internal/tierconfig"
)

// Store is the slice of the store the handlers read and write.
type Store interface {
	GetGeneration(ctx context.Context, id string) (*model.GenerationLog, error)
	ListDocuments(ctx context.Context, projectID string) ([]model.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	SearchDocuments(ctx context.Context, projectID, query string, limit int) ([]model.DocumentHit, error)
	GetSourcePolicy(ctx context.Context, projectID string) (*evidence.SourcePolicy, error)
	SaveSourcePolicy(ctx context.Context, p *evidence.SourcePolicy) error
}

// Ingestor stores an uploaded file.
type Ingestor interface {
	IngestReader(ctx context.Context, projectID, userID, filename string, r io.Reader) (*model.Document, error)
}

var _ Store = (store.Store)(nil)

// BreakerStates reports circuit breaker states by service.
type BreakerStates interface {
	States() map[string]string
}

// Deps are the collaborators behind the handlers. Breakers is optional.
type Deps struct {
	Workflows      *orchestrator.Workflows
	Store          Store
	Ingestor       Ingestor
	Profiles       tierconfig.Profiles
	Breakers       BreakerStates
	Metrics        Metrics
	AllowedOrigins []string
	MaxUploadBytes int64
}

// Metrics records served requests and exposes the scrape endpoint.
type Metrics interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
	Handler() http.Handler
}

type server struct {
	Deps
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps) http.Handler {
	if d.Profiles == nil {
		d.Profiles = tierconfig.DefaultProfiles()
	}
	s := &server{Deps: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/workflows", s.createWorkflow)
		r.Route("/workflows/{id}", func(r chi.Router) {
			r.Get("/", s.getWorkflow)
			r.Post("/generate", s.generate)
			r.Post("/exit", s.exit)
			r.Post("/cancel", s.cancel)
		})

		r.Get("/generations/{id}/report", s.report)

		r.Route("/projects/{project}", func(r chi.Router) {
			r.Get("/documents", s.listDocuments)
			r.Post("/documents", s.uploadDocument)
			r.Get("/documents/search", s.searchDocuments)
			r.Get("/policy", s.getPolicy)
			r.Put("/policy", s.putPolicy)
		})
		r.Delete("/documents/{id}", s.deleteDocument)
	})
	return r
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
		if s.Metrics != nil {
			var route string
			if rc := chi.RouteContext(r.Context()); rc != nil {
				route = rc.RoutePattern()
			}
			s.Metrics.ObserveRequest(r.Method, route, ww.Status(), elapsed)
		}
	})
}

type healthBody struct {
	Status    string            `json:"status"`
	Workflows int               `json:"workflows"`
	Breakers  map[string]string `json:"breakers,omitempty"`
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	body := healthBody{Status: "ok", Workflows: s.Workflows.Len()}
	if s.Breakers != nil {
		body.Breakers = s.Breakers.States()
	}
	respondJSON(w, http.StatusOK, body)
}
