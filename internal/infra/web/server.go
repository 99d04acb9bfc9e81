package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"agenthub/internal/domain/model"
	"agenthub/internal/infra/queue"
	"agenthub/internal/usecase"
)

// TaskService is the task surface the admin API exposes.
// Satisfied by *usecase.TaskUseCase.
type TaskService interface {
	Create(ctx context.Context, in usecase.CreateTaskInput) (*model.Task, error)
	Cancel(ctx context.Context, taskID string) error
	Retry(ctx context.Context, taskID string) (*model.Task, error)
	Status(ctx context.Context, taskID string) (*usecase.TaskView, error)
	Logs(ctx context.Context, taskID string, limit int) ([]*model.Log, error)
	QueueStats(ctx context.Context) (*queue.Stats, error)
	ListByAgent(ctx context.Context, agentID string, offset, limit int) ([]*model.Task, error)
}

// AgentService is the agent surface the admin API exposes.
// Satisfied by *usecase.AgentUseCase.
type AgentService interface {
	Create(ctx context.Context, in usecase.CreateAgentInput) (*model.Agent, error)
	Get(ctx context.Context, id string) (*model.Agent, error)
	List(ctx context.Context, offset, limit int) ([]*model.Agent, error)
	SetStatus(ctx context.Context, id string, status model.AgentStatus) (*model.Agent, error)
}

type Server struct {
	taskUC  TaskService
	agentUC AgentService
	auth    *AuthManager
	log     *zerolog.Logger
}

func NewServer(taskUC TaskService, agentUC AgentService, jwtSecret string, log *zerolog.Logger) *Server {
	return &Server{
		taskUC:  taskUC,
		agentUC: agentUC,
		auth:    NewAuthManager(jwtSecret, 30*time.Minute),
		log:     log,
	}
}

// Routes builds the admin API router. Everything under /api requires a
// valid admin bearer token; health and metrics stay open for probes and
// the scraper.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Route("/agents", func(r chi.Router) {
			r.Post("/", s.handleAgentCreate)
			r.Get("/", s.handleAgentList)
			r.Get("/{id}", s.handleAgentGet)
			r.Patch("/{id}/status", s.handleAgentSetStatus)
			r.Get("/{id}/tasks", s.handleAgentTasks)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.handleTaskCreate)
			r.Get("/{id}/status", s.handleTaskStatus)
			r.Get("/{id}/logs", s.handleTaskLogs)
			r.Post("/{id}/cancel", s.handleTaskCancel)
			r.Post("/{id}/retry", s.handleTaskRetry)
		})

		r.Get("/queue/stats", s.handleQueueStats)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
