package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"winova/internal/planner"
	"winova/internal/schedule"
	"winova/internal/storage"
	"winova/internal/task/scheduler"
	logx "winova/pkg/logx"
)

// Planner is the scheduling surface the handlers use.
type Planner interface {
	ScheduleAlert(ctx context.Context, spec schedule.AlertScheduleSpec) (planner.AlertResult, error)
	ScheduleReport(ctx context.Context, spec schedule.ReportScheduleSpec) (planner.ReportResult, error)
	TriggerAlertNow(ctx context.Context, spec schedule.AlertScheduleSpec) (time.Time, error)
	GenerateReportNow(ctx context.Context, spec schedule.ReportScheduleSpec) (time.Time, error)
	Cancel(ctx context.Context, ownerID, jobID string) error
	SetEnabled(ctx context.Context, ownerID, jobID string, enabled bool) error
}

// JobLister exposes the registry snapshot.
type JobLister interface {
	Snapshot() scheduler.Snapshot
}

type RouterConfig struct {
	Planner        Planner
	Jobs           JobLister
	Store          storage.Gateway
	Redis          *redis.Client // optional; only pinged by /healthz
	Log            logx.Logger
	AllowedOrigins []string

	// Profiler mounts net/http/pprof under /debug/pprof. With a token set,
	// requests need "Authorization: Bearer <token>".
	Profiler      bool
	ProfilerToken string
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Log
	if log.IsZero() {
		log = logx.Nop()
	}

	r := chi.NewRouter()
	r.Use(Recovery(log))
	r.Use(Logging(log))

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", OwnerHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	health := &healthHandler{store: cfg.Store, redis: cfg.Redis}
	alerts := &alertHandler{planner: cfg.Planner, store: cfg.Store, log: log}
	reports := &reportHandler{planner: cfg.Planner, store: cfg.Store, log: log}
	jobs := &jobHandler{planner: cfg.Planner, jobs: cfg.Jobs}

	r.Get("/healthz", health.Health)

	if cfg.Profiler {
		r.Group(func(r chi.Router) {
			if cfg.ProfilerToken != "" {
				r.Use(RequireBearer(cfg.ProfilerToken))
			}
			r.Mount("/debug", middleware.Profiler())
		})
	}

	r.Group(func(r chi.Router) {
		r.Use(RequireOwner)

		r.Route("/proactive-alerts", func(r chi.Router) {
			r.Get("/", alerts.List)
			r.Post("/schedule", alerts.Schedule)
			r.Post("/trigger-now", alerts.TriggerNow)
		})
		r.Get("/alert-schedules", alerts.ListSchedules)

		r.Route("/automated-reports", func(r chi.Router) {
			r.Get("/", reports.List)
			r.Post("/schedule", reports.Schedule)
			r.Post("/generate-now", reports.GenerateNow)
		})
		r.Get("/report-schedules", reports.ListSchedules)

		r.Route("/scheduler/jobs", func(r chi.Router) {
			r.Get("/", jobs.List)
			r.Delete("/{id}", jobs.Cancel)
			r.Put("/{id}/enabled", jobs.SetEnabled)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Success: false, Message: msg})
}
