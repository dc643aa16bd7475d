package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-gateway/internal/appointment"
)

type AppointmentService interface {
	ListAppointments(ctx context.Context, params appointment.QueryParams) ([]appointment.NormalizedAppointment, error)
	GetAppointmentByID(ctx context.Context, id string) (appointment.NormalizedAppointment, error)
	CreateAppointment(ctx context.Context, d appointment.Draft) (appointment.NormalizedAppointment, error)
	UpdateAppointment(ctx context.Context, id string, patch appointment.Draft) (appointment.NormalizedAppointment, error)
	DeleteAppointment(ctx context.Context, id string) error
	Invalidate()
}

// EventReader serves the audit trail of an appointment.
type EventReader interface {
	RecentEvents(ctx context.Context, appointmentID string, limit int) ([]appointment.EventLog, error)
}

type RouterConfig struct {
	Service        AppointmentService
	Events         EventReader // nil when the event log is disabled
	Backend        Pinger
	Postgres       Pinger
	Redis          *redis.Client
	Logger         *zap.Logger
	Gatherer       prometheus.Gatherer // nil serves the default registry
	AllowedOrigins []string
	RateLimit      int // requests per second per IP, 0 disables
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Clinic-ID", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	// Health endpoints
	health := NewHealthHandler(cfg.Backend, cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Appointment endpoints
	r.Route("/appointments", func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimit, time.Second))
		}
		r.Get("/", listAppointmentsHandler(cfg.Service))
		r.Post("/", createAppointmentHandler(cfg.Service))
		r.Post("/cache/invalidate", invalidateCacheHandler(cfg.Service))
		r.Get("/{id}", getAppointmentHandler(cfg.Service))
		r.Put("/{id}", updateAppointmentHandler(cfg.Service))
		r.Delete("/{id}", deleteAppointmentHandler(cfg.Service))
		r.Get("/{id}/events", appointmentEventsHandler(cfg.Events))
	})

	return r
}
