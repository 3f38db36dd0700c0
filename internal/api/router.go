package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/metrics"
)

type RouterConfig struct {
	Service   AppointmentService
	Verifier  Verifier
	Health    *HealthHandler
	Metrics   *metrics.BookingMetrics
	Gatherer  prometheus.Gatherer // nil means the default registry
	Logger    zerolog.Logger
	JWTSecret string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Recoverer)

	// Health endpoints
	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Account verification endpoints
	r.Route("/accounts", func(r chi.Router) {
		r.Post("/verification-code", requestVerificationCodeHandler(cfg.Verifier))
		r.Post("/verify", verifyAccountHandler(cfg.Verifier))
	})

	// Appointment endpoints
	r.Route("/appointments", func(r chi.Router) {
		r.Use(Authenticate(cfg.JWTSecret))

		r.Get("/availabilities", listAvailabilityHandler(cfg.Service))

		r.Group(func(r chi.Router) {
			r.Use(RequirePatient)
			r.Post("/book", bookAppointmentHandler(cfg.Service))
			r.Get("/", listPatientAppointmentsHandler(cfg.Service))
			r.Get("/visit-history", listPatientVisitHistoryHandler(cfg.Service))
			r.Get("/visit-history/{id}", getPatientVisitHistoryHandler(cfg.Service))
			r.Get("/{id}", getPatientAppointmentHandler(cfg.Service))
			r.Patch("/{id}", updatePatientAppointmentHandler(cfg.Service))
		})

		r.Route("/staff", func(r chi.Router) {
			r.Use(RequireProfessional)
			r.Get("/", listStaffAppointmentsHandler(cfg.Service))
			r.Get("/visit-history", getStaffVisitHistoryHandler(cfg.Service))
			r.Put("/visit-history", updateStaffVisitHistoryHandler(cfg.Service))
			r.Patch("/{id}", updateStaffAppointmentHandler(cfg.Service))
		})
	})

	return r
}
