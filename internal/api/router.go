package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/convlog"
	"github.com/hackgods/clinic-appointment-booking/internal/directory"
	"github.com/hackgods/clinic-appointment-booking/internal/metrics"
	"github.com/hackgods/clinic-appointment-booking/internal/patient"
	"github.com/hackgods/clinic-appointment-booking/internal/slot"
	"github.com/hackgods/clinic-appointment-booking/internal/symptom"
)

type BookingService interface {
	Reserve(ctx context.Context, req appointment.ReserveRequest) (*appointment.Confirmation, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, date time.Time, tod slot.TimeOfDay) (*appointment.Appointment, error)
	BlockSlot(ctx context.Context, key slot.Key, reason string) error
	UnblockSlot(ctx context.Context, key slot.Key) error
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	GetBySerial(ctx context.Context, serial string) (*appointment.Appointment, error)
	ListByPatientPhone(ctx context.Context, phone string, limit, offset int) ([]appointment.Appointment, error)
	ListByProviderDate(ctx context.Context, providerID uuid.UUID, date time.Time) ([]appointment.Appointment, error)
	Stats(ctx context.Context) (*appointment.Stats, error)
}

type DirectoryService interface {
	CreateSpecialty(ctx context.Context, sp directory.Specialty) (*directory.Specialty, error)
	GetSpecialty(ctx context.Context, name string) (*directory.Specialty, error)
	ListSpecialties(ctx context.Context) ([]directory.Specialty, error)
	CreateProvider(ctx context.Context, p directory.Provider) (*directory.Provider, error)
	UpdateProvider(ctx context.Context, p directory.Provider) (*directory.Provider, error)
	GetProvider(ctx context.Context, id uuid.UUID) (*directory.Provider, error)
	ListProviders(ctx context.Context, specialty string) ([]directory.Provider, error)
	AddRule(ctx context.Context, r directory.Rule) (*directory.Rule, error)
	SetRuleActive(ctx context.Context, id int64, active bool) (*directory.Rule, error)
	ListRules(ctx context.Context, providerID uuid.UUID, activeOnly bool) ([]directory.Rule, error)
}

type AvailabilityService interface {
	ListAvailableSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]slot.Slot, error)
	Today() time.Time
}

type SymptomService interface {
	Resolve(text string) []symptom.Match
	Assess(text string) symptom.Urgency
}

type PatientService interface {
	FindOrCreate(ctx context.Context, p patient.Patient) (*patient.Patient, error)
}

type ConversationService interface {
	Append(ctx context.Context, e convlog.Entry) (*convlog.Entry, error)
	List(ctx context.Context, contactPhone string, limit int) ([]convlog.Entry, error)
}

// Pinger is satisfied by *pgxpool.Pool and the Redis locker.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Booking       BookingService
	Directory     DirectoryService
	Availability  AvailabilityService
	Symptoms      SymptomService
	Patients      PatientService
	Conversations ConversationService

	Postgres Pinger
	Redis    Pinger

	Metrics        *metrics.BookingMetrics
	MetricsHandler http.Handler
	Logger         zerolog.Logger

	DefaultWindowDays int
	Env               string
	Version           string
}

type Handler struct {
	booking       BookingService
	directory     DirectoryService
	availability  AvailabilityService
	symptoms      SymptomService
	patients      PatientService
	conversations ConversationService
	windowDays    int
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.DefaultWindowDays <= 0 {
		cfg.DefaultWindowDays = 7
	}
	h := &Handler{
		booking:       cfg.Booking,
		directory:     cfg.Directory,
		availability:  cfg.Availability,
		symptoms:      cfg.Symptoms,
		patients:      cfg.Patients,
		conversations: cfg.Conversations,
		windowDays:    cfg.DefaultWindowDays,
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Metrics))
	r.Use(RecoverMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	// Directory
	r.Get("/specialties", h.listSpecialties)
	r.Post("/specialties", h.createSpecialty)
	r.Get("/specialties/{name}", h.getSpecialty)
	r.Route("/providers", func(r chi.Router) {
		r.Get("/", h.listProviders)
		r.Post("/", h.createProvider)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getProvider)
			r.Put("/", h.updateProvider)
			r.Get("/rules", h.listRules)
			r.Post("/rules", h.addRule)
			r.Get("/slots", h.listSlots)
			r.Post("/blocks", h.blockSlot)
			r.Delete("/blocks", h.unblockSlot)
			r.Get("/appointments", h.listProviderAppointments)
		})
	})
	r.Post("/rules/{ruleID}/activate", h.setRuleActive(true))
	r.Post("/rules/{ruleID}/deactivate", h.setRuleActive(false))

	// Symptoms and patients
	r.Post("/symptoms/resolve", h.resolveSymptoms)
	r.Post("/patients", h.findOrCreatePatient)
	r.Get("/patients/{phone}/appointments", h.listPatientAppointments)

	// Appointment endpoints
	r.Post("/appointments", h.reserve)
	r.Get("/appointments/serial/{serial}", h.getAppointmentBySerial)
	r.Get("/appointments/{id}", h.getAppointment)
	r.Post("/appointments/{id}/cancel", h.cancelAppointment)
	r.Post("/appointments/{id}/reschedule", h.rescheduleAppointment)
	r.Get("/stats", h.stats)

	// Conversation log
	r.Post("/conversations", h.appendConversation)
	r.Get("/conversations/{phone}", h.listConversation)

	return r
}
