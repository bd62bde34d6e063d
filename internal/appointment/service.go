package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/clinic-appointment-booking/internal/apperr"
	"github.com/hackgods/clinic-appointment-booking/internal/directory"
	"github.com/hackgods/clinic-appointment-booking/internal/metrics"
	"github.com/hackgods/clinic-appointment-booking/internal/patient"
	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
	"github.com/hackgods/clinic-appointment-booking/internal/slot"
)

var tracer = otel.Tracer("clinic/appointment")

// Bookability is the advisory pre-check run before a claim.
type Bookability interface {
	CheckBookable(ctx context.Context, key slot.Key) error
}

type Providers interface {
	GetProvider(ctx context.Context, id uuid.UUID) (*directory.Provider, error)
	ProviderWithInstructions(ctx context.Context, id uuid.UUID) (*directory.Provider, string, error)
}

type Patients interface {
	Get(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
	GetByPhone(ctx context.Context, phone string) (*patient.Patient, error)
}

type Options struct {
	SlotDuration time.Duration
	Metrics      *metrics.BookingMetrics
	Logger       zerolog.Logger
}

type Service struct {
	store     Store
	bookable  Bookability
	providers Providers
	patients  Patients
	locker    redisclient.Locker
	metrics   *metrics.BookingMetrics
	logger    zerolog.Logger
	duration  int
}

// NewService wires the booking core. locker may be nil when a single process owns the
// database, in which case row locks alone serialize cancel and reschedule.
func NewService(store Store, bookable Bookability, providers Providers, patients Patients, locker redisclient.Locker, opts Options) *Service {
	if opts.SlotDuration <= 0 {
		opts.SlotDuration = 30 * time.Minute
	}
	return &Service{
		store:     store,
		bookable:  bookable,
		providers: providers,
		patients:  patients,
		locker:    locker,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		duration:  int(opts.SlotDuration / time.Minute),
	}
}

// Reserve books one slot for a patient. Exactly one of any number of concurrent reserves
// for the same slot succeeds; the others get a Conflict.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (conf *Confirmation, err error) {
	key := slot.NewKey(req.ProviderID, req.Date, req.Time)

	ctx, span := tracer.Start(ctx, "appointment.Reserve", trace.WithAttributes(
		attribute.String("slot.key", key.String()),
		attribute.String("booking.channel", string(req.Channel)),
	))
	defer span.End()
	defer s.observe(span, "reserve", string(req.Channel), time.Now(), &err)

	if !req.Channel.Valid() {
		return nil, apperr.Invalid("unknown booking channel %q", req.Channel)
	}
	if _, err := s.patients.Get(ctx, req.PatientID); err != nil {
		return nil, fmt.Errorf("reserve: %w", err)
	}
	if err := s.bookable.CheckBookable(ctx, key); err != nil {
		return nil, fmt.Errorf("reserve: %w", err)
	}
	provider, instructions, err := s.providers.ProviderWithInstructions(ctx, req.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("reserve: %w", err)
	}

	appt, err := s.store.Book(ctx, BookParams{
		Key:             key,
		PatientID:       req.PatientID,
		DurationMinutes: s.duration,
		Symptoms:        strings.TrimSpace(req.Symptoms),
		Channel:         req.Channel,
	})
	if err != nil {
		return nil, fmt.Errorf("reserve: %w", err)
	}

	span.SetAttributes(attribute.String("appointment.serial", appt.SerialNumber))
	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("serial", appt.SerialNumber).
		Str("slot", key.String()).
		Str("channel", string(req.Channel)).
		Msg("appointment booked")

	return &Confirmation{
		Appointment:          *appt,
		ProviderName:         provider.Name,
		Specialty:            provider.Specialty,
		PreVisitInstructions: instructions,
	}, nil
}

// Cancel moves a scheduled appointment to cancelled and frees its slot.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (appt *Appointment, err error) {
	ctx, span := tracer.Start(ctx, "appointment.Cancel", trace.WithAttributes(
		attribute.String("appointment.id", id.String()),
	))
	defer span.End()
	defer s.observe(span, "cancel", "", time.Now(), &err)

	err = s.withLock(ctx, id, func(ctx context.Context) error {
		var err error
		appt, err = s.store.Cancel(ctx, id, reason)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("cancel: %w", err)
	}

	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("serial", appt.SerialNumber).
		Msg("appointment cancelled")
	return appt, nil
}

// Reschedule moves a scheduled appointment to another slot of the same provider, keeping
// its serial number.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, date time.Time, tod slot.TimeOfDay) (appt *Appointment, err error) {
	ctx, span := tracer.Start(ctx, "appointment.Reschedule", trace.WithAttributes(
		attribute.String("appointment.id", id.String()),
	))
	defer span.End()
	defer s.observe(span, "reschedule", "", time.Now(), &err)

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reschedule: %w", err)
	}
	if current.Status.Terminal() {
		return nil, fmt.Errorf("reschedule: %w", ErrAppointmentTerminal)
	}

	target := slot.NewKey(current.ProviderID, date, tod)
	if target == current.Key() {
		return nil, fmt.Errorf("reschedule: %w", apperr.Invalid("appointment already occupies %s", target))
	}
	if err := s.bookable.CheckBookable(ctx, target); err != nil {
		return nil, fmt.Errorf("reschedule: %w", err)
	}

	err = s.withLock(ctx, id, func(ctx context.Context) error {
		var err error
		appt, err = s.store.Reschedule(ctx, id, target)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reschedule: %w", err)
	}

	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("from", current.Key().String()).
		Str("to", target.String()).
		Msg("appointment rescheduled")
	return appt, nil
}

// BlockSlot holds a slot so it cannot be reserved. Booked slots cannot be blocked.
func (s *Service) BlockSlot(ctx context.Context, key slot.Key, reason string) (err error) {
	ctx, span := tracer.Start(ctx, "appointment.BlockSlot")
	defer span.End()
	defer s.observe(span, "block", "", time.Now(), &err)

	if err := s.validateKey(ctx, key); err != nil {
		return fmt.Errorf("block slot: %w", err)
	}
	if err := s.store.BlockSlot(ctx, key, strings.TrimSpace(reason)); err != nil {
		return fmt.Errorf("block slot: %w", err)
	}
	s.logger.Info().Str("slot", key.String()).Str("reason", reason).Msg("slot blocked")
	return nil
}

func (s *Service) UnblockSlot(ctx context.Context, key slot.Key) (err error) {
	ctx, span := tracer.Start(ctx, "appointment.UnblockSlot")
	defer span.End()
	defer s.observe(span, "unblock", "", time.Now(), &err)

	if err := s.validateKey(ctx, key); err != nil {
		return fmt.Errorf("unblock slot: %w", err)
	}
	if err := s.store.UnblockSlot(ctx, key); err != nil {
		return fmt.Errorf("unblock slot: %w", err)
	}
	s.logger.Info().Str("slot", key.String()).Msg("slot unblocked")
	return nil
}

func (s *Service) validateKey(ctx context.Context, key slot.Key) error {
	if !key.Time.Valid() {
		return apperr.Invalid("time %d is outside a day", int(key.Time))
	}
	_, err := s.providers.GetProvider(ctx, key.ProviderID)
	return err
}

// Queries

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) GetBySerial(ctx context.Context, serial string) (*Appointment, error) {
	serial = strings.ToUpper(strings.TrimSpace(serial))
	if serial == "" {
		return nil, apperr.Invalid("serial number is required")
	}
	return s.store.GetBySerial(ctx, serial)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.store.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

// ListByPatientPhone is the lookup channel adapters use when a caller identifies by phone.
func (s *Service) ListByPatientPhone(ctx context.Context, phone string, limit, offset int) ([]Appointment, error) {
	p, err := s.patients.GetByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("list appointments by phone: %w", err)
	}
	return s.ListByPatient(ctx, p.ID, limit, offset)
}

func (s *Service) ListByProviderDate(ctx context.Context, providerID uuid.UUID, date time.Time) ([]Appointment, error) {
	if _, err := s.providers.GetProvider(ctx, providerID); err != nil {
		return nil, err
	}
	appointments, err := s.store.ListByProviderDate(ctx, providerID, date)
	if err != nil {
		return nil, fmt.Errorf("list appointments by provider: %w", err)
	}
	return appointments, nil
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.store.Stats(ctx)
}

func (s *Service) withLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithAppointmentLock(ctx, id, fn)
}

// observe records the outcome of one operation. Conflicts and rejected requests are normal
// traffic and are not logged as errors.
func (s *Service) observe(span trace.Span, op, channel string, start time.Time, errp *error) {
	err := *errp
	outcome := metrics.OutcomeSuccess

	switch kind := apperr.Kind(err); {
	case err == nil:
	case errors.Is(kind, apperr.ErrConflict):
		outcome = metrics.OutcomeConflict
		s.logger.Info().Str("operation", op).Str("channel", channel).Err(err).Msg("slot conflict")
	case kind != nil && !errors.Is(kind, apperr.ErrStorageUnavailable):
		outcome = metrics.OutcomeRejected
		s.logger.Debug().Str("operation", op).Err(err).Msg("request rejected")
	default:
		outcome = metrics.OutcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error().Str("operation", op).Err(err).Msg("booking operation failed")
	}

	span.SetAttributes(attribute.String("booking.outcome", outcome))
	s.metrics.ObserveOperation(op, channel, outcome, time.Since(start))
}
