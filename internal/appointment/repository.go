package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/apperr"
	"github.com/hackgods/clinic-appointment-booking/internal/slot"
)

var (
	ErrSlotConflict        = fmt.Errorf("slot already claimed: %w", apperr.ErrConflict)
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", apperr.ErrNotFound)
	ErrAppointmentTerminal = fmt.Errorf("appointment is no longer scheduled: %w", apperr.ErrAlreadyTerminal)
	ErrSlotNotBlocked      = fmt.Errorf("blocked slot %w", apperr.ErrNotFound)
	ErrUnknownReference    = fmt.Errorf("patient or provider %w", apperr.ErrNotFound)
)

type BookParams struct {
	Key             slot.Key
	PatientID       uuid.UUID
	DurationMinutes int
	Symptoms        string
	Channel         Channel
}

// Store owns every write to appointments and slot state. Each mutating method is atomic:
// either all of its effects are committed or none are.
type Store interface {
	// Book claims the slot, draws the next serial and inserts a scheduled appointment.
	// A slot that is not free yields ErrSlotConflict.
	Book(ctx context.Context, p BookParams) (*Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, to slot.Key) (*Appointment, error)

	BlockSlot(ctx context.Context, key slot.Key, reason string) error
	UnblockSlot(ctx context.Context, key slot.Key) error
	// ListSlotStates returns blocked and booked slots in [from, to].
	ListSlotStates(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]slot.State, error)

	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetBySerial(ctx context.Context, serial string) (*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListByProviderDate(ctx context.Context, providerID uuid.UUID, date time.Time) ([]Appointment, error)
	Stats(ctx context.Context) (*Stats, error)
}
