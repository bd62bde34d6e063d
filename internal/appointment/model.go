package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/slot"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s != StatusScheduled
}

// Channel is the adapter a booking arrived through.
type Channel string

const (
	ChannelChat  Channel = "chat"
	ChannelVoice Channel = "voice"
	ChannelWeb   Channel = "web"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelChat, ChannelVoice, ChannelWeb:
		return true
	}
	return false
}

type Appointment struct {
	ID              uuid.UUID
	SerialNumber    string
	PatientID       uuid.UUID
	ProviderID      uuid.UUID
	Date            time.Time
	Time            slot.TimeOfDay
	DurationMinutes int
	Status          Status
	Symptoms        string
	Notes           string
	Channel         Channel
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a Appointment) Key() slot.Key {
	return slot.NewKey(a.ProviderID, a.Date, a.Time)
}

// Confirmation is what a channel adapter reads back to the patient after a successful reserve.
type Confirmation struct {
	Appointment
	ProviderName         string
	Specialty            string
	PreVisitInstructions string
}

type ReserveRequest struct {
	ProviderID uuid.UUID
	Date       time.Time
	Time       slot.TimeOfDay
	PatientID  uuid.UUID
	Symptoms   string
	Channel    Channel
}

type Stats struct {
	Total     int
	ByStatus  map[Status]int
	ByChannel map[Channel]int
}

// SerialFormat renders the facility sequence counter as a human-readable serial number.
type SerialFormat struct {
	Prefix string
	Width  int
}

// Format upper-cases the prefix; lookups by serial are case-insensitive.
func (f SerialFormat) Format(n int64) string {
	return fmt.Sprintf("%s%0*d", strings.ToUpper(f.Prefix), f.Width, n)
}
