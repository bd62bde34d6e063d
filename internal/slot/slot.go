// Package slot defines the identity and state of a single bookable unit.
package slot

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hackgods/clinic-appointment-booking/internal/apperr"
)

type Status string

const (
	StatusFree    Status = "free"
	StatusBlocked Status = "blocked"
	StatusBooked  Status = "booked"
)

const dateLayout = "2006-01-02"

// TimeOfDay is minutes since midnight in the facility's local time.
type TimeOfDay int

const minutesPerDay = 24 * 60

// ParseTimeOfDay accepts "HH:MM" (and tolerates a trailing ":SS" from Postgres TIME columns).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if len(s) > 5 && s[5] == ':' {
		s = s[:5]
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, apperr.Invalid("time %q must be HH:MM", s)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) Valid() bool { return t >= 0 && t < minutesPerDay }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// PG converts to the pgx representation of a TIME column.
func (t TimeOfDay) PG() pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * int64(time.Minute/time.Microsecond), Valid: true}
}

// FromPG converts a scanned TIME column back to a TimeOfDay, dropping seconds.
func FromPG(v pgtype.Time) TimeOfDay {
	if !v.Valid {
		return 0
	}
	return TimeOfDay(v.Microseconds / int64(time.Minute/time.Microsecond))
}

// ParseDate parses YYYY-MM-DD into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, apperr.Invalid("date %q must be YYYY-MM-DD", s)
	}
	return d, nil
}

// Date truncates t to its calendar date (in t's location) expressed as midnight UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func FormatDate(d time.Time) string { return d.Format(dateLayout) }

// Key is the globally unique identity of a slot.
type Key struct {
	ProviderID uuid.UUID
	Date       time.Time
	Time       TimeOfDay
}

func NewKey(providerID uuid.UUID, date time.Time, tod TimeOfDay) Key {
	return Key{ProviderID: providerID, Date: Date(date), Time: tod}
}

// Start is the instant the slot begins in loc.
func (k Key) Start(loc *time.Location) time.Time {
	y, m, d := k.Date.Date()
	return time.Date(y, m, d, k.Time.Hour(), k.Time.Minute(), 0, 0, loc)
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.ProviderID, FormatDate(k.Date), k.Time)
}

type Slot struct {
	Key
	Duration time.Duration
	Status   Status
}

// State is a persisted non-free slot status.
type State struct {
	Key    Key
	Status Status
}
