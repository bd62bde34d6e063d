package directory

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/slot"
)

type Specialty struct {
	ID                   int64
	Name                 string
	Description          string
	PreVisitInstructions string
	CreatedAt            time.Time
}

type Provider struct {
	ID        uuid.UUID
	Name      string
	Specialty string
	Phone     string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Rule is a recurring weekly availability window. DayOfWeek follows time.Weekday (0 = Sunday).
type Rule struct {
	ID         int64
	ProviderID uuid.UUID
	DayOfWeek  int
	Start      slot.TimeOfDay
	End        slot.TimeOfDay
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Covers reports whether a slot of the given length starting at tod fits inside the rule
// on one of its granularity increments.
func (r Rule) Covers(tod slot.TimeOfDay, granularity time.Duration) bool {
	step := slot.TimeOfDay(granularity / time.Minute)
	if step <= 0 || tod < r.Start || tod+step > r.End {
		return false
	}
	return (tod-r.Start)%step == 0
}

func (r Rule) validate() error {
	if r.ProviderID == uuid.Nil {
		return errInvalid("provider_id is required")
	}
	if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
		return errInvalid("day_of_week must be between 0 and 6, got %d", r.DayOfWeek)
	}
	if !r.Start.Valid() || !r.End.Valid() {
		return errInvalid("start and end must be valid times of day")
	}
	if r.End <= r.Start {
		return errInvalid("end %s must be after start %s", r.End, r.Start)
	}
	return nil
}
