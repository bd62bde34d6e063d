package availability

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/apperr"
	"github.com/hackgods/clinic-appointment-booking/internal/directory"
	"github.com/hackgods/clinic-appointment-booking/internal/slot"
)

var (
	ErrSlotBlocked = fmt.Errorf("slot is blocked: %w", apperr.ErrConflict)
	ErrSlotBooked  = fmt.Errorf("slot is already booked: %w", apperr.ErrConflict)
)

// RuleSource is the read side of the Provider Directory.
type RuleSource interface {
	GetProvider(ctx context.Context, id uuid.UUID) (*directory.Provider, error)
	ListRules(ctx context.Context, providerID uuid.UUID, activeOnly bool) ([]directory.Rule, error)
}

// SlotStateSource reports slots that are booked or blocked between two dates (inclusive).
type SlotStateSource interface {
	ListSlotStates(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]slot.State, error)
}

type Options struct {
	Granularity   time.Duration
	Location      *time.Location
	MaxWindowDays int
	Now           func() time.Time
}

// Materializer computes availability on demand from the current rules and slot states.
// Nothing is cached and nothing is locked; a slot listed as free may be claimed before
// the caller reserves it.
type Materializer struct {
	rules  RuleSource
	states SlotStateSource
	opts   Options
}

func NewMaterializer(rules RuleSource, states SlotStateSource, opts Options) *Materializer {
	if opts.Granularity <= 0 {
		opts.Granularity = 30 * time.Minute
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxWindowDays <= 0 {
		opts.MaxWindowDays = 31
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Materializer{rules: rules, states: states, opts: opts}
}

// Today is the current calendar date at the facility.
func (m *Materializer) Today() time.Time {
	return slot.Date(m.opts.Now().In(m.opts.Location))
}

// ListAvailableSlots returns the free slots of a provider between two dates, inclusive.
func (m *Materializer) ListAvailableSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]slot.Slot, error) {
	seq, err := m.Slots(ctx, providerID, from, to)
	if err != nil {
		return nil, err
	}
	return slices.Collect(seq), nil
}

// Slots loads rules and slot states once and returns a lazy sequence over the window.
func (m *Materializer) Slots(ctx context.Context, providerID uuid.UUID, from, to time.Time) (iter.Seq[slot.Slot], error) {
	from, to = slot.Date(from), slot.Date(to)
	if to.Before(from) {
		return nil, apperr.Invalid("window end %s is before start %s", slot.FormatDate(to), slot.FormatDate(from))
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > m.opts.MaxWindowDays {
		return nil, apperr.Invalid("window of %d days exceeds maximum of %d", days, m.opts.MaxWindowDays)
	}

	if _, err := m.rules.GetProvider(ctx, providerID); err != nil {
		return nil, err
	}

	rules, err := m.rules.ListRules(ctx, providerID, true)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	if len(rules) == 0 {
		return func(func(slot.Slot) bool) {}, nil
	}

	states, err := m.states.ListSlotStates(ctx, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load slot states: %w", err)
	}
	taken := make(map[slot.Key]slot.Status, len(states))
	for _, s := range states {
		if s.Status != slot.StatusFree {
			taken[s.Key] = s.Status
		}
	}

	return Expand(Window{
		ProviderID:  providerID,
		From:        from,
		To:          to,
		Granularity: m.opts.Granularity,
		Now:         m.opts.Now(),
		Location:    m.opts.Location,
	}, rules, taken), nil
}

// CheckBookable validates a reservation target against the rules as they are right now:
// the provider exists, the instant is in the future, an active rule produces it and the
// slot is not held. It is advisory; the storage claim remains the only authority.
func (m *Materializer) CheckBookable(ctx context.Context, key slot.Key) error {
	if !key.Time.Valid() {
		return apperr.Invalid("time %d is outside a day", int(key.Time))
	}
	if _, err := m.rules.GetProvider(ctx, key.ProviderID); err != nil {
		return err
	}

	if !key.Start(m.opts.Location).After(m.opts.Now()) {
		return apperr.Invalid("slot %s %s is in the past", slot.FormatDate(key.Date), key.Time)
	}

	rules, err := m.rules.ListRules(ctx, key.ProviderID, true)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	covered := slices.ContainsFunc(rules, func(r directory.Rule) bool {
		return time.Weekday(r.DayOfWeek) == key.Date.Weekday() && r.Covers(key.Time, m.opts.Granularity)
	})
	if !covered {
		return apperr.Invalid("no active availability rule offers %s at %s", slot.FormatDate(key.Date), key.Time)
	}

	states, err := m.states.ListSlotStates(ctx, key.ProviderID, key.Date, key.Date)
	if err != nil {
		return fmt.Errorf("load slot states: %w", err)
	}
	for _, s := range states {
		if s.Key != key {
			continue
		}
		switch s.Status {
		case slot.StatusBlocked:
			return ErrSlotBlocked
		case slot.StatusBooked:
			return ErrSlotBooked
		}
	}
	return nil
}
