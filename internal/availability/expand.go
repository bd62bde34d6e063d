// Package availability turns weekly availability rules into concrete bookable slots.
package availability

import (
	"iter"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/directory"
	"github.com/hackgods/clinic-appointment-booking/internal/slot"
)

// Window describes one expansion request. From and To are calendar dates, both inclusive.
type Window struct {
	ProviderID  uuid.UUID
	From        time.Time
	To          time.Time
	Granularity time.Duration
	Now         time.Time
	Location    *time.Location
}

// Expand yields the free slots of a provider inside w, ordered by date then time.
// Overlapping rules never yield the same instant twice, keys present in taken are skipped,
// and slots starting at or before w.Now are dropped. The returned sequence holds no state
// between iterations, so it can be ranged over again.
func Expand(w Window, rules []directory.Rule, taken map[slot.Key]slot.Status) iter.Seq[slot.Slot] {
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	step := slot.TimeOfDay(w.Granularity / time.Minute)

	byDay := make(map[time.Weekday][]directory.Rule, 7)
	for _, r := range rules {
		if !r.Active || r.ProviderID != w.ProviderID {
			continue
		}
		wd := time.Weekday(r.DayOfWeek)
		byDay[wd] = append(byDay[wd], r)
	}

	first, last := slot.Date(w.From), slot.Date(w.To)

	return func(yield func(slot.Slot) bool) {
		if step <= 0 || len(byDay) == 0 {
			return
		}
		for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
			dayRules := byDay[day.Weekday()]
			if len(dayRules) == 0 {
				continue
			}
			for _, tod := range candidateTimes(dayRules, step) {
				key := slot.Key{ProviderID: w.ProviderID, Date: day, Time: tod}
				if !key.Start(loc).After(w.Now) {
					continue
				}
				if _, ok := taken[key]; ok {
					continue
				}
				if !yield(slot.Slot{Key: key, Duration: w.Granularity, Status: slot.StatusFree}) {
					return
				}
			}
		}
	}
}

// candidateTimes merges the increments of every rule for one weekday into a sorted, deduplicated list.
func candidateTimes(rules []directory.Rule, step slot.TimeOfDay) []slot.TimeOfDay {
	var out []slot.TimeOfDay
	for _, r := range rules {
		for t := r.Start; t+step <= r.End; t += step {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
