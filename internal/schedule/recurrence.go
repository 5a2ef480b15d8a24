// Package schedule derives due dates, future fire instants, and per-day
// adherence from medication recurrence rules. Everything here is a pure
// function of its inputs; callers own all I/O.
package schedule

import (
	"sort"
	"time"

	"github.com/neveront/medtenance/internal/medication"
)

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar date,
// each judged in its own location.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// daysBetween counts whole calendar days from a to b. Civil dates are
// re-anchored in UTC so DST transitions cannot produce off-by-one days.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua) / (24 * time.Hour))
}

// IsDueOn reports whether a medication with the given rule and start date is
// due on the candidate date. Time-of-day components are ignored; the start
// date is a floor for every rule kind.
func IsDueOn(rule medication.Rule, startDate, date time.Time) bool {
	diff := daysBetween(startDate, date)
	if diff < 0 {
		return false
	}

	switch rule.Kind {
	case medication.RuleDaily:
		return true
	case medication.RuleSpecificDays:
		wd := date.Weekday()
		for _, d := range rule.Days {
			if d == wd {
				return true
			}
		}
		return false
	case medication.RuleInterval:
		if rule.IntervalDays < 1 {
			return false
		}
		return diff%rule.IntervalDays == 0
	default:
		return false
	}
}

// NextFireInstants unrolls the rule into concrete future instants, one per
// (due day, time-of-day) pair. It scans horizonDays calendar days starting at
// now's date, so sparse interval rules cost the same as daily ones, and keeps
// only instants strictly after now, in chronological order.
func NextFireInstants(rule medication.Rule, timesOfDay []string, startDate, now time.Time, horizonDays int) []time.Time {
	times := make([]string, 0, len(timesOfDay))
	for _, t := range timesOfDay {
		if medication.ValidTimeOfDay(t) {
			times = append(times, t)
		}
	}
	sort.Strings(times)

	var out []time.Time
	day := StartOfDay(now)
	for i := 0; i < horizonDays; i++ {
		if IsDueOn(rule, startDate, day) {
			for _, t := range times {
				at := atTimeOfDay(day, t)
				if at.After(now) {
					out = append(out, at)
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return out
}

func atTimeOfDay(day time.Time, hhmm string) time.Time {
	hour := int(hhmm[0]-'0')*10 + int(hhmm[1]-'0')
	minute := int(hhmm[3]-'0')*10 + int(hhmm[4]-'0')
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, day.Location())
}
