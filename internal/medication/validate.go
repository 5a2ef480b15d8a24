package medication

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidMedication = errors.New("invalid medication")
	ErrInvalidDoseEvent  = errors.New("invalid dose event")
)

// ValidTimeOfDay reports whether s is a well-formed 24h "HH:MM" string.
func ValidTimeOfDay(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	hour := int(s[0]-'0')*10 + int(s[1]-'0')
	minute := int(s[3]-'0')*10 + int(s[4]-'0')
	return hour <= 23 && minute <= 59
}

func (r Rule) Validate() error {
	switch r.Kind {
	case RuleDaily:
		return nil
	case RuleSpecificDays:
		if len(r.Days) == 0 {
			return fmt.Errorf("%w: specific_days rule needs at least one weekday", ErrInvalidMedication)
		}
		for _, d := range r.Days {
			if d < time.Sunday || d > time.Saturday {
				return fmt.Errorf("%w: weekday %d out of range", ErrInvalidMedication, d)
			}
		}
		return nil
	case RuleInterval:
		if r.IntervalDays < 1 {
			return fmt.Errorf("%w: interval_days must be >= 1, got %d", ErrInvalidMedication, r.IntervalDays)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown rule kind %q", ErrInvalidMedication, r.Kind)
	}
}

func (m Medication) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidMedication)
	}
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidMedication)
	}
	if len(m.Times) == 0 {
		return fmt.Errorf("%w: at least one time of day is required", ErrInvalidMedication)
	}
	seen := make(map[string]bool, len(m.Times))
	for _, t := range m.Times {
		if !ValidTimeOfDay(t) {
			return fmt.Errorf("%w: malformed time of day %q", ErrInvalidMedication, t)
		}
		if seen[t] {
			return fmt.Errorf("%w: duplicate time of day %q", ErrInvalidMedication, t)
		}
		seen[t] = true
	}
	if m.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrInvalidMedication)
	}
	return m.Rule.Validate()
}

func (e DoseEvent) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDoseEvent)
	}
	if strings.TrimSpace(e.MedicationID) == "" {
		return fmt.Errorf("%w: medication id is required", ErrInvalidDoseEvent)
	}
	if e.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduled instant is required", ErrInvalidDoseEvent)
	}
	switch e.Status {
	case DoseTaken:
		if e.TakenAt == nil {
			return fmt.Errorf("%w: taken status needs a taken instant", ErrInvalidDoseEvent)
		}
	case DosePending:
		if e.TakenAt != nil {
			return fmt.Errorf("%w: pending status cannot carry a taken instant", ErrInvalidDoseEvent)
		}
	case DoseMissed:
		// taken instant irrelevant
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidDoseEvent, e.Status)
	}
	return nil
}
