package medication

import (
	"sort"
	"strings"
	"time"
)

type DoseStatus string

const (
	DosePending DoseStatus = "pending"
	DoseTaken   DoseStatus = "taken"
	DoseMissed  DoseStatus = "missed"
)

type RuleKind string

const (
	RuleDaily        RuleKind = "daily"
	RuleSpecificDays RuleKind = "specific_days"
	RuleInterval     RuleKind = "interval"
)

// Rule is a tagged recurrence variant. Days is set only for specific_days,
// IntervalDays only for interval.
type Rule struct {
	Kind         RuleKind       `json:"kind"`
	Days         []time.Weekday `json:"days,omitempty"`
	IntervalDays int            `json:"interval_days,omitempty"`
}

// Medication is owned by the local store. Records are never hard-deleted from
// history: deleting one removes it from the scheduling set, but dose events
// that reference it stay behind.
type Medication struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Dosage    string    `json:"dosage"`
	Times     []string  `json:"times"` // "HH:MM", unique
	Rule      Rule      `json:"rule"`
	StartDate time.Time `json:"start_date"`
	Notes     string    `json:"notes,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// DoseEvent records one dose being taken or missed. MedicationName carries a
// name+dosage snapshot frozen at creation so later medication edits do not
// rewrite history.
type DoseEvent struct {
	ID             string     `json:"id"`
	MedicationID   string     `json:"medication_id"`
	MedicationName string     `json:"medication_name"`
	ScheduledAt    time.Time  `json:"scheduled_at"`
	TakenAt        *time.Time `json:"taken_at"`
	Status         DoseStatus `json:"status"`
	Notes          string     `json:"notes,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Snapshot builds the denormalized medication label stored on dose events.
func Snapshot(m Medication) string {
	return strings.TrimSpace(m.Name + " " + m.Dosage)
}

// MarkTaken transitions a pending event to taken at the given instant.
func (e *DoseEvent) MarkTaken(at time.Time) {
	e.Status = DoseTaken
	t := at
	e.TakenAt = &t
}

// MarkMissed flags the event as missed. The taken instant stays empty.
func (e *DoseEvent) MarkMissed() {
	e.Status = DoseMissed
	e.TakenAt = nil
}

// SortedTimes returns a display-sorted copy of the medication's times of day.
// Lexicographic order is chronological for fixed-width "HH:MM".
func (m Medication) SortedTimes() []string {
	out := make([]string, len(m.Times))
	copy(out, m.Times)
	sort.Strings(out)
	return out
}
