package schedule

import (
	"sort"
	"time"

	"github.com/neveront/medtenance/internal/medication"
)

// Slot is an ephemeral (medication, time-of-day, date) unit with the status
// resolved from persisted dose events. It is recomputed on every read and
// never stored.
type Slot struct {
	Medication medication.Medication
	Date       time.Time
	Time       string // "HH:MM"
	Status     medication.DoseStatus
	EventID    string // empty while pending with no recorded event
}

// ForDate joins the due slots for a date against recorded dose events.
// A slot matches an event on (medication id, calendar date, hour-and-minute):
// a dose logged at 08:05 against an 08:00 slot still counts, since scheduled
// instants are nominal. Duplicate events for one key are tolerated; the first
// one wins. The result is sorted by time of day ascending.
func ForDate(meds []medication.Medication, events []medication.DoseEvent, date time.Time) []Slot {
	day := StartOfDay(date)

	slots := make([]Slot, 0)
	for _, med := range meds {
		if !med.Active {
			continue
		}
		if !IsDueOn(med.Rule, med.StartDate, day) {
			continue
		}
		for _, tod := range med.SortedTimes() {
			slot := Slot{Medication: med, Date: day, Time: tod, Status: medication.DosePending}
			for _, ev := range events {
				if matches(ev, med.ID, day, tod) {
					slot.Status = ev.Status
					slot.EventID = ev.ID
					break
				}
			}
			slots = append(slots, slot)
		}
	}

	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Time < slots[j].Time
	})
	return slots
}

func matches(ev medication.DoseEvent, medID string, day time.Time, tod string) bool {
	if ev.MedicationID != medID {
		return false
	}
	if !SameDay(ev.ScheduledAt, day) {
		return false
	}
	return ev.ScheduledAt.Format("15:04") == tod
}

// WeeklyAdherence returns seven percentages, oldest first, covering the six
// days before refDate through refDate. The denominator is the number of slots
// the recurrence engine derives for that day; the numerator counts taken
// events dated that day, whether or not each maps onto a derived slot. Days
// with nothing scheduled score 0.
func WeeklyAdherence(meds []medication.Medication, events []medication.DoseEvent, refDate time.Time) []int {
	out := make([]int, 0, 7)
	for i := 6; i >= 0; i-- {
		day := StartOfDay(refDate).AddDate(0, 0, -i)

		scheduled := 0
		for _, med := range meds {
			if med.Active && IsDueOn(med.Rule, med.StartDate, day) {
				scheduled += len(med.Times)
			}
		}

		taken := 0
		for _, ev := range events {
			if ev.Status == medication.DoseTaken && SameDay(ev.ScheduledAt, day) {
				taken++
			}
		}

		out = append(out, percentage(taken, scheduled))
	}
	return out
}

// Summary aggregates dose events scheduled at or after since.
type Summary struct {
	Total      int `json:"total"`
	Taken      int `json:"taken"`
	Missed     int `json:"missed"`
	Percentage int `json:"percentage"`
}

// Summarize tallies events from since onward into overall adherence counts.
func Summarize(events []medication.DoseEvent, since time.Time) Summary {
	var s Summary
	for _, ev := range events {
		if ev.ScheduledAt.Before(since) {
			continue
		}
		s.Total++
		switch ev.Status {
		case medication.DoseTaken:
			s.Taken++
		case medication.DoseMissed:
			s.Missed++
		}
	}
	s.Percentage = percentage(s.Taken, s.Total)
	return s
}

// percentage rounds half-up to the nearest integer, and is 0 when the
// denominator is 0.
func percentage(num, den int) int {
	if den <= 0 {
		return 0
	}
	return (num*100*2 + den) / (den * 2)
}
