package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neveront/medtenance/internal/medication"
)

func dailyMed(id string, times ...string) medication.Medication {
	return medication.Medication{
		ID:        id,
		Name:      "Lisinopril",
		Dosage:    "10mg",
		Times:     times,
		Rule:      medication.Rule{Kind: medication.RuleDaily},
		StartDate: date(2024, 1, 1),
		Active:    true,
	}
}

func takenEvent(id, medID string, at time.Time) medication.DoseEvent {
	ev := medication.DoseEvent{
		ID:           id,
		MedicationID: medID,
		ScheduledAt:  at,
		Status:       medication.DosePending,
	}
	ev.MarkTaken(at)
	return ev
}

func TestForDatePendingWithoutEvents(t *testing.T) {
	meds := []medication.Medication{dailyMed("med-1", "20:00", "08:00")}

	slots := ForDate(meds, nil, date(2024, 3, 10))
	require.Len(t, slots, 2)
	assert.Equal(t, "08:00", slots[0].Time, "sorted by time of day")
	assert.Equal(t, "20:00", slots[1].Time)
	for _, s := range slots {
		assert.Equal(t, medication.DosePending, s.Status)
		assert.Empty(t, s.EventID)
	}
}

func TestForDateMatchesOnNominalMinute(t *testing.T) {
	meds := []medication.Medication{dailyMed("med-1", "08:00")}

	t.Run("same minute counts", func(t *testing.T) {
		ev := takenEvent("ev-1", "med-1", time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC))
		slots := ForDate(meds, []medication.DoseEvent{ev}, date(2024, 3, 10))
		require.Len(t, slots, 1)
		assert.Equal(t, medication.DoseTaken, slots[0].Status)
		assert.Equal(t, "ev-1", slots[0].EventID)
	})

	t.Run("different minute stays pending", func(t *testing.T) {
		ev := takenEvent("ev-1", "med-1", time.Date(2024, 3, 10, 8, 5, 0, 0, time.UTC))
		slots := ForDate(meds, []medication.DoseEvent{ev}, date(2024, 3, 10))
		require.Len(t, slots, 1)
		assert.Equal(t, medication.DosePending, slots[0].Status)
	})

	t.Run("different day stays pending", func(t *testing.T) {
		ev := takenEvent("ev-1", "med-1", time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC))
		slots := ForDate(meds, []medication.DoseEvent{ev}, date(2024, 3, 10))
		require.Len(t, slots, 1)
		assert.Equal(t, medication.DosePending, slots[0].Status)
	})
}

func TestForDateFirstEventWins(t *testing.T) {
	meds := []medication.Medication{dailyMed("med-1", "08:00")}
	first := takenEvent("ev-1", "med-1", time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC))
	second := medication.DoseEvent{
		ID:           "ev-2",
		MedicationID: "med-1",
		ScheduledAt:  time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC),
		Status:       medication.DoseMissed,
	}

	slots := ForDate(meds, []medication.DoseEvent{first, second}, date(2024, 3, 10))
	require.Len(t, slots, 1)
	assert.Equal(t, "ev-1", slots[0].EventID)
	assert.Equal(t, medication.DoseTaken, slots[0].Status)
}

func TestForDateExcludesInactiveAndNotDue(t *testing.T) {
	inactive := dailyMed("med-1", "08:00")
	inactive.Active = false

	notYetStarted := dailyMed("med-2", "09:00")
	notYetStarted.StartDate = date(2024, 6, 1)

	wrongWeekday := dailyMed("med-3", "10:00")
	wrongWeekday.Rule = medication.Rule{
		Kind: medication.RuleSpecificDays,
		Days: []time.Weekday{time.Monday},
	}

	// 2024-03-10 is a Sunday.
	slots := ForDate([]medication.Medication{inactive, notYetStarted, wrongWeekday}, nil, date(2024, 3, 10))
	assert.Empty(t, slots)
}

func TestWeeklyAdherence(t *testing.T) {
	meds := []medication.Medication{dailyMed("med-1", "08:00", "20:00")}
	ref := date(2024, 3, 10)

	events := []medication.DoseEvent{
		// Both doses on the reference day.
		takenEvent("ev-1", "med-1", time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)),
		takenEvent("ev-2", "med-1", time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC)),
		// One of two the day before.
		takenEvent("ev-3", "med-1", time.Date(2024, 3, 9, 8, 10, 0, 0, time.UTC)),
	}

	got := WeeklyAdherence(meds, events, ref)
	require.Len(t, got, 7)
	assert.Equal(t, []int{0, 0, 0, 0, 0, 50, 100}, got, "oldest day first")
}

func TestWeeklyAdherenceNothingScheduled(t *testing.T) {
	got := WeeklyAdherence(nil, nil, date(2024, 3, 10))
	assert.Equal(t, []int{0, 0, 0, 0, 0, 0, 0}, got)
}

func TestWeeklyAdherenceCountsStrayTakenEvents(t *testing.T) {
	// A taken event that does not line up with any derived slot still counts
	// toward the numerator; logging history is trusted over the projection.
	meds := []medication.Medication{dailyMed("med-1", "08:00")}
	events := []medication.DoseEvent{
		takenEvent("ev-1", "med-1", time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)),
		takenEvent("ev-2", "med-other", time.Date(2024, 3, 10, 13, 0, 0, 0, time.UTC)),
	}

	got := WeeklyAdherence(meds, events, date(2024, 3, 10))
	assert.Equal(t, 200, got[6])
}

func TestSummarize(t *testing.T) {
	since := date(2024, 3, 4)
	missed := medication.DoseEvent{
		ID:           "ev-m",
		MedicationID: "med-1",
		ScheduledAt:  time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC),
		Status:       medication.DoseMissed,
	}
	events := []medication.DoseEvent{
		takenEvent("ev-1", "med-1", time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)),
		takenEvent("ev-2", "med-1", time.Date(2024, 3, 6, 8, 0, 0, 0, time.UTC)),
		missed,
		// Before the window, ignored.
		takenEvent("ev-old", "med-1", time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)),
	}

	s := Summarize(events, since)
	assert.Equal(t, Summary{Total: 3, Taken: 2, Missed: 1, Percentage: 67}, s)
}

func TestSummarizeEmpty(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil, date(2024, 3, 4)))
}

func TestPercentageRounding(t *testing.T) {
	assert.Equal(t, 0, percentage(1, 0), "zero denominator")
	assert.Equal(t, 50, percentage(1, 2))
	assert.Equal(t, 33, percentage(1, 3))
	assert.Equal(t, 67, percentage(2, 3))
	assert.Equal(t, 13, percentage(1, 8), "12.5 rounds half up")
	assert.Equal(t, 100, percentage(7, 7))
}
