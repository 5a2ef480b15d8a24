package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/neveront/medtenance/internal/medication"
	"github.com/neveront/medtenance/internal/schedule"
	"github.com/neveront/medtenance/internal/store"
)

// seed fills a local data directory with a plausible medication cabinet and
// two weeks of dose history, so the schedule and adherence endpoints have
// something to show in dev.
func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("logger init error: " + err.Error())
	}
	defer logger.Sync()

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}

	gofakeit.Seed(time.Now().UnixNano())

	slots, err := store.NewFileSlots(dataDir)
	if err != nil {
		logger.Fatal("local slots error", zap.Error(err))
	}
	local := store.New(slots, logger.Named("store"))

	ctx := context.Background()

	meds := fakeMedications()
	if err := local.SaveMedications(ctx, meds); err != nil {
		logger.Fatal("seed medications", zap.Error(err))
	}
	logger.Info("medications seeded", zap.Int("count", len(meds)))

	events := fakeHistory(meds, 14)
	if err := local.SaveDoseEvents(ctx, events); err != nil {
		logger.Fatal("seed dose events", zap.Error(err))
	}
	logger.Info("dose history seeded", zap.Int("count", len(events)), zap.String("data_dir", dataDir))
}

var cabinet = []struct {
	name   string
	dosage string
	times  []string
}{
	{"Metformin", "500mg", []string{"08:00", "20:00"}},
	{"Lisinopril", "10mg", []string{"08:00"}},
	{"Atorvastatin", "20mg", []string{"21:00"}},
	{"Levothyroxine", "75mcg", []string{"07:00"}},
	{"Omeprazole", "20mg", []string{"07:30"}},
	{"Vitamin D3", "2000 IU", []string{"12:00"}},
	{"Sertraline", "50mg", []string{"09:00"}},
	{"Amlodipine", "5mg", []string{"08:30"}},
}

func fakeMedications() []medication.Medication {
	start := schedule.StartOfDay(time.Now()).AddDate(0, 0, -21)

	count := gofakeit.Number(4, len(cabinet))
	meds := make([]medication.Medication, 0, count)
	for i := 0; i < count; i++ {
		entry := cabinet[i]

		rule := medication.Rule{Kind: medication.RuleDaily}
		switch gofakeit.Number(0, 3) {
		case 1:
			rule = medication.Rule{
				Kind: medication.RuleSpecificDays,
				Days: []time.Weekday{time.Monday, time.Wednesday, time.Friday},
			}
		case 2:
			rule = medication.Rule{
				Kind:         medication.RuleInterval,
				IntervalDays: gofakeit.Number(2, 4),
			}
		}

		meds = append(meds, medication.Medication{
			ID:        uuid.NewString(),
			Name:      entry.name,
			Dosage:    entry.dosage,
			Times:     entry.times,
			Rule:      rule,
			StartDate: start.AddDate(0, 0, gofakeit.Number(0, 7)),
			Notes:     gofakeit.Sentence(6),
			Active:    true,
			CreatedAt: start,
		})
	}
	return meds
}

// fakeHistory logs roughly four out of five due doses as taken a few minutes
// late, and one in ten as missed, over the trailing days.
func fakeHistory(meds []medication.Medication, days int) []medication.DoseEvent {
	var events []medication.DoseEvent
	today := schedule.StartOfDay(time.Now())

	for i := days; i >= 1; i-- {
		day := today.AddDate(0, 0, -i)
		for _, slot := range schedule.ForDate(meds, nil, day) {
			roll := gofakeit.Number(1, 10)
			if roll > 9 {
				continue // never logged, stays pending
			}

			scheduledAt := slotInstant(day, slot.Time)
			ev := medication.DoseEvent{
				ID:             uuid.NewString(),
				MedicationID:   slot.Medication.ID,
				MedicationName: medication.Snapshot(slot.Medication),
				ScheduledAt:    scheduledAt,
				Status:         medication.DoseMissed,
				CreatedAt:      scheduledAt,
			}
			if roll <= 8 {
				ev.MarkTaken(scheduledAt.Add(time.Duration(gofakeit.Number(1, 25)) * time.Minute))
			}
			events = append(events, ev)
		}
	}
	return events
}

func slotInstant(day time.Time, hhmm string) time.Time {
	hour := int(hhmm[0]-'0')*10 + int(hhmm[1]-'0')
	minute := int(hhmm[3]-'0')*10 + int(hhmm[4]-'0')
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, day.Location())
}
