package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/neveront/medtenance/internal/identity"
	"github.com/neveront/medtenance/internal/medication"
	"github.com/neveront/medtenance/internal/schedule"
	"github.com/neveront/medtenance/internal/store"
	medsync "github.com/neveront/medtenance/internal/sync"
)

// simulate runs two devices for one user against a shared in-memory remote:
// a phone that is online from the start and a tablet that comes online late.
// It demonstrates the union-by-id merge: doses logged on either device end up
// visible on both once each has completed a cycle, and local records are
// never clobbered by sync-down.
func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("logger init error: " + err.Error())
	}
	defer logger.Sync()

	gofakeit.Seed(time.Now().UnixNano())

	ctx := context.Background()
	remote := medsync.NewMemoryRemote()
	user := identity.Static("sim-user")

	phone := newDevice("phone", remote, user, logger)
	tablet := newDevice("tablet", remote, user, logger)

	// The cabinet is created on the phone only; the tablet must learn it
	// through sync.
	start := schedule.StartOfDay(time.Now()).AddDate(0, 0, -7)
	meds := []medication.Medication{
		{
			ID: uuid.NewString(), Name: "Metformin", Dosage: "500mg",
			Times:     []string{"08:00", "20:00"},
			Rule:      medication.Rule{Kind: medication.RuleInterval, IntervalDays: 2},
			StartDate: start, Active: true, CreatedAt: start,
		},
		{
			ID: uuid.NewString(), Name: "Lisinopril", Dosage: "10mg",
			Times:     []string{"09:00"},
			Rule:      medication.Rule{Kind: medication.RuleDaily},
			StartDate: start, Active: true, CreatedAt: start,
		},
	}
	if err := phone.local.SaveMedications(ctx, meds); err != nil {
		logger.Fatal("seed phone", zap.Error(err))
	}

	phone.monitor.SetOnline(true)

	for dayOffset := 7; dayOffset >= 1; dayOffset-- {
		day := schedule.StartOfDay(time.Now()).AddDate(0, 0, -dayOffset)

		// The tablet regains connectivity halfway through the week and
		// pulls the cabinet down before logging anything itself.
		if dayOffset == 4 {
			tablet.monitor.SetOnline(true)
			syncOrDie(ctx, tablet, logger)
		}

		logDay(ctx, phone, day, logger)
		if tablet.monitor.Connected() {
			logDay(ctx, tablet, day, logger)
		}

		syncOrDie(ctx, phone, logger)
		if tablet.monitor.Connected() {
			syncOrDie(ctx, tablet, logger)
		}
	}

	// One final pass each so both converge.
	syncOrDie(ctx, phone, logger)
	syncOrDie(ctx, tablet, logger)
	syncOrDie(ctx, phone, logger)

	report(ctx, phone)
	report(ctx, tablet)
}

type device struct {
	name       string
	local      *store.LocalStore
	monitor    *identity.Monitor
	reconciler *medsync.Reconciler
}

func newDevice(name string, remote medsync.RemoteStore, user identity.Static, logger *zap.Logger) *device {
	local := store.New(store.NewMemorySlots(), logger.Named(name))
	monitor := identity.NewMonitor(logger.Named(name + ".net"))
	return &device{
		name:       name,
		local:      local,
		monitor:    monitor,
		reconciler: medsync.NewReconciler(local, remote, user, monitor, logger.Named(name+".sync")),
	}
}

// logDay marks most of the day's due slots taken on this device.
func logDay(ctx context.Context, d *device, day time.Time, logger *zap.Logger) {
	meds, err := d.local.Medications(ctx)
	if err != nil {
		logger.Fatal("load medications", zap.Error(err))
	}
	events, err := d.local.DoseEvents(ctx)
	if err != nil {
		logger.Fatal("load events", zap.Error(err))
	}

	for _, slot := range schedule.ForDate(meds, events, day) {
		if slot.Status != medication.DosePending {
			continue
		}
		if gofakeit.Number(1, 10) > 8 {
			continue
		}

		hour := int(slot.Time[0]-'0')*10 + int(slot.Time[1]-'0')
		minute := int(slot.Time[3]-'0')*10 + int(slot.Time[4]-'0')
		y, m, dd := day.Date()
		scheduledAt := time.Date(y, m, dd, hour, minute, 0, 0, day.Location())

		ev := medication.DoseEvent{
			ID:             uuid.NewString(),
			MedicationID:   slot.Medication.ID,
			MedicationName: medication.Snapshot(slot.Medication),
			ScheduledAt:    scheduledAt,
			Status:         medication.DosePending,
			CreatedAt:      scheduledAt,
		}
		ev.MarkTaken(scheduledAt.Add(5 * time.Minute))

		if err := d.local.AddDoseEvent(ctx, ev); err != nil {
			logger.Fatal("log dose", zap.Error(err))
		}
	}
}

func syncOrDie(ctx context.Context, d *device, logger *zap.Logger) {
	if err := d.reconciler.Sync(ctx); err != nil {
		logger.Fatal("sync "+d.name, zap.Error(err))
	}
}

func report(ctx context.Context, d *device) {
	meds, _ := d.local.Medications(ctx)
	events, _ := d.local.DoseEvents(ctx)
	adherence := schedule.WeeklyAdherence(meds, events, time.Now().AddDate(0, 0, -1))

	fmt.Printf("%s: %d medications, %d dose events, weekly adherence %v\n",
		d.name, len(meds), len(events), adherence)
}
