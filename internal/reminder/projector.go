// Package reminder projects medication schedules into a bounded window of
// concrete future fire instants and hands them to a notification scheduler.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/neveront/medtenance/internal/medication"
	"github.com/neveront/medtenance/internal/schedule"
	"github.com/neveront/medtenance/internal/store"
)

// DefaultWindowDays bounds how far ahead reminders are materialized.
const DefaultWindowDays = 14

// Payload is what the notification scheduler delivers when a reminder fires.
type Payload struct {
	MedicationID string `json:"medication_id"`
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Title        string `json:"title"`
	Body         string `json:"body"`
}

// Reminder is one projected fire instant with its payload.
type Reminder struct {
	FireAt  time.Time `json:"fire_at"`
	Payload Payload   `json:"payload"`
}

// Scheduler is the external notification boundary. The contract is full
// replace: CancelAll clears this app's entire pending set, then Schedule is
// called once per projected instant.
type Scheduler interface {
	CancelAll(ctx context.Context) error
	Schedule(ctx context.Context, p Payload, fireAt time.Time) error
}

// Project derives the reminder window for each active medication. It is a
// pure function of its inputs, so re-projection never depends on what was
// previously scheduled. Inactive medications produce no entry.
func Project(meds []medication.Medication, now time.Time, windowDays int) map[string][]Reminder {
	out := make(map[string][]Reminder)
	for _, med := range meds {
		if !med.Active {
			continue
		}
		instants := schedule.NextFireInstants(med.Rule, med.Times, med.StartDate, now, windowDays)
		if len(instants) == 0 {
			continue
		}
		payload := Payload{
			MedicationID: med.ID,
			Name:         med.Name,
			Dosage:       med.Dosage,
			Title:        "Medication Reminder",
			Body:         fmt.Sprintf("It's time to take your %s %s", med.Name, med.Dosage),
		}
		reminders := make([]Reminder, 0, len(instants))
		for _, at := range instants {
			reminders = append(reminders, Reminder{FireAt: at, Payload: payload})
		}
		out[med.ID] = reminders
	}
	return out
}

// Projector re-derives the notification window from the local store and
// replaces the scheduler's pending set with it.
type Projector struct {
	store      *store.LocalStore
	sched      Scheduler
	windowDays int
	logger     *zap.Logger
	now        func() time.Time
}

func NewProjector(st *store.LocalStore, sched Scheduler, windowDays int, logger *zap.Logger) *Projector {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{
		store:      st,
		sched:      sched,
		windowDays: windowDays,
		logger:     logger,
		now:        time.Now,
	}
}

// projectionLocker is implemented by schedulers shared between processes,
// where two clear-then-reschedule passes must not interleave.
type projectionLocker interface {
	WithProjectionLock(ctx context.Context, fn func(ctx context.Context) error) error
}

// Reschedule performs one clear-then-bulk-reschedule pass. It is idempotent:
// running it twice against unchanged medications produces the same pending
// set. When the scheduler exposes a projection lock, the pass runs under it;
// a pass that loses the lock is dropped, not queued.
func (p *Projector) Reschedule(ctx context.Context) error {
	if locker, ok := p.sched.(projectionLocker); ok {
		return locker.WithProjectionLock(ctx, p.reschedule)
	}
	return p.reschedule(ctx)
}

func (p *Projector) reschedule(ctx context.Context) error {
	meds, err := p.store.Medications(ctx)
	if err != nil {
		return fmt.Errorf("load medications for projection: %w", err)
	}

	projected := Project(meds, p.now(), p.windowDays)

	if err := p.sched.CancelAll(ctx); err != nil {
		return fmt.Errorf("cancel pending reminders: %w", err)
	}

	total := 0
	for _, reminders := range projected {
		for _, r := range reminders {
			if err := p.sched.Schedule(ctx, r.Payload, r.FireAt); err != nil {
				return fmt.Errorf("schedule reminder for %s: %w", r.Payload.MedicationID, err)
			}
			total++
		}
	}

	p.logger.Debug("reminders rescheduled",
		zap.Int("medications", len(projected)),
		zap.Int("reminders", total),
		zap.Int("window_days", p.windowDays),
	)
	return nil
}

// RescheduleAsync is the fire-and-forget form used as a store change hook.
func (p *Projector) RescheduleAsync() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.Reschedule(ctx); err != nil {
		if errors.Is(err, ErrProjectionBusy) {
			p.logger.Debug("reschedule already in progress, dropping trigger")
			return
		}
		p.logger.Warn("background reminder reschedule failed", zap.Error(err))
	}
}
