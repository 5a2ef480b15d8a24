package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/neveront/medtenance/internal/medication"
	"github.com/neveront/medtenance/internal/schedule"
)

var (
	ErrDuplicateID = errors.New("duplicate record id")
)

// LocalStore is the sole local source of truth. Reads reconstruct defensive
// copies from the serialized form; mutations are whole-collection
// read-modify-write, durable only once the slot write returns. A failed write
// leaves the previous document in place.
type LocalStore struct {
	slots  Slots
	logger *zap.Logger

	mu     sync.Mutex // serializes read-modify-write cycles in this process
	hookMu sync.Mutex
	hooks  []func()
}

func New(slots Slots, logger *zap.Logger) *LocalStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalStore{slots: slots, logger: logger}
}

// OnMedicationsChanged registers a hook invoked after every successful
// medication mutation. Hooks run on their own goroutine so the mutating
// caller returns without waiting on them; a reader re-querying medications
// immediately sees the new state, while side effects (reminder re-projection)
// catch up asynchronously.
func (s *LocalStore) OnMedicationsChanged(fn func()) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *LocalStore) notifyMedicationsChanged() {
	s.hookMu.Lock()
	hooks := make([]func(), len(s.hooks))
	copy(hooks, s.hooks)
	s.hookMu.Unlock()

	s.logger.Debug("medications changed", zap.Int("hooks", len(hooks)))
	for _, fn := range hooks {
		go fn()
	}
}

// Medications

func (s *LocalStore) Medications(ctx context.Context) ([]medication.Medication, error) {
	data, err := s.slots.Get(ctx, SlotMedications)
	if err != nil {
		return nil, fmt.Errorf("load medications: %w", err)
	}
	if data == nil {
		return []medication.Medication{}, nil
	}
	var meds []medication.Medication
	if err := json.Unmarshal(data, &meds); err != nil {
		return nil, fmt.Errorf("decode medications: %w", err)
	}
	return meds, nil
}

// SaveMedications replaces the whole collection. Every record is validated
// and the serialized document must round-trip before the slot is written.
func (s *LocalStore) SaveMedications(ctx context.Context, meds []medication.Medication) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeMedications(ctx, meds); err != nil {
		return err
	}
	s.notifyMedicationsChanged()
	return nil
}

func (s *LocalStore) writeMedications(ctx context.Context, meds []medication.Medication) error {
	seen := make(map[string]bool, len(meds))
	for _, m := range meds {
		if err := m.Validate(); err != nil {
			return err
		}
		if seen[m.ID] {
			return fmt.Errorf("%w: medication %s", ErrDuplicateID, m.ID)
		}
		seen[m.ID] = true
	}

	data, err := json.Marshal(meds)
	if err != nil {
		return fmt.Errorf("encode medications: %w", err)
	}
	var check []medication.Medication
	if err := json.Unmarshal(data, &check); err != nil {
		return fmt.Errorf("medications document does not round-trip: %w", err)
	}

	if err := s.slots.Set(ctx, SlotMedications, data); err != nil {
		return fmt.Errorf("persist medications: %w", err)
	}
	return nil
}

func (s *LocalStore) AddMedication(ctx context.Context, m medication.Medication) error {
	if err := m.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	meds, err := s.Medications(ctx)
	if err != nil {
		return err
	}
	for _, existing := range meds {
		if existing.ID == m.ID {
			return fmt.Errorf("%w: medication %s", ErrDuplicateID, m.ID)
		}
	}
	if err := s.writeMedications(ctx, append(meds, m)); err != nil {
		return err
	}
	s.notifyMedicationsChanged()
	return nil
}

// UpdateMedication replaces the record with the same id in place. The false
// return means the id is unknown; the caller decides whether that is fatal.
func (s *LocalStore) UpdateMedication(ctx context.Context, m medication.Medication) (bool, error) {
	if err := m.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	meds, err := s.Medications(ctx)
	if err != nil {
		return false, err
	}
	for i := range meds {
		if meds[i].ID == m.ID {
			meds[i] = m
			if err := s.writeMedications(ctx, meds); err != nil {
				return false, err
			}
			s.notifyMedicationsChanged()
			return true, nil
		}
	}
	return false, nil
}

// DeleteMedication removes the record from the scheduling set. Dose events
// referencing it are left untouched so history stays intact.
func (s *LocalStore) DeleteMedication(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meds, err := s.Medications(ctx)
	if err != nil {
		return false, err
	}
	kept := meds[:0]
	found := false
	for _, m := range meds {
		if m.ID == id {
			found = true
			continue
		}
		kept = append(kept, m)
	}
	if !found {
		return false, nil
	}
	if err := s.writeMedications(ctx, kept); err != nil {
		return false, err
	}
	s.notifyMedicationsChanged()
	return true, nil
}

// Dose events

func (s *LocalStore) DoseEvents(ctx context.Context) ([]medication.DoseEvent, error) {
	data, err := s.slots.Get(ctx, SlotDoseEvents)
	if err != nil {
		return nil, fmt.Errorf("load dose events: %w", err)
	}
	if data == nil {
		return []medication.DoseEvent{}, nil
	}
	var events []medication.DoseEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("decode dose events: %w", err)
	}
	return events, nil
}

func (s *LocalStore) SaveDoseEvents(ctx context.Context, events []medication.DoseEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeDoseEvents(ctx, events)
}

func (s *LocalStore) writeDoseEvents(ctx context.Context, events []medication.DoseEvent) error {
	seen := make(map[string]bool, len(events))
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			return err
		}
		if seen[ev.ID] {
			return fmt.Errorf("%w: dose event %s", ErrDuplicateID, ev.ID)
		}
		seen[ev.ID] = true
	}

	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encode dose events: %w", err)
	}
	var check []medication.DoseEvent
	if err := json.Unmarshal(data, &check); err != nil {
		return fmt.Errorf("dose events document does not round-trip: %w", err)
	}

	if err := s.slots.Set(ctx, SlotDoseEvents, data); err != nil {
		return fmt.Errorf("persist dose events: %w", err)
	}
	return nil
}

func (s *LocalStore) AddDoseEvent(ctx context.Context, ev medication.DoseEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.DoseEvents(ctx)
	if err != nil {
		return err
	}
	for _, existing := range events {
		if existing.ID == ev.ID {
			return fmt.Errorf("%w: dose event %s", ErrDuplicateID, ev.ID)
		}
	}
	return s.writeDoseEvents(ctx, append(events, ev))
}

func (s *LocalStore) UpdateDoseEvent(ctx context.Context, ev medication.DoseEvent) (bool, error) {
	if err := ev.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.DoseEvents(ctx)
	if err != nil {
		return false, err
	}
	for i := range events {
		if events[i].ID == ev.ID {
			events[i] = ev
			if err := s.writeDoseEvents(ctx, events); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

// DoseEventsByDate returns events whose scheduled instant falls on the given
// calendar date.
func (s *LocalStore) DoseEventsByDate(ctx context.Context, date time.Time) ([]medication.DoseEvent, error) {
	events, err := s.DoseEvents(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]medication.DoseEvent, 0)
	for _, ev := range events {
		if schedule.SameDay(ev.ScheduledAt, date) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Settings

func (s *LocalStore) settings(ctx context.Context) (map[string]string, error) {
	data, err := s.slots.Get(ctx, SlotSettings)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	out := make(map[string]string)
	if data == nil {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return out, nil
}

func (s *LocalStore) Setting(ctx context.Context, key string) (string, error) {
	settings, err := s.settings(ctx)
	if err != nil {
		return "", err
	}
	return settings[key], nil
}

func (s *LocalStore) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.settings(ctx)
	if err != nil {
		return err
	}
	settings[key] = value
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := s.slots.Set(ctx, SlotSettings, data); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	return nil
}

// ClearAll drops every slot. Meant for tests and local resets.
func (s *LocalStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.slots.Delete(ctx, SlotMedications, SlotDoseEvents, SlotSettings); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	return nil
}
