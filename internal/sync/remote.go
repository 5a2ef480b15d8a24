// Package sync reconciles the local store with a per-user remote namespace
// under an offline-first, union-by-id merge policy.
package sync

import (
	"context"
	"sync"
	"time"

	"github.com/neveront/medtenance/internal/medication"
)

// RemoteStore is the remote record boundary: two sub-collections per user
// namespace, each record keyed by its own id and stamped with a
// server-observed sync time on upsert.
type RemoteStore interface {
	UpsertMedications(ctx context.Context, userID string, meds []medication.Medication) error
	UpsertDoseEvents(ctx context.Context, userID string, events []medication.DoseEvent) error
	FetchMedications(ctx context.Context, userID string) ([]medication.Medication, error)
	FetchDoseEvents(ctx context.Context, userID string) ([]medication.DoseEvent, error)
}

// MemoryRemote is an in-process RemoteStore for tests and the simulator.
// Upserts are last-writer-wins at whole-record granularity, matching the
// Postgres implementation.
type MemoryRemote struct {
	mu     sync.RWMutex
	meds   map[string]map[string]medication.Medication
	events map[string]map[string]medication.DoseEvent
	now    func() time.Time

	SyncedAt map[string]time.Time // record id -> last upsert stamp, for assertions
}

func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{
		meds:     make(map[string]map[string]medication.Medication),
		events:   make(map[string]map[string]medication.DoseEvent),
		now:      time.Now,
		SyncedAt: make(map[string]time.Time),
	}
}

func (r *MemoryRemote) UpsertMedications(ctx context.Context, userID string, meds []medication.Medication) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.meds[userID] == nil {
		r.meds[userID] = make(map[string]medication.Medication)
	}
	for _, m := range meds {
		r.meds[userID][m.ID] = m
		r.SyncedAt[m.ID] = r.now()
	}
	return nil
}

func (r *MemoryRemote) UpsertDoseEvents(ctx context.Context, userID string, events []medication.DoseEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.events[userID] == nil {
		r.events[userID] = make(map[string]medication.DoseEvent)
	}
	for _, ev := range events {
		r.events[userID][ev.ID] = ev
		r.SyncedAt[ev.ID] = r.now()
	}
	return nil
}

func (r *MemoryRemote) FetchMedications(ctx context.Context, userID string) ([]medication.Medication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]medication.Medication, 0, len(r.meds[userID]))
	for _, m := range r.meds[userID] {
		out = append(out, m)
	}
	return out, nil
}

func (r *MemoryRemote) FetchDoseEvents(ctx context.Context, userID string) ([]medication.DoseEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]medication.DoseEvent, 0, len(r.events[userID]))
	for _, ev := range r.events[userID] {
		out = append(out, ev)
	}
	return out, nil
}
