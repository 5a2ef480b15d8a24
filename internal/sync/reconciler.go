package sync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/neveront/medtenance/internal/identity"
	"github.com/neveront/medtenance/internal/medication"
	"github.com/neveront/medtenance/internal/store"
)

type State string

const (
	StateIdle        State = "idle"
	StateSyncingUp   State = "syncing_up"
	StateSyncingDown State = "syncing_down"
)

var (
	ErrSyncInFlight = errors.New("sync cycle already running")
	ErrNotConnected = errors.New("remote not reachable")
)

// Connectivity is the reachability signal consumed before starting a cycle.
type Connectivity interface {
	Connected() bool
}

// Reconciler runs up-then-down sync cycles between the local store and the
// remote namespace. A single in-flight flag is the only mutual exclusion: a
// cycle requested while one runs is dropped, not queued. Cycles racing a
// concurrent local mutation may miss a just-added record; the next trigger
// catches it.
type Reconciler struct {
	local    *store.LocalStore
	remote   RemoteStore
	identity identity.Provider
	net      Connectivity
	logger   *zap.Logger

	inFlight atomic.Bool
	state    atomic.Value // State
}

func NewReconciler(local *store.LocalStore, remote RemoteStore, id identity.Provider, net Connectivity, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reconciler{
		local:    local,
		remote:   remote,
		identity: id,
		net:      net,
		logger:   logger,
	}
	r.state.Store(StateIdle)
	return r
}

func (r *Reconciler) State() State {
	return r.state.Load().(State)
}

// Sync runs one full cycle. Preconditions: connectivity is up and an identity
// is established. Any failure aborts the cycle, resets the flag, and does not
// roll back remote writes already committed; no retry is scheduled here.
func (r *Reconciler) Sync(ctx context.Context) error {
	if !r.net.Connected() {
		return ErrNotConnected
	}
	userID, err := r.identity.UserID(ctx)
	if err != nil {
		return fmt.Errorf("establish identity: %w", err)
	}

	if !r.inFlight.CompareAndSwap(false, true) {
		return ErrSyncInFlight
	}
	defer func() {
		r.state.Store(StateIdle)
		r.inFlight.Store(false)
	}()

	r.logger.Info("sync cycle starting", zap.String("user_id", userID))

	r.state.Store(StateSyncingUp)
	if err := r.syncUp(ctx, userID); err != nil {
		r.logger.Error("sync-up failed, aborting cycle", zap.Error(err))
		return fmt.Errorf("sync up: %w", err)
	}

	r.state.Store(StateSyncingDown)
	if err := r.syncDown(ctx, userID); err != nil {
		r.logger.Error("sync-down failed, aborting cycle", zap.Error(err))
		return fmt.Errorf("sync down: %w", err)
	}

	r.logger.Info("sync cycle complete", zap.String("user_id", userID))
	return nil
}

// TriggerAsync fires a cycle without blocking the caller. Expected
// precondition misses (already running, offline) are demoted to debug noise.
func (r *Reconciler) TriggerAsync(ctx context.Context, reason string) {
	go func() {
		err := r.Sync(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrSyncInFlight), errors.Is(err, ErrNotConnected):
			r.logger.Debug("sync trigger dropped", zap.String("reason", reason), zap.Error(err))
		default:
			r.logger.Warn("triggered sync failed", zap.String("reason", reason), zap.Error(err))
		}
	}()
}

// syncUp pushes every local record into the remote namespace, keyed by its
// own id. Last writer wins at whole-record granularity; no version vectors.
// Not transactional across records.
func (r *Reconciler) syncUp(ctx context.Context, userID string) error {
	meds, err := r.local.Medications(ctx)
	if err != nil {
		return err
	}
	events, err := r.local.DoseEvents(ctx)
	if err != nil {
		return err
	}

	if err := r.remote.UpsertMedications(ctx, userID, meds); err != nil {
		return err
	}
	if err := r.remote.UpsertDoseEvents(ctx, userID, events); err != nil {
		return err
	}

	r.logger.Debug("sync-up pushed local state",
		zap.Int("medications", len(meds)),
		zap.Int("dose_events", len(events)),
	)
	return nil
}

// syncDown appends remote records whose ids are absent locally. Records that
// already exist locally are never overwritten: local edits win until the next
// sync-up pushes them, which also means a remote edit to a shared id stays
// invisible here.
func (r *Reconciler) syncDown(ctx context.Context, userID string) error {
	remoteMeds, err := r.remote.FetchMedications(ctx, userID)
	if err != nil {
		return err
	}
	remoteEvents, err := r.remote.FetchDoseEvents(ctx, userID)
	if err != nil {
		return err
	}

	if len(remoteMeds) > 0 {
		localMeds, err := r.local.Medications(ctx)
		if err != nil {
			return err
		}
		merged, added := mergeMedications(localMeds, remoteMeds, r.logger)
		if added > 0 {
			if err := r.local.SaveMedications(ctx, merged); err != nil {
				return err
			}
			r.logger.Info("sync-down appended medications", zap.Int("added", added))
		}
	}

	if len(remoteEvents) > 0 {
		localEvents, err := r.local.DoseEvents(ctx)
		if err != nil {
			return err
		}
		merged, added := mergeDoseEvents(localEvents, remoteEvents)
		if added > 0 {
			if err := r.local.SaveDoseEvents(ctx, merged); err != nil {
				return err
			}
			r.logger.Info("sync-down appended dose events", zap.Int("added", added))
		}
	}

	return nil
}

func mergeMedications(local []medication.Medication, remote []medication.Medication, logger *zap.Logger) ([]medication.Medication, int) {
	known := make(map[string]bool, len(local))
	for _, m := range local {
		known[m.ID] = true
	}
	added := 0
	for _, m := range remote {
		if known[m.ID] {
			logger.Debug("sync-down skipping locally-present medication", zap.String("id", m.ID))
			continue
		}
		local = append(local, m)
		known[m.ID] = true
		added++
	}
	return local, added
}

func mergeDoseEvents(local []medication.DoseEvent, remote []medication.DoseEvent) ([]medication.DoseEvent, int) {
	known := make(map[string]bool, len(local))
	for _, ev := range local {
		known[ev.ID] = true
	}
	added := 0
	for _, ev := range remote {
		if known[ev.ID] {
			continue
		}
		local = append(local, ev)
		known[ev.ID] = true
		added++
	}
	return local, added
}
