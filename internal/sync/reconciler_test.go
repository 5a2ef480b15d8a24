package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/neveront/medtenance/internal/identity"
	"github.com/neveront/medtenance/internal/medication"
	"github.com/neveront/medtenance/internal/store"
)

type fakeNet bool

func (f fakeNet) Connected() bool { return bool(f) }

// flakyRemote wraps a MemoryRemote and fails a chosen operation.
type flakyRemote struct {
	*MemoryRemote
	failUpsertEvents bool
	failFetchMeds    bool
}

var errRemoteDown = errors.New("remote down")

func (f *flakyRemote) UpsertDoseEvents(ctx context.Context, userID string, events []medication.DoseEvent) error {
	if f.failUpsertEvents {
		return errRemoteDown
	}
	return f.MemoryRemote.UpsertDoseEvents(ctx, userID, events)
}

func (f *flakyRemote) FetchMedications(ctx context.Context, userID string) ([]medication.Medication, error) {
	if f.failFetchMeds {
		return nil, errRemoteDown
	}
	return f.MemoryRemote.FetchMedications(ctx, userID)
}

func syncMedication(id, name string) medication.Medication {
	return medication.Medication{
		ID:        id,
		Name:      name,
		Dosage:    "10mg",
		Times:     []string{"09:00"},
		Rule:      medication.Rule{Kind: medication.RuleDaily},
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Active:    true,
		CreatedAt: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func syncDoseEvent(id, medID string) medication.DoseEvent {
	at := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	ev := medication.DoseEvent{
		ID:           id,
		MedicationID: medID,
		ScheduledAt:  at,
		Status:       medication.DosePending,
		CreatedAt:    at,
	}
	ev.MarkTaken(at.Add(2 * time.Minute))
	return ev
}

func newLocal(t *testing.T) *store.LocalStore {
	t.Helper()
	return store.New(store.NewMemorySlots(), zap.NewNop())
}

func TestSyncPushesLocalState(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	remote := NewMemoryRemote()
	r := NewReconciler(local, remote, identity.Static("user-1"), fakeNet(true), zap.NewNop())

	require.NoError(t, local.AddMedication(ctx, syncMedication("med-1", "Lisinopril")))
	require.NoError(t, local.AddDoseEvent(ctx, syncDoseEvent("ev-1", "med-1")))

	require.NoError(t, r.Sync(ctx))
	assert.Equal(t, StateIdle, r.State())

	meds, err := remote.FetchMedications(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, meds, 1)
	assert.Equal(t, "med-1", meds[0].ID)
	assert.False(t, remote.SyncedAt["med-1"].IsZero(), "upsert stamps a sync time")

	events, err := remote.FetchDoseEvents(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSyncDownAppendsUnknownRecords(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryRemote()
	require.NoError(t, remote.UpsertMedications(ctx, "user-1", []medication.Medication{syncMedication("med-remote", "Atorvastatin")}))
	require.NoError(t, remote.UpsertDoseEvents(ctx, "user-1", []medication.DoseEvent{syncDoseEvent("ev-remote", "med-remote")}))

	local := newLocal(t)
	require.NoError(t, local.AddMedication(ctx, syncMedication("med-local", "Lisinopril")))

	r := NewReconciler(local, remote, identity.Static("user-1"), fakeNet(true), zap.NewNop())
	require.NoError(t, r.Sync(ctx))

	meds, err := local.Medications(ctx)
	require.NoError(t, err)
	require.Len(t, meds, 2)

	events, err := local.DoseEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ev-remote", events[0].ID)
}

func TestSyncDownNeverOverwritesLocalEdits(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryRemote()
	stale := syncMedication("med-1", "Old Name")
	require.NoError(t, remote.UpsertMedications(ctx, "user-1", []medication.Medication{stale}))

	local := newLocal(t)
	edited := syncMedication("med-1", "New Name")
	require.NoError(t, local.AddMedication(ctx, edited))

	r := NewReconciler(local, remote, identity.Static("user-1"), fakeNet(true), zap.NewNop())
	require.NoError(t, r.Sync(ctx))

	meds, err := local.Medications(ctx)
	require.NoError(t, err)
	require.Len(t, meds, 1)
	assert.Equal(t, "New Name", meds[0].Name, "local record wins over remote copy")

	// Sync-up already pushed the edit, so the remote converged too.
	remoteMeds, err := remote.FetchMedications(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, remoteMeds, 1)
	assert.Equal(t, "New Name", remoteMeds[0].Name)
}

func TestSyncIdempotent(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	remote := NewMemoryRemote()
	require.NoError(t, local.AddMedication(ctx, syncMedication("med-1", "Lisinopril")))

	r := NewReconciler(local, remote, identity.Static("user-1"), fakeNet(true), zap.NewNop())
	require.NoError(t, r.Sync(ctx))
	require.NoError(t, r.Sync(ctx))

	meds, err := local.Medications(ctx)
	require.NoError(t, err)
	assert.Len(t, meds, 1, "repeated cycles do not duplicate records")
}

func TestSyncTwoDevicesConverge(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryRemote()

	phone := newLocal(t)
	tablet := newLocal(t)
	require.NoError(t, phone.AddMedication(ctx, syncMedication("med-a", "Lisinopril")))
	require.NoError(t, tablet.AddMedication(ctx, syncMedication("med-b", "Metformin")))

	phoneSync := NewReconciler(phone, remote, identity.Static("user-1"), fakeNet(true), zap.NewNop())
	tabletSync := NewReconciler(tablet, remote, identity.Static("user-1"), fakeNet(true), zap.NewNop())

	require.NoError(t, phoneSync.Sync(ctx))
	require.NoError(t, tabletSync.Sync(ctx))
	require.NoError(t, phoneSync.Sync(ctx))

	phoneMeds, err := phone.Medications(ctx)
	require.NoError(t, err)
	tabletMeds, err := tablet.Medications(ctx)
	require.NoError(t, err)
	assert.Len(t, phoneMeds, 2)
	assert.Len(t, tabletMeds, 2)
}

func TestSyncOffline(t *testing.T) {
	ctx := context.Background()
	r := NewReconciler(newLocal(t), NewMemoryRemote(), identity.Static("user-1"), fakeNet(false), zap.NewNop())

	assert.ErrorIs(t, r.Sync(ctx), ErrNotConnected)
	assert.Equal(t, StateIdle, r.State())
}

func TestSyncInFlightDropped(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	remote := NewMemoryRemote()
	r := NewReconciler(local, remote, identity.Static("user-1"), fakeNet(true), zap.NewNop())

	// Occupy the flag as a running cycle would.
	require.True(t, r.inFlight.CompareAndSwap(false, true))
	assert.ErrorIs(t, r.Sync(ctx), ErrSyncInFlight)
	r.inFlight.Store(false)

	require.NoError(t, r.Sync(ctx), "flag released means the next cycle runs")
}

func TestSyncUpFailureAborts(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	remote := &flakyRemote{MemoryRemote: NewMemoryRemote(), failUpsertEvents: true}
	require.NoError(t, local.AddMedication(ctx, syncMedication("med-1", "Lisinopril")))
	require.NoError(t, local.AddDoseEvent(ctx, syncDoseEvent("ev-1", "med-1")))

	r := NewReconciler(local, remote, identity.Static("user-1"), fakeNet(true), zap.NewNop())
	err := r.Sync(ctx)
	require.ErrorIs(t, err, errRemoteDown)
	assert.Equal(t, StateIdle, r.State(), "aborted cycle resets to idle")

	// Medications landed before the failure; partial remote writes stay.
	meds, err := remote.FetchMedications(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, meds, 1)

	remote.failUpsertEvents = false
	require.NoError(t, r.Sync(ctx), "flag was released despite the abort")
}

func TestSyncDownFailureAborts(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	remote := &flakyRemote{MemoryRemote: NewMemoryRemote(), failFetchMeds: true}

	r := NewReconciler(local, remote, identity.Static("user-1"), fakeNet(true), zap.NewNop())
	err := r.Sync(ctx)
	require.ErrorIs(t, err, errRemoteDown)
	assert.Equal(t, StateIdle, r.State())
}

func TestMemoryRemoteNamespacesUsers(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryRemote()
	require.NoError(t, remote.UpsertMedications(ctx, "user-1", []medication.Medication{syncMedication("med-1", "Lisinopril")}))

	other, err := remote.FetchMedications(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}
