package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/neveront/medtenance/internal/store"
)

func TestAnonymousMintsAndPersists(t *testing.T) {
	ctx := context.Background()
	st := store.New(store.NewMemorySlots(), zap.NewNop())

	a := NewAnonymous(st, zap.NewNop())
	id, err := a.UserID(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	_, err = uuid.Parse(id)
	assert.NoError(t, err, "minted id is a uuid")

	again, err := a.UserID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, again, "stable within one provider")

	// A fresh provider over the same store reads the persisted id instead of
	// minting a new one.
	b := NewAnonymous(st, zap.NewNop())
	fresh, err := b.UserID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, fresh)
}

func TestAnonymousDistinctStores(t *testing.T) {
	ctx := context.Background()

	a := NewAnonymous(store.New(store.NewMemorySlots(), zap.NewNop()), zap.NewNop())
	b := NewAnonymous(store.New(store.NewMemorySlots(), zap.NewNop()), zap.NewNop())

	idA, err := a.UserID(ctx)
	require.NoError(t, err)
	idB, err := b.UserID(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, idA, idB, "separate devices get separate namespaces")
}

func TestStaticProvider(t *testing.T) {
	id, err := Static("fixed-user").UserID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fixed-user", id)
}

func TestMonitorStartsOffline(t *testing.T) {
	m := NewMonitor(zap.NewNop())
	assert.False(t, m.Connected())
}

func TestMonitorNotifiesOnTransitionsOnly(t *testing.T) {
	m := NewMonitor(zap.NewNop())

	transitions := make(chan bool, 8)
	m.Subscribe(func(online bool) { transitions <- online })

	m.SetOnline(true)
	assert.True(t, m.Connected())
	assert.True(t, waitBool(t, transitions))

	// Repeats are swallowed.
	m.SetOnline(true)
	select {
	case v := <-transitions:
		t.Fatalf("unexpected notification %v for repeated state", v)
	case <-time.After(50 * time.Millisecond):
	}

	m.SetOnline(false)
	assert.False(t, m.Connected())
	assert.False(t, waitBool(t, transitions))
}

func TestMonitorRunProbes(t *testing.T) {
	m := NewMonitor(zap.NewNop())

	var mu sync.Mutex
	healthy := true
	probe := func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		if healthy {
			return nil
		}
		return errors.New("unreachable")
	}

	transitions := make(chan bool, 8)
	m.Subscribe(func(online bool) { transitions <- online })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx, 10*time.Millisecond, probe)

	assert.True(t, waitBool(t, transitions), "first probe flips the monitor online")

	mu.Lock()
	healthy = false
	mu.Unlock()
	assert.False(t, waitBool(t, transitions), "failing probe flips it back offline")
}

func waitBool(t *testing.T, ch chan bool) bool {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("no connectivity notification")
		return false
	}
}
