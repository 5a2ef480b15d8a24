package identity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Monitor tracks remote reachability and notifies subscribers on every
// transition. It starts offline; something has to prove the remote reachable
// first. Subscribers run on their own goroutine so a slow subscriber cannot
// stall the signal source.
type Monitor struct {
	logger *zap.Logger

	mu     sync.Mutex
	online bool
	subs   []func(online bool)
}

func NewMonitor(logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{logger: logger}
}

func (m *Monitor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers fn for connectivity transitions. fn receives the new
// state; it is not called for the current state at registration time.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// SetOnline records a reachability observation. Subscribers only hear about
// changes, not repeats.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]func(bool), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	m.logger.Info("connectivity changed", zap.Bool("online", online))
	for _, fn := range subs {
		go fn(online)
	}
}

// Run probes reachability on a fixed interval until ctx is done. The probe is
// whatever proves the remote usable, typically a database ping.
func (m *Monitor) Run(ctx context.Context, interval time.Duration, probe func(ctx context.Context) error) {
	probeOnce := func() {
		probeCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		m.SetOnline(probe(probeCtx) == nil)
	}

	probeOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeOnce()
		}
	}
}
