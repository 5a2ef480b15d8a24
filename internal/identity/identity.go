// Package identity supplies the stable user identifier and the connectivity
// signal the sync reconciler depends on. The identity source is opaque to the
// rest of the system; anonymous identities are acceptable.
package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/neveront/medtenance/internal/store"
)

const userIDSetting = "user_id"

// Provider yields the namespace owner for remote sync.
type Provider interface {
	UserID(ctx context.Context) (string, error)
}

// Anonymous mints a user id on first use and persists it in the settings
// slot, so the same device keeps its remote namespace across restarts.
type Anonymous struct {
	store  *store.LocalStore
	logger *zap.Logger

	mu     sync.Mutex
	cached string
}

func NewAnonymous(st *store.LocalStore, logger *zap.Logger) *Anonymous {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Anonymous{store: st, logger: logger}
}

func (a *Anonymous) UserID(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cached != "" {
		return a.cached, nil
	}

	id, err := a.store.Setting(ctx, userIDSetting)
	if err != nil {
		return "", fmt.Errorf("load user id: %w", err)
	}
	if id != "" {
		a.cached = id
		return id, nil
	}

	id = uuid.NewString()
	if err := a.store.SetSetting(ctx, userIDSetting, id); err != nil {
		return "", fmt.Errorf("persist user id: %w", err)
	}
	a.cached = id
	a.logger.Info("anonymous identity established", zap.String("user_id", id))
	return id, nil
}

// Static returns a fixed user id. Used in tests and the simulator.
type Static string

func (s Static) UserID(ctx context.Context) (string, error) {
	return string(s), nil
}
