// Package store holds the device's local source of truth: medications and
// dose events serialized as JSON collections into named durable slots.
package store

import "context"

// Slot names. Each slot holds one serialized document.
const (
	SlotMedications = "medications"
	SlotDoseEvents  = "dose_events"
	SlotSettings    = "settings"
)

// Slots is the durable key-value boundary under the local store. Get returns
// (nil, nil) for a slot that was never written.
type Slots interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}
