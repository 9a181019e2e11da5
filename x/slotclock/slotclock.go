package slotclock

import (
	"context"
	"time"
)

// Clock maps wall time onto the L2 slot grid. Slot N spans
// [genesis + N*duration, genesis + (N+1)*duration).
type Clock interface {
	// Current returns the slot number for the current time. Before genesis
	// it returns 0.
	Current() uint64

	// StartTime returns the start time of the given slot.
	StartTime(slot uint64) time.Time

	// SecondsInto returns how far the current time is into the given slot.
	// Negative if the slot has not started yet.
	SecondsInto(slot uint64) time.Duration

	// SlotDuration returns the configured slot duration.
	SlotDuration() time.Duration

	// WaitForNext blocks until the next slot begins or the context is done.
	WaitForNext(ctx context.Context) error
}
