// Package job implements the scheduler-facing half of the gateway: job
// submission, cancellation and the filesystem handshake with the worker a
// submission launches.
package job

import (
	"context"
	"sync"
)

// Handle is a single-owner reference to one HPC scheduler allocation. It is
// deliberately non-copyable in spirit: callers must treat it as owned by
// whichever goroutine obtained it from a Submitter, hold it only for the
// lifetime of one model operation, and release it exactly once, typically
// via defer immediately after a successful Submit.
type Handle struct {
	id     string
	cancel func(ctx context.Context, id string) error

	once     sync.Once
	released error
}

// newHandle wraps a scheduler job id with the cancel command appropriate to
// the scheduler variant that submitted it.
func newHandle(id string, cancel func(ctx context.Context, id string) error) *Handle {
	return &Handle{id: id, cancel: cancel}
}

// ID returns the scheduler-assigned job id.
func (h *Handle) ID() string {
	return h.id
}

// Release cancels the allocation. It is safe to call multiple times or
// concurrently; only the first call has effect, and every call observes
// that first call's result.
func (h *Handle) Release(ctx context.Context) error {
	h.once.Do(func() {
		h.released = h.cancel(ctx, h.id)
	})
	return h.released
}
