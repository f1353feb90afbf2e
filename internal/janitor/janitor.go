// Package janitor periodically sweeps the rendezvous directory for
// orphaned url-<jobId>.txt files left behind by handlers that crashed or
// whose release failed, logging them (and optionally removing them) so
// they do not accumulate across a long-running gateway process.
package janitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rezkam/umbridge-gateway/internal/rendezvous"
)

const (
	// DefaultSweepInterval is how often the Janitor checks for stale
	// rendezvous files when not overridden by an Option.
	DefaultSweepInterval = time.Minute
	// DefaultStaleAge is how long a url file may sit unreleased before the
	// Janitor considers it orphaned rather than mid-flight.
	DefaultStaleAge = 10 * time.Minute
)

// Janitor runs a background sweep of the rendezvous directory on a fixed
// interval until Stop is called.
type Janitor struct {
	rendezvous *rendezvous.FileRendezvous

	sweepInterval time.Duration
	staleAge      time.Duration
	remove        bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option configures a Janitor at construction time.
type Option func(*Janitor)

// WithSweepInterval overrides DefaultSweepInterval.
func WithSweepInterval(d time.Duration) Option {
	return func(j *Janitor) { j.sweepInterval = d }
}

// WithStaleAge overrides DefaultStaleAge.
func WithStaleAge(d time.Duration) Option {
	return func(j *Janitor) { j.staleAge = d }
}

// WithRemove enables actually deleting stale files instead of only
// logging them. Off by default: an operator should see a few sweep
// cycles of warnings before trusting the janitor to delete anything.
func WithRemove(remove bool) Option {
	return func(j *Janitor) { j.remove = remove }
}

// New constructs a Janitor over r, applying any Options.
func New(r *rendezvous.FileRendezvous, opts ...Option) *Janitor {
	j := &Janitor{
		rendezvous:    r,
		sweepInterval: DefaultSweepInterval,
		staleAge:      DefaultStaleAge,
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Start begins the background sweep loop. Stop must be called to release
// its goroutine.
func (j *Janitor) Start(ctx context.Context) {
	j.wg.Add(1)
	go j.run(ctx)
}

// Stop signals the sweep loop to exit and waits for it to do so.
func (j *Janitor) Stop() {
	close(j.stopCh)
	j.wg.Wait()
}

func (j *Janitor) run(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stopCh:
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	stale, err := j.rendezvous.StaleFiles(j.staleAge)
	if err != nil {
		slog.ErrorContext(ctx, "janitor sweep failed to list rendezvous directory", "error", err)
		return
	}

	for _, name := range stale {
		if !j.remove {
			slog.WarnContext(ctx, "orphaned rendezvous file detected", "file", name, "stale_age", j.staleAge)
			continue
		}
		if err := j.rendezvous.RemoveFile(name); err != nil {
			slog.ErrorContext(ctx, "janitor failed to remove orphaned rendezvous file", "file", name, "error", err)
			continue
		}
		slog.WarnContext(ctx, "removed orphaned rendezvous file", "file", name, "stale_age", j.staleAge)
	}
}
