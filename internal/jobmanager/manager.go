// Package jobmanager composes job submission, rendezvous and script
// selection into the single operation the gateway actually needs: bind a
// model name to a freshly allocated, freshly reachable worker.
package jobmanager

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/rezkam/umbridge-gateway/internal/job"
	"github.com/rezkam/umbridge-gateway/internal/joberr"
	"github.com/rezkam/umbridge-gateway/internal/modelclient"
)

var (
	tracer = otel.Tracer("github.com/rezkam/umbridge-gateway/internal/jobmanager")
	meter  = otel.Meter("github.com/rezkam/umbridge-gateway/internal/jobmanager")

	jobsSubmitted, _ = meter.Int64Counter("gateway.jobs.submitted")
	jobsCancelled, _ = meter.Int64Counter("gateway.jobs.cancelled")
	jobsFailed, _    = meter.Int64Counter("gateway.jobs.failed")
)

// WorkerBinding couples one allocated job with a client bound to the
// worker it launched. Releasing it cancels the job and removes the
// rendezvous file; it must be released exactly once, normally via defer.
type WorkerBinding struct {
	Client *modelclient.Client
	Model  string

	handle *job.Handle
	comm   *job.Communicator
}

// Release cancels the underlying job and cleans up its rendezvous file.
// Safe to call once; the underlying Handle already tolerates repeated
// calls, but callers should defer this exactly once per binding.
func (b *WorkerBinding) Release(ctx context.Context) error {
	if b.handle == nil {
		// A binding assembled without a backing allocation (test doubles
		// construct WorkerBinding directly with just Client/Model set).
		return nil
	}

	err := b.handle.Release(ctx)
	if err == nil {
		jobsCancelled.Add(ctx, 1)
	} else {
		jobsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("job.error", "cancel_failed")))
	}
	if relErr := b.comm.Release(b.handle.ID()); relErr != nil && err == nil {
		err = relErr
	}
	return err
}

// Manager allocates a fresh worker per request, on demand, and never
// holds state across calls beyond the one-time model enumeration cache.
type Manager struct {
	submitter *job.Submitter
	comms     *job.CommunicatorFactory
	locator   *job.ScriptLocator

	modelsOnce sync.Once
	modelNames []string
	modelsErr  error
}

// New constructs a Manager from its three collaborators.
func New(submitter *job.Submitter, comms *job.CommunicatorFactory, locator *job.ScriptLocator) *Manager {
	return &Manager{submitter: submitter, comms: comms, locator: locator}
}

// RequestModelAccess submits a job for name, waits for its worker to
// become reachable, and returns a WorkerBinding bound to that worker.
// The caller must release the binding exactly once.
func (m *Manager) RequestModelAccess(ctx context.Context, name string) (*WorkerBinding, error) {
	ctx, span := tracer.Start(ctx, "job.request_access", trace.WithAttributes(
		attribute.String("model.name", name),
	))
	defer span.End()

	script, err := m.locator.Select(name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		jobsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("job.error", errKind(err))))
		return nil, err
	}

	binding, err := m.allocate(ctx, name, script)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		jobsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("job.error", errKind(err))))
	}
	return binding, err
}

func (m *Manager) allocate(ctx context.Context, name, script string) (*WorkerBinding, error) {
	comm := m.comms.Create()
	init := comm.InitMessage()

	_, submitSpan := tracer.Start(ctx, "job.submit")
	handle, err := m.submitter.Submit(ctx, script, init)
	submitSpan.End()
	if err != nil {
		return nil, err
	}
	jobsSubmitted.Add(ctx, 1)

	waitCtx, waitSpan := tracer.Start(ctx, "job.rendezvous_wait")
	url, err := comm.ModelURL(waitCtx, handle.ID())
	waitSpan.End()
	if err != nil {
		_ = handle.Release(ctx)
		_ = comm.Release(handle.ID())
		return nil, err
	}

	return &WorkerBinding{
		Client: modelclient.New(url),
		Model:  name,
		handle: handle,
		comm:   comm,
	}, nil
}

// ModelNames enumerates the models served by the worker launched from the
// default job script, caching the result for the lifetime of the process:
// the set of models a deployment serves cannot change without restarting
// the gateway's backing scripts.
func (m *Manager) ModelNames(ctx context.Context) ([]string, error) {
	m.modelsOnce.Do(func() {
		ctx, span := tracer.Start(ctx, "job.request_access", trace.WithAttributes(
			attribute.String("model.name", ""),
		))
		defer span.End()

		script, err := m.locator.DefaultScript()
		if err != nil {
			m.modelsErr = err
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			jobsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("job.error", errKind(err))))
			return
		}

		binding, err := m.allocate(ctx, "", script)
		if err != nil {
			m.modelsErr = err
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			jobsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("job.error", errKind(err))))
			return
		}
		defer binding.Release(ctx)

		info, err := binding.Client.Info(ctx)
		if err != nil {
			m.modelsErr = err
			return
		}
		m.modelNames = info.Models
	})
	return m.modelNames, m.modelsErr
}

func errKind(err error) string {
	switch {
	case joberr.IsSpawnFailed(err):
		return "SpawnFailed"
	case joberr.IsSubmitFailed(err):
		return "SubmitFailed"
	case joberr.IsScriptMissing(err):
		return "ScriptMissing"
	case joberr.IsRendezvousTimeout(err):
		return "RendezvousTimeout"
	case joberr.IsIoError(err):
		return "IoError"
	case joberr.IsWorkerProtocolError(err):
		return "WorkerProtocolError"
	default:
		return "Unknown"
	}
}
