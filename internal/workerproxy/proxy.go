// Package workerproxy implements the model interface on top of a
// JobManager: every operation allocates a private worker, proxies the
// call, and releases the allocation before returning.
package workerproxy

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rezkam/umbridge-gateway/internal/jobmanager"
)

var tracer = otel.Tracer("github.com/rezkam/umbridge-gateway/internal/workerproxy")

// manager is the subset of *jobmanager.Manager a Proxy depends on, kept
// narrow so tests can supply a fake without standing up real jobs.
type manager interface {
	RequestModelAccess(ctx context.Context, name string) (*jobmanager.WorkerBinding, error)
}

// Proxy implements every model operation for one model name by allocating
// a fresh worker per call. It holds no state of its own beyond the shared
// manager reference and the model name it serves.
type Proxy struct {
	model   string
	manager manager
}

// New constructs a Proxy for model, backed by manager.
func New(model string, manager manager) *Proxy {
	return &Proxy{model: model, manager: manager}
}

// Model returns the model name this Proxy serves.
func (p *Proxy) Model() string { return p.model }

func (p *Proxy) withBinding(ctx context.Context, op string, fn func(ctx context.Context, b *jobmanager.WorkerBinding) error) error {
	ctx, span := tracer.Start(ctx, "job.proxy_call", trace.WithAttributes(
		attribute.String("model.name", p.model),
		attribute.String("proxy.op", op),
	))
	defer span.End()

	binding, err := p.manager.RequestModelAccess(ctx, p.model)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer binding.Release(ctx)

	if err := fn(ctx, binding); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Support reports which umbridge operations a model implements, the
// subset the gateway's wire protocol exposes (shared-memory variants are
// out of scope).
type Support struct {
	Evaluate      bool `json:"Evaluate"`
	Gradient      bool `json:"Gradient"`
	ApplyJacobian bool `json:"ApplyJacobian"`
	ApplyHessian  bool `json:"ApplyHessian"`
}

// ModelInfo reports which operations the bound worker supports.
func (p *Proxy) ModelInfo(ctx context.Context) (support Support, err error) {
	err = p.withBinding(ctx, "ModelInfo", func(ctx context.Context, b *jobmanager.WorkerBinding) error {
		s, err := b.Client.ModelInfo(ctx, p.model)
		if err != nil {
			return err
		}
		support.Evaluate = s.Evaluate
		support.Gradient = s.Gradient
		support.ApplyJacobian = s.ApplyJacobian
		support.ApplyHessian = s.ApplyHessian
		return nil
	})
	return support, err
}

// InputSizes forwards /InputSizes to a freshly allocated worker.
func (p *Proxy) InputSizes(ctx context.Context, config map[string]any) (sizes []int, err error) {
	err = p.withBinding(ctx, "InputSizes", func(ctx context.Context, b *jobmanager.WorkerBinding) error {
		sizes, err = b.Client.InputSizes(ctx, p.model, config)
		return err
	})
	return sizes, err
}

// OutputSizes forwards /OutputSizes to a freshly allocated worker.
func (p *Proxy) OutputSizes(ctx context.Context, config map[string]any) (sizes []int, err error) {
	err = p.withBinding(ctx, "OutputSizes", func(ctx context.Context, b *jobmanager.WorkerBinding) error {
		sizes, err = b.Client.OutputSizes(ctx, p.model, config)
		return err
	})
	return sizes, err
}

// Evaluate forwards /Evaluate to a freshly allocated worker.
func (p *Proxy) Evaluate(ctx context.Context, input [][]float64, config map[string]any) (output [][]float64, err error) {
	err = p.withBinding(ctx, "Evaluate", func(ctx context.Context, b *jobmanager.WorkerBinding) error {
		output, err = b.Client.Evaluate(ctx, p.model, input, config)
		return err
	})
	return output, err
}

// Gradient forwards /Gradient to a freshly allocated worker.
func (p *Proxy) Gradient(ctx context.Context, outWrt, inWrt uint, input [][]float64, sens []float64, config map[string]any) (output []float64, err error) {
	err = p.withBinding(ctx, "Gradient", func(ctx context.Context, b *jobmanager.WorkerBinding) error {
		output, err = b.Client.Gradient(ctx, p.model, outWrt, inWrt, input, sens, config)
		return err
	})
	return output, err
}

// ApplyJacobian forwards /ApplyJacobian to a freshly allocated worker.
func (p *Proxy) ApplyJacobian(ctx context.Context, outWrt, inWrt uint, input [][]float64, vec []float64, config map[string]any) (output []float64, err error) {
	err = p.withBinding(ctx, "ApplyJacobian", func(ctx context.Context, b *jobmanager.WorkerBinding) error {
		output, err = b.Client.ApplyJacobian(ctx, p.model, outWrt, inWrt, input, vec, config)
		return err
	})
	return output, err
}

// ApplyHessian forwards /ApplyHessian to a freshly allocated worker.
func (p *Proxy) ApplyHessian(ctx context.Context, outWrt, inWrt1, inWrt2 uint, input [][]float64, sens, vec []float64, config map[string]any) (output []float64, err error) {
	err = p.withBinding(ctx, "ApplyHessian", func(ctx context.Context, b *jobmanager.WorkerBinding) error {
		output, err = b.Client.ApplyHessian(ctx, p.model, outWrt, inWrt1, inWrt2, input, sens, vec, config)
		return err
	})
	return output, err
}
