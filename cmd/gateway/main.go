// Command gateway runs the umbridge HPC load-balancing gateway: it
// dynamically allocates one HPC batch job per inbound model operation,
// rendezvous with the worker that job launches over the filesystem, and
// proxies the call.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rezkam/umbridge-gateway/internal/command"
	"github.com/rezkam/umbridge-gateway/internal/config"
	"github.com/rezkam/umbridge-gateway/internal/janitor"
	"github.com/rezkam/umbridge-gateway/internal/job"
	"github.com/rezkam/umbridge-gateway/internal/jobmanager"
	"github.com/rezkam/umbridge-gateway/internal/rendezvous"
	"github.com/rezkam/umbridge-gateway/internal/transport"
	"github.com/rezkam/umbridge-gateway/internal/workerproxy"
	"github.com/rezkam/umbridge-gateway/pkg/observability"
)

func main() {
	if err := run(); err != nil {
		slog.Error("gateway exited with error", "error", err)
		os.Exit(1)
	}
}

// parseFlags binds the CLI flags onto the environment variables
// config.Load reads, so --flag and the equivalent GATEWAY_* variable share
// one resolution path: a non-empty string flag or a positive numeric flag
// replaces the variable, and an unset (or zero) flag falls through to
// whatever the environment already had. config.Load then lets PORT, when
// set, override the port chosen here.
func parseFlags() {
	scheduler := flag.String("scheduler", os.Getenv("GATEWAY_SCHEDULER"), "batch scheduler backend: batch or queue")
	port := flag.String("port", os.Getenv("GATEWAY_PORT"), "gateway listen port")
	delayMs := flag.Int("delay-ms", 0, "milliseconds to pace between job submissions")
	numServer := flag.Int("num-server", 0, "BatchArray server count (accepted for CLI compatibility; has no effect on submission)")
	scriptsDir := flag.String("scripts-dir", os.Getenv("GATEWAY_SCRIPTS_DIR"), "directory containing job submission scripts")
	rendezvousDir := flag.String("rendezvous-dir", os.Getenv("GATEWAY_RENDEZVOUS_DIR"), "directory workers write their url-<jobId>.txt rendezvous files into")
	pollIntervalMs := flag.Int("poll-interval-ms", 0, "how often to poll the rendezvous directory for a worker's url file")
	flag.Parse()

	os.Setenv("GATEWAY_SCHEDULER", *scheduler)
	if *port != "" {
		os.Setenv("GATEWAY_PORT", *port)
	}
	if *delayMs > 0 {
		os.Setenv("GATEWAY_DELAY_MS", fmt.Sprint(*delayMs))
	}
	if *numServer > 0 {
		os.Setenv("GATEWAY_NUM_SERVER", fmt.Sprint(*numServer))
	}
	if *scriptsDir != "" {
		os.Setenv("GATEWAY_SCRIPTS_DIR", *scriptsDir)
	}
	if *rendezvousDir != "" {
		os.Setenv("GATEWAY_RENDEZVOUS_DIR", *rendezvousDir)
	}
	if *pollIntervalMs > 0 {
		os.Setenv("GATEWAY_POLL_INTERVAL_MS", fmt.Sprint(*pollIntervalMs))
	}
}

func run() error {
	parseFlags()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loggerProvider, logger, err := observability.InitLogger(ctx, cfg.Observability.ServiceName, cfg.Observability.OTelEnabled)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	slog.SetDefault(logger)
	defer shutdownWithTimeout(ctx, loggerProvider.Shutdown)

	tracerProvider, err := observability.InitTracerProvider(ctx, cfg.Observability.ServiceName, cfg.Observability.OTelEnabled)
	if err != nil {
		return fmt.Errorf("initializing tracer provider: %w", err)
	}
	defer shutdownWithTimeout(ctx, tracerProvider.Shutdown)

	meterProvider, err := observability.InitMeterProvider(ctx, cfg.Observability.ServiceName, cfg.Observability.OTelEnabled)
	if err != nil {
		return fmt.Errorf("initializing meter provider: %w", err)
	}
	defer shutdownWithTimeout(ctx, meterProvider.Shutdown)

	runner := command.NewRunner()

	rz := rendezvous.New(cfg.RendezvousDir, time.Duration(cfg.PollIntervalMs)*time.Millisecond)
	if err := rz.Purge(); err != nil {
		return fmt.Errorf("purging rendezvous directory: %w", err)
	}

	if cfg.Scheduler == config.SchedulerTaskQueue {
		if err := bootstrapTaskQueue(ctx, runner, cfg.SubJobsDir); err != nil {
			return fmt.Errorf("bootstrapping TaskQueue allocation: %w", err)
		}
	}

	submitter := job.NewSubmitter(job.Kind(cfg.Scheduler), runner, time.Duration(cfg.DelayMs)*time.Millisecond)
	comms := job.NewCommunicatorFactory(rz)
	locator := job.NewScriptLocator(cfg.ScriptsDir)
	manager := jobmanager.New(submitter, comms, locator)

	names, err := manager.ModelNames(ctx)
	if err != nil {
		return fmt.Errorf("enumerating models: %w", err)
	}
	locator.WarnUnused(names)

	proxies := make(map[string]*workerproxy.Proxy, len(names))
	for _, name := range names {
		proxies[name] = workerproxy.New(name, manager)
	}
	slog.InfoContext(ctx, "serving models", "models", names, "scheduler", cfg.Scheduler)

	sweeper := janitor.New(rz)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	srv := transport.NewServer(proxies)
	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: transport.DefaultReadHeaderTimeout,
		IdleTimeout:       transport.DefaultIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "gateway listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.InfoContext(ctx, "shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// bootstrapTaskQueue restarts the HyperQueue server and recreates its
// allocation queue: stop any server left running from a prior crash,
// start a fresh one, give it a moment to come up, then hand control to
// the operator-supplied allocation queue script.
func bootstrapTaskQueue(ctx context.Context, runner *command.Runner, subJobsDir string) error {
	if _, err := runner.Run(ctx, "hq server stop", nil); err != nil {
		slog.WarnContext(ctx, "hq server stop failed, continuing (no prior server may have been running)", "error", err)
	}
	// The server's output is redirected so the backgrounded process does not
	// hold the runner's stdout pipe open, which would block Run until it exits.
	if _, err := runner.Run(ctx, "hq server start > /dev/null 2>&1 &", nil); err != nil {
		return err
	}
	time.Sleep(time.Second) // give the HQ server time to start before queuing the allocation.

	_, err := runner.Run(ctx, subJobsDir+"/allocation_queue.sh", nil)
	return err
}

func shutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error) {
	timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(timeoutCtx); err != nil {
		slog.WarnContext(ctx, "provider shutdown did not complete cleanly", "error", err)
	}
}
