package job

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rezkam/umbridge-gateway/internal/command"
	"github.com/rezkam/umbridge-gateway/internal/joberr"
)

// Kind selects which HPC batch scheduler a Submitter targets.
type Kind string

const (
	// KindBatchArray targets a SLURM-like scheduler: sbatch/scancel.
	KindBatchArray Kind = "batch"
	// KindTaskQueue targets a HyperQueue-like scheduler: hq submit/hq job cancel.
	KindTaskQueue Kind = "queue"
)

// Submitter submits one job per call to Submit, pacing submissions by an
// optional fixed delay and assigning each a strictly increasing submission
// count used, for the TaskQueue variant, as a negative priority so that
// earlier submissions are served first.
type Submitter struct {
	kind   Kind
	runner *command.Runner

	delay          time.Duration
	submissionLock sync.Mutex

	count atomic.Int64
}

// NewSubmitter constructs a Submitter for the given scheduler kind. delay,
// if positive, is the pacing sleep applied (while holding submissionLock)
// between submissions — it does not delay the first one.
func NewSubmitter(kind Kind, runner *command.Runner, delay time.Duration) *Submitter {
	return &Submitter{kind: kind, runner: runner, delay: delay}
}

// Submit launches scriptPath as a new job, passing env as the job's
// environment (the init message key/value pairs a JobCommunicator
// produces, typically). Returns a Handle owning the allocation.
func (s *Submitter) Submit(ctx context.Context, scriptPath string, env map[string]string) (*Handle, error) {
	if s.delay > 0 && s.count.Load() > 0 {
		s.submissionLock.Lock()
		time.Sleep(s.delay)
		s.submissionLock.Unlock()
	}

	// Strictly increasing, starting at 0, per the gateway's submission
	// ordering contract: the first submission gets priority "-0" (the
	// numerically highest TaskQueue priority).
	count := s.count.Add(1) - 1

	switch s.kind {
	case KindBatchArray:
		return s.submitBatchArray(ctx, scriptPath, env)
	case KindTaskQueue:
		return s.submitTaskQueue(ctx, scriptPath, env, count)
	default:
		return nil, joberr.ConfigError{Reason: fmt.Sprintf("unknown scheduler kind %q", s.kind)}
	}
}

func (s *Submitter) submitBatchArray(ctx context.Context, scriptPath string, env map[string]string) (*Handle, error) {
	exportFlag := "--export=ALL"
	if kv := envToExportList(env); kv != "" {
		exportFlag += "," + kv
	}

	cmdline := fmt.Sprintf("sbatch --parsable %s %s", exportFlag, scriptPath)
	out, err := s.runner.Run(ctx, cmdline, nil)
	if err != nil {
		return nil, joberr.SubmitFailed{Output: out, Err: err}
	}

	// sbatch --parsable prints "<job id>[;<cluster name>]".
	id, _, _ := strings.Cut(out, ";")
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, joberr.SubmitFailed{Output: out, Err: fmt.Errorf("sbatch produced no job id")}
	}

	return newHandle(id, s.cancelBatchArray), nil
}

func (s *Submitter) cancelBatchArray(ctx context.Context, id string) error {
	_, err := s.runner.Run(ctx, fmt.Sprintf("scancel %s", id), nil)
	return err
}

func (s *Submitter) submitTaskQueue(ctx context.Context, scriptPath string, env map[string]string, count int64) (*Handle, error) {
	var b strings.Builder
	b.WriteString("hq submit --output-mode=quiet")
	fmt.Fprintf(&b, " --priority=-%d", count)
	for _, k := range sortedKeys(env) {
		fmt.Fprintf(&b, " --env %s=%s", k, env[k])
	}
	fmt.Fprintf(&b, " %s", scriptPath)

	out, err := s.runner.Run(ctx, b.String(), nil)
	if err != nil {
		return nil, joberr.SubmitFailed{Output: out, Err: err}
	}

	id := strings.TrimSpace(out)
	if id == "" {
		return nil, joberr.SubmitFailed{Output: out, Err: fmt.Errorf("hq submit produced no job id")}
	}

	return newHandle(id, s.cancelTaskQueue), nil
}

func (s *Submitter) cancelTaskQueue(ctx context.Context, id string) error {
	_, err := s.runner.Run(ctx, fmt.Sprintf("hq job cancel %s", id), nil)
	return err
}

func envToExportList(env map[string]string) string {
	keys := sortedKeys(env)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return strings.Join(pairs, ",")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
