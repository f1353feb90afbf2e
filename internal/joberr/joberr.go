// Package joberr defines the typed error kinds a job allocation can fail
// with. The types carry no HTTP status themselves: the transport layer's
// FromJobError maps each kind to the status and wire error type reported
// to the client.
package joberr

import (
	"errors"
	"fmt"
)

// SpawnFailed indicates the CommandRunner could not launch the submission
// command itself (e.g. sbatch/hq binary missing, exec failure).
type SpawnFailed struct {
	Cmd string
	Err error
}

func (e SpawnFailed) Error() string { return fmt.Sprintf("spawn failed for %q: %v", e.Cmd, e.Err) }
func (e SpawnFailed) Unwrap() error { return e.Err }

// IsSpawnFailed reports whether err is a SpawnFailed.
func IsSpawnFailed(err error) bool {
	var e SpawnFailed
	return errors.As(err, &e)
}

// SubmitFailed indicates a submission produced no usable job id: the
// scheduler command printed no id, or (wrapping a SpawnFailed) could not
// be launched at all. The command's exit status is not inspected.
type SubmitFailed struct {
	Output string
	Err    error
}

func (e SubmitFailed) Error() string {
	return fmt.Sprintf("submit failed: %v (output: %q)", e.Err, e.Output)
}
func (e SubmitFailed) Unwrap() error { return e.Err }

// IsSubmitFailed reports whether err is a SubmitFailed.
func IsSubmitFailed(err error) bool {
	var e SubmitFailed
	return errors.As(err, &e)
}

// ScriptMissing indicates the JobScriptLocator found no job script for a
// requested model name, neither model-specific nor default.
type ScriptMissing struct {
	Model string
}

func (e ScriptMissing) Error() string { return fmt.Sprintf("no job script for model %q", e.Model) }

// IsScriptMissing reports whether err is a ScriptMissing.
func IsScriptMissing(err error) bool {
	var e ScriptMissing
	return errors.As(err, &e)
}

// RendezvousTimeout indicates FileRendezvous gave up waiting for the
// worker's URL file to appear.
type RendezvousTimeout struct {
	JobID string
	Err   error
}

func (e RendezvousTimeout) Error() string {
	return fmt.Sprintf("rendezvous timed out waiting for job %s: %v", e.JobID, e.Err)
}
func (e RendezvousTimeout) Unwrap() error { return e.Err }

// IsRendezvousTimeout reports whether err is a RendezvousTimeout.
func IsRendezvousTimeout(err error) bool {
	var e RendezvousTimeout
	return errors.As(err, &e)
}

// IoError indicates a filesystem operation on the rendezvous directory
// failed for a reason other than the file simply not existing yet
// (permission denied, disk full, directory missing).
type IoError struct {
	Path string
	Err  error
}

func (e IoError) Error() string { return fmt.Sprintf("io error on %q: %v", e.Path, e.Err) }
func (e IoError) Unwrap() error { return e.Err }

// IsIoError reports whether err is an IoError.
func IsIoError(err error) bool {
	var e IoError
	return errors.As(err, &e)
}

// WorkerProtocolError wraps a non-2xx or malformed response the allocated
// worker returned for a model operation. Status carries the worker's own
// HTTP status so the gateway can pass it through rather than collapse
// every worker failure to 500. Type carries the worker's own
// error.type, when the response body parsed as the standard error
// envelope, so that a known kind like "UnsupportedFeature" can be
// reported verbatim instead of generically.
type WorkerProtocolError struct {
	Op      string
	Status  int
	Type    string
	Message string
}

func (e WorkerProtocolError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("worker protocol error on %s: %s: %s (status %d)", e.Op, e.Type, e.Message, e.Status)
	}
	return fmt.Sprintf("worker protocol error on %s: %s (status %d)", e.Op, e.Message, e.Status)
}

// IsWorkerProtocolError reports whether err is a WorkerProtocolError.
func IsWorkerProtocolError(err error) bool {
	var e WorkerProtocolError
	return errors.As(err, &e)
}

// UnsupportedFeature indicates the bound worker does not advertise support
// for the requested operation (e.g. Gradient called on a model whose
// ModelInfo reports it unsupported).
type UnsupportedFeature struct {
	Model string
	Op    string
}

func (e UnsupportedFeature) Error() string {
	return fmt.Sprintf("model %q does not support %s", e.Model, e.Op)
}

// IsUnsupportedFeature reports whether err is an UnsupportedFeature.
func IsUnsupportedFeature(err error) bool {
	var e UnsupportedFeature
	return errors.As(err, &e)
}

// InvalidInput indicates the gateway's own request decoding or size
// validation rejected the inbound HTTP request before any job was
// allocated.
type InvalidInput struct {
	Reason string
}

func (e InvalidInput) Error() string { return fmt.Sprintf("invalid input: %s", e.Reason) }

// IsInvalidInput reports whether err is an InvalidInput.
func IsInvalidInput(err error) bool {
	var e InvalidInput
	return errors.As(err, &e)
}

// ModelNotFound indicates a request named a model the gateway does not
// serve.
type ModelNotFound struct {
	Model string
}

func (e ModelNotFound) Error() string { return fmt.Sprintf("model %q not found", e.Model) }

// IsModelNotFound reports whether err is a ModelNotFound.
func IsModelNotFound(err error) bool {
	var e ModelNotFound
	return errors.As(err, &e)
}

// ConfigError indicates the gateway's own startup configuration is
// invalid. Fatal: never reaches the transport layer.
type ConfigError struct {
	Reason string
}

func (e ConfigError) Error() string { return fmt.Sprintf("config error: %s", e.Reason) }

// IsConfigError reports whether err is a ConfigError.
func IsConfigError(err error) bool {
	var e ConfigError
	return errors.As(err, &e)
}
