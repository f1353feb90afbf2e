package joberr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		name string
		err  error
		is   func(error) bool
	}{
		{"SpawnFailed", SpawnFailed{Cmd: "sbatch", Err: errors.New("boom")}, IsSpawnFailed},
		{"SubmitFailed", SubmitFailed{Output: "", Err: errors.New("boom")}, IsSubmitFailed},
		{"ScriptMissing", ScriptMissing{Model: "forward"}, IsScriptMissing},
		{"RendezvousTimeout", RendezvousTimeout{JobID: "1", Err: errors.New("boom")}, IsRendezvousTimeout},
		{"IoError", IoError{Path: "/urls", Err: errors.New("boom")}, IsIoError},
		{"WorkerProtocolError", WorkerProtocolError{Op: "Evaluate", Status: 500}, IsWorkerProtocolError},
		{"UnsupportedFeature", UnsupportedFeature{Model: "forward", Op: "Gradient"}, IsUnsupportedFeature},
		{"InvalidInput", InvalidInput{Reason: "bad json"}, IsInvalidInput},
		{"ModelNotFound", ModelNotFound{Model: "forward"}, IsModelNotFound},
		{"ConfigError", ConfigError{Reason: "missing scheduler"}, IsConfigError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, tc.is(tc.err))
			wrapped := fmt.Errorf("context: %w", tc.err)
			assert.True(t, tc.is(wrapped))
			assert.False(t, tc.is(errors.New("unrelated")))
		})
	}
}

func TestErrorMessagesNameTheSubject(t *testing.T) {
	assert.Contains(t, ScriptMissing{Model: "forward"}.Error(), "forward")
	assert.Contains(t, ModelNotFound{Model: "forward"}.Error(), "forward")
	assert.Contains(t, UnsupportedFeature{Model: "forward", Op: "Gradient"}.Error(), "Gradient")
}
