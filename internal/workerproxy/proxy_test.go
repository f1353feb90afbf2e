package workerproxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/umbridge-gateway/internal/jobmanager"
	"github.com/rezkam/umbridge-gateway/internal/modelclient"
)

// fakeManager hands out a binding pointed at a local httptest worker and
// counts how many times it was asked to allocate, standing in for a real
// JobManager without spawning any subprocess. Its bindings carry no job
// handle, so releasing them is a no-op.
type fakeManager struct {
	workerURL      string
	allocations    int
	releases       int
	allocateErr    error
}

func (f *fakeManager) RequestModelAccess(ctx context.Context, name string) (*jobmanager.WorkerBinding, error) {
	f.allocations++
	if f.allocateErr != nil {
		return nil, f.allocateErr
	}
	return &jobmanager.WorkerBinding{
		Client: modelclient.New(f.workerURL),
		Model:  name,
	}, nil
}

func TestProxy_Evaluate_AllocatesOnce(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"output": [][]float64{{2, 4}}})
	}))
	defer worker.Close()

	fm := &fakeManager{workerURL: worker.URL}
	p := New("forward", fm)

	out, err := p.Evaluate(context.Background(), [][]float64{{1, 2}}, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{2, 4}}, out)
	assert.Equal(t, 1, fm.allocations)
}

func TestProxy_Evaluate_PropagatesAllocationError(t *testing.T) {
	fm := &fakeManager{allocateErr: assert.AnError}
	p := New("forward", fm)

	_, err := p.Evaluate(context.Background(), [][]float64{{1}}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestProxy_Model(t *testing.T) {
	p := New("forward", &fakeManager{})
	assert.Equal(t, "forward", p.Model())
}
