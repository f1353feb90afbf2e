package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/umbridge-gateway/internal/jobmanager"
	"github.com/rezkam/umbridge-gateway/internal/modelclient"
	"github.com/rezkam/umbridge-gateway/internal/workerproxy"
)

// fakeManager hands out a binding pointed at a local httptest worker
// without spawning any subprocess, so transport tests exercise real
// request decoding, routing and error mapping end to end.
type fakeManager struct {
	workerURL   string
	allocations int
	allocateErr error
}

func (f *fakeManager) RequestModelAccess(ctx context.Context, name string) (*jobmanager.WorkerBinding, error) {
	f.allocations++
	if f.allocateErr != nil {
		return nil, f.allocateErr
	}
	return &jobmanager.WorkerBinding{Client: modelclient.New(f.workerURL), Model: name}, nil
}

func newTestServer(t *testing.T, worker *httptest.Server) (*Server, *fakeManager) {
	t.Helper()
	fm := &fakeManager{workerURL: worker.URL}
	proxies := map[string]*workerproxy.Proxy{
		"forward": workerproxy.New("forward", fm),
	}
	return NewServer(proxies), fm
}

func TestRouter_HappyPathEvaluate(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"output": [][]float64{{42.0}}})
	}))
	defer worker.Close()

	srv, fm := newTestServer(t, worker)
	req := httptest.NewRequest(http.MethodPost, "/Evaluate", bytes.NewBufferString(`{"name":"forward","input":[[21.0]]}`))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"output":[[42.0]]}`, rec.Body.String())
	assert.Equal(t, 1, fm.allocations)
}

func TestRouter_UnknownModel(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("worker should not be contacted for an unknown model")
	}))
	defer worker.Close()

	srv, fm := newTestServer(t, worker)
	req := httptest.NewRequest(http.MethodPost, "/Evaluate", bytes.NewBufferString(`{"name":"ghost","input":[[0.0]]}`))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ModelNotFound", body.Error.Type)
	assert.Equal(t, 0, fm.allocations)
}

func TestRouter_UnsupportedFeature(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"type": "UnsupportedFeature", "message": "Feature 'Gradient' is not supported by this model"},
		})
	}))
	defer worker.Close()

	srv, _ := newTestServer(t, worker)
	req := httptest.NewRequest(http.MethodPost, "/Gradient", bytes.NewBufferString(`{"name":"forward","outWrt":0,"inWrt":0,"input":[[1.0]],"sens":[1.0]}`))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "UnsupportedFeature", body.Error.Type)
	assert.Equal(t, "Feature 'Gradient' is not supported by this model", body.Error.Message)
}

func TestRouter_Info_NoAllocation(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("GET /Info must not allocate a worker")
	}))
	defer worker.Close()

	srv, fm := newTestServer(t, worker)
	req := httptest.NewRequest(http.MethodGet, "/Info", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"protocolVersion":1,"models":["forward"]}`, rec.Body.String())
	assert.Equal(t, 0, fm.allocations)
}

func TestRouter_MalformedBody(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer worker.Close()

	srv, _ := newTestServer(t, worker)
	req := httptest.NewRequest(http.MethodPost, "/Evaluate", bytes.NewBufferString(`not json`))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
