// Package transport implements the gateway's HTTP front-end: the same
// umbridge model-server wire protocol the workers themselves speak, with
// every operation routed through a WorkerProxy for the named model.
package transport

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rezkam/umbridge-gateway/internal/joberr"
	"github.com/rezkam/umbridge-gateway/internal/workerproxy"
)

// Default configuration values for the gateway's HTTP server.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxBodyBytes      = 1 << 20 // 1MB; model calls carry numeric arrays, not files.
)

// Server wires a set of per-model proxies to the umbridge wire protocol.
type Server struct {
	proxies map[string]*workerproxy.Proxy
	names   []string
}

// NewServer constructs a Server over the given model proxies, keyed by
// model name.
func NewServer(proxies map[string]*workerproxy.Proxy) *Server {
	names := make([]string, 0, len(proxies))
	for name := range proxies {
		names = append(names, name)
	}
	sort.Strings(names)
	return &Server{proxies: proxies, names: names}
}

// Router builds the chi.Mux serving the gateway's wire protocol, with the
// teacher's standard middleware stack: request id, real ip, structured
// logging, panic recovery, and body size limiting.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(maxBodyBytes(DefaultMaxBodyBytes))
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "umbridge-gateway")
	})

	r.Get("/Info", s.handleInfo)
	r.Post("/ModelInfo", s.handleModelInfo)
	r.Post("/InputSizes", s.handleInputSizes)
	r.Post("/OutputSizes", s.handleOutputSizes)
	r.Post("/Evaluate", s.handleEvaluate)
	r.Post("/Gradient", s.handleGradient)
	r.Post("/ApplyJacobian", s.handleApplyJacobian)
	r.Post("/ApplyHessian", s.handleApplyHessian)

	return r
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"protocolVersion": 1.0,
		"models":          s.names,
	})
}

type nameRequest struct {
	Name   string         `json:"name"`
	Config map[string]any `json:"config"`
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request, name string) (*workerproxy.Proxy, bool) {
	p, ok := s.proxies[name]
	if !ok {
		writeError(w, r, joberr.ModelNotFound{Model: name})
		return nil, false
	}
	return p, true
}

func decodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var body T
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var zero T
		writeError(w, r, joberr.InvalidInput{Reason: "malformed JSON body: " + err.Error()})
		return zero, false
	}
	return body, true
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeJSON[nameRequest](w, r)
	if !ok {
		return
	}
	p, ok := s.lookup(w, r, body.Name)
	if !ok {
		return
	}

	support, err := p.ModelInfo(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"support": support})
}

func (s *Server) handleInputSizes(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeJSON[nameRequest](w, r)
	if !ok {
		return
	}
	p, ok := s.lookup(w, r, body.Name)
	if !ok {
		return
	}

	sizes, err := p.InputSizes(r.Context(), body.Config)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"inputSizes": sizes})
}

func (s *Server) handleOutputSizes(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeJSON[nameRequest](w, r)
	if !ok {
		return
	}
	p, ok := s.lookup(w, r, body.Name)
	if !ok {
		return
	}

	sizes, err := p.OutputSizes(r.Context(), body.Config)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"outputSizes": sizes})
}

type evaluateRequest struct {
	Name   string         `json:"name"`
	Input  [][]float64    `json:"input"`
	Config map[string]any `json:"config"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeJSON[evaluateRequest](w, r)
	if !ok {
		return
	}
	p, ok := s.lookup(w, r, body.Name)
	if !ok {
		return
	}

	output, err := p.Evaluate(r.Context(), body.Input, body.Config)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"output": output})
}

type gradientRequest struct {
	Name   string         `json:"name"`
	InWrt  uint           `json:"inWrt"`
	OutWrt uint           `json:"outWrt"`
	Input  [][]float64    `json:"input"`
	Sens   []float64      `json:"sens"`
	Config map[string]any `json:"config"`
}

func (s *Server) handleGradient(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeJSON[gradientRequest](w, r)
	if !ok {
		return
	}
	p, ok := s.lookup(w, r, body.Name)
	if !ok {
		return
	}

	output, err := p.Gradient(r.Context(), body.OutWrt, body.InWrt, body.Input, body.Sens, body.Config)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"output": output})
}

type jacobianRequest struct {
	Name   string         `json:"name"`
	InWrt  uint           `json:"inWrt"`
	OutWrt uint           `json:"outWrt"`
	Input  [][]float64    `json:"input"`
	Vec    []float64      `json:"vec"`
	Config map[string]any `json:"config"`
}

func (s *Server) handleApplyJacobian(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeJSON[jacobianRequest](w, r)
	if !ok {
		return
	}
	p, ok := s.lookup(w, r, body.Name)
	if !ok {
		return
	}

	output, err := p.ApplyJacobian(r.Context(), body.OutWrt, body.InWrt, body.Input, body.Vec, body.Config)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"output": output})
}

type hessianRequest struct {
	Name   string         `json:"name"`
	OutWrt uint           `json:"outWrt"`
	InWrt1 uint           `json:"inWrt1"`
	InWrt2 uint           `json:"inWrt2"`
	Input  [][]float64    `json:"input"`
	Sens   []float64      `json:"sens"`
	Vec    []float64      `json:"vec"`
	Config map[string]any `json:"config"`
}

func (s *Server) handleApplyHessian(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeJSON[hessianRequest](w, r)
	if !ok {
		return
	}
	p, ok := s.lookup(w, r, body.Name)
	if !ok {
		return
	}

	output, err := p.ApplyHessian(r.Context(), body.OutWrt, body.InWrt1, body.InWrt2, body.Input, body.Sens, body.Vec, body.Config)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"output": output})
}
