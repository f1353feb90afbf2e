// Package modelclient speaks the umbridge HTTP model protocol to a single
// worker. Each Client is bound to one worker's base URL for the lifetime of
// a WorkerBinding; the gateway never reuses it beyond that one allocation.
package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rezkam/umbridge-gateway/internal/joberr"
)

// Client talks the umbridge wire protocol to one worker's base URL.
type Client struct {
	baseURL string
	http    *http.Client
}

// New constructs a Client bound to baseURL (e.g. "http://127.0.0.1:4242"
// as read from a worker's rendezvous file).
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout:   60 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Info is the response of GET /Info.
type Info struct {
	ProtocolVersion float64  `json:"protocolVersion"`
	Models          []string `json:"models"`
}

// Support is the response of POST /ModelInfo.
type Support struct {
	Evaluate           bool `json:"Evaluate"`
	EvaluateShMem      bool `json:"EvaluateShMem"`
	Gradient           bool `json:"Gradient"`
	GradientShMem      bool `json:"GradientShMem"`
	ApplyJacobian      bool `json:"ApplyJacobian"`
	ApplyJacobianShMem bool `json:"ApplyJacobianShMem"`
	ApplyHessian       bool `json:"ApplyHessian"`
	ApplyHessianShMem  bool `json:"ApplyHessianShMem"`
}

type modelInfoResponse struct {
	Support Support `json:"support"`
}

type sizesRequest struct {
	Name   string         `json:"name"`
	Config map[string]any `json:"config,omitempty"`
}

type inputSizesResponse struct {
	InputSizes []int `json:"inputSizes"`
}

type outputSizesResponse struct {
	OutputSizes []int `json:"outputSizes"`
}

type evaluateRequest struct {
	Name   string         `json:"name"`
	Input  [][]float64    `json:"input"`
	Config map[string]any `json:"config,omitempty"`
}

type evaluateResponse struct {
	Output [][]float64 `json:"output"`
}

type gradientRequest struct {
	Name   string         `json:"name"`
	InWrt  uint           `json:"inWrt"`
	OutWrt uint           `json:"outWrt"`
	Input  [][]float64    `json:"input"`
	Sens   []float64      `json:"sens"`
	Config map[string]any `json:"config,omitempty"`
}

type jacobianRequest struct {
	Name   string         `json:"name"`
	InWrt  uint           `json:"inWrt"`
	OutWrt uint           `json:"outWrt"`
	Input  [][]float64    `json:"input"`
	Vec    []float64      `json:"vec"`
	Config map[string]any `json:"config,omitempty"`
}

type hessianRequest struct {
	Name   string         `json:"name"`
	OutWrt uint           `json:"outWrt"`
	InWrt1 uint           `json:"inWrt1"`
	InWrt2 uint           `json:"inWrt2"`
	Input  [][]float64    `json:"input"`
	Sens   []float64      `json:"sens"`
	Vec    []float64      `json:"vec"`
	Config map[string]any `json:"config,omitempty"`
}

type vectorResponse struct {
	Output []float64 `json:"output"`
}

type errorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Info calls GET /Info.
func (c *Client) Info(ctx context.Context) (Info, error) {
	var out Info
	err := c.do(ctx, http.MethodGet, "/Info", nil, &out)
	return out, err
}

// ModelInfo calls POST /ModelInfo for name.
func (c *Client) ModelInfo(ctx context.Context, name string) (Support, error) {
	var out modelInfoResponse
	err := c.do(ctx, http.MethodPost, "/ModelInfo", map[string]string{"name": name}, &out)
	return out.Support, err
}

// InputSizes calls POST /InputSizes.
func (c *Client) InputSizes(ctx context.Context, name string, config map[string]any) ([]int, error) {
	var out inputSizesResponse
	err := c.do(ctx, http.MethodPost, "/InputSizes", sizesRequest{Name: name, Config: config}, &out)
	return out.InputSizes, err
}

// OutputSizes calls POST /OutputSizes.
func (c *Client) OutputSizes(ctx context.Context, name string, config map[string]any) ([]int, error) {
	var out outputSizesResponse
	err := c.do(ctx, http.MethodPost, "/OutputSizes", sizesRequest{Name: name, Config: config}, &out)
	return out.OutputSizes, err
}

// Evaluate calls POST /Evaluate.
func (c *Client) Evaluate(ctx context.Context, name string, input [][]float64, config map[string]any) ([][]float64, error) {
	var out evaluateResponse
	err := c.do(ctx, http.MethodPost, "/Evaluate", evaluateRequest{Name: name, Input: input, Config: config}, &out)
	return out.Output, err
}

// Gradient calls POST /Gradient.
func (c *Client) Gradient(ctx context.Context, name string, outWrt, inWrt uint, input [][]float64, sens []float64, config map[string]any) ([]float64, error) {
	var out vectorResponse
	err := c.do(ctx, http.MethodPost, "/Gradient", gradientRequest{Name: name, OutWrt: outWrt, InWrt: inWrt, Input: input, Sens: sens, Config: config}, &out)
	return out.Output, err
}

// ApplyJacobian calls POST /ApplyJacobian.
func (c *Client) ApplyJacobian(ctx context.Context, name string, outWrt, inWrt uint, input [][]float64, vec []float64, config map[string]any) ([]float64, error) {
	var out vectorResponse
	err := c.do(ctx, http.MethodPost, "/ApplyJacobian", jacobianRequest{Name: name, OutWrt: outWrt, InWrt: inWrt, Input: input, Vec: vec, Config: config}, &out)
	return out.Output, err
}

// ApplyHessian calls POST /ApplyHessian.
func (c *Client) ApplyHessian(ctx context.Context, name string, outWrt, inWrt1, inWrt2 uint, input [][]float64, sens, vec []float64, config map[string]any) ([]float64, error) {
	var out vectorResponse
	err := c.do(ctx, http.MethodPost, "/ApplyHessian", hessianRequest{Name: name, OutWrt: outWrt, InWrt1: inWrt1, InWrt2: inWrt2, Input: input, Sens: sens, Vec: vec, Config: config}, &out)
	return out.Output, err
}

// do performs one request against the bound worker, decoding either the
// success body into out or the {"error":{...}} envelope into a
// joberr.WorkerProtocolError.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request for %s: %w", path, err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return joberr.WorkerProtocolError{Op: path, Status: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return joberr.WorkerProtocolError{Op: path, Status: resp.StatusCode, Message: fmt.Sprintf("reading response body: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope errorEnvelope
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Type != "" {
			return joberr.WorkerProtocolError{Op: path, Status: resp.StatusCode, Type: envelope.Error.Type, Message: envelope.Error.Message}
		}
		return joberr.WorkerProtocolError{Op: path, Status: resp.StatusCode, Message: string(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return joberr.WorkerProtocolError{Op: path, Status: resp.StatusCode, Message: fmt.Sprintf("decoding response: %v", err)}
	}
	return nil
}
