package acoustic

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/jye-lim/wav2vec2-asr/internal/services"
)

const (
	msgpackContentType   = "application/msgpack"
	logitsPath           = "/v1/logits"
	defaultRemoteTimeout = 60 * time.Second
	errorBodyLimit       = 512
)

// HTTPDoer is the subset of *http.Client used by Remote.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RemoteConfig describes a model-serving endpoint.
type RemoteConfig struct {
	Endpoint   string
	ModelID    string
	Timeout    time.Duration
	Concurrent bool
}

// Remote is a Model backed by an HTTP model server. Requests and responses
// are msgpack maps:
//
//	request:  {model, sample_rate, samples}
//	response: {logits} or {error}
type Remote struct {
	cfg    RemoteConfig
	client HTTPDoer
}

// RemoteOption customizes a Remote.
type RemoteOption func(*Remote)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client HTTPDoer) RemoteOption {
	return func(r *Remote) {
		if client != nil {
			r.client = client
		}
	}
}

type logitsRequest struct {
	Model      string    `msgpack:"model"`
	SampleRate int       `msgpack:"sample_rate"`
	Samples    []float32 `msgpack:"samples"`
}

type logitsResponse struct {
	Logits [][]float32 `msgpack:"logits"`
	Error  string      `msgpack:"error,omitempty"`
}

// NewRemote constructs a Remote model.
func NewRemote(cfg RemoteConfig, opts ...RemoteOption) (*Remote, error) {
	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if cfg.Endpoint == "" {
		return nil, services.Wrap(services.ErrConfiguration, "acoustic", "remote", "model endpoint is not configured", nil)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRemoteTimeout
	}
	r := &Remote{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ConcurrentSafe reports the configured concurrency capability of the server.
func (r *Remote) ConcurrentSafe() bool {
	return r.cfg.Concurrent
}

// Logits sends samples to the model server and returns its score matrix.
func (r *Remote) Logits(ctx context.Context, samples []float32, sampleRate int) ([][]float32, error) {
	payload, err := msgpack.Marshal(logitsRequest{
		Model:      r.cfg.ModelID,
		SampleRate: sampleRate,
		Samples:    samples,
	})
	if err != nil {
		return nil, fmt.Errorf("encode logits request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint+logitsPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build logits request: %w", err)
	}
	req.Header.Set("Content-Type", msgpackContentType)
	req.Header.Set("Accept", msgpackContentType)
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		req.Header.Set("X-Request-ID", rid)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, fmt.Errorf("model server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out logitsResponse
	if err := msgpack.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode logits response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("model server: %s", out.Error)
	}
	return out.Logits, nil
}
