package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jye-lim/wav2vec2-asr/internal/services"
)

const defaultClientTimeout = 2 * time.Minute

// HTTPDoer is the subset of *http.Client used by Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls a running gateway over HTTP.
type Client struct {
	inferURL string
	pingURL  string
	http     HTTPDoer
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client HTTPDoer) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithTimeout replaces the default client with one using timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.http = &http.Client{Timeout: timeout}
		}
	}
}

// NewClient builds a client posting to inferURL. The ping endpoint is derived
// by replacing the last path segment with "ping".
func NewClient(inferURL string, opts ...ClientOption) (*Client, error) {
	inferURL = strings.TrimSpace(inferURL)
	parsed, err := url.Parse(inferURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, services.Wrap(services.ErrConfiguration, "gateway-client", "init", fmt.Sprintf("invalid infer url %q", inferURL), err)
	}
	ping := *parsed
	ping.Path = path.Join(path.Dir(strings.TrimRight(parsed.Path, "/")), "ping")
	ping.RawQuery = ""

	c := &Client{
		inferURL: inferURL,
		pingURL:  ping.String(),
		http:     &http.Client{Timeout: defaultClientTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Ping calls GET /ping and checks the reply.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pingURL, nil)
	if err != nil {
		return services.Wrap(services.ErrNetwork, "gateway-client", "ping", "build request", err)
	}
	var out PingResponse
	if err := c.do(req, &out); err != nil {
		return services.Wrap(services.ErrNetwork, "gateway-client", "ping", "", err)
	}
	if out.Message != "pong" {
		return services.Wrap(services.ErrNetwork, "gateway-client", "ping", fmt.Sprintf("unexpected reply %q", out.Message), nil)
	}
	return nil
}

// Transcribe posts data as the multipart field "file". Transport failures,
// non-2xx replies, and malformed bodies are all services.ErrNetwork.
func (c *Client) Transcribe(ctx context.Context, filename string, data []byte) (TranscriptionResponse, error) {
	body, contentType, err := multipartBody(filename, data)
	if err != nil {
		return TranscriptionResponse{}, services.Wrap(services.ErrNetwork, "gateway-client", "asr", "encode upload", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.inferURL, body)
	if err != nil {
		return TranscriptionResponse{}, services.Wrap(services.ErrNetwork, "gateway-client", "asr", "build request", err)
	}
	req.Header.Set("Content-Type", contentType)
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		req.Header.Set(RequestIDHeader, rid)
	}

	var out TranscriptionResponse
	if err := c.do(req, &out); err != nil {
		return TranscriptionResponse{}, services.Wrap(services.ErrNetwork, "gateway-client", "asr", filename, err)
	}
	return out, nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		var apiErr ErrorResponse
		if json.Unmarshal(snippet, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}

func multipartBody(filename string, data []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, UploadField, filename))
	header.Set("Content-Type", uploadContentType(filename))
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func uploadContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".wav":
		return "audio/wav"
	default:
		return "audio/mpeg"
	}
}
