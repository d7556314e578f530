package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jye-lim/wav2vec2-asr/internal/acoustic"
	"github.com/jye-lim/wav2vec2-asr/internal/gateway"
	"github.com/jye-lim/wav2vec2-asr/internal/services"
	"github.com/jye-lim/wav2vec2-asr/internal/testsupport"
)

func newTestServer(t *testing.T, model acoustic.Model) *gateway.Server {
	t.Helper()
	svc, err := gateway.NewService(model)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return gateway.NewServer(svc, gateway.ServerOptions{Bind: "127.0.0.1:0", MaxBodySize: 8 << 20})
}

func uploadRequest(t *testing.T, field, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/asr", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decode body %q: %v", data, err)
	}
}

func TestPing(t *testing.T) {
	srv := newTestServer(t, spellingModel(t, "A"))

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/ping", nil), -1)
	if err != nil {
		t.Fatalf("ping request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get(gateway.RequestIDHeader) == "" {
		t.Fatal("expected generated request id header")
	}
	var out gateway.PingResponse
	decodeBody(t, resp, &out)
	if out.Message != "pong" {
		t.Fatalf("message = %q", out.Message)
	}
}

func TestASRReturnsTranscriptionAndDuration(t *testing.T) {
	srv := newTestServer(t, spellingModel(t, "BE WELL"))

	req := uploadRequest(t, gateway.UploadField, "sample-000000.wav", testsupport.SineWAV(t, 44100, 1, 44100*3/2))
	req.Header.Set(gateway.RequestIDHeader, "req-42")
	resp, err := srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("asr request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get(gateway.RequestIDHeader); got != "req-42" {
		t.Fatalf("request id echoed as %q", got)
	}
	var out gateway.TranscriptionResponse
	decodeBody(t, resp, &out)
	if out.Transcription != "BE WELL" {
		t.Fatalf("transcription = %q", out.Transcription)
	}
	if out.Duration != "1.50" {
		t.Fatalf("duration = %q, want 1.50", out.Duration)
	}
}

func TestASRErrorStatuses(t *testing.T) {
	failing := acoustic.ModelFunc(func(context.Context, []float32, int) ([][]float32, error) {
		return nil, errors.New("device lost")
	})
	wav := testsupport.SineWAV(t, 16000, 1, 1600)

	tests := []struct {
		name   string
		model  acoustic.Model
		req    func() *http.Request
		status int
		kind   string
	}{
		{
			name:   "missing field",
			model:  spellingModel(t, "A"),
			req:    func() *http.Request { return uploadRequest(t, "audio", "a.wav", wav) },
			status: http.StatusBadRequest,
			kind:   services.KindValidation,
		},
		{
			name:   "undecodable",
			model:  spellingModel(t, "A"),
			req:    func() *http.Request { return uploadRequest(t, gateway.UploadField, "a.mp3", []byte("plain text")) },
			status: http.StatusUnsupportedMediaType,
			kind:   services.KindDecode,
		},
		{
			name:   "model failure",
			model:  failing,
			req:    func() *http.Request { return uploadRequest(t, gateway.UploadField, "a.wav", wav) },
			status: http.StatusInternalServerError,
			kind:   services.KindInference,
		},
	}
	for _, tc := range tests {
		srv := newTestServer(t, tc.model)
		resp, err := srv.App().Test(tc.req(), -1)
		if err != nil {
			t.Fatalf("%s: request: %v", tc.name, err)
		}
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: status = %d, want %d", tc.name, resp.StatusCode, tc.status)
		}
		var out gateway.ErrorResponse
		decodeBody(t, resp, &out)
		if out.Error == "" || out.Kind != tc.kind {
			t.Fatalf("%s: unexpected error body %+v", tc.name, out)
		}
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{services.Wrap(services.ErrDecode, "audio", "decode", "", nil), http.StatusUnsupportedMediaType},
		{services.Wrap(services.ErrResample, "audio", "resample", "", nil), http.StatusUnprocessableEntity},
		{services.Wrap(services.ErrInference, "gateway", "model", "", nil), http.StatusInternalServerError},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := gateway.StatusFor(tc.err); got != tc.want {
			t.Fatalf("StatusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestUnknownRouteReturnsJSONError(t *testing.T) {
	srv := newTestServer(t, spellingModel(t, "A"))
	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/nope", nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out gateway.ErrorResponse
	decodeBody(t, resp, &out)
	if out.Error == "" {
		t.Fatal("expected error message")
	}
}
