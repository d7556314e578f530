package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jye-lim/wav2vec2-asr/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrDecode, "audio", "decode", "unsupported container", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"audio", "decode", "unsupported container"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapWithoutDetail(t *testing.T) {
	err := services.Wrap(services.ErrNetwork, "", "", "", nil)
	if err.Error() != "network error: service failure" {
		t.Fatalf("unexpected message %q", err)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.Wrap(services.ErrDecode, "audio", "decode", "", nil), services.KindDecode},
		{services.Wrap(services.ErrResample, "audio", "resample", "", nil), services.KindResample},
		{services.Wrap(services.ErrInference, "gateway", "model", "", nil), services.KindInference},
		{services.Wrap(services.ErrNetwork, "client", "post", "", context.DeadlineExceeded), services.KindNetwork},
		{services.Wrap(services.ErrNetwork, "client", "post", "", context.Canceled), services.KindCancelled},
		{fmt.Errorf("row 3: %w", services.ErrFileNotFound), services.KindFileNotFound},
		{services.Wrap(services.ErrIndexCreation, "search", "create", "", nil), services.KindIndexCreation},
		{services.Wrap(services.ErrBulkIndex, "search", "bulk", "", nil), services.KindBulkIndex},
		{errors.New("plain"), services.KindUnknown},
	}
	for _, tc := range tests {
		if got := services.KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
