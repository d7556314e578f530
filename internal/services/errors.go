package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDecode        = errors.New("decode error")
	ErrResample      = errors.New("resample error")
	ErrInference     = errors.New("inference error")
	ErrNetwork       = errors.New("network error")
	ErrFileNotFound  = errors.New("file not found")
	ErrIndexCreation = errors.New("index creation error")
	ErrBulkIndex     = errors.New("bulk index error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
)

// Kind names used in logs, run outcomes, and the ledger.
const (
	KindDecode        = "decode"
	KindResample      = "resample"
	KindInference     = "inference"
	KindNetwork       = "network"
	KindFileNotFound  = "file_not_found"
	KindIndexCreation = "index_creation"
	KindBulkIndex     = "bulk_index"
	KindValidation    = "validation"
	KindConfiguration = "configuration"
	KindCancelled     = "cancelled"
	KindUnknown       = "unknown"
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrValidation
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf classifies err by the marker it carries. Cancellation is reported as
// its own kind; a deadline inside a network failure stays a network failure.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrNetwork):
		return KindCancelled
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrResample):
		return KindResample
	case errors.Is(err, ErrInference):
		return KindInference
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	case errors.Is(err, ErrFileNotFound):
		return KindFileNotFound
	case errors.Is(err, ErrIndexCreation):
		return KindIndexCreation
	case errors.Is(err, ErrBulkIndex):
		return KindBulkIndex
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	default:
		return KindUnknown
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
