package acoustic

import "context"

// Model produces per-frame label scores (logits) for a mono sample buffer.
// The returned matrix is frames x labels; every row has the same width.
type Model interface {
	Logits(ctx context.Context, samples []float32, sampleRate int) ([][]float32, error)
}

// ConcurrentSafe is implemented by models that accept overlapping Logits calls.
// Models that do not implement it are treated as single-flight.
type ConcurrentSafe interface {
	ConcurrentSafe() bool
}

// IsConcurrentSafe reports whether m declares itself safe for concurrent use.
func IsConcurrentSafe(m Model) bool {
	cs, ok := m.(ConcurrentSafe)
	return ok && cs.ConcurrentSafe()
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, samples []float32, sampleRate int) ([][]float32, error)

// Logits calls f.
func (f ModelFunc) Logits(ctx context.Context, samples []float32, sampleRate int) ([][]float32, error) {
	return f(ctx, samples, sampleRate)
}
