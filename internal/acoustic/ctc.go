package acoustic

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Decoded is the greedy CTC reading of a logits matrix.
type Decoded struct {
	Text string
	// Confidence is the mean per-frame probability of the chosen label.
	Confidence float64
	Frames     int
}

// ErrEmptyLogits is returned when the model produced no frames.
var ErrEmptyLogits = errors.New("model returned no frames")

// GreedyDecode takes the arg-max label per frame, merges consecutive repeats,
// drops the blank and special labels, and maps the word delimiter to a space.
func GreedyDecode(logits [][]float32, vocab *Vocabulary) (Decoded, error) {
	if len(logits) == 0 {
		return Decoded{}, ErrEmptyLogits
	}
	width := vocab.Size()

	var (
		sb      strings.Builder
		prev    = -1
		confSum float64
	)
	for t, frame := range logits {
		if len(frame) != width {
			return Decoded{}, fmt.Errorf("frame %d has %d labels, vocabulary has %d", t, len(frame), width)
		}
		best, prob := argmaxSoftmax(frame)
		confSum += prob
		if best == prev {
			continue
		}
		prev = best
		switch {
		case best == vocab.Blank(), vocab.special[best]:
		case best == vocab.delimiter:
			sb.WriteByte(' ')
		default:
			sb.WriteString(vocab.Label(best))
		}
	}

	return Decoded{
		Text:       strings.Join(strings.Fields(sb.String()), " "),
		Confidence: confSum / float64(len(logits)),
		Frames:     len(logits),
	}, nil
}

// argmaxSoftmax returns the index of the largest score and its softmax probability.
func argmaxSoftmax(frame []float32) (int, float64) {
	best := 0
	for i := 1; i < len(frame); i++ {
		if frame[i] > frame[best] {
			best = i
		}
	}
	peak := float64(frame[best])
	var denom float64
	for _, v := range frame {
		denom += math.Exp(float64(v) - peak)
	}
	if denom == 0 || math.IsNaN(denom) {
		return best, 0
	}
	return best, 1 / denom
}
