package audio

import (
	"fmt"

	"github.com/jye-lim/wav2vec2-asr/internal/services"
)

// DefaultTargetRate is the rate wav2vec2 models are trained on.
const DefaultTargetRate = 16000

// Normalizer decodes audio and brings it to a fixed sample rate.
type Normalizer struct {
	targetRate int
}

// NewNormalizer returns a Normalizer for targetRate. Non-positive rates fall
// back to DefaultTargetRate.
func NewNormalizer(targetRate int) *Normalizer {
	if targetRate <= 0 {
		targetRate = DefaultTargetRate
	}
	return &Normalizer{targetRate: targetRate}
}

// TargetRate returns the sample rate of every Buffer this Normalizer produces.
func (n *Normalizer) TargetRate() int {
	return n.targetRate
}

// Normalize decodes raw and resamples it to the target rate when needed.
// It fails with services.ErrDecode or services.ErrResample.
func (n *Normalizer) Normalize(raw []byte) (Buffer, error) {
	samples, rate, err := Decode(raw)
	if err != nil {
		return Buffer{}, err
	}
	buf := Buffer{
		Samples:      samples,
		SampleRate:   rate,
		SourceRate:   rate,
		SourceFrames: len(samples),
	}
	if rate == n.targetRate {
		return buf, nil
	}
	resampled, err := Resample(samples, rate, n.targetRate)
	if err != nil {
		return Buffer{}, fmt.Errorf("normalize %d Hz audio: %w", rate, err)
	}
	buf.Samples = resampled
	buf.SampleRate = n.targetRate
	if len(resampled) == 0 {
		return Buffer{}, services.Wrap(services.ErrResample, "audio", "resample", "recording too short for target rate", nil)
	}
	return buf, nil
}
