package audio

import (
	"fmt"
	"math"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/jye-lim/wav2vec2-asr/internal/services"
)

// padSeconds of silence are placed on both sides of the input so the filter
// has enough context to emit the first and last real samples. The padded
// regions are trimmed from the output.
const padSeconds = 0.1

// leads caches the measured output lead per rate pair.
var leads sync.Map

// ExpectedLength is the resampled length of n frames converted from one rate to another.
func ExpectedLength(n, from, to int) int {
	if from <= 0 || to <= 0 {
		return 0
	}
	return int(math.Round(float64(n) * float64(to) / float64(from)))
}

// Resample converts mono samples between rates. Failures are tagged with
// services.ErrResample.
func Resample(samples []float32, from, to int) ([]float32, error) {
	if from <= 0 || to <= 0 {
		return nil, services.Wrap(services.ErrResample, "audio", "resample", fmt.Sprintf("invalid rates %d -> %d", from, to), nil)
	}
	if from == to {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out, nil
	}
	want := ExpectedLength(len(samples), from, to)
	if want == 0 {
		return []float32{}, nil
	}

	lead, err := outputLead(from, to)
	if err != nil {
		return nil, err
	}

	pad := int(math.Ceil(float64(from) * padSeconds))
	input := make([]float64, pad+len(samples)+pad)
	for i, s := range samples {
		input[pad+i] = float64(s)
	}

	output, err := process(from, to, input)
	if err != nil {
		return nil, err
	}

	skip := max(ExpectedLength(pad, from, to)-lead, 0)
	out := make([]float32, want)
	for i := 0; i < want && skip+i < len(output); i++ {
		out[i] = float32(clamp(output[skip+i]))
	}
	return out, nil
}

func process(from, to int, input []float64) ([]float64, error) {
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, services.Wrap(services.ErrResample, "audio", "resample", "create resampler", err)
	}
	output, err := rs.Process(input)
	if err != nil {
		return nil, services.Wrap(services.ErrResample, "audio", "resample", "", err)
	}
	if len(output) == 0 {
		return nil, services.Wrap(services.ErrResample, "audio", "resample", "resampler produced no output", nil)
	}
	return output, nil
}

// outputLead reports how many output samples the resampler emits ahead of the
// ideal time mapping for a from->to conversion. It is measured once per rate
// pair by locating the peak of a resampled impulse.
func outputLead(from, to int) (int, error) {
	key := [2]int{from, to}
	if v, ok := leads.Load(key); ok {
		return v.(int), nil
	}

	n := max(from/2, 256)
	pos := n / 2
	impulse := make([]float64, n)
	impulse[pos] = 1
	output, err := process(from, to, impulse)
	if err != nil {
		return 0, err
	}
	peak := 0
	for i, v := range output {
		if math.Abs(v) > math.Abs(output[peak]) {
			peak = i
		}
	}
	lead := ExpectedLength(pos, from, to) - peak

	leads.Store(key, lead)
	return lead, nil
}

func clamp(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return v
	}
}
