package audio

// Buffer is decoded, mono, possibly resampled audio.
type Buffer struct {
	// Samples are in [-1, 1] at SampleRate.
	Samples    []float32
	SampleRate int

	// SourceRate and SourceFrames describe the recording before resampling.
	SourceRate   int
	SourceFrames int
}

// Duration returns the length of the original recording in seconds. It is
// derived from the pre-resample frame count so resampling never changes it.
func (b Buffer) Duration() float64 {
	if b.SourceRate <= 0 {
		return 0
	}
	return float64(b.SourceFrames) / float64(b.SourceRate)
}

// Resampled reports whether Samples differ in rate from the source.
func (b Buffer) Resampled() bool {
	return b.SampleRate != b.SourceRate
}
