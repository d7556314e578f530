package gateway

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jye-lim/wav2vec2-asr/internal/acoustic"
	"github.com/jye-lim/wav2vec2-asr/internal/audio"
	"github.com/jye-lim/wav2vec2-asr/internal/logging"
	"github.com/jye-lim/wav2vec2-asr/internal/services"
)

// Result is the outcome of one transcription.
type Result struct {
	Text string
	// Duration is the length of the uploaded recording in seconds, measured
	// at its original sample rate.
	Duration   float64
	Confidence float64
	Frames     int
}

// FormatDuration renders seconds with two decimals, the wire format of /asr.
func FormatDuration(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 2, 64)
}

// Service transcribes audio payloads. It is safe for concurrent use; model
// calls are serialized unless the model declares itself concurrent-safe.
type Service struct {
	normalizer *audio.Normalizer
	model      acoustic.Model
	vocab      *acoustic.Vocabulary
	logger     *slog.Logger

	serialize bool
	modelMu   sync.Mutex
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithVocabulary overrides the default wav2vec2 vocabulary.
func WithVocabulary(v *acoustic.Vocabulary) ServiceOption {
	return func(s *Service) {
		if v != nil {
			s.vocab = v
		}
	}
}

// WithTargetRate sets the sample rate the model expects.
func WithTargetRate(rate int) ServiceOption {
	return func(s *Service) {
		s.normalizer = audio.NewNormalizer(rate)
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logging.NewComponentLogger(logger, "gateway")
	}
}

// NewService builds the inference context around model.
func NewService(model acoustic.Model, opts ...ServiceOption) (*Service, error) {
	if model == nil {
		return nil, services.Wrap(services.ErrConfiguration, "gateway", "init", "acoustic model is required", nil)
	}
	s := &Service{
		normalizer: audio.NewNormalizer(audio.DefaultTargetRate),
		model:      model,
		vocab:      acoustic.DefaultVocabulary(),
		logger:     logging.NewComponentLogger(nil, "gateway"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.serialize = !acoustic.IsConcurrentSafe(model)
	return s, nil
}

// Ping is the liveness probe. It has no side effects.
func (s *Service) Ping() string {
	return "pong"
}

// TargetRate returns the sample rate audio is normalized to.
func (s *Service) TargetRate() int {
	return s.normalizer.TargetRate()
}

// Transcribe decodes raw, runs the model, and greedy-decodes its output.
// Errors carry services.ErrDecode, services.ErrResample, or services.ErrInference.
func (s *Service) Transcribe(ctx context.Context, raw []byte) (Result, error) {
	logger := logging.WithContext(ctx, s.logger)
	started := time.Now()

	buf, err := s.normalizer.Normalize(raw)
	if err != nil {
		return Result{}, err
	}

	logits, err := s.logits(ctx, acoustic.NormalizeInput(buf.Samples), buf.SampleRate)
	if err != nil {
		return Result{}, services.Wrap(services.ErrInference, "gateway", "model", "", err)
	}
	decoded, err := acoustic.GreedyDecode(logits, s.vocab)
	if err != nil {
		return Result{}, services.Wrap(services.ErrInference, "gateway", "decode", "", err)
	}

	result := Result{
		Text:       decoded.Text,
		Duration:   buf.Duration(),
		Confidence: decoded.Confidence,
		Frames:     decoded.Frames,
	}
	logger.Debug("transcribed audio",
		logging.Int("source_rate", buf.SourceRate),
		logging.Bool("resampled", buf.Resampled()),
		logging.Float64("duration_seconds", result.Duration),
		logging.Float64("confidence", result.Confidence),
		logging.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

func (s *Service) logits(ctx context.Context, samples []float32, rate int) ([][]float32, error) {
	if s.serialize {
		s.modelMu.Lock()
		defer s.modelMu.Unlock()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.model.Logits(ctx, samples, rate)
}
