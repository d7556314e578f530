package gateway_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jye-lim/wav2vec2-asr/internal/acoustic"
	"github.com/jye-lim/wav2vec2-asr/internal/gateway"
	"github.com/jye-lim/wav2vec2-asr/internal/services"
	"github.com/jye-lim/wav2vec2-asr/internal/testsupport"
)

// spellingModel emits one-hot frames spelling text regardless of input.
func spellingModel(t testing.TB, text string) acoustic.ModelFunc {
	t.Helper()
	vocab := acoustic.DefaultVocabulary()
	return func(ctx context.Context, samples []float32, sampleRate int) ([][]float32, error) {
		frames := make([][]float32, 0, len(text)*2)
		for _, r := range text {
			label := string(r)
			if r == ' ' {
				label = "|"
			}
			id := vocab.IndexOf(label)
			if id < 0 {
				return nil, errors.New("label not in vocabulary: " + label)
			}
			row := make([]float32, vocab.Size())
			row[id] = 10
			blank := make([]float32, vocab.Size())
			blank[vocab.Blank()] = 10
			frames = append(frames, row, blank)
		}
		return frames, nil
	}
}

func TestServiceTranscribe(t *testing.T) {
	var gotRate int
	var gotLen int
	inner := spellingModel(t, "HELLO WORLD")
	model := acoustic.ModelFunc(func(ctx context.Context, samples []float32, rate int) ([][]float32, error) {
		gotRate = rate
		gotLen = len(samples)
		return inner(ctx, samples, rate)
	})
	svc, err := gateway.NewService(model)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}

	result, err := svc.Transcribe(context.Background(), testsupport.SineWAV(t, 48000, 2, 48000*2))
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if result.Text != "HELLO WORLD" {
		t.Fatalf("text = %q", result.Text)
	}
	if gateway.FormatDuration(result.Duration) != "2.00" {
		t.Fatalf("duration = %v", result.Duration)
	}
	if gotRate != 16000 {
		t.Fatalf("model saw rate %d, want 16000", gotRate)
	}
	if gotLen < 31999 || gotLen > 32001 {
		t.Fatalf("model saw %d samples, want ~32000", gotLen)
	}
}

func TestServiceTranscribeErrorKinds(t *testing.T) {
	failing := acoustic.ModelFunc(func(context.Context, []float32, int) ([][]float32, error) {
		return nil, errors.New("out of memory")
	})
	empty := acoustic.ModelFunc(func(context.Context, []float32, int) ([][]float32, error) {
		return nil, nil
	})
	wav := testsupport.SineWAV(t, 16000, 1, 1600)

	tests := []struct {
		name   string
		model  acoustic.Model
		raw    []byte
		marker error
	}{
		{"garbage", spellingModel(t, "A"), []byte("not audio"), services.ErrDecode},
		{"model failure", failing, wav, services.ErrInference},
		{"empty logits", empty, wav, services.ErrInference},
	}
	for _, tc := range tests {
		svc, err := gateway.NewService(tc.model)
		if err != nil {
			t.Fatalf("%s: NewService returned error: %v", tc.name, err)
		}
		_, err = svc.Transcribe(context.Background(), tc.raw)
		if !errors.Is(err, tc.marker) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.marker, err)
		}
	}
}

func TestNewServiceRequiresModel(t *testing.T) {
	if _, err := gateway.NewService(nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestServiceSerializesUnsafeModel(t *testing.T) {
	var active, peak int32
	inner := spellingModel(t, "A")
	model := acoustic.ModelFunc(func(ctx context.Context, samples []float32, rate int) ([][]float32, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return inner(ctx, samples, rate)
	})
	svc, err := gateway.NewService(model)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}

	wav := testsupport.SineWAV(t, 16000, 1, 1600)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Transcribe(context.Background(), wav); err != nil {
				t.Errorf("Transcribe returned error: %v", err)
			}
		}()
	}
	wg.Wait()
	if peak != 1 {
		t.Fatalf("peak concurrent model calls = %d, want 1", peak)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[float64]string{
		0:        "0.00",
		1.5:      "1.50",
		2.345678: "2.35",
		10:       "10.00",
	}
	for in, want := range cases {
		if got := gateway.FormatDuration(in); got != want {
			t.Fatalf("FormatDuration(%v) = %q, want %q", in, got, want)
		}
	}
}
