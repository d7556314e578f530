package batch_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/jye-lim/wav2vec2-asr/internal/batch"
	"github.com/jye-lim/wav2vec2-asr/internal/gateway"
	"github.com/jye-lim/wav2vec2-asr/internal/ledger"
	"github.com/jye-lim/wav2vec2-asr/internal/manifest"
	"github.com/jye-lim/wav2vec2-asr/internal/services"
	"github.com/jye-lim/wav2vec2-asr/internal/testsupport"
)

type transcriberFunc func(ctx context.Context, filename string, data []byte) (gateway.TranscriptionResponse, error)

func (f transcriberFunc) Transcribe(ctx context.Context, filename string, data []byte) (gateway.TranscriptionResponse, error) {
	return f(ctx, filename, data)
}

func echoTranscriber() transcriberFunc {
	return func(_ context.Context, filename string, data []byte) (gateway.TranscriptionResponse, error) {
		return gateway.TranscriptionResponse{Transcription: strings.ToUpper(string(data)), Duration: "1.00"}, nil
	}
}

func writeManifest(t *testing.T, dir string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, "cv-valid-dev.csv")
	testsupport.WriteFile(t, path, []byte(strings.Join(lines, "\n")+"\n"))
	return path
}

func newOrchestrator(t *testing.T, client batch.Transcriber, opts batch.Options) *batch.Orchestrator {
	t.Helper()
	orch, err := batch.New(client, opts)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return orch
}

func TestRunTranscribesExistingAndSkipsMissing(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if _, _, err := r.FormFile(gateway.UploadField); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"transcription":"HELLO","duration":"1.50"}`))
	}))
	defer ts.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithInferURL(ts.URL+"/asr"))
	audio := filepath.Join(cfg.Paths.DataDir, "a.mp3")
	testsupport.WriteFile(t, audio, []byte("fake mp3"))
	manifestPath := writeManifest(t, cfg.Paths.DataDir, "filename,age", "a.mp3,twenties", "missing.mp3,")

	client, err := gateway.NewClient(cfg.Gateway.InferURL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	orch := newOrchestrator(t, client, batch.Options{
		Concurrency: 2,
		OutputDir:   cfg.Paths.OutputDir,
		DeleteAudio: true,
		Lock:        true,
	})

	report, err := orch.Run(context.Background(), manifestPath, cfg.Paths.DataDir)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("gateway calls = %d, want 1", calls.Load())
	}
	if report.OutputPath != filepath.Join(cfg.Paths.OutputDir, "cv-valid-dev_updated.csv") {
		t.Fatalf("output path = %s", report.OutputPath)
	}
	if report.Succeeded != 1 || report.Skipped != 1 || report.Failed != 0 {
		t.Fatalf("unexpected counts: %s", report.Summary())
	}
	if report.Outcomes[1].Reason != batch.ReasonFileNotFound {
		t.Fatalf("reason = %q", report.Outcomes[1].Reason)
	}
	if testsupport.Exists(t, audio) {
		t.Fatal("audio file should be deleted after the gateway call")
	}
	if !report.Outcomes[0].AudioDeleted {
		t.Fatal("outcome should record deletion")
	}
	if testsupport.Exists(t, filepath.Join(cfg.Paths.DataDir, batch.LockFileName)) {
		t.Fatal("lock file should be removed after the run")
	}

	out, err := manifest.Load(report.OutputPath)
	if err != nil {
		t.Fatalf("load output: %v", err)
	}
	if got := out.Record(0).Value(manifest.ColumnGeneratedText); got != "HELLO" {
		t.Fatalf("row 0 transcript = %q", got)
	}
	if _, ok := out.Record(1).Get(manifest.ColumnGeneratedText); ok {
		t.Fatal("missing file must leave transcript absent")
	}
	if out.Record(0).Value("age") != "twenties" {
		t.Fatal("pass-through column lost")
	}
}

func TestRunFailedCallLeavesTranscriptAbsentAndDeletesAudio(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	audio := filepath.Join(cfg.Paths.DataDir, "clips", "b.mp3")
	testsupport.WriteFile(t, audio, []byte("x"))
	manifestPath := writeManifest(t, cfg.Paths.DataDir, "filename,generated_text", "clips/b.mp3,STALE")

	failing := transcriberFunc(func(context.Context, string, []byte) (gateway.TranscriptionResponse, error) {
		return gateway.TranscriptionResponse{}, services.Wrap(services.ErrNetwork, "gateway-client", "asr", "", errors.New("gateway returned 500"))
	})
	orch := newOrchestrator(t, failing, batch.Options{OutputDir: cfg.Paths.OutputDir, DeleteAudio: true})

	report, err := orch.Run(context.Background(), manifestPath, cfg.Paths.DataDir)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	outcome := report.Outcomes[0]
	if outcome.Status != batch.StatusFailed || outcome.ErrorKind != services.KindNetwork {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if testsupport.Exists(t, audio) {
		t.Fatal("audio should be deleted even when the call fails")
	}
	out, err := manifest.Load(report.OutputPath)
	if err != nil {
		t.Fatalf("load output: %v", err)
	}
	if _, ok := out.Record(0).Get(manifest.ColumnGeneratedText); ok {
		t.Fatal("stale transcript should be reset and stay absent")
	}
}

func TestRunRefusesFilenamesOutsideAudioDirectory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	audioDir := filepath.Join(cfg.Paths.DataDir, "audio")
	victim := filepath.Join(cfg.Paths.DataDir, "precious.txt")
	testsupport.WriteFile(t, victim, []byte("keep me"))
	nested := filepath.Join(audioDir, "clips", "b.mp3")
	testsupport.WriteFile(t, nested, []byte("b"))
	manifestPath := writeManifest(t, cfg.Paths.DataDir,
		"filename",
		"../precious.txt",
		"clips/b.mp3",
		victim,
		"clips/../../precious.txt",
	)

	var calls atomic.Int32
	counting := transcriberFunc(func(ctx context.Context, filename string, data []byte) (gateway.TranscriptionResponse, error) {
		calls.Add(1)
		return echoTranscriber()(ctx, filename, data)
	})
	orch := newOrchestrator(t, counting, batch.Options{OutputDir: cfg.Paths.OutputDir, DeleteAudio: true, Concurrency: 2})

	report, err := orch.Run(context.Background(), manifestPath, audioDir)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	for _, row := range []int{0, 2, 3} {
		o := report.Outcomes[row]
		if o.Status != batch.StatusSkipped || o.Reason != batch.ReasonOutsideAudioDir || o.ErrorKind != services.KindValidation {
			t.Fatalf("row %d: unexpected outcome %+v", row, o)
		}
		if o.AudioDeleted {
			t.Fatalf("row %d: nothing outside the audio directory may be deleted", row)
		}
	}
	if !testsupport.Exists(t, victim) {
		t.Fatal("file outside the audio directory was deleted")
	}
	if got := report.Outcomes[1]; got.Status != batch.StatusSuccess || got.Transcript != "B" {
		t.Fatalf("nested filename should still resolve: %+v", got)
	}
	if testsupport.Exists(t, nested) {
		t.Fatal("nested audio should be deleted after its call")
	}
	if calls.Load() != 1 {
		t.Fatalf("gateway calls = %d, want 1", calls.Load())
	}
}

func TestRunSkipsRepeatedFilenames(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.DataDir, "a.mp3"), []byte("a"))
	manifestPath := writeManifest(t, cfg.Paths.DataDir, "filename", "a.mp3", "./a.mp3", "a.mp3")

	var calls atomic.Int32
	counting := transcriberFunc(func(ctx context.Context, filename string, data []byte) (gateway.TranscriptionResponse, error) {
		calls.Add(1)
		return echoTranscriber()(ctx, filename, data)
	})
	orch := newOrchestrator(t, counting, batch.Options{OutputDir: cfg.Paths.OutputDir, DeleteAudio: true, Concurrency: 4})

	report, err := orch.Run(context.Background(), manifestPath, cfg.Paths.DataDir)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if first := report.Outcomes[0]; first.Status != batch.StatusSuccess || first.Transcript != "A" {
		t.Fatalf("first row: %+v", first)
	}
	for _, row := range []int{1, 2} {
		o := report.Outcomes[row]
		if o.Status != batch.StatusSkipped || !strings.HasPrefix(o.Reason, batch.ReasonDuplicateFilename) {
			t.Fatalf("row %d: unexpected outcome %+v", row, o)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("gateway calls = %d, want 1", calls.Load())
	}
	if report.Succeeded != 1 || report.Skipped != 2 {
		t.Fatalf("summary = %s", report.Summary())
	}
}

func TestRunKeepsAudioWhenDeletionDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	audio := filepath.Join(cfg.Paths.DataDir, "a.mp3")
	testsupport.WriteFile(t, audio, []byte("a"))
	manifestPath := writeManifest(t, cfg.Paths.DataDir, "filename", "a.mp3")

	orch := newOrchestrator(t, echoTranscriber(), batch.Options{OutputDir: cfg.Paths.OutputDir})
	if _, err := orch.Run(context.Background(), manifestPath, cfg.Paths.DataDir); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !testsupport.Exists(t, audio) {
		t.Fatal("audio should be kept")
	}
}

func TestRunPreservesRowOrderUnderConcurrency(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	lines := []string{"filename"}
	const rows = 12
	for i := 0; i < rows; i++ {
		name := fmt.Sprintf("sample-%06d.mp3", i)
		testsupport.WriteFile(t, filepath.Join(cfg.Paths.DataDir, name), []byte(fmt.Sprintf("row %d", i)))
		lines = append(lines, name)
	}
	manifestPath := writeManifest(t, cfg.Paths.DataDir, lines...)

	var mu sync.Mutex
	inFlight, peak := 0, 0
	slowFirst := transcriberFunc(func(ctx context.Context, filename string, data []byte) (gateway.TranscriptionResponse, error) {
		mu.Lock()
		inFlight++
		peak = max(peak, inFlight)
		mu.Unlock()
		var idx int
		_, _ = fmt.Sscanf(string(data), "row %d", &idx)
		time.Sleep(time.Duration(rows-idx) * 2 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return echoTranscriber()(ctx, filename, data)
	})

	var progress int
	orch := newOrchestrator(t, slowFirst, batch.Options{
		Concurrency: 4,
		OutputDir:   cfg.Paths.OutputDir,
		Progress:    func(batch.Outcome) { progress++ },
	})
	report, err := orch.Run(context.Background(), manifestPath, cfg.Paths.DataDir)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if peak > 4 {
		t.Fatalf("peak in-flight = %d, want <= 4", peak)
	}
	if progress != rows {
		t.Fatalf("progress callbacks = %d, want %d", progress, rows)
	}

	out, err := manifest.Load(report.OutputPath)
	if err != nil {
		t.Fatalf("load output: %v", err)
	}
	for i := 0; i < rows; i++ {
		rec := out.Record(i)
		if want := fmt.Sprintf("ROW %d", i); rec.Value(manifest.ColumnGeneratedText) != want {
			t.Fatalf("row %d transcript = %q, want %q", i, rec.Value(manifest.ColumnGeneratedText), want)
		}
		if report.Outcomes[i].Row != i {
			t.Fatalf("outcome %d has row %d", i, report.Outcomes[i].Row)
		}
	}
}

func TestRunCancelledStillWritesManifest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.DataDir, "a.mp3"), []byte("a"))
	manifestPath := writeManifest(t, cfg.Paths.DataDir, "filename", "a.mp3", "b.mp3")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	orch := newOrchestrator(t, echoTranscriber(), batch.Options{OutputDir: cfg.Paths.OutputDir, DeleteAudio: true})

	report, err := orch.Run(ctx, manifestPath, cfg.Paths.DataDir)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !report.Cancelled || report.Skipped != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	for _, o := range report.Outcomes {
		if o.Reason != batch.ReasonCancelled {
			t.Fatalf("reason = %q", o.Reason)
		}
	}
	if !testsupport.Exists(t, report.OutputPath) {
		t.Fatal("manifest should be written on cancellation")
	}
	if !testsupport.Exists(t, filepath.Join(cfg.Paths.DataDir, "a.mp3")) {
		t.Fatal("undispatched audio must not be deleted")
	}
}

func TestRunRecordsLedger(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.DataDir, "a.mp3"), []byte("a"))
	manifestPath := writeManifest(t, cfg.Paths.DataDir, "filename", "a.mp3", "gone.mp3")

	store, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer store.Close()

	orch := newOrchestrator(t, echoTranscriber(), batch.Options{
		Concurrency: 2,
		OutputDir:   cfg.Paths.OutputDir,
		InferURL:    "http://gateway/asr",
		Recorder:    store,
	})
	report, err := orch.Run(context.Background(), manifestPath, cfg.Paths.DataDir)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	run, err := store.GetRun(context.Background(), report.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != ledger.RunCompleted || run.Succeeded != 1 || run.Skipped != 1 || run.OutputPath != report.OutputPath {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.InferURL != "http://gateway/asr" || run.Concurrency != 2 {
		t.Fatalf("run settings not recorded: %+v", run)
	}
	outcomes, err := store.Outcomes(context.Background(), report.RunID)
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}
	if len(outcomes) != 2 || outcomes[0].Transcript != "A" || outcomes[1].Status != string(batch.StatusSkipped) {
		t.Fatalf("unexpected outcomes: %+v", outcomes)
	}
}

func TestRunRefusesLockedAudioDirectory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.DataDir, "a.mp3"), []byte("a"))
	manifestPath := writeManifest(t, cfg.Paths.DataDir, "filename", "a.mp3")

	held := flock.New(filepath.Join(cfg.Paths.DataDir, batch.LockFileName))
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("pre-lock failed: ok=%v err=%v", ok, err)
	}
	defer held.Unlock()

	orch := newOrchestrator(t, echoTranscriber(), batch.Options{OutputDir: cfg.Paths.OutputDir, DeleteAudio: true, Lock: true})
	if _, err := orch.Run(context.Background(), manifestPath, cfg.Paths.DataDir); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected lock error, got %v", err)
	}
	if !testsupport.Exists(t, filepath.Join(cfg.Paths.DataDir, "a.mp3")) {
		t.Fatal("audio must not be touched while another run holds the lock")
	}
}

func TestRunRequiresFilenameColumn(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	manifestPath := writeManifest(t, cfg.Paths.DataDir, "path", "a.mp3")
	orch := newOrchestrator(t, echoTranscriber(), batch.Options{OutputDir: cfg.Paths.OutputDir})
	if _, err := orch.Run(context.Background(), manifestPath, cfg.Paths.DataDir); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestRunAppliesRequestTimeout(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.DataDir, "slow.mp3"), []byte("s"))
	manifestPath := writeManifest(t, cfg.Paths.DataDir, "filename", "slow.mp3")

	blocking := transcriberFunc(func(ctx context.Context, _ string, _ []byte) (gateway.TranscriptionResponse, error) {
		<-ctx.Done()
		return gateway.TranscriptionResponse{}, services.Wrap(services.ErrNetwork, "gateway-client", "asr", "", ctx.Err())
	})
	orch := newOrchestrator(t, blocking, batch.Options{OutputDir: cfg.Paths.OutputDir, RequestTimeout: 20 * time.Millisecond})
	report, err := orch.Run(context.Background(), manifestPath, cfg.Paths.DataDir)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Outcomes[0].Status != batch.StatusFailed || report.Outcomes[0].ErrorKind != services.KindNetwork {
		t.Fatalf("unexpected outcome: %+v", report.Outcomes[0])
	}
}
