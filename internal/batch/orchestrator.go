package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/jye-lim/wav2vec2-asr/internal/fileutil"
	"github.com/jye-lim/wav2vec2-asr/internal/gateway"
	"github.com/jye-lim/wav2vec2-asr/internal/ledger"
	"github.com/jye-lim/wav2vec2-asr/internal/logging"
	"github.com/jye-lim/wav2vec2-asr/internal/manifest"
	"github.com/jye-lim/wav2vec2-asr/internal/services"
)

// LockFileName is created in the audio directory while a run holds it.
const LockFileName = ".cvasr.lock"

// Transcriber sends one audio file to the gateway.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, data []byte) (gateway.TranscriptionResponse, error)
}

// Recorder persists run history.
type Recorder interface {
	StartRun(ctx context.Context, run ledger.Run) error
	FinishRun(ctx context.Context, run ledger.Run, outcomes []ledger.Outcome) error
}

// Options tunes an Orchestrator.
type Options struct {
	Concurrency    int
	RequestTimeout time.Duration
	// OutputDir receives the updated manifest; empty means beside the input.
	OutputDir   string
	DeleteAudio bool
	Lock        bool
	InferURL    string
	Logger      *slog.Logger
	Recorder    Recorder
	// Progress is called once per finished row, from a single goroutine at a time.
	Progress func(Outcome)
}

// Orchestrator runs manifests through a Transcriber.
type Orchestrator struct {
	client Transcriber
	opts   Options
	logger *slog.Logger
}

// New builds an Orchestrator.
func New(client Transcriber, opts Options) (*Orchestrator, error) {
	if client == nil {
		return nil, services.Wrap(services.ErrConfiguration, "batch", "init", "transcriber is required", nil)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Orchestrator{
		client: client,
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "batch"),
	}, nil
}

// Run transcribes every row of the manifest at manifestPath using audio files
// resolved against audioDir, then writes the updated manifest. When ctx is
// cancelled, rows not yet dispatched are marked skipped, the manifest is still
// written, and the returned error wraps ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, manifestPath, audioDir string) (Report, error) {
	report := Report{
		RunID:        uuid.NewString(),
		ManifestPath: manifestPath,
		OutputPath:   manifest.UpdatedPath(manifestPath, o.opts.OutputDir),
		StartedAt:    time.Now(),
	}
	ctx = services.WithRunID(ctx, report.RunID)
	logger := logging.WithContext(ctx, o.logger)

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return report, err
	}
	if err := m.Require(manifest.ColumnFilename); err != nil {
		return report, err
	}
	m.ResetColumn(manifest.ColumnGeneratedText)
	report.Total = m.Len()

	unlock, err := o.lockAudioDir(audioDir)
	if err != nil {
		return report, err
	}
	defer unlock()

	o.startLedger(ctx, report, audioDir)
	logger.Info("batch run started",
		logging.String("manifest", manifestPath),
		logging.String("audio_dir", audioDir),
		logging.Int("rows", report.Total),
		logging.Int("concurrency", o.opts.Concurrency),
	)

	report.Outcomes = o.process(ctx, m, audioDir)
	report.Cancelled = ctx.Err() != nil

	for _, outcome := range report.Outcomes {
		if outcome.Status == StatusSuccess {
			m.Record(outcome.Row).Set(manifest.ColumnGeneratedText, outcome.Transcript)
		}
	}
	report.tally()

	saveErr := m.Save(report.OutputPath)
	report.FinishedAt = time.Now()

	status := ledger.RunCompleted
	var runErr error
	switch {
	case saveErr != nil:
		status = ledger.RunFailed
		runErr = fmt.Errorf("write updated manifest: %w", saveErr)
	case report.Cancelled:
		status = ledger.RunCancelled
		runErr = fmt.Errorf("batch run cancelled: %w", ctx.Err())
	}
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	o.finishLedger(report, status, errMsg)

	logger.Info("batch run finished",
		logging.String("output", report.OutputPath),
		logging.Int("succeeded", report.Succeeded),
		logging.Int("skipped", report.Skipped),
		logging.Int("failed", report.Failed),
		logging.Bool("cancelled", report.Cancelled),
		logging.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, runErr
}

// process fans rows out to workers and returns outcomes indexed by row.
func (o *Orchestrator) process(ctx context.Context, m *manifest.Manifest, audioDir string) []Outcome {
	n := m.Len()
	outcomes := make([]Outcome, n)
	dispatched := make([]bool, n)

	jobs := make(chan int)
	var (
		wg         sync.WaitGroup
		progressMu sync.Mutex
	)
	finish := func(outcome Outcome) {
		outcomes[outcome.Row] = outcome
		if o.opts.Progress != nil {
			progressMu.Lock()
			o.opts.Progress(outcome)
			progressMu.Unlock()
		}
	}

	workers := min(o.opts.Concurrency, max(n, 1))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := range jobs {
				started := time.Now()
				outcome := o.processRow(ctx, m.Record(row), audioDir)
				outcome.Elapsed = time.Since(started)
				finish(outcome)
			}
		}()
	}

	duplicates := duplicateRows(m)

dispatch:
	for row := 0; row < n; row++ {
		if ctx.Err() != nil {
			break
		}
		if first, ok := duplicates[row]; ok {
			finish(o.duplicateOutcome(ctx, m.Record(row), first))
			dispatched[row] = true
			continue
		}
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- row:
			dispatched[row] = true
		}
	}
	close(jobs)
	wg.Wait()

	for row := range outcomes {
		if dispatched[row] {
			continue
		}
		rec := m.Record(row)
		outcomes[row] = Outcome{
			Row:       row,
			Filename:  rec.Filename(),
			Status:    StatusSkipped,
			Reason:    ReasonCancelled,
			ErrorKind: services.KindCancelled,
		}
	}
	return outcomes
}

func (o *Orchestrator) processRow(ctx context.Context, rec manifest.Record, audioDir string) Outcome {
	ctx = services.WithRow(ctx, rec.Index())
	logger := logging.WithContext(ctx, o.logger)
	outcome := Outcome{Row: rec.Index(), Filename: rec.Filename()}

	if outcome.Filename == "" {
		outcome.Status = StatusSkipped
		outcome.Reason = ReasonMissingFilename
		outcome.ErrorKind = services.KindValidation
		logging.WarnWithContext(logger, "row has no filename", "row_missing_filename",
			logging.String(logging.FieldImpact, "row left untranscribed"),
			logging.String(logging.FieldErrorHint, "fill the filename column"),
		)
		return outcome
	}

	audioPath, ok := resolveAudioPath(audioDir, outcome.Filename)
	if !ok {
		outcome.Status = StatusSkipped
		outcome.Reason = ReasonOutsideAudioDir
		outcome.ErrorKind = services.KindValidation
		logging.WarnWithContext(logger, "filename points outside the audio directory", "row_path_escape",
			logging.String("filename", outcome.Filename),
			logging.String("audio_dir", audioDir),
			logging.String(logging.FieldImpact, "row left untranscribed and no file touched"),
			logging.String(logging.FieldErrorHint, "use paths relative to the audio directory"),
		)
		return outcome
	}
	if !fileutil.IsRegularFile(audioPath) {
		outcome.Status = StatusSkipped
		outcome.Reason = ReasonFileNotFound
		outcome.ErrorKind = services.KindFileNotFound
		logging.WarnWithContext(logger, "audio file not found", "audio_missing",
			logging.String("path", audioPath),
			logging.String(logging.FieldImpact, "row left untranscribed"),
			logging.String(logging.FieldErrorHint, "check paths.data_dir and the filename column"),
		)
		return outcome
	}

	data, err := os.ReadFile(audioPath)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Reason = err.Error()
		outcome.ErrorKind = services.KindOf(err)
		logging.WarnWithContext(logger, "audio file unreadable", "audio_unreadable",
			logging.String("path", audioPath),
			logging.Error(err),
			logging.String(logging.FieldImpact, "row left untranscribed"),
		)
		return outcome
	}

	resp, callErr := o.call(ctx, outcome.Filename, data)
	if o.opts.DeleteAudio {
		o.deleteAudio(logger, audioPath, &outcome)
	}

	if callErr != nil {
		outcome.Status = StatusFailed
		outcome.Reason = callErr.Error()
		outcome.ErrorKind = services.KindOf(callErr)
		logging.WarnWithContext(logger, "transcription request failed", "asr_request_failed",
			logging.String("filename", outcome.Filename),
			logging.String(logging.FieldErrorKind, outcome.ErrorKind),
			logging.Error(callErr),
			logging.String(logging.FieldImpact, "row left untranscribed"),
			logging.String(logging.FieldErrorHint, "check the gateway with cvasr status"),
		)
		return outcome
	}

	outcome.Status = StatusSuccess
	outcome.Transcript = resp.Transcription
	outcome.Duration = resp.Duration
	logger.Debug("row transcribed",
		logging.String("filename", outcome.Filename),
		logging.String("duration", resp.Duration),
	)
	return outcome
}

// resolveAudioPath joins a manifest filename onto audioDir. Absolute names and
// names that climb out of audioDir are rejected.
func resolveAudioPath(audioDir, filename string) (string, bool) {
	rel := filepath.Clean(filepath.FromSlash(filename))
	if !filepath.IsLocal(rel) {
		return "", false
	}
	return filepath.Join(audioDir, rel), true
}

// duplicateRows maps every row whose filename already appeared earlier in the
// manifest to the row that first named it.
func duplicateRows(m *manifest.Manifest) map[int]int {
	seen := make(map[string]int, m.Len())
	dups := make(map[int]int)
	for _, rec := range m.Records() {
		name := rec.Filename()
		if name == "" {
			continue
		}
		key := filepath.Clean(filepath.FromSlash(name))
		if first, ok := seen[key]; ok {
			dups[rec.Index()] = first
			continue
		}
		seen[key] = rec.Index()
	}
	return dups
}

func (o *Orchestrator) duplicateOutcome(ctx context.Context, rec manifest.Record, first int) Outcome {
	logger := logging.WithContext(services.WithRow(ctx, rec.Index()), o.logger)
	logging.WarnWithContext(logger, "filename repeats an earlier row", "row_duplicate_filename",
		logging.String("filename", rec.Filename()),
		logging.Int("first_row", first),
		logging.String(logging.FieldImpact, "only the first row is transcribed"),
		logging.String(logging.FieldErrorHint, "remove duplicate rows from the manifest"),
	)
	return Outcome{
		Row:       rec.Index(),
		Filename:  rec.Filename(),
		Status:    StatusSkipped,
		Reason:    fmt.Sprintf("%s (row %d)", ReasonDuplicateFilename, first+1),
		ErrorKind: services.KindValidation,
	}
}

func (o *Orchestrator) call(ctx context.Context, filename string, data []byte) (gateway.TranscriptionResponse, error) {
	if o.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.RequestTimeout)
		defer cancel()
	}
	ctx = services.WithRequestID(ctx, uuid.NewString())
	return o.client.Transcribe(ctx, filepath.Base(filename), data)
}

func (o *Orchestrator) deleteAudio(logger *slog.Logger, path string, outcome *Outcome) {
	removed, err := fileutil.RemoveIfExists(path)
	if err != nil {
		outcome.DeleteError = err.Error()
		logging.WarnWithContext(logger, "audio file not deleted", "audio_delete_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "audio file remains on disk"),
		)
		return
	}
	outcome.AudioDeleted = removed
}

// lockAudioDir takes an exclusive advisory lock on audioDir. A directory that
// does not exist has nothing to delete and is not locked.
func (o *Orchestrator) lockAudioDir(audioDir string) (func(), error) {
	noop := func() {}
	if !o.opts.Lock || !o.opts.DeleteAudio {
		return noop, nil
	}
	info, err := os.Stat(audioDir)
	if errors.Is(err, os.ErrNotExist) {
		return noop, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat audio directory: %w", err)
	}
	if !info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "batch", "lock", fmt.Sprintf("%s is not a directory", audioDir), nil)
	}

	lockPath := filepath.Join(audioDir, LockFileName)
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "batch", "lock",
			fmt.Sprintf("another run is using %s (lock %s)", audioDir, lockPath), nil)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			o.logger.Warn("failed to release audio directory lock", logging.Error(err))
		}
		_ = os.Remove(lockPath)
	}, nil
}

func (o *Orchestrator) startLedger(ctx context.Context, report Report, audioDir string) {
	if o.opts.Recorder == nil {
		return
	}
	run := report.ledgerRun(ledger.RunRunning, "")
	run.AudioDir = audioDir
	run.InferURL = o.opts.InferURL
	run.Concurrency = o.opts.Concurrency
	if err := o.opts.Recorder.StartRun(ctx, run); err != nil {
		logging.WarnWithContext(o.logger, "run not recorded", "ledger_start_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run will be missing from cvasr runs"),
		)
	}
}

// finishLedger uses a fresh context so a cancelled run is still recorded.
func (o *Orchestrator) finishLedger(report Report, status ledger.RunStatus, errMsg string) {
	if o.opts.Recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	outcomes := make([]ledger.Outcome, len(report.Outcomes))
	for i, outcome := range report.Outcomes {
		outcomes[i] = outcome.ledgerOutcome()
	}
	if err := o.opts.Recorder.FinishRun(ctx, report.ledgerRun(status, errMsg), outcomes); err != nil {
		logging.WarnWithContext(o.logger, "run outcome not recorded", "ledger_finish_failed",
			logging.String("run_id", report.RunID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "run history is incomplete"),
		)
	}
}

// Summary renders counts for CLI output.
func (r Report) Summary() string {
	parts := []string{
		fmt.Sprintf("%d rows", r.Total),
		fmt.Sprintf("%d transcribed", r.Succeeded),
		fmt.Sprintf("%d skipped", r.Skipped),
		fmt.Sprintf("%d failed", r.Failed),
	}
	return strings.Join(parts, ", ")
}
