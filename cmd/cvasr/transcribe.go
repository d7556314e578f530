package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/jye-lim/wav2vec2-asr/internal/batch"
	"github.com/jye-lim/wav2vec2-asr/internal/config"
	"github.com/jye-lim/wav2vec2-asr/internal/gateway"
	"github.com/jye-lim/wav2vec2-asr/internal/manifest"
)

type transcribeFlags struct {
	manifest    string
	audioDir    string
	outputDir   string
	concurrency int
	keepAudio   bool
	noProgress  bool
}

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var flags transcribeFlags

	cmd := &cobra.Command{
		Use:   "transcribe",
		Short: "Transcribe every row of a manifest through the gateway",
		Long: "Reads the manifest CSV, posts each referenced audio file to the gateway's /asr\n" +
			"endpoint, and writes <name>_updated.csv with a generated_text column. Audio\n" +
			"files are deleted after their request unless --keep-audio is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			opts, manifestPath, audioDir := transcribeOptions(cfg, flags)
			opts.Logger = logger

			client, err := gateway.NewClient(cfg.Gateway.InferURL, gateway.WithTimeout(opts.RequestTimeout))
			if err != nil {
				return err
			}

			store, err := ctx.openLedger()
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
				opts.Recorder = store
			}

			out := cmd.OutOrStdout()
			var bar *progressbar.ProgressBar
			if !flags.noProgress && isTerminal(out) {
				if m, err := manifest.Load(manifestPath); err == nil {
					bar = newProgressBar(out, m.Len())
					opts.Progress = func(batch.Outcome) { _ = bar.Add(1) }
				}
			}

			orchestrator, err := batch.New(client, opts)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, runErr := orchestrator.Run(runCtx, manifestPath, audioDir)
			if bar != nil {
				_ = bar.Finish()
				fmt.Fprintln(out)
			}
			if report.Total > 0 || runErr == nil {
				printTranscribeReport(out, report)
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&flags.manifest, "manifest", "", "Manifest CSV (defaults to data_dir/manifest_name)")
	cmd.Flags().StringVar(&flags.audioDir, "audio-dir", "", "Directory audio filenames are resolved against (defaults to data_dir)")
	cmd.Flags().StringVar(&flags.outputDir, "output-dir", "", "Directory for the updated manifest (defaults to output_dir)")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "Parallel gateway requests (defaults to batch.concurrency)")
	cmd.Flags().BoolVar(&flags.keepAudio, "keep-audio", false, "Do not delete audio files after transcription")
	cmd.Flags().BoolVar(&flags.noProgress, "no-progress", false, "Disable the progress bar")
	return cmd
}

func transcribeOptions(cfg *config.Config, flags transcribeFlags) (batch.Options, string, string) {
	manifestPath := strings.TrimSpace(flags.manifest)
	if manifestPath == "" {
		manifestPath = cfg.ManifestPath()
	}
	audioDir := strings.TrimSpace(flags.audioDir)
	if audioDir == "" {
		audioDir = cfg.Paths.DataDir
	}
	outputDir := strings.TrimSpace(flags.outputDir)
	if outputDir == "" {
		outputDir = cfg.Paths.OutputDir
	}
	concurrency := cfg.Batch.Concurrency
	if flags.concurrency > 0 {
		concurrency = flags.concurrency
	}

	return batch.Options{
		Concurrency:    concurrency,
		RequestTimeout: seconds(cfg.Gateway.RequestTimeoutSeconds),
		OutputDir:      outputDir,
		DeleteAudio:    cfg.Batch.DeleteAudio && !flags.keepAudio,
		Lock:           cfg.Batch.Lock,
		InferURL:       cfg.Gateway.InferURL,
	}, manifestPath, audioDir
}

func newProgressBar(out io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("transcribing"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
}

func printTranscribeReport(out io.Writer, report batch.Report) {
	fmt.Fprintf(out, "Run %s: %s\n", report.RunID, report.Summary())
	if report.Cancelled {
		fmt.Fprintln(out, "Run was cancelled; rows not yet sent were left without a transcript")
	}
	fmt.Fprintf(out, "Updated manifest: %s\n", report.OutputPath)

	problems := newGrid(numCol("Row"), textCol("File"), textCol("Status"), textCol("Reason"))
	for _, o := range report.Outcomes {
		if o.Status == batch.StatusSuccess {
			continue
		}
		problems.add(o.Row+1, orDash(o.Filename), string(o.Status), orDash(truncate(o.Reason, 60)))
	}
	if !problems.empty() {
		fmt.Fprintln(out, problems)
	}
}
