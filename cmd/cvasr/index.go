package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jye-lim/wav2vec2-asr/internal/indexing"
	"github.com/jye-lim/wav2vec2-asr/internal/search"
	"github.com/jye-lim/wav2vec2-asr/internal/services"
)

func newIndexCommand(ctx *commandContext) *cobra.Command {
	var manifestPath string
	var indexName string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Load a transcribed manifest into the search index",
		Long: "Fills missing age, gender and accent values with \"unknown\", drops rows\n" +
			"without generated_text, creates the index if needed and bulk-loads the rest.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if strings.TrimSpace(manifestPath) == "" {
				manifestPath = cfg.UpdatedManifestPath()
			}
			if strings.TrimSpace(indexName) == "" {
				indexName = cfg.Search.Index
			}

			engine, err := ctx.searchEngine()
			if err != nil {
				return err
			}
			pipeline, err := indexing.New(engine,
				indexing.WithSchema(search.DefaultSchema(cfg.Search.Shards, cfg.Search.Replicas)),
				indexing.WithLogger(logger),
			)
			if err != nil {
				return err
			}

			report, err := pipeline.Index(cmd.Context(), manifestPath, indexName)
			if err != nil && !errors.Is(err, services.ErrBulkIndex) {
				return err
			}

			// A partially rejected bulk load still reports what reached the index.
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Index %s (created: %s)\n", report.Index, yesNo(report.Created))
			counts := newGrid(numCol("Rows"), numCol("Filled"), numCol("Dropped"), numCol("Indexed"), numCol("Succeeded"), numCol("Failed"))
			counts.add(report.Rows, report.Filled, report.Dropped, report.Indexed, report.Succeeded, report.Failed)
			fmt.Fprintln(out, counts)
			return err
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Transcribed manifest (defaults to the updated manifest in output_dir)")
	cmd.Flags().StringVar(&indexName, "index", "", "Index name (defaults to search.index)")
	return cmd
}
