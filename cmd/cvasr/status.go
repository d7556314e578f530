package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jye-lim/wav2vec2-asr/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check directories, manifest, gateway and search engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := isTerminal(out)

			lines := renderSectionHeader("Configuration", colorize)
			lines = append(lines,
				renderStatusLine("Manifest", statusInfo, cfg.ManifestPath(), colorize),
				renderStatusLine("Gateway", statusInfo, cfg.Gateway.InferURL, colorize),
				renderStatusLine("Search", statusInfo, fmt.Sprintf("%s (index %s)", cfg.Search.URL, cfg.Search.Index), colorize),
				renderStatusLine("Run ledger", statusInfo, ledgerDetail(cfg.Ledger.Enabled, cfg.Ledger.Path), colorize),
				"",
			)
			lines = append(lines, renderSectionHeader("Checks", colorize)...)

			results := preflight.RunAll(cmd.Context(), cfg)
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}
			for _, line := range lines {
				fmt.Fprintln(out, line)
			}

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d of %d checks failed", len(failed), len(results))
			}
			return nil
		},
	}
}

func ledgerDetail(enabled bool, path string) string {
	if !enabled {
		return "disabled"
	}
	return path
}
