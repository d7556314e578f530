package preflight

import (
	"context"

	"github.com/jye-lim/wav2vec2-asr/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckManifest(cfg.ManifestPath()),
		CheckGateway(ctx, cfg.Gateway.InferURL),
	}
	if cfg.Model.Endpoint != "" {
		results = append(results, CheckModelBackend(ctx, cfg.Model.Endpoint))
	}
	results = append(results, CheckSearch(ctx, cfg.Search))
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
