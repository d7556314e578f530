package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jye-lim/wav2vec2-asr/internal/search"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var size int
	var filters []string
	var indexName string

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search indexed transcriptions",
		Long: "Runs a weighted multi-field query (generated_text 1.0; age, gender, accent 0.5)\n" +
			"and prints matching documents plus facet counts. Without a query every document\n" +
			"matches. Filters take the form field=value on age, gender or accent.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			parsed, err := parseFilters(filters)
			if err != nil {
				return err
			}
			if strings.TrimSpace(indexName) == "" {
				indexName = cfg.Search.Index
			}
			engine, err := ctx.searchEngine()
			if err != nil {
				return err
			}

			query := search.Query{Size: size, Filters: parsed}
			if len(args) == 1 {
				query.Text = args[0]
			}
			result, err := engine.Search(cmd.Context(), indexName, query)
			if err != nil {
				return err
			}
			printSearchResult(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().IntVarP(&size, "size", "n", 10, "Maximum number of hits")
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "Facet filter field=value (repeatable)")
	cmd.Flags().StringVar(&indexName, "index", "", "Index name (defaults to search.index)")
	return cmd
}

func parseFilters(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for _, entry := range raw {
		field, value, ok := strings.Cut(entry, "=")
		field = strings.ToLower(strings.TrimSpace(field))
		value = strings.TrimSpace(value)
		if !ok || field == "" || value == "" {
			return nil, fmt.Errorf("invalid filter %q (expected field=value)", entry)
		}
		out[field] = value
	}
	return out, nil
}

func printSearchResult(out io.Writer, result search.Result) {
	fmt.Fprintf(out, "%d matching documents\n", result.Total)
	if len(result.Hits) > 0 {
		hits := newGrid(numCol("Score"), textCol("Transcript"), numCol("Duration"), textCol("Age"), textCol("Gender"), textCol("Accent"))
		for _, hit := range result.Hits {
			duration := "-"
			if hit.Document.Duration != nil {
				duration = strconv.FormatFloat(*hit.Document.Duration, 'f', 2, 64)
			}
			hits.add(
				strconv.FormatFloat(hit.Score, 'f', 2, 64),
				truncate(hit.Document.GeneratedText, 60),
				duration,
				orDash(hit.Document.Age),
				orDash(hit.Document.Gender),
				orDash(hit.Document.Accent),
			)
		}
		fmt.Fprintln(out, hits)
	}

	for _, field := range search.CategoricalFields {
		buckets := result.Facets[field]
		if len(buckets) == 0 {
			continue
		}
		parts := make([]string, len(buckets))
		for i, b := range buckets {
			parts[i] = fmt.Sprintf("%s (%d)", b.Value, b.Count)
		}
		fmt.Fprintf(out, "%s: %s\n", field, strings.Join(parts, ", "))
	}
}
