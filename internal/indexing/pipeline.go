package indexing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jye-lim/wav2vec2-asr/internal/logging"
	"github.com/jye-lim/wav2vec2-asr/internal/manifest"
	"github.com/jye-lim/wav2vec2-asr/internal/search"
	"github.com/jye-lim/wav2vec2-asr/internal/services"
)

// Report summarizes one indexing run.
type Report struct {
	Index string
	// Rows is the manifest row count before filtering.
	Rows int
	// Filled counts categorical cells replaced with "unknown".
	Filled int
	// Dropped counts rows removed for lacking a transcript.
	Dropped int
	// Indexed is the number of documents sent in the bulk request.
	Indexed   int
	Succeeded int
	Failed    int
	Created   bool
}

// Pipeline indexes manifests into an Engine.
type Pipeline struct {
	engine search.Engine
	schema search.Schema
	logger *slog.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithSchema overrides the default one-shard, zero-replica schema.
func WithSchema(schema search.Schema) Option {
	return func(p *Pipeline) {
		p.schema = schema
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logging.NewComponentLogger(logger, "indexing")
	}
}

// New builds a Pipeline around engine.
func New(engine search.Engine, opts ...Option) (*Pipeline, error) {
	if engine == nil {
		return nil, services.Wrap(services.ErrConfiguration, "indexing", "init", "search engine is required", nil)
	}
	p := &Pipeline{
		engine: engine,
		schema: search.DefaultSchema(1, 0),
		logger: logging.NewComponentLogger(nil, "indexing"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Index loads manifestPath into indexName.
func (p *Pipeline) Index(ctx context.Context, manifestPath, indexName string) (Report, error) {
	report := Report{Index: indexName}

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return report, err
	}
	report.Rows = m.Len()

	report.Filled = Clean(m)
	report.Dropped = Filter(m)
	p.logger.Info("manifest prepared",
		logging.String("manifest", manifestPath),
		logging.Int("rows", report.Rows),
		logging.Int("filled_unknown", report.Filled),
		logging.Int("dropped_without_transcript", report.Dropped),
	)

	created, err := p.engine.CreateIndex(ctx, indexName, p.schema)
	if err != nil {
		if !errors.Is(err, services.ErrIndexCreation) {
			err = services.Wrap(services.ErrIndexCreation, "indexing", "create", indexName, err)
		}
		logging.ErrorWithContext(p.logger, "index creation failed", "index_create_failed",
			logging.String("index", indexName),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check search.url and cluster health"),
		)
		return report, err
	}
	report.Created = created == search.IndexCreated
	p.logger.Info("index ready", logging.String("index", indexName), logging.String("result", string(created)))

	docs := Documents(m)
	report.Indexed = len(docs)
	res, err := p.engine.BulkIndex(ctx, indexName, docs)
	report.Succeeded = res.Succeeded
	report.Failed = res.Failed
	if err != nil {
		if !errors.Is(err, services.ErrBulkIndex) {
			err = services.Wrap(services.ErrBulkIndex, "indexing", "bulk", indexName, err)
		}
		if report.Failed == 0 && report.Succeeded == 0 {
			report.Failed = report.Indexed
		}
		logging.ErrorWithContext(p.logger, "bulk indexing failed", "bulk_index_failed",
			logging.String("index", indexName),
			logging.Int("failed", report.Failed),
			logging.Int("attempted", report.Indexed),
			logging.Error(err),
		)
		return report, err
	}

	p.logger.Info("documents indexed",
		logging.String("index", indexName),
		logging.Int("indexed", report.Indexed),
		logging.Int("succeeded", report.Succeeded),
	)
	return report, nil
}

// Clean fills absent categorical cells with search.Unknown and returns how
// many cells were filled. Missing columns are added.
func Clean(m *manifest.Manifest) int {
	filled := 0
	for _, column := range search.CategoricalFields {
		m.EnsureColumn(column)
	}
	for _, rec := range m.Records() {
		for _, column := range search.CategoricalFields {
			if _, ok := rec.Get(column); !ok {
				rec.Set(column, search.Unknown)
				filled++
			}
		}
	}
	return filled
}

// Filter drops rows without a transcript and returns how many were removed.
func Filter(m *manifest.Manifest) int {
	if !m.Has(manifest.ColumnGeneratedText) {
		dropped := m.Len()
		m.Filter(func(manifest.Record) bool { return false })
		return dropped
	}
	return m.Filter(func(rec manifest.Record) bool {
		_, ok := rec.Get(manifest.ColumnGeneratedText)
		return ok
	})
}

// Documents converts rows into search documents. Unparseable durations are omitted.
func Documents(m *manifest.Manifest) []search.Document {
	docs := make([]search.Document, 0, m.Len())
	for _, rec := range m.Records() {
		doc := search.Document{
			GeneratedText: rec.Value(manifest.ColumnGeneratedText),
			Age:           rec.Value(manifest.ColumnAge),
			Gender:        rec.Value(manifest.ColumnGender),
			Accent:        rec.Value(manifest.ColumnAccent),
		}
		if d, ok := rec.Float(manifest.ColumnDuration); ok {
			doc.Duration = &d
		}
		docs = append(docs, doc)
	}
	return docs
}
