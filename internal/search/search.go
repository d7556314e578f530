package search

import (
	"context"
	"encoding/json"
)

// Document field names. The set is fixed by Schema.
const (
	FieldGeneratedText = "generated_text"
	FieldDuration      = "duration"
	FieldAge           = "age"
	FieldGender        = "gender"
	FieldAccent        = "accent"
)

// CategoricalFields are filled with Unknown when absent and used as facets.
var CategoricalFields = []string{FieldAge, FieldGender, FieldAccent}

// Unknown replaces absent categorical values.
const Unknown = "unknown"

// Document is one indexed transcription.
type Document struct {
	GeneratedText string   `json:"generated_text"`
	Duration      *float64 `json:"duration,omitempty"`
	Age           string   `json:"age"`
	Gender        string   `json:"gender"`
	Accent        string   `json:"accent"`
}

// CreateResult reports how an index creation request ended.
type CreateResult string

const (
	IndexCreated CreateResult = "created"
	IndexExists  CreateResult = "exists"
)

// BulkResult aggregates a bulk load.
type BulkResult struct {
	Succeeded int
	Failed    int
	// FirstError is the reason of the first rejected document, if any.
	FirstError string
}

// Engine creates indexes and loads documents.
type Engine interface {
	CreateIndex(ctx context.Context, name string, schema Schema) (CreateResult, error)
	BulkIndex(ctx context.Context, name string, docs []Document) (BulkResult, error)
}

// Schema is the index definition sent at creation.
type Schema struct {
	Shards   int
	Replicas int
}

// DefaultSchema returns a Schema with the given settings.
func DefaultSchema(shards, replicas int) Schema {
	if shards <= 0 {
		shards = 1
	}
	if replicas < 0 {
		replicas = 0
	}
	return Schema{Shards: shards, Replicas: replicas}
}

// categoricalMapping is text with a keyword sub-field used for facets.
var categoricalMapping = map[string]any{
	"type": "text",
	"fields": map[string]any{
		"keyword": map[string]any{"type": "keyword", "ignore_above": 256},
	},
}

// Body renders the index creation request body.
func (s Schema) Body() ([]byte, error) {
	body := map[string]any{
		"settings": map[string]any{
			"number_of_shards":   s.Shards,
			"number_of_replicas": s.Replicas,
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				FieldGeneratedText: map[string]any{"type": "text"},
				FieldDuration:      map[string]any{"type": "float"},
				FieldAge:           categoricalMapping,
				FieldGender:        categoricalMapping,
				FieldAccent:        categoricalMapping,
			},
		},
	}
	return json.Marshal(body)
}
