package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/jye-lim/wav2vec2-asr/internal/services"
)

// FieldWeights boosts transcript matches over demographic matches.
var FieldWeights = map[string]float64{
	FieldGeneratedText: 1,
	FieldAge:           0.5,
	FieldGender:        0.5,
	FieldAccent:        0.5,
}

// Query is a free-text search with optional facet filters.
type Query struct {
	Text string
	Size int
	// Filters restricts categorical fields to exact values.
	Filters map[string]string
}

// Hit is one matching document.
type Hit struct {
	ID       string
	Score    float64
	Document Document
}

// Bucket is one facet value and its document count.
type Bucket struct {
	Value string
	Count int64
}

// Result is a page of hits plus facet counts for each categorical field.
type Result struct {
	Total  int64
	Hits   []Hit
	Facets map[string][]Bucket
}

// Body renders the Elasticsearch query DSL for q.
func (q Query) Body() ([]byte, error) {
	size := q.Size
	if size <= 0 {
		size = 10
	}

	var must any = map[string]any{"match_all": map[string]any{}}
	if text := strings.TrimSpace(q.Text); text != "" {
		fields := make([]string, 0, len(FieldWeights))
		for field, weight := range FieldWeights {
			fields = append(fields, fmt.Sprintf("%s^%g", field, weight))
		}
		sort.Strings(fields)
		must = map[string]any{"multi_match": map[string]any{"query": text, "fields": fields}}
	}

	filterKeys := make([]string, 0, len(q.Filters))
	for field := range q.Filters {
		filterKeys = append(filterKeys, field)
	}
	sort.Strings(filterKeys)
	filters := make([]any, 0, len(filterKeys))
	for _, field := range filterKeys {
		if !isCategorical(field) {
			return nil, services.Wrap(services.ErrValidation, "search", "query", fmt.Sprintf("cannot filter on %q", field), nil)
		}
		filters = append(filters, map[string]any{"term": map[string]any{field + ".keyword": q.Filters[field]}})
	}

	aggs := make(map[string]any, len(CategoricalFields))
	for _, field := range CategoricalFields {
		aggs[field] = map[string]any{"terms": map[string]any{"field": field + ".keyword", "size": 20}}
	}

	return json.Marshal(map[string]any{
		"size":  size,
		"query": map[string]any{"bool": map[string]any{"must": must, "filter": filters}},
		"aggs":  aggs,
	})
}

func isCategorical(field string) bool {
	for _, f := range CategoricalFields {
		if f == field {
			return true
		}
	}
	return false
}

// Search runs q against index.
func (e *Elastic) Search(ctx context.Context, index string, q Query) (Result, error) {
	payload, err := q.Body()
	if err != nil {
		return Result{}, err
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	res, err := e.es.Search(
		e.es.Search.WithIndex(index),
		e.es.Search.WithBody(bytes.NewReader(payload)),
		e.es.Search.WithContext(ctx),
	)
	if err != nil {
		return Result{}, services.Wrap(services.ErrNetwork, "search", "query", "", err)
	}
	body := drain(res)
	if res.IsError() {
		return Result{}, services.Wrap(services.ErrNetwork, "search", "query", errorSummary(res.StatusCode, body), nil)
	}
	return parseResult(body)
}

func parseResult(body []byte) (Result, error) {
	if !gjson.ValidBytes(body) {
		return Result{}, services.Wrap(services.ErrNetwork, "search", "query", "malformed search response", nil)
	}
	parsed := gjson.ParseBytes(body)
	out := Result{
		Total:  parsed.Get("hits.total.value").Int(),
		Facets: make(map[string][]Bucket, len(CategoricalFields)),
	}
	for _, hit := range parsed.Get("hits.hits").Array() {
		var doc Document
		if err := json.Unmarshal([]byte(hit.Get("_source").Raw), &doc); err != nil {
			return Result{}, services.Wrap(services.ErrNetwork, "search", "query", "decode hit", err)
		}
		out.Hits = append(out.Hits, Hit{
			ID:       hit.Get("_id").String(),
			Score:    hit.Get("_score").Float(),
			Document: doc,
		})
	}
	for _, field := range CategoricalFields {
		for _, b := range parsed.Get("aggregations." + field + ".buckets").Array() {
			out.Facets[field] = append(out.Facets[field], Bucket{
				Value: b.Get("key").String(),
				Count: b.Get("doc_count").Int(),
			})
		}
	}
	return out, nil
}
