// Package search is the full-text index the transcribed corpus is loaded
// into. Engine is the narrow surface the indexing pipeline needs; Elastic
// implements it (plus querying) on top of go-elasticsearch.
package search
