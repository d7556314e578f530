// Package indexing loads a transcribed manifest into the search engine.
//
// The pipeline fills absent age, gender and accent cells with "unknown",
// drops rows without a transcript, makes sure the index exists, and sends
// every remaining row in a single bulk request. Index creation failures other
// than "already exists" stop the pipeline before any document is sent.
package indexing
