// Package services defines shared utilities consumed by the gateway, the batch
// transcriber, and the indexer.
//
// Key responsibilities:
//   - Context helpers that stamp request IDs, run IDs, and manifest rows for
//     logging and tracing.
//   - Structured error markers plus the Wrap helper, and KindOf which turns a
//     wrapped failure into a stable kind string for outcomes and HTTP status
//     mapping.
//
// Use these helpers when wiring new pipeline logic so error handling and
// observability stay uniform across components.
package services
