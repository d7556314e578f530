// Package batch transcribes every row of a manifest through the inference
// gateway.
//
// Rows are processed by a bounded worker pool and their outcomes are stored by
// row index, so the updated manifest keeps the input order no matter which
// worker finishes first. Missing audio is skipped; gateway failures leave the
// transcript absent. Each audio file is removed once the gateway has been
// called for it. The updated manifest is written once, after every worker has
// returned, including when the run is cancelled.
package batch
