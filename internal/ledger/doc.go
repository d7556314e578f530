// Package ledger stores batch transcription history in SQLite.
//
// Each orchestrator run is one row in runs; every manifest row it touched is
// one row in outcomes. The CLI reads the ledger for "cvasr runs".
package ledger
