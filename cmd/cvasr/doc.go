// Package main hosts the cvasr CLI entrypoint and command graph.
//
// The Cobra command tree covers the whole corpus workflow: serving the
// inference gateway, transcribing a manifest against it, loading the result
// into the search engine, querying the index, and inspecting run history.
// Configuration resolution and logger setup live in commandContext so
// subcommands only deal with flags and output.
//
// Keep this package thin. New behaviour belongs in the internal packages and
// is surfaced here through a command or flag.
package main
