// Package manifest reads and writes the CSV manifests that describe an audio
// corpus. A manifest has a header row; the filename column names each audio
// file and the generated_text column holds its transcription.
//
// Cells are kept as strings in header order so pass-through columns survive a
// load/save cycle unchanged. An empty cell is treated as absent.
package manifest
