// Package acoustic holds the acoustic model capability and the greedy CTC
// decoder that turns its per-frame label scores into text.
//
// A Model maps normalized 16 kHz samples to a frames-by-labels score matrix.
// The Remote backend talks to a model-serving process over HTTP using
// msgpack. Vocabulary carries the label set; the default is the character
// vocabulary of facebook/wav2vec2-large-960h.
package acoustic
