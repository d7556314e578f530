package acoustic

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

const (
	padToken      = "<pad>"
	unknownToken  = "<unk>"
	wordDelimiter = "|"
	bosToken      = "<s>"
	eosToken      = "</s>"
)

// wav2vec2Labels is the label order of facebook/wav2vec2-large-960h.
var wav2vec2Labels = []string{
	padToken, bosToken, eosToken, unknownToken, wordDelimiter,
	"E", "T", "A", "O", "N", "I", "H", "S", "R", "D", "L", "U", "M", "W", "C",
	"F", "G", "Y", "P", "B", "V", "K", "'", "X", "J", "Q", "Z",
}

// Vocabulary maps label indices to output tokens.
type Vocabulary struct {
	labels    []string
	blank     int
	delimiter int
	special   map[int]bool
}

// DefaultVocabulary returns the wav2vec2-large-960h character vocabulary.
func DefaultVocabulary() *Vocabulary {
	v, _ := NewVocabulary(wav2vec2Labels)
	return v
}

// NewVocabulary builds a Vocabulary from labels in index order. The blank
// label is "<pad>"; "|" separates words.
func NewVocabulary(labels []string) (*Vocabulary, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("vocabulary is empty")
	}
	v := &Vocabulary{
		labels:    append([]string(nil), labels...),
		blank:     -1,
		delimiter: -1,
		special:   make(map[int]bool),
	}
	for i, label := range labels {
		switch label {
		case padToken:
			v.blank = i
		case wordDelimiter:
			v.delimiter = i
		case bosToken, eosToken, unknownToken:
			v.special[i] = true
		}
	}
	if v.blank < 0 {
		return nil, fmt.Errorf("vocabulary has no %s label", padToken)
	}
	return v, nil
}

// LoadVocabulary reads a Hugging Face style vocab.json ({"<pad>": 0, "E": 5, ...}).
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	var ids map[string]int
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}
	type entry struct {
		label string
		id    int
	}
	entries := make([]entry, 0, len(ids))
	for label, id := range ids {
		entries = append(entries, entry{label, id})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	labels := make([]string, len(entries))
	for i, e := range entries {
		if e.id != i {
			return nil, fmt.Errorf("vocabulary ids must be contiguous from 0, found %d at position %d", e.id, i)
		}
		labels[i] = e.label
	}
	return NewVocabulary(labels)
}

// Size returns the number of labels.
func (v *Vocabulary) Size() int {
	return len(v.labels)
}

// Blank returns the CTC blank index.
func (v *Vocabulary) Blank() int {
	return v.blank
}

// Label returns the token for id, or "" when out of range.
func (v *Vocabulary) Label(id int) string {
	if id < 0 || id >= len(v.labels) {
		return ""
	}
	return v.labels[id]
}

// IndexOf returns the id of label, or -1.
func (v *Vocabulary) IndexOf(label string) int {
	for i, l := range v.labels {
		if l == label {
			return i
		}
	}
	return -1
}
