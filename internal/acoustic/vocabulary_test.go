package acoustic_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jye-lim/wav2vec2-asr/internal/acoustic"
)

func TestDefaultVocabularyLayout(t *testing.T) {
	vocab := acoustic.DefaultVocabulary()
	if vocab.Size() != 32 {
		t.Fatalf("size = %d, want 32", vocab.Size())
	}
	if vocab.Blank() != 0 {
		t.Fatalf("blank = %d, want 0", vocab.Blank())
	}
	if vocab.Label(4) != "|" || vocab.Label(5) != "E" || vocab.Label(31) != "Z" {
		t.Fatalf("unexpected labels: %q %q %q", vocab.Label(4), vocab.Label(5), vocab.Label(31))
	}
	if vocab.Label(99) != "" {
		t.Fatal("out of range label should be empty")
	}
}

func TestLoadVocabulary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.json")
	if err := os.WriteFile(path, []byte(`{"<pad>": 0, "|": 1, "a": 2, "b": 3}`), 0o644); err != nil {
		t.Fatalf("write vocab: %v", err)
	}
	vocab, err := acoustic.LoadVocabulary(path)
	if err != nil {
		t.Fatalf("LoadVocabulary returned error: %v", err)
	}
	if vocab.Size() != 4 || vocab.Label(3) != "b" {
		t.Fatalf("unexpected vocabulary: size=%d label3=%q", vocab.Size(), vocab.Label(3))
	}
}

func TestLoadVocabularyRejectsGaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.json")
	if err := os.WriteFile(path, []byte(`{"<pad>": 0, "a": 2}`), 0o644); err != nil {
		t.Fatalf("write vocab: %v", err)
	}
	if _, err := acoustic.LoadVocabulary(path); err == nil {
		t.Fatal("expected error for non-contiguous ids")
	}
}

func TestNewVocabularyRequiresBlank(t *testing.T) {
	if _, err := acoustic.NewVocabulary([]string{"a", "b"}); err == nil {
		t.Fatal("expected error without <pad>")
	}
}
