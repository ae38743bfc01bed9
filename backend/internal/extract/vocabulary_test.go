package extract

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDefaultVocabulary_Match(t *testing.T) {
	vocab := DefaultVocabulary()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"single keyword", "tell me about GPT models", []string{"LLMs"}},
		{"case insensitive", "WHAT IS A TRANSFORMER?", []string{"LLMs"}},
		{"multiple topics", "how does RAG use a knowledge graph?", []string{"RAG", "Knowledge Graphs"}},
		{"repeated keywords count once", "graph graph graph node edge", []string{"Knowledge Graphs"}},
		{"substring match", "retrieval-augmented generation", []string{"RAG"}},
		{"no match", "what is the weather today", nil},
		{"empty text", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := vocab.Match(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Match(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestVocabulary_MatchPreservesOrder(t *testing.T) {
	vocab := DefaultVocabulary()

	// All three topics hit; order must follow the vocabulary, not the text
	got := vocab.Match("a triplet in a vector store fed to an llm")
	want := []string{"LLMs", "RAG", "Knowledge Graphs"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Match order = %v, want %v", got, want)
	}
}

func TestLoadVocabulary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "topics.yaml")

	content := `topics:
  - name: Databases
    keywords: [postgres, sql, "query planner"]
  - name: Networking
    keywords: [tcp, udp]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write vocab file: %v", err)
	}

	vocab, err := LoadVocabulary(path)
	if err != nil {
		t.Fatalf("LoadVocabulary failed: %v", err)
	}
	if len(vocab.Topics) != 2 {
		t.Fatalf("Expected 2 topics, got %d", len(vocab.Topics))
	}

	got := vocab.Match("why is the Query Planner slow over TCP?")
	want := []string{"Databases", "Networking"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Match = %v, want %v", got, want)
	}
}

func TestLoadVocabulary_Invalid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"not yaml", "{{{{"},
		{"no topics", "topics: []"},
		{"empty name", "topics:\n  - name: \"\"\n    keywords: [a]"},
		{"no keywords", "topics:\n  - name: X\n    keywords: []"},
		{"duplicate names", "topics:\n  - name: X\n    keywords: [a]\n  - name: X\n    keywords: [b]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("write vocab file: %v", err)
			}
			if _, err := LoadVocabulary(path); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestLoadVocabulary_MissingFile(t *testing.T) {
	if _, err := LoadVocabulary(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}
