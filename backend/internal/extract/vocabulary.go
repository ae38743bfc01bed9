package extract

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"graphrag/backend/pkg/errors"
)

// TopicDef is one topic in the vocabulary file. A topic matches a
// message when any of its keywords occurs in the text.
type TopicDef struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// Vocabulary is the set of topics the service recognizes. Matching is
// case-insensitive substring search over the message text.
type Vocabulary struct {
	Topics []TopicDef `yaml:"topics"`

	// lowered keyword sets, parallel to Topics
	lowered [][]string
}

// DefaultVocabulary returns the built-in topic set used when no
// vocabulary file is configured.
func DefaultVocabulary() *Vocabulary {
	v := &Vocabulary{
		Topics: []TopicDef{
			{Name: "LLMs", Keywords: []string{"llm", "gpt", "transformer", "language model"}},
			{Name: "RAG", Keywords: []string{"rag", "retrieval", "vector store"}},
			{Name: "Knowledge Graphs", Keywords: []string{"graph", "node", "edge", "triplet"}},
		},
	}
	v.compile()
	return v
}

// LoadVocabulary reads a YAML topic vocabulary from disk
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewVocabularyLoadFailed(path, err)
	}

	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, errors.NewVocabularyLoadFailed(path, err)
	}

	if err := v.validate(); err != nil {
		return nil, errors.NewVocabularyLoadFailed(path, err)
	}

	v.compile()
	return &v, nil
}

func (v *Vocabulary) validate() error {
	if len(v.Topics) == 0 {
		return fmt.Errorf("vocabulary has no topics")
	}
	seen := make(map[string]bool, len(v.Topics))
	for _, t := range v.Topics {
		if t.Name == "" {
			return fmt.Errorf("topic with empty name")
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate topic: %s", t.Name)
		}
		seen[t.Name] = true
		if len(t.Keywords) == 0 {
			return fmt.Errorf("topic %s has no keywords", t.Name)
		}
	}
	return nil
}

func (v *Vocabulary) compile() {
	v.lowered = make([][]string, len(v.Topics))
	for i, t := range v.Topics {
		kws := make([]string, 0, len(t.Keywords))
		for _, kw := range t.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				kws = append(kws, kw)
			}
		}
		v.lowered[i] = kws
	}
}

// Match returns the topics whose keywords occur in the text. Each
// topic appears at most once, in vocabulary order, no matter how many
// of its keywords hit.
func (v *Vocabulary) Match(text string) []string {
	lower := strings.ToLower(text)
	var matched []string
	for i, t := range v.Topics {
		for _, kw := range v.lowered[i] {
			if strings.Contains(lower, kw) {
				matched = append(matched, t.Name)
				break
			}
		}
	}
	return matched
}
