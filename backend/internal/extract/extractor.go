package extract

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"graphrag/backend/pkg/logger"
)

// Result holds what extraction found in one message
type Result struct {
	Entities []string
	Topics   []string
}

// Extractor combines NER over an external recognizer with topic
// matching against the configured vocabulary. Extraction is a hard
// dependency of the turn: when the recognizer fails, the error
// propagates and the caller aborts without writing anything.
type Extractor struct {
	recognizer EntityRecognizer
	logger     *zap.Logger

	mu    sync.RWMutex
	vocab *Vocabulary
}

// NewExtractor creates an extractor with the given recognizer and
// vocabulary. Pass nil vocab to use the built-in default.
func NewExtractor(recognizer EntityRecognizer, vocab *Vocabulary) *Extractor {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	return &Extractor{
		recognizer: recognizer,
		vocab:      vocab,
		logger:     logger.Get(),
	}
}

// Extract returns the entities and topics found in the text. Entities
// are deduplicated case-insensitively, first surface form wins. Topic
// matching never fails; only the recognizer call can.
func (e *Extractor) Extract(ctx context.Context, text string) (*Result, error) {
	entities, err := e.recognizer.Recognize(ctx, text)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	vocab := e.vocab
	e.mu.RUnlock()

	result := &Result{
		Entities: dedupeEntities(entities),
		Topics:   vocab.Match(text),
	}

	e.logger.Debug("Extraction complete",
		zap.Int("entities", len(result.Entities)),
		zap.Int("topics", len(result.Topics)))

	return result, nil
}

// SwapVocabulary atomically replaces the topic vocabulary. In-flight
// extractions finish with whichever vocabulary they started with.
func (e *Extractor) SwapVocabulary(v *Vocabulary) {
	e.mu.Lock()
	e.vocab = v
	e.mu.Unlock()
}

// Vocab returns the current vocabulary
func (e *Extractor) Vocab() *Vocabulary {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.vocab
}

func dedupeEntities(entities []string) []string {
	seen := make(map[string]bool, len(entities))
	out := make([]string, 0, len(entities))
	for _, ent := range entities {
		ent = strings.TrimSpace(ent)
		if ent == "" {
			continue
		}
		key := strings.ToLower(ent)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ent)
	}
	return out
}
