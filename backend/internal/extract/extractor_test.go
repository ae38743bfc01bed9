package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	pkgerrors "graphrag/backend/pkg/errors"
)

// Mock implementations for testing

type mockRecognizer struct {
	entities []string
	err      error
}

func (m *mockRecognizer) Recognize(ctx context.Context, text string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.entities, nil
}

func TestExtractor_Extract(t *testing.T) {
	recognizer := &mockRecognizer{
		entities: []string{"Neo4j", "Alice", "neo4j", " ", "Bob"},
	}

	ext := NewExtractor(recognizer, nil)
	result, err := ext.Extract(context.Background(), "Alice asked about Neo4j graph queries")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	// Case-insensitive dedupe, first surface form wins, blanks dropped
	wantEntities := []string{"Neo4j", "Alice", "Bob"}
	if !reflect.DeepEqual(result.Entities, wantEntities) {
		t.Errorf("Entities = %v, want %v", result.Entities, wantEntities)
	}

	wantTopics := []string{"Knowledge Graphs"}
	if !reflect.DeepEqual(result.Topics, wantTopics) {
		t.Errorf("Topics = %v, want %v", result.Topics, wantTopics)
	}
}

func TestExtractor_RecognizerFailure(t *testing.T) {
	recognizer := &mockRecognizer{err: errors.New("connection refused")}

	ext := NewExtractor(recognizer, nil)
	result, err := ext.Extract(context.Background(), "anything")
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if result != nil {
		t.Errorf("Expected nil result on failure, got %+v", result)
	}
}

func TestExtractor_SwapVocabulary(t *testing.T) {
	recognizer := &mockRecognizer{}
	ext := NewExtractor(recognizer, nil)

	result, err := ext.Extract(context.Background(), "a question about postgres")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(result.Topics) != 0 {
		t.Errorf("Expected no topics before swap, got %v", result.Topics)
	}

	replacement := &Vocabulary{
		Topics: []TopicDef{
			{Name: "Databases", Keywords: []string{"postgres"}},
		},
	}
	replacement.compile()
	ext.SwapVocabulary(replacement)

	result, err = ext.Extract(context.Background(), "a question about postgres")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !reflect.DeepEqual(result.Topics, []string{"Databases"}) {
		t.Errorf("Expected [Databases] after swap, got %v", result.Topics)
	}
}

func TestNERClient_Recognize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/extract" {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"entities": ["Alice", "Neo4j"]}`))
	}))
	defer server.Close()

	client := NewNERClient(server.URL, 2*time.Second)
	entities, err := client.Recognize(context.Background(), "Alice uses Neo4j")
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}

	want := []string{"Alice", "Neo4j"}
	if !reflect.DeepEqual(entities, want) {
		t.Errorf("Entities = %v, want %v", entities, want)
	}
}

func TestNERClient_Recognize_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewNERClient(server.URL, 2*time.Second)
	_, err := client.Recognize(context.Background(), "anything")
	if err == nil {
		t.Fatal("Expected error for 503 response, got nil")
	}
	if !pkgerrors.IsErrorType(err, pkgerrors.ErrorTypeExtraction) {
		t.Errorf("Expected extraction error type, got %v", err)
	}
}

func TestNERClient_Recognize_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := NewNERClient(server.URL, 2*time.Second)
	if _, err := client.Recognize(context.Background(), "anything"); err == nil {
		t.Fatal("Expected error for malformed response, got nil")
	}
}

func TestNERClient_Recognize_Unreachable(t *testing.T) {
	// Port 1 is never listening
	client := NewNERClient("http://127.0.0.1:1", 500*time.Millisecond)
	if _, err := client.Recognize(context.Background(), "anything"); err == nil {
		t.Fatal("Expected error for unreachable service, got nil")
	}
}
