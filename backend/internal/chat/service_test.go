package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"graphrag/backend/internal/evaluation"
	"graphrag/backend/internal/extract"
	"graphrag/backend/internal/graph"
	"graphrag/backend/internal/memory"
	pkgerrors "graphrag/backend/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockExtractor struct {
	result *extract.Result
	err    error
	calls  int32
}

func (m *mockExtractor) Extract(ctx context.Context, text string) (*extract.Result, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockRetriever struct {
	events      []graph.RetrievedEvent
	err         error
	calls       int32
	gotEntities []string
	gotTopics   []string
	retrieveFn  func()
}

func (m *mockRetriever) RetrieveContext(ctx context.Context, userID string, entities, topics []string, limit int) ([]graph.RetrievedEvent, error) {
	atomic.AddInt32(&m.calls, 1)
	m.gotEntities = entities
	m.gotTopics = topics
	if m.retrieveFn != nil {
		m.retrieveFn()
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.events, nil
}

type mockRecorder struct {
	err        error
	calls      int32
	gotContent string
	recordFn   func()
}

func (m *mockRecorder) RecordInteraction(ctx context.Context, userID, content string, entities, topics []string, timestamp time.Time) (*graph.EventRef, error) {
	atomic.AddInt32(&m.calls, 1)
	m.gotContent = content
	if m.recordFn != nil {
		m.recordFn()
	}
	if m.err != nil {
		return nil, m.err
	}
	return &graph.EventRef{ID: "evt-1", Timestamp: timestamp}, nil
}

type mockResponder struct {
	text      string
	gotPrompt string
	respondFn func()
}

func (m *mockResponder) Respond(ctx context.Context, promptText string) string {
	m.gotPrompt = promptText
	if m.respondFn != nil {
		m.respondFn()
	}
	return m.text
}

func testEvents() []graph.RetrievedEvent {
	return []graph.RetrievedEvent{
		{
			EventID:         "e1",
			Content:         "Explain Neo4j",
			Timestamp:       time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
			MatchedEntities: []string{"Neo4j"},
			MatchedTopics:   []string{"Knowledge Graphs"},
		},
		{
			EventID:   "e2",
			Content:   "What is a vector store?",
			Timestamp: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
			MatchedTopics: []string{
				"RAG",
			},
		},
	}
}

func TestHandleTurn_GraphMode(t *testing.T) {
	extractor := &mockExtractor{result: &extract.Result{
		Entities: []string{"Neo4j"},
		Topics:   []string{"Knowledge Graphs"},
	}}
	retriever := &mockRetriever{events: testEvents()}
	recorder := &mockRecorder{}
	responder := &mockResponder{text: "Neo4j is a graph database."}

	svc := NewService(extractor, retriever, recorder, nil, responder, nil, nil, 5)

	result, err := svc.HandleTurn(context.Background(), "u1", "How does Neo4j store data?", ModeGraph)
	if err != nil {
		t.Fatalf("HandleTurn returned error: %v", err)
	}
	if result.Response != "Neo4j is a graph database." {
		t.Errorf("unexpected response %q", result.Response)
	}
	if result.WriteFailed {
		t.Error("WriteFailed should be false on a clean turn")
	}
	if len(result.ContextUsed) != 3 {
		t.Fatalf("expected 2 fact lines plus summary, got %d: %v", len(result.ContextUsed), result.ContextUsed)
	}
	if !strings.Contains(result.ContextUsed[0], "Explain Neo4j") {
		t.Errorf("first context line should describe the top event, got %q", result.ContextUsed[0])
	}
	if len(retriever.gotEntities) != 1 || retriever.gotEntities[0] != "Neo4j" {
		t.Errorf("retriever should receive extracted entities, got %v", retriever.gotEntities)
	}
	if len(retriever.gotTopics) != 1 || retriever.gotTopics[0] != "Knowledge Graphs" {
		t.Errorf("retriever should receive extracted topics, got %v", retriever.gotTopics)
	}
	if recorder.gotContent != "How does Neo4j store data?" {
		t.Errorf("recorder should persist the raw message, got %q", recorder.gotContent)
	}
	if !strings.Contains(responder.gotPrompt, "Memory Context:") {
		t.Errorf("prompt should carry the memory section, got %q", responder.gotPrompt)
	}
	if !strings.Contains(responder.gotPrompt, "User Query:\nHow does Neo4j store data?") {
		t.Errorf("prompt should end with the framed query, got %q", responder.gotPrompt)
	}
}

func TestHandleTurn_RetrieveBeforeWrite(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	note := func(step string) func() {
		return func() {
			mu.Lock()
			order = append(order, step)
			mu.Unlock()
		}
	}

	extractor := &mockExtractor{result: &extract.Result{Entities: []string{"Neo4j"}}}
	retriever := &mockRetriever{retrieveFn: note("retrieve")}
	recorder := &mockRecorder{recordFn: note("record")}
	responder := &mockResponder{text: "ok", respondFn: note("respond")}

	svc := NewService(extractor, retriever, recorder, nil, responder, nil, nil, 5)
	if _, err := svc.HandleTurn(context.Background(), "u1", "Explain Neo4j", ModeGraph); err != nil {
		t.Fatalf("HandleTurn returned error: %v", err)
	}

	want := []string{"retrieve", "respond", "record"}
	if len(order) != len(want) {
		t.Fatalf("expected steps %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("step %d: expected %q, got %q (full order %v)", i, want[i], order[i], order)
		}
	}
}

func TestHandleTurn_ExtractionFailureAborts(t *testing.T) {
	extractor := &mockExtractor{err: pkgerrors.NewExtractionFailed("ner sidecar down", errors.New("connection refused"))}
	retriever := &mockRetriever{}
	recorder := &mockRecorder{}
	responder := &mockResponder{text: "should never be produced"}

	svc := NewService(extractor, retriever, recorder, nil, responder, nil, nil, 5)

	result, err := svc.HandleTurn(context.Background(), "u1", "Explain Neo4j", ModeGraph)
	if err == nil {
		t.Fatal("expected error when extraction fails")
	}
	if result != nil {
		t.Errorf("expected nil result, got %+v", result)
	}
	if !pkgerrors.IsErrorType(err, pkgerrors.ErrorTypeExtraction) {
		t.Errorf("expected extraction error type, got %v", err)
	}
	if atomic.LoadInt32(&retriever.calls) != 0 {
		t.Error("retriever should not run after extraction failure")
	}
	if atomic.LoadInt32(&recorder.calls) != 0 {
		t.Error("recorder should not run after extraction failure")
	}
}

func TestHandleTurn_RetrievalFailureAborts(t *testing.T) {
	extractor := &mockExtractor{result: &extract.Result{Entities: []string{"Neo4j"}}}
	retriever := &mockRetriever{err: pkgerrors.NewStorageReadFailed("u1", errors.New("neo4j unavailable"))}
	recorder := &mockRecorder{}
	responder := &mockResponder{text: "unused"}

	svc := NewService(extractor, retriever, recorder, nil, responder, nil, nil, 5)

	_, err := svc.HandleTurn(context.Background(), "u1", "Explain Neo4j", ModeGraph)
	if err == nil {
		t.Fatal("expected error when retrieval fails")
	}
	if !pkgerrors.IsErrorType(err, pkgerrors.ErrorTypeStorage) {
		t.Errorf("expected storage error type, got %v", err)
	}
	if atomic.LoadInt32(&recorder.calls) != 0 {
		t.Error("recorder should not run after retrieval failure")
	}
}

func TestHandleTurn_WriteFailureKeepsResponse(t *testing.T) {
	extractor := &mockExtractor{result: &extract.Result{Entities: []string{"Neo4j"}}}
	retriever := &mockRetriever{events: testEvents()}
	recorder := &mockRecorder{err: pkgerrors.NewStorageWriteFailed("u1", errors.New("deadline exceeded"))}
	responder := &mockResponder{text: "still useful answer"}

	svc := NewService(extractor, retriever, recorder, nil, responder, nil, nil, 5)

	result, err := svc.HandleTurn(context.Background(), "u1", "Explain Neo4j", ModeGraph)
	if err != nil {
		t.Fatalf("write failure must not fail the turn, got %v", err)
	}
	if result.Response != "still useful answer" {
		t.Errorf("response should survive the failed write, got %q", result.Response)
	}
	if !result.WriteFailed {
		t.Error("WriteFailed should be set when the graph write fails")
	}
}

func TestHandleTurn_BaselineMode(t *testing.T) {
	buffer, err := memory.NewBaselineMemory(5, 16)
	if err != nil {
		t.Fatalf("NewBaselineMemory returned error: %v", err)
	}
	responder := &mockResponder{text: "baseline answer"}

	svc := NewService(nil, nil, nil, buffer, responder, nil, nil, 5)

	first, err := svc.HandleTurn(context.Background(), "u1", "Explain Neo4j", ModeBaseline)
	if err != nil {
		t.Fatalf("HandleTurn returned error: %v", err)
	}
	if len(first.ContextUsed) != 1 || first.ContextUsed[0] != "Explain Neo4j" {
		t.Errorf("first turn context should hold only the first message, got %v", first.ContextUsed)
	}

	second, err := svc.HandleTurn(context.Background(), "u1", "How is it used in Graph RAG?", ModeBaseline)
	if err != nil {
		t.Fatalf("HandleTurn returned error: %v", err)
	}
	if second.Response != "baseline answer" {
		t.Errorf("unexpected response %q", second.Response)
	}
	if len(second.ContextUsed) != 2 || second.ContextUsed[0] != "Explain Neo4j" {
		t.Errorf("second turn context should start with the first message, got %v", second.ContextUsed)
	}
	if !strings.Contains(responder.gotPrompt, "Previous conversation:") {
		t.Errorf("baseline prompt should carry the history section, got %q", responder.gotPrompt)
	}
	if !strings.Contains(responder.gotPrompt, "- Explain Neo4j") {
		t.Errorf("baseline prompt should list the first message, got %q", responder.gotPrompt)
	}
}

func TestHandleTurn_BaselineSkipsGraphPipeline(t *testing.T) {
	extractor := &mockExtractor{result: &extract.Result{}}
	retriever := &mockRetriever{}
	recorder := &mockRecorder{}
	buffer, err := memory.NewBaselineMemory(5, 16)
	if err != nil {
		t.Fatalf("NewBaselineMemory returned error: %v", err)
	}
	responder := &mockResponder{text: "ok"}

	svc := NewService(extractor, retriever, recorder, buffer, responder, nil, nil, 5)
	if _, err := svc.HandleTurn(context.Background(), "u1", "Explain Neo4j", ModeBaseline); err != nil {
		t.Fatalf("HandleTurn returned error: %v", err)
	}

	if n := atomic.LoadInt32(&extractor.calls); n != 0 {
		t.Errorf("extractor ran %d times in baseline mode", n)
	}
	if n := atomic.LoadInt32(&retriever.calls); n != 0 {
		t.Errorf("retriever ran %d times in baseline mode", n)
	}
	if n := atomic.LoadInt32(&recorder.calls); n != 0 {
		t.Errorf("recorder ran %d times in baseline mode", n)
	}
}

func TestHandleTurn_ScoresAttached(t *testing.T) {
	extractor := &mockExtractor{result: &extract.Result{
		Entities: []string{"Neo4j"},
		Topics:   []string{"Knowledge Graphs"},
	}}
	retriever := &mockRetriever{events: testEvents()}
	recorder := &mockRecorder{}
	responder := &mockResponder{text: "Neo4j stores nodes and relationships."}

	evaluator := evaluation.NewEvaluator(func(ctx context.Context, text string) ([]string, []string, error) {
		return []string{"neo4j"}, []string{"Knowledge Graphs"}, nil
	})

	svc := NewService(extractor, retriever, recorder, nil, responder, evaluator, nil, 5)

	result, err := svc.HandleTurn(context.Background(), "u1", "Explain Neo4j", ModeGraph)
	if err != nil {
		t.Fatalf("HandleTurn returned error: %v", err)
	}
	if result.Scores == nil {
		t.Fatal("expected CRS scores on the result")
	}
	if result.Scores.CompositeScore < 0 || result.Scores.CompositeScore > 1 {
		t.Errorf("composite score out of range: %v", result.Scores.CompositeScore)
	}
}

func TestHandleTurn_ScoringFailureIsSoft(t *testing.T) {
	extractor := &mockExtractor{result: &extract.Result{Entities: []string{"Neo4j"}}}
	retriever := &mockRetriever{events: testEvents()}
	recorder := &mockRecorder{}
	responder := &mockResponder{text: "answer"}

	evaluator := evaluation.NewEvaluator(func(ctx context.Context, text string) ([]string, []string, error) {
		return nil, nil, errors.New("ner sidecar flaked")
	})

	svc := NewService(extractor, retriever, recorder, nil, responder, evaluator, nil, 5)

	result, err := svc.HandleTurn(context.Background(), "u1", "Explain Neo4j", ModeGraph)
	if err != nil {
		t.Fatalf("scoring failure must not fail the turn, got %v", err)
	}
	if result.Scores != nil {
		t.Errorf("expected nil scores after evaluation failure, got %+v", result.Scores)
	}
	if result.Response != "answer" {
		t.Errorf("response should be untouched, got %q", result.Response)
	}
}

func TestHandleTurn_SameUserTurnsSerialized(t *testing.T) {
	var inFlight int32
	var overlapped int32

	extractor := &mockExtractor{result: &extract.Result{Entities: []string{"Neo4j"}}}
	retriever := &mockRetriever{retrieveFn: func() {
		if atomic.AddInt32(&inFlight, 1) > 1 {
			atomic.StoreInt32(&overlapped, 1)
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	}}
	recorder := &mockRecorder{}
	responder := &mockResponder{text: "ok"}

	svc := NewService(extractor, retriever, recorder, nil, responder, nil, nil, 5)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.HandleTurn(context.Background(), "same-user", "Explain Neo4j", ModeGraph); err != nil {
				t.Errorf("HandleTurn returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&overlapped) != 0 {
		t.Error("two turns for the same user ran their retrieve window concurrently")
	}
}
