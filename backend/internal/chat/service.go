package chat

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"graphrag/backend/internal/evaluation"
	"graphrag/backend/internal/extract"
	"graphrag/backend/internal/graph"
	"graphrag/backend/internal/observability"
	"graphrag/backend/internal/prompt"
	"graphrag/backend/pkg/logger"
)

// Mode selects which memory pipeline serves a turn.
type Mode string

const (
	ModeGraph    Mode = "graph"
	ModeBaseline Mode = "baseline"
)

// TurnResult is everything a single conversational turn produced.
// ContextUsed holds the exact memory lines that went into the prompt,
// so callers and evaluation harnesses can inspect what the model saw.
type TurnResult struct {
	Response    string
	ContextUsed []string
	Scores      *evaluation.Scores
	WriteFailed bool
}

// Extractor yields entities and topics for a piece of text.
type Extractor interface {
	Extract(ctx context.Context, text string) (*extract.Result, error)
}

// ContextRetriever finds past events overlapping the given entities
// and topics for one user.
type ContextRetriever interface {
	RetrieveContext(ctx context.Context, userID string, entities, topics []string, limit int) ([]graph.RetrievedEvent, error)
}

// InteractionRecorder persists a turn into the memory graph.
type InteractionRecorder interface {
	RecordInteraction(ctx context.Context, userID, content string, entities, topics []string, timestamp time.Time) (*graph.EventRef, error)
}

// Responder produces the assistant reply for a fully built prompt.
type Responder interface {
	Respond(ctx context.Context, promptText string) string
}

// Buffer is the baseline sliding-window memory.
type Buffer interface {
	AppendAndGet(userID, message string) []string
}

// Service runs conversational turns in either memory mode.
type Service struct {
	extractor Extractor
	retriever ContextRetriever
	recorder  InteractionRecorder
	buffer    Buffer
	responder Responder
	evaluator *evaluation.Evaluator
	metrics   *observability.Collector
	locks     *userLocks
	limit     int
	logger    *zap.Logger
}

// NewService wires the two pipelines. evaluator and metrics may be nil,
// in which case scoring and instrumentation are skipped.
func NewService(
	extractor Extractor,
	retriever ContextRetriever,
	recorder InteractionRecorder,
	buffer Buffer,
	responder Responder,
	evaluator *evaluation.Evaluator,
	metrics *observability.Collector,
	retrievalLimit int,
) *Service {
	if retrievalLimit <= 0 {
		retrievalLimit = 5
	}
	return &Service{
		extractor: extractor,
		retriever: retriever,
		recorder:  recorder,
		buffer:    buffer,
		responder: responder,
		evaluator: evaluator,
		metrics:   metrics,
		locks:     newUserLocks(64),
		limit:     retrievalLimit,
		logger:    logger.Get().Named("chat"),
	}
}

// HandleTurn runs one question through the selected pipeline and
// returns the reply together with the context that informed it.
func (s *Service) HandleTurn(ctx context.Context, userID, message string, mode Mode) (*TurnResult, error) {
	start := time.Now()

	var (
		result *TurnResult
		err    error
	)
	switch mode {
	case ModeBaseline:
		result = s.baselineTurn(ctx, userID, message)
	default:
		result, err = s.graphTurn(ctx, userID, message)
	}

	s.observeTurn(mode, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	s.attachScores(ctx, message, result)
	return result, nil
}

// graphTurn is the full pipeline: extract, retrieve prior context,
// generate, then record the new event. Retrieval runs before the write
// so the current question never matches itself. The per-user lock
// keeps concurrent turns of the same user from racing that window.
func (s *Service) graphTurn(ctx context.Context, userID, message string) (*TurnResult, error) {
	mu := s.locks.forUser(userID)
	mu.Lock()
	defer mu.Unlock()

	extracted, err := s.extractor.Extract(ctx, message)
	if err != nil {
		s.logger.Error("extraction failed, aborting turn",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, err
	}

	events, err := s.retriever.RetrieveContext(ctx, userID, extracted.Entities, extracted.Topics, s.limit)
	if err != nil {
		s.logger.Error("context retrieval failed, aborting turn",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RetrievedEvents.Observe(float64(len(events)))
	}

	contextLines := prompt.Lines(events)
	promptText := prompt.BuildFromEvents(events, message)
	response := s.responder.Respond(ctx, promptText)

	writeFailed := false
	if _, err := s.recorder.RecordInteraction(ctx, userID, message, extracted.Entities, extracted.Topics, time.Now().UTC()); err != nil {
		writeFailed = true
		s.logger.Error("failed to record interaction, response still served",
			zap.String("user_id", userID),
			zap.Error(err))
		if s.metrics != nil {
			s.metrics.GraphWriteFailures.Inc()
		}
	}

	s.logger.Debug("graph turn complete",
		zap.String("user_id", userID),
		zap.Int("retrieved_events", len(events)),
		zap.Int("entities", len(extracted.Entities)),
		zap.Int("topics", len(extracted.Topics)))

	return &TurnResult{
		Response:    response,
		ContextUsed: contextLines,
		WriteFailed: writeFailed,
	}, nil
}

// baselineTurn appends the message to the user's sliding window and
// prompts with whatever the window now holds.
func (s *Service) baselineTurn(ctx context.Context, userID, message string) *TurnResult {
	history := s.buffer.AppendAndGet(userID, message)
	promptText := prompt.BuildFromBuffer(history, message)
	response := s.responder.Respond(ctx, promptText)

	s.logger.Debug("baseline turn complete",
		zap.String("user_id", userID),
		zap.Int("buffered_messages", len(history)))

	return &TurnResult{
		Response:    response,
		ContextUsed: history,
	}
}

// attachScores computes CRS for the finished turn. Scoring is advisory:
// a failure is logged and the turn is returned without scores.
func (s *Service) attachScores(ctx context.Context, message string, result *TurnResult) {
	if s.evaluator == nil || result == nil {
		return
	}
	contextText := strings.Join(result.ContextUsed, "\n")
	scores, err := s.evaluator.Evaluate(ctx, message, result.Response, contextText)
	if err != nil {
		s.logger.Warn("crs evaluation failed", zap.Error(err))
		return
	}
	result.Scores = scores
}

func (s *Service) observeTurn(mode Mode, elapsed time.Duration, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.TurnsTotal.WithLabelValues(string(mode), status).Inc()
	s.metrics.TurnDuration.WithLabelValues(string(mode)).Observe(elapsed.Seconds())
}
