package llm

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"graphrag/backend/internal/observability"
	"graphrag/backend/pkg/logger"
)

// FallbackResponse is what the user sees when no completion can be
// produced. Generation failures never fail a turn.
const FallbackResponse = "I'm having trouble generating a response right now. Please try again in a moment."

// Generator produces text for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Resolver wraps a generator so callers always get text back. Any
// failure (transport, quota, malformed or empty response, open
// breaker) collapses to FallbackResponse. The circuit breaker stops
// hammering the backend during a hard outage; short-circuited calls
// resolve to the fallback like any other failure.
type Resolver struct {
	generator Generator
	breaker   *gobreaker.CircuitBreaker
	metrics   *observability.Collector
	logger    *zap.Logger
}

// NewResolver creates a resolver with production breaker settings
func NewResolver(generator Generator, metrics *observability.Collector) *Resolver {
	return newResolver(generator, metrics, gobreaker.Settings{
		Name:        "llm",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.8
		},
	})
}

func newResolver(generator Generator, metrics *observability.Collector, settings gobreaker.Settings) *Resolver {
	log := logger.Get()
	if settings.OnStateChange == nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			log.Warn("LLM circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
	}

	return &Resolver{
		generator: generator,
		breaker:   gobreaker.NewCircuitBreaker(settings),
		metrics:   metrics,
		logger:    log,
	}
}

// Respond resolves a prompt to response text. It never fails.
func (r *Resolver) Respond(ctx context.Context, prompt string) string {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.generator.Generate(ctx, prompt)
	})
	if err != nil {
		r.fallback(err)
		return FallbackResponse
	}

	text, ok := result.(string)
	if !ok || text == "" {
		r.fallback(nil)
		return FallbackResponse
	}

	return text
}

func (r *Resolver) fallback(err error) {
	r.logger.Warn("Generation unavailable, answering with fallback", zap.Error(err))
	if r.metrics != nil {
		r.metrics.GenerationFallbacks.Inc()
	}
}
