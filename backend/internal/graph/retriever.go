package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"graphrag/backend/pkg/errors"
	"graphrag/backend/pkg/logger"
)

// Retriever handles the read path: given the entities and topics of
// the current query, it finds the user's past events that share them.
// Reads only; callers run it strictly before the turn's write so the
// live query can never match itself.
type Retriever struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewRetriever creates a retriever over an open driver
func NewRetriever(driver neo4j.DriverWithContext) *Retriever {
	return &Retriever{
		driver: driver,
		logger: logger.Get(),
	}
}

// RetrieveContext returns up to k of the user's past events ranked by
// how many of the query's entities and topics they share, newest
// first among ties. Only this user's events are candidates. An empty
// result is normal; storage failures propagate and are never masked
// as an empty context.
func (r *Retriever) RetrieveContext(ctx context.Context, userID string, entities, topics []string, k int) ([]RetrievedEvent, error) {
	if len(entities) == 0 && len(topics) == 0 {
		return nil, nil
	}

	var byEntity, byTopic []RetrievedEvent

	g, gctx := errgroup.WithContext(ctx)

	if len(entities) > 0 {
		keys := make([]string, len(entities))
		for i, ent := range entities {
			keys[i] = NormalizeEntity(ent)
		}
		g.Go(func() error {
			events, err := r.eventsByEntity(gctx, userID, keys)
			if err != nil {
				return err
			}
			byEntity = events
			return nil
		})
	}

	if len(topics) > 0 {
		g.Go(func() error {
			events, err := r.eventsByTopic(gctx, userID, topics)
			if err != nil {
				return err
			}
			byTopic = events
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, errors.NewStorageReadFailed(userID, err)
	}

	ranked := RankEvents(MergeEvents(byEntity, byTopic), k)

	r.logger.Debug("Context retrieved",
		zap.String("user_id", userID),
		zap.Int("entity_matches", len(byEntity)),
		zap.Int("topic_matches", len(byTopic)),
		zap.Int("returned", len(ranked)),
	)

	return ranked, nil
}

func (r *Retriever) eventsByEntity(ctx context.Context, userID string, entityKeys []string) ([]RetrievedEvent, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (u:User {id: $userID})-[:ASKED_ABOUT]->(e:Event)-[:MENTIONS]->(n:Entity)
		WHERE n.name IN $entities
		WITH e, collect(DISTINCT coalesce(n.display_name, n.name)) as matched
		RETURN e.id as id, e.content as content, e.timestamp as timestamp, matched
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"userID":   userID,
		"entities": entityKeys,
	})
	if err != nil {
		return nil, err
	}

	var events []RetrievedEvent
	for result.Next(ctx) {
		record := result.Record()
		events = append(events, RetrievedEvent{
			EventID:         getStringFromRecord(record, "id"),
			Content:         getStringFromRecord(record, "content"),
			Timestamp:       getTimeFromRecord(record, "timestamp"),
			MatchedEntities: getStringSliceFromRecord(record, "matched"),
		})
	}
	return events, result.Err()
}

func (r *Retriever) eventsByTopic(ctx context.Context, userID string, topics []string) ([]RetrievedEvent, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (u:User {id: $userID})-[:ASKED_ABOUT]->(e:Event)-[:ASKED_ABOUT]->(t:Topic)
		WHERE t.name IN $topics
		WITH e, collect(DISTINCT t.name) as matched
		RETURN e.id as id, e.content as content, e.timestamp as timestamp, matched
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"userID": userID,
		"topics": topics,
	})
	if err != nil {
		return nil, err
	}

	var events []RetrievedEvent
	for result.Next(ctx) {
		record := result.Record()
		events = append(events, RetrievedEvent{
			EventID:       getStringFromRecord(record, "id"),
			Content:       getStringFromRecord(record, "content"),
			Timestamp:     getTimeFromRecord(record, "timestamp"),
			MatchedTopics: getStringSliceFromRecord(record, "matched"),
		})
	}
	return events, result.Err()
}
