package graph

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"graphrag/backend/pkg/errors"
	"graphrag/backend/pkg/logger"
)

// Store handles the append-only write path of the memory graph
type Store struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// Connect opens a Neo4j driver and verifies connectivity
func Connect(ctx context.Context, uri, user, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, errors.NewStorageConnectionFailed(uri, err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, errors.NewStorageConnectionFailed(uri, err)
	}

	return driver, nil
}

// NewStore creates a store over an open driver
func NewStore(driver neo4j.DriverWithContext) *Store {
	return &Store{
		driver: driver,
		logger: logger.Get(),
	}
}

// Close closes the underlying driver connection
func (s *Store) Close() error {
	return s.driver.Close(context.Background())
}

// RecordInteraction writes one turn into the graph as a single
// statement: MERGE the user, CREATE the event, MERGE and link the
// entities and topics, and chain the event to the user's previous one.
// Events are write-once; re-running after a mid-write crash re-merges
// the upserts and at worst duplicates the Event node.
func (s *Store) RecordInteraction(ctx context.Context, userID, content string, entities, topics []string, timestamp time.Time) (*EventRef, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	eventID := uuid.New().String()
	ts := timestamp.UTC().Format(time.RFC3339)

	query := `
		MERGE (u:User {id: $userID})
		ON CREATE SET u.created_at = datetime($ts)
		WITH u
		OPTIONAL MATCH (u)-[:ASKED_ABOUT]->(prev:Event)
		WITH u, prev
		ORDER BY prev.timestamp DESC
		LIMIT 1
		CREATE (e:Event {
			id: $eventID,
			type: 'query',
			timestamp: datetime($ts),
			content: $content
		})
		CREATE (u)-[:ASKED_ABOUT]->(e)
		FOREACH (p IN CASE WHEN prev IS NULL THEN [] ELSE [prev] END |
			CREATE (e)-[:PREVIOUS_CONTEXT]->(p))
		FOREACH (ent IN $entities |
			MERGE (n:Entity {name: ent.name})
			ON CREATE SET n.display_name = ent.display, n.created_at = datetime($ts)
			MERGE (e)-[:MENTIONS]->(n))
		FOREACH (topic IN $topics |
			MERGE (t:Topic {name: topic})
			ON CREATE SET t.created_at = datetime($ts)
			MERGE (e)-[:ASKED_ABOUT]->(t))
		RETURN e.id as id
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"userID":   userID,
		"eventID":  eventID,
		"ts":       ts,
		"content":  content,
		"entities": entityParams(entities),
		"topics":   topics,
	})
	if err != nil {
		return nil, errors.NewStorageWriteFailed(userID, err)
	}

	if _, err := result.Single(ctx); err != nil {
		return nil, errors.NewStorageWriteFailed(userID, err)
	}

	s.logger.Debug("Interaction recorded",
		zap.String("user_id", userID),
		zap.String("event_id", eventID),
		zap.Int("entities", len(entities)),
		zap.Int("topics", len(topics)),
	)

	return &EventRef{ID: eventID, Timestamp: timestamp}, nil
}

// entityParams lowercases entity names into their identity keys while
// keeping the surface form for display. Entity nodes merge on the
// normalized key, so "Neo4j" and "neo4j" land on one node.
func entityParams(entities []string) []map[string]interface{} {
	params := make([]map[string]interface{}, 0, len(entities))
	for _, ent := range entities {
		params = append(params, map[string]interface{}{
			"name":    strings.ToLower(ent),
			"display": ent,
		})
	}
	return params
}

// NormalizeEntity returns the identity key an entity surface form
// merges on
func NormalizeEntity(name string) string {
	return strings.ToLower(name)
}
