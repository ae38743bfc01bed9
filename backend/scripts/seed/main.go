package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"graphrag/backend/internal/extract"
	"graphrag/backend/internal/graph"
	"graphrag/backend/pkg/config"
	"graphrag/backend/pkg/logger"
)

// A scripted conversation to seed demo data through the real write
// path, so the seeded graph looks exactly like one produced by live
// turns. Entities are listed by hand since the NER sidecar may not be
// running; topics come from the vocabulary matcher.
var conversation = []struct {
	content  string
	entities []string
}{
	{"Explain Neo4j", []string{"Neo4j"}},
	{"How is it used in Graph RAG?", []string{"Graph RAG"}},
	{"Compare Neo4j with a plain vector store for retrieval", []string{"Neo4j"}},
	{"What does LangChain add on top of an LLM?", []string{"LangChain"}},
	{"Can GPT-4 write Cypher queries directly?", []string{"GPT-4", "Cypher"}},
}

func main() {
	userID := flag.String("user-id", "demo_user", "User ID to seed")
	reset := flag.Bool("reset", false, "Delete the user's existing events before seeding")
	flag.Parse()

	// Initialize logger
	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting database seeding...", zap.String("user_id", *userID))

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()
	driver, err := graph.Connect(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		log.Fatal("Failed to connect to Neo4j", zap.Error(err))
	}
	defer driver.Close(context.Background())

	if *reset {
		log.Info("Resetting existing events for user...")
		if err := resetUser(ctx, driver, *userID); err != nil {
			log.Fatal("Failed to reset user", zap.Error(err))
		}
	}

	store := graph.NewStore(driver)
	vocab := extract.DefaultVocabulary()

	// Space the turns a minute apart so the PREVIOUS_CONTEXT chain
	// has a meaningful order
	start := time.Now().UTC().Add(-time.Duration(len(conversation)) * time.Minute)

	for i, turn := range conversation {
		topics := vocab.Match(turn.content)
		ref, err := store.RecordInteraction(ctx, *userID, turn.content, turn.entities, topics, start.Add(time.Duration(i)*time.Minute))
		if err != nil {
			log.Fatal("Failed to record interaction",
				zap.String("content", turn.content),
				zap.Error(err))
		}
		log.Info("Seeded interaction",
			zap.String("event_id", ref.ID),
			zap.String("content", turn.content),
			zap.Strings("entities", turn.entities),
			zap.Strings("topics", topics))
	}

	// Smoke-check retrieval over the seeded data
	retriever := graph.NewRetriever(driver)
	events, err := retriever.RetrieveContext(ctx, *userID, []string{"neo4j"}, []string{"Knowledge Graphs"}, 5)
	if err != nil {
		log.Fatal("Retrieval smoke check failed", zap.Error(err))
	}

	log.Info("Seeding complete",
		zap.Int("interactions", len(conversation)),
		zap.Int("retrievable_for_neo4j", len(events)))
}

func resetUser(ctx context.Context, driver neo4j.DriverWithContext, userID string) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MATCH (u:User {id: $user_id})
		OPTIONAL MATCH (u)-[:ASKED_ABOUT]->(e:Event)
		DETACH DELETE u, e
	`

	_, err := session.Run(ctx, query, map[string]any{"user_id": userID})
	return err
}
