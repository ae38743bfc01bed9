package graph

import "time"

// EventRef identifies an interaction event after it has been recorded
type EventRef struct {
	ID        string
	Timestamp time.Time
}

// RetrievedEvent is one past event returned by the retriever, carrying
// the subset of the current query's entities and topics it shares.
type RetrievedEvent struct {
	EventID         string
	Content         string
	Timestamp       time.Time
	MatchedEntities []string
	MatchedTopics   []string
}

// Overlap is the event's relevance to the current query: how many of
// the query's entities and topics it shares.
func (e RetrievedEvent) Overlap() int {
	return len(e.MatchedEntities) + len(e.MatchedTopics)
}
