package graph

import (
	"testing"
	"time"
)

func mkEvent(id string, age time.Duration, entities, topics []string) RetrievedEvent {
	return RetrievedEvent{
		EventID:         id,
		Content:         "content-" + id,
		Timestamp:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Add(-age),
		MatchedEntities: entities,
		MatchedTopics:   topics,
	}
}

func TestRankEvents_OverlapDominatesRecency(t *testing.T) {
	old := mkEvent("old", 48*time.Hour, []string{"alice", "neo4j"}, nil)
	fresh := mkEvent("fresh", time.Hour, []string{"alice"}, nil)

	ranked := RankEvents([]RetrievedEvent{fresh, old}, 5)

	if ranked[0].EventID != "old" {
		t.Errorf("Expected higher-overlap event first, got %s", ranked[0].EventID)
	}
}

func TestRankEvents_RecencyBreaksTies(t *testing.T) {
	old := mkEvent("old", 48*time.Hour, []string{"alice"}, nil)
	fresh := mkEvent("fresh", time.Hour, nil, []string{"LLMs"})

	ranked := RankEvents([]RetrievedEvent{old, fresh}, 5)

	if ranked[0].EventID != "fresh" {
		t.Errorf("Expected newer event first on equal overlap, got %s", ranked[0].EventID)
	}
}

func TestRankEvents_MixedOverlapCounts(t *testing.T) {
	events := []RetrievedEvent{
		mkEvent("one", time.Hour, []string{"a"}, nil),
		mkEvent("three", 72*time.Hour, []string{"a", "b"}, []string{"T"}),
		mkEvent("two", 24*time.Hour, []string{"a"}, []string{"T"}),
	}

	ranked := RankEvents(events, 5)

	want := []string{"three", "two", "one"}
	for i, id := range want {
		if ranked[i].EventID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, ranked[i].EventID)
		}
	}
}

func TestRankEvents_TruncatesToK(t *testing.T) {
	var events []RetrievedEvent
	for i := 0; i < 10; i++ {
		events = append(events, mkEvent(string(rune('a'+i)), time.Duration(i)*time.Hour, []string{"x"}, nil))
	}

	ranked := RankEvents(events, 5)
	if len(ranked) != 5 {
		t.Errorf("Expected 5 events, got %d", len(ranked))
	}
	// Newest first within equal overlap
	if ranked[0].EventID != "a" {
		t.Errorf("Expected newest event first, got %s", ranked[0].EventID)
	}
}

func TestRankEvents_KLargerThanInput(t *testing.T) {
	events := []RetrievedEvent{mkEvent("only", time.Hour, []string{"x"}, nil)}
	ranked := RankEvents(events, 5)
	if len(ranked) != 1 {
		t.Errorf("Expected 1 event, got %d", len(ranked))
	}
}

func TestRankEvents_Empty(t *testing.T) {
	if got := RankEvents(nil, 5); len(got) != 0 {
		t.Errorf("Expected empty result, got %v", got)
	}
}

func TestMergeEvents_UnionsMatchesForSameEvent(t *testing.T) {
	byEntity := []RetrievedEvent{mkEvent("e1", time.Hour, []string{"alice"}, nil)}
	byTopic := []RetrievedEvent{mkEvent("e1", time.Hour, nil, []string{"LLMs"})}

	merged := MergeEvents(byEntity, byTopic)

	if len(merged) != 1 {
		t.Fatalf("Expected 1 merged event, got %d", len(merged))
	}
	if merged[0].Overlap() != 2 {
		t.Errorf("Expected overlap 2 after merge, got %d", merged[0].Overlap())
	}
}

func TestMergeEvents_KeepsDistinctEvents(t *testing.T) {
	byEntity := []RetrievedEvent{mkEvent("e1", time.Hour, []string{"alice"}, nil)}
	byTopic := []RetrievedEvent{mkEvent("e2", 2*time.Hour, nil, []string{"LLMs"})}

	merged := MergeEvents(byEntity, byTopic)
	if len(merged) != 2 {
		t.Errorf("Expected 2 events, got %d", len(merged))
	}
}

func TestMergeEvents_DedupesRepeatedMatches(t *testing.T) {
	a := mkEvent("e1", time.Hour, []string{"alice", "bob"}, nil)
	b := mkEvent("e1", time.Hour, []string{"bob"}, []string{"LLMs"})

	merged := MergeEvents([]RetrievedEvent{a}, []RetrievedEvent{b})

	if len(merged) != 1 {
		t.Fatalf("Expected 1 merged event, got %d", len(merged))
	}
	if len(merged[0].MatchedEntities) != 2 {
		t.Errorf("Expected 2 distinct entities, got %v", merged[0].MatchedEntities)
	}
}

func TestNormalizeEntity(t *testing.T) {
	if NormalizeEntity("Neo4j") != "neo4j" {
		t.Error("Expected lowercased identity key")
	}
	if NormalizeEntity("neo4j") != NormalizeEntity("NEO4J") {
		t.Error("Expected case variants to share one key")
	}
}
