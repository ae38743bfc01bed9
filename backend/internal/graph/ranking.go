package graph

import "sort"

// MergeEvents unions retrieval legs by event id. An event found by
// both the entity leg and the topic leg keeps the matches of both.
func MergeEvents(legs ...[]RetrievedEvent) []RetrievedEvent {
	byID := make(map[string]int)
	var merged []RetrievedEvent

	for _, leg := range legs {
		for _, ev := range leg {
			idx, ok := byID[ev.EventID]
			if !ok {
				byID[ev.EventID] = len(merged)
				merged = append(merged, ev)
				continue
			}
			merged[idx].MatchedEntities = appendUnique(merged[idx].MatchedEntities, ev.MatchedEntities)
			merged[idx].MatchedTopics = appendUnique(merged[idx].MatchedTopics, ev.MatchedTopics)
		}
	}
	return merged
}

// RankEvents orders events by overlap with the current query, newest
// first among equals, and truncates to k. The scoring policy lives
// here so it can change without touching the Cypher legs.
func RankEvents(events []RetrievedEvent, k int) []RetrievedEvent {
	sort.SliceStable(events, func(i, j int) bool {
		oi, oj := events[i].Overlap(), events[j].Overlap()
		if oi != oj {
			return oi > oj
		}
		return events[i].Timestamp.After(events[j].Timestamp)
	})

	if k > 0 && len(events) > k {
		events = events[:k]
	}
	return events
}

func appendUnique(dst, src []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, s := range dst {
		seen[s] = true
	}
	for _, s := range src {
		if !seen[s] {
			seen[s] = true
			dst = append(dst, s)
		}
	}
	return dst
}
