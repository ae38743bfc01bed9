package prompt

import (
	"fmt"
	"strings"

	"graphrag/backend/internal/graph"
)

// Builders are pure: they translate retrieved structure into the text
// the generation model sees. No I/O, no state.

// Lines renders one fact line per retrieved event, in retriever order,
// plus a closing summary of how much structure the context carries.
// These are also what the API reports back as the context it used.
func Lines(events []graph.RetrievedEvent) []string {
	if len(events) == 0 {
		return nil
	}

	lines := make([]string, 0, len(events)+1)
	entitySet := make(map[string]bool)
	topicSet := make(map[string]bool)

	for _, ev := range events {
		lines = append(lines, factLine(ev))
		for _, e := range ev.MatchedEntities {
			entitySet[graph.NormalizeEntity(e)] = true
		}
		for _, t := range ev.MatchedTopics {
			topicSet[t] = true
		}
	}

	if summary := countSummary(len(entitySet), len(topicSet)); summary != "" {
		lines = append(lines, summary)
	}
	return lines
}

func factLine(ev graph.RetrievedEvent) string {
	var qualifiers []string
	if len(ev.MatchedEntities) > 0 {
		qualifiers = append(qualifiers, "mentioning "+strings.Join(ev.MatchedEntities, ", "))
	}
	if len(ev.MatchedTopics) > 0 {
		qualifiers = append(qualifiers, "related to "+strings.Join(ev.MatchedTopics, ", "))
	}

	if len(qualifiers) == 0 {
		return fmt.Sprintf("- Previously, the user asked about %q.", ev.Content)
	}
	return fmt.Sprintf("- Previously, the user asked about %q (%s).", ev.Content, strings.Join(qualifiers, "; "))
}

func countSummary(entityCount, topicCount int) string {
	if entityCount == 0 && topicCount == 0 {
		return ""
	}
	var parts []string
	if entityCount > 0 {
		parts = append(parts, fmt.Sprintf("%d distinct entities", entityCount))
	}
	if topicCount > 0 {
		parts = append(parts, fmt.Sprintf("%d topics", topicCount))
	}
	return "- The conversation includes " + strings.Join(parts, " and ") + "."
}

// BuildFromEvents assembles the graph-mode prompt: memory context
// first, live query last. With no context the prompt is just the
// framed query.
func BuildFromEvents(events []graph.RetrievedEvent, query string) string {
	var sections []string

	if lines := Lines(events); len(lines) > 0 {
		sections = append(sections, "Memory Context:")
		sections = append(sections, lines...)
		sections = append(sections, "")
	}

	sections = append(sections, "User Query:")
	sections = append(sections, query)

	return strings.Join(sections, "\n")
}

// BuildFromBuffer assembles the baseline-mode prompt: the user's
// recent messages as chronological turns, then the live query.
func BuildFromBuffer(history []string, query string) string {
	var sections []string

	if len(history) > 0 {
		sections = append(sections, "Previous conversation:")
		for _, msg := range history {
			sections = append(sections, "- "+msg)
		}
		sections = append(sections, "")
	}

	sections = append(sections, "User Query:")
	sections = append(sections, query)

	return strings.Join(sections, "\n")
}
