package engine

import (
	"fmt"
	"strings"

	"github.com/scrypster/recall/pkg/types"
)

// NoMemoriesSentinel is returned when every section of a markdown payload
// is empty, so LLM callers get an explicit signal instead of a blank
// string.
const NoMemoriesSentinel = "No relevant memories found."

// FormatMarkdown renders a recall result as the markdown payload consumed
// by LLM callers.
func FormatMarkdown(result *types.RecallResult) string {
	if result == nil || result.Empty() {
		return NoMemoriesSentinel
	}

	var b strings.Builder

	if result.Entity != nil {
		b.WriteString("## Entity\n\n")
		fmt.Fprintf(&b, "**%s**\n", result.Entity.Name)
		for key, value := range result.Entity.Attributes {
			fmt.Fprintf(&b, "- %s: %v\n", key, value)
		}
		b.WriteString("\n")
	}

	if len(result.Statements) > 0 {
		b.WriteString("## Statements\n\n")
		for _, st := range result.Statements {
			fmt.Fprintf(&b, "- %s\n", st.Fact)
		}
		b.WriteString("\n")
	}

	if len(result.Episodes) > 0 {
		b.WriteString("## Recalled Relevant Context\n\n")
		for _, ep := range result.Episodes {
			b.WriteString(episodeHeader(ep))
			b.WriteString("\n\n")
			b.WriteString(strings.TrimSpace(ep.Content))
			b.WriteString("\n\n")
		}
	}

	if len(result.InvalidatedFacts) > 0 {
		b.WriteString("## Invalidated Facts\n\n")
		b.WriteString("These were true once and have since been superseded:\n\n")
		for _, f := range result.InvalidatedFacts {
			fmt.Fprintf(&b, "- ~~%s~~ (%s → %s)\n",
				f.Fact,
				f.ValidAt.Format("2006-01-02"),
				f.InvalidAt.Format("2006-01-02"))
		}
		b.WriteString("\n")
	}

	return strings.TrimSpace(b.String())
}

// episodeHeader differentiates session summaries, documents, and plain
// episodes.
func episodeHeader(ep types.EpisodeResult) string {
	date := ep.CreatedAt.Format("2006-01-02")
	switch {
	case ep.IsCompact:
		return fmt.Sprintf("### Session Summary (%s)", date)
	case ep.Type == types.EpisodeTypeDocument:
		if ep.Source != "" {
			return fmt.Sprintf("### Document: %s (%s)", ep.Source, date)
		}
		return fmt.Sprintf("### Document (%s)", date)
	default:
		return fmt.Sprintf("### Episode (%s)", date)
	}
}

// FormatStructured renders the flat legacy payload for backward-compatible
// consumers.
func FormatStructured(result *types.RecallResult, queryType types.QueryType) *StructuredResult {
	out := &StructuredResult{
		Episodes:         result.Episodes,
		InvalidatedFacts: result.InvalidatedFacts,
		Entity:           result.Entity,
		QueryType:        queryType,
		TokensDropped:    result.TokensDropped,
		TokensTotal:      result.TokensTotal,
	}
	if out.Episodes == nil {
		out.Episodes = []types.EpisodeResult{}
	}
	if out.InvalidatedFacts == nil {
		out.InvalidatedFacts = []types.InvalidatedFact{}
	}
	out.Facts = make([]string, 0, len(result.Statements))
	for _, st := range result.Statements {
		out.Facts = append(out.Facts, st.Fact)
	}
	return out
}
