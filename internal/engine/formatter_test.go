package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/pkg/types"
)

func TestFormatMarkdown_EmptyResultReturnsSentinel(t *testing.T) {
	assert.Equal(t, NoMemoriesSentinel, FormatMarkdown(nil))
	assert.Equal(t, NoMemoriesSentinel, FormatMarkdown(&types.RecallResult{}))
}

func TestFormatMarkdown_Sections(t *testing.T) {
	created := time.Date(2026, 7, 14, 10, 0, 0, 0, time.UTC)
	result := &types.RecallResult{
		Entity: &types.Entity{
			Name:       "Dana",
			Attributes: map[string]any{"email": "dana@example.com"},
		},
		Statements: []types.Statement{{Fact: "Dana manages the platform team"}},
		Episodes: []types.EpisodeResult{
			{ID: "e1", Content: "Discussed the migration plan.", CreatedAt: created},
			{ID: "c1", Content: "Session recap.", CreatedAt: created, IsCompact: true},
			{ID: "d1", Content: "Design doc.", CreatedAt: created, Type: types.EpisodeTypeDocument, Source: "notes/design.md"},
		},
		InvalidatedFacts: []types.InvalidatedFact{{
			Fact:      "Dana works at Initech",
			ValidAt:   time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
			InvalidAt: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		}},
	}

	md := FormatMarkdown(result)
	assert.Contains(t, md, "## Entity")
	assert.Contains(t, md, "**Dana**")
	assert.Contains(t, md, "- email: dana@example.com")
	assert.Contains(t, md, "## Statements")
	assert.Contains(t, md, "- Dana manages the platform team")
	assert.Contains(t, md, "## Recalled Relevant Context")
	assert.Contains(t, md, "### Episode (2026-07-14)")
	assert.Contains(t, md, "### Session Summary (2026-07-14)")
	assert.Contains(t, md, "### Document: notes/design.md (2026-07-14)")
	assert.Contains(t, md, "## Invalidated Facts")
	assert.Contains(t, md, "- ~~Dana works at Initech~~ (2024-01-05 → 2026-02-10)")
}

func TestFormatMarkdown_OmitsEmptySections(t *testing.T) {
	result := &types.RecallResult{
		Episodes: []types.EpisodeResult{{ID: "e1", Content: "note", CreatedAt: time.Now()}},
	}
	md := FormatMarkdown(result)
	assert.Contains(t, md, "## Recalled Relevant Context")
	assert.NotContains(t, md, "## Entity")
	assert.NotContains(t, md, "## Statements")
	assert.NotContains(t, md, "## Invalidated Facts")
}

func TestFormatStructured_SlicesNeverNil(t *testing.T) {
	out := FormatStructured(&types.RecallResult{}, types.QueryTypeAspect)
	require.NotNil(t, out)
	assert.NotNil(t, out.Episodes)
	assert.NotNil(t, out.InvalidatedFacts)
	assert.NotNil(t, out.Facts)
	assert.Equal(t, types.QueryTypeAspect, out.QueryType)
}

func TestFormatStructured_FlattensStatementsToFacts(t *testing.T) {
	result := &types.RecallResult{
		Statements: []types.Statement{
			{Fact: "first"},
			{Fact: "second"},
		},
		TokensDropped: 3,
		TokensTotal:   120,
	}
	out := FormatStructured(result, types.QueryTypeRelationship)
	assert.Equal(t, []string{"first", "second"}, out.Facts)
	assert.Equal(t, 3, out.TokensDropped)
	assert.Equal(t, 120, out.TokensTotal)
}
