package engine

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

var (
	sentenceSplitRe  = regexp.MustCompile(`[.!?]+`)
	paragraphSplitRe = regexp.MustCompile(`\n\n+`)
	bulletRe         = regexp.MustCompile(`(?m)^\s*[-*]\s+`)
	codeRe           = regexp.MustCompile("(?m)```|^\\s{4,}")
)

// AnalyzeEpisodes computes quantitative writing patterns over a user's
// episodes: source distribution, structural style metrics, and temporal
// activity. since narrows the window; a zero since covers all history.
// A user with no episodes gets zero-valued analytics, not an error.
func (e *Engine) AnalyzeEpisodes(ctx context.Context, userID string, since time.Time) (*types.PersonaAnalytics, error) {
	if userID == "" {
		return nil, fmt.Errorf("engine: analyze episodes: %w", storage.ErrMissingOwner)
	}

	oldest, newest, total, err := e.relational.ActivitySpan(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("engine: activity span: %w", err)
	}
	if total == 0 {
		return &types.PersonaAnalytics{Sources: map[string]int{}}, nil
	}

	counts, err := e.relational.SourceCounts(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("engine: source counts: %w", err)
	}
	contents, err := e.relational.EpisodeContents(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("engine: episode contents: %w", err)
	}

	return &types.PersonaAnalytics{
		TotalEpisodes: total,
		Sources:       sourcePercentages(counts, total),
		Style:         styleMetrics(contents),
		Temporal:      temporalMetrics(oldest, newest, total),
	}, nil
}

// sourcePercentages converts raw per-source counts into whole-percent
// shares of the episode total.
func sourcePercentages(counts map[string]int, total int) map[string]int {
	shares := make(map[string]int, len(counts))
	for source, count := range counts {
		shares[source] = int(math.Round(float64(count) / float64(total) * 100))
	}
	return shares
}

// styleMetrics measures sentence, paragraph, and formatting structure.
// Everything here is counting; no judgment about whether the numbers are
// good or bad.
func styleMetrics(contents []string) types.StyleMetrics {
	var totalSentences, totalWords, totalParagraphs int
	var withBullets, withCode int

	for _, content := range contents {
		for _, s := range sentenceSplitRe.Split(content, -1) {
			if strings.TrimSpace(s) != "" {
				totalSentences++
			}
		}
		totalWords += len(strings.Fields(content))

		paragraphs := 0
		for _, p := range paragraphSplitRe.Split(content, -1) {
			if strings.TrimSpace(p) != "" {
				paragraphs++
			}
		}
		if paragraphs == 0 {
			paragraphs = 1
		}
		totalParagraphs += paragraphs

		if bulletRe.MatchString(content) {
			withBullets++
		}
		if codeRe.MatchString(content) {
			withCode++
		}
	}

	metrics := types.StyleMetrics{
		EpisodesWithBullets: withBullets,
		EpisodesWithCode:    withCode,
	}
	if totalSentences > 0 {
		metrics.AvgSentenceLength = int(math.Round(float64(totalWords) / float64(totalSentences)))
	}
	if totalParagraphs > 0 {
		metrics.AvgParagraphLength = int(math.Round(float64(totalSentences) / float64(totalParagraphs)))
	}
	return metrics
}

// temporalMetrics derives the activity window and a per-month writing rate.
// The span is inclusive of both endpoint days, so a single episode still
// spans one day.
func temporalMetrics(oldest, newest time.Time, total int) types.TemporalMetrics {
	spanDays := int(newest.Sub(oldest).Hours()/24) + 1
	perMonth := total
	if spanDays > 0 {
		perMonth = int(math.Round(float64(total) / float64(spanDays) * 30))
	}
	return types.TemporalMetrics{
		OldestEpisode:    oldest,
		NewestEpisode:    newest,
		TimeSpanDays:     spanDays,
		EpisodesPerMonth: perMonth,
	}
}
