package types

import "time"

// StyleMetrics are objective structural measurements over a user's episode
// contents. No interpretation happens here; downstream persona generation
// decides what the numbers mean.
type StyleMetrics struct {
	AvgSentenceLength   int `json:"avgSentenceLength"`
	AvgParagraphLength  int `json:"avgParagraphLength"`
	EpisodesWithBullets int `json:"episodesWithBullets"`
	EpisodesWithCode    int `json:"episodesWithCode"`
}

// TemporalMetrics describe a user's writing activity over time.
type TemporalMetrics struct {
	OldestEpisode    time.Time `json:"oldestEpisode"`
	NewestEpisode    time.Time `json:"newestEpisode"`
	TimeSpanDays     int       `json:"timeSpanDays"`
	EpisodesPerMonth int       `json:"episodesPerMonth"`
}

// PersonaAnalytics aggregates quantitative patterns over all of a user's
// episodes: where they come from, how they are written, and when. Sources
// maps each source name to its share of episodes in whole percent.
type PersonaAnalytics struct {
	TotalEpisodes int             `json:"totalEpisodes"`
	Sources       map[string]int  `json:"sources"`
	Style         StyleMetrics    `json:"style"`
	Temporal      TemporalMetrics `json:"temporal"`
}
