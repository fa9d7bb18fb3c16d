package models

import "fmt"

// DefaultHintPenalty is charged when a challenge does not configure its own
const DefaultHintPenalty = 5

// Challenge represents a single forensic challenge.
// Presentation order is ascending ID.
type Challenge struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Points      int    `json:"points"`
	Flag        string `json:"-"` // Never serialize
	Difficulty  string `json:"difficulty,omitempty"`
	Hint        string `json:"-"` // Only released through the hint endpoint
	HintPenalty int    `json:"hint_penalty,omitempty"`
}

// HasHint reports whether a hint is configured for this challenge
func (c *Challenge) HasHint() bool {
	return c != nil && c.Hint != ""
}

// Penalty returns the configured hint cost, falling back to the default
func (c *Challenge) Penalty() int {
	if c.HintPenalty > 0 {
		return c.HintPenalty
	}
	return DefaultHintPenalty
}

// ChallengeKey is the progress-map key for a challenge.
// The key format is shared by answers, used_hints and active_times.
func ChallengeKey(id int) string {
	return fmt.Sprintf("flag%d", id)
}
