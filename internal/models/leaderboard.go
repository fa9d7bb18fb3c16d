package models

import "time"

// Standing is one leaderboard row. Rank is 1-based and assigned after
// sorting by score descending, earliest last_submit first.
type Standing struct {
	Rank       int        `json:"rank"`
	Username   string     `json:"username"`
	Name       string     `json:"name"`
	Score      int        `json:"score"`
	LastSubmit *time.Time `json:"last_submit,omitempty"`
	Solved     int        `json:"solved"`
}

// SolveStat counts how many users solved a challenge
type SolveStat struct {
	ChallengeID int    `json:"challenge_id"`
	Title       string `json:"title"`
	Solves      int    `json:"solves"`
}

// LogEntry is one row of a user's submission log: a solved challenge with
// its timing data. Purely presentational.
type LogEntry struct {
	ChallengeID   int       `json:"challenge_id"`
	Title         string    `json:"title"`
	Points        int       `json:"points"`
	Value         string    `json:"value"`
	SubmittedAt   time.Time `json:"submitted_at"`
	Duration      float64   `json:"duration_seconds"`
	ActiveSeconds float64   `json:"active_seconds"`
}
