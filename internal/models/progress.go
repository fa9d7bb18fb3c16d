package models

import "time"

// Answer records an accepted correct submission.
// Entries are immutable once written; presence of an entry is the sole
// source of truth for "this challenge is solved".
type Answer struct {
	Value       string    `json:"value"`
	SubmittedAt time.Time `json:"submitted_at"`
	Duration    float64   `json:"duration_seconds"`
}

// Progress is the per-user game state. One row per user, created at first
// login and mutated only through the game service.
type Progress struct {
	Username    string             `json:"username"`
	Name        string             `json:"name"`
	Score       int                `json:"score"`
	LastSubmit  *time.Time         `json:"last_submit,omitempty"`
	Answers     map[string]Answer  `json:"answers"`
	UsedHints   map[string]bool    `json:"used_hints"`
	ActiveTimes map[string]float64 `json:"active_times"`
}

// NewProgress returns an empty progress record for a user
func NewProgress(username, name string) *Progress {
	return &Progress{
		Username:    username,
		Name:        name,
		Answers:     make(map[string]Answer),
		UsedHints:   make(map[string]bool),
		ActiveTimes: make(map[string]float64),
	}
}

// Normalize replaces nil maps with empty ones. Called at the storage
// boundary so callers can index the maps without nil checks.
func (p *Progress) Normalize() {
	if p.Answers == nil {
		p.Answers = make(map[string]Answer)
	}
	if p.UsedHints == nil {
		p.UsedHints = make(map[string]bool)
	}
	if p.ActiveTimes == nil {
		p.ActiveTimes = make(map[string]float64)
	}
}

// Solved reports whether the challenge has been solved by this user
func (p *Progress) Solved(challengeID int) bool {
	_, ok := p.Answers[ChallengeKey(challengeID)]
	return ok
}

// SolvedKeys returns the challenge keys of every solved challenge
func (p *Progress) SolvedKeys() []string {
	keys := make([]string, 0, len(p.Answers))
	for k := range p.Answers {
		keys = append(keys, k)
	}
	return keys
}
