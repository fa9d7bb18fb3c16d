package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Putra1906/MBC-CaptureTheFlag/internal/models"
	"github.com/Putra1906/MBC-CaptureTheFlag/internal/storage"
)

// Common errors
var (
	ErrHintNotConfigured = errors.New("no hint configured for this challenge")
	ErrInvalidDelta      = errors.New("time delta must be a positive number")
)

// errNoMutation aborts a MutateProgress call without persisting anything.
// Used for the idempotent outcomes (already solved, wrong flag, hint
// already taken) where the record must stay untouched.
var errNoMutation = errors.New("no mutation")

// SubmitStatus tags the outcome of a flag submission
type SubmitStatus string

const (
	SubmitCorrect       SubmitStatus = "correct"
	SubmitIncorrect     SubmitStatus = "incorrect"
	SubmitAlreadySolved SubmitStatus = "already_solved"
)

// SubmitResult is the outcome of a flag submission. Business-rule outcomes
// are statuses, not errors.
type SubmitResult struct {
	Status   SubmitStatus `json:"status"`
	Points   int          `json:"points,omitempty"`
	Score    int          `json:"score"`
	Duration float64      `json:"duration_seconds,omitempty"`
}

// HintStatus tags the outcome of a hint request
type HintStatus string

const (
	HintPurchased         HintStatus = "purchased"
	HintAlreadySolved     HintStatus = "already_solved"
	HintAlreadyTaken      HintStatus = "already_taken"
	HintInsufficientScore HintStatus = "insufficient_score"
)

// HintResult is the outcome of a hint request. Hint text is present for
// every status except insufficient_score.
type HintResult struct {
	Status HintStatus `json:"status"`
	Hint   string     `json:"hint,omitempty"`
	Score  int        `json:"score"`
}

// Service implements the challenge progress state machine and the
// leaderboard derivations. All scoring state lives in the repository; the
// service holds no caches, so every read reflects the latest committed
// write.
type Service struct {
	repo storage.Repository
	now  func() time.Time
}

// NewService creates a game service
func NewService(repo storage.Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// SubmitFlag checks a candidate flag for a challenge. startedAt is the
// advisory first-view timestamp from the session, used only to compute the
// displayed solve duration. The whole check-award-record sequence runs as
// one serialized mutation of the user's record, so two racing correct
// submissions can award points at most once.
func (s *Service) SubmitFlag(ctx context.Context, username string, challengeID int, candidate string, startedAt *time.Time) (*SubmitResult, error) {
	challenge, err := s.repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	result := &SubmitResult{}
	now := s.now()

	err = s.repo.MutateProgress(ctx, username, func(p *models.Progress) error {
		// Solved entries are immutable; check before any comparison work
		if p.Solved(challengeID) {
			result.Status = SubmitAlreadySolved
			result.Score = p.Score
			return errNoMutation
		}

		if strings.TrimSpace(candidate) != challenge.Flag {
			result.Status = SubmitIncorrect
			result.Score = p.Score
			return errNoMutation
		}

		duration := 0.0
		if startedAt != nil {
			duration = now.Sub(*startedAt).Seconds()
			if duration < 0 {
				duration = 0
			}
		}

		p.Score += challenge.Points
		p.Answers[models.ChallengeKey(challengeID)] = models.Answer{
			Value:       strings.TrimSpace(candidate),
			SubmittedAt: now,
			Duration:    duration,
		}
		p.LastSubmit = &now

		result.Status = SubmitCorrect
		result.Points = challenge.Points
		result.Score = p.Score
		result.Duration = duration
		return nil
	})

	if err != nil && !errors.Is(err, errNoMutation) {
		return nil, err
	}

	return result, nil
}

// RequestHint purchases (or re-reads) the hint for a challenge. Check
// order is fixed: solved before already-taken before affordability.
func (s *Service) RequestHint(ctx context.Context, username string, challengeID int) (*HintResult, error) {
	challenge, err := s.repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	if !challenge.HasHint() {
		return nil, ErrHintNotConfigured
	}

	result := &HintResult{}
	penalty := challenge.Penalty()
	key := models.ChallengeKey(challengeID)

	err = s.repo.MutateProgress(ctx, username, func(p *models.Progress) error {
		if p.Solved(challengeID) {
			// Solved users get the hint for reference at no cost
			result.Status = HintAlreadySolved
			result.Hint = challenge.Hint
			result.Score = p.Score
			return errNoMutation
		}

		if p.UsedHints[key] {
			// Already paid for; return the text without charging again
			result.Status = HintAlreadyTaken
			result.Hint = challenge.Hint
			result.Score = p.Score
			return errNoMutation
		}

		if p.Score < penalty {
			result.Status = HintInsufficientScore
			result.Score = p.Score
			return errNoMutation
		}

		p.Score -= penalty
		p.UsedHints[key] = true

		result.Status = HintPurchased
		result.Hint = challenge.Hint
		result.Score = p.Score
		return nil
	})

	if err != nil && !errors.Is(err, errNoMutation) {
		return nil, err
	}

	return result, nil
}

// RecordActiveTime adds a client-reported number of seconds spent on a
// challenge. Deltas are untrusted but additive only; non-positive values
// are rejected and a missing progress record is an error, never created
// here. Returns the accumulated total.
func (s *Service) RecordActiveTime(ctx context.Context, username string, challengeID int, delta float64) (float64, error) {
	if delta <= 0 {
		return 0, ErrInvalidDelta
	}

	if _, err := s.repo.GetChallenge(ctx, challengeID); err != nil {
		return 0, err
	}

	var total float64
	key := models.ChallengeKey(challengeID)

	err := s.repo.MutateProgress(ctx, username, func(p *models.Progress) error {
		p.ActiveTimes[key] += delta
		total = p.ActiveTimes[key]
		return nil
	})
	if err != nil {
		return 0, err
	}

	return total, nil
}

// Standings computes the ranked leaderboard from current state: score
// descending, earlier last_submit first within a score band. Users who
// never submitted sort last within their band. Recomputed on every call.
func (s *Service) Standings(ctx context.Context) ([]*models.Standing, error) {
	records, err := s.repo.ListProgress(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		switch {
		case a.LastSubmit == nil && b.LastSubmit == nil:
			return a.Username < b.Username
		case a.LastSubmit == nil:
			return false
		case b.LastSubmit == nil:
			return true
		case !a.LastSubmit.Equal(*b.LastSubmit):
			return a.LastSubmit.Before(*b.LastSubmit)
		}
		return a.Username < b.Username
	})

	standings := make([]*models.Standing, 0, len(records))
	for i, p := range records {
		standings = append(standings, &models.Standing{
			Rank:       i + 1,
			Username:   p.Username,
			Name:       p.Name,
			Score:      p.Score,
			LastSubmit: p.LastSubmit,
			Solved:     len(p.Answers),
		})
	}

	return standings, nil
}

// RankOf returns the user's 1-based leaderboard position, or 0 when the
// user has no progress record (unranked).
func (s *Service) RankOf(ctx context.Context, username string) (int, error) {
	standings, err := s.Standings(ctx)
	if err != nil {
		return 0, err
	}

	for _, st := range standings {
		if st.Username == username {
			return st.Rank, nil
		}
	}
	return 0, nil
}

// SolveCounts reports, per challenge, how many users have solved it
func (s *Service) SolveCounts(ctx context.Context) ([]*models.SolveStat, error) {
	challenges, err := s.repo.ListChallenges(ctx)
	if err != nil {
		return nil, err
	}

	records, err := s.repo.ListProgress(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, p := range records {
		for key := range p.Answers {
			counts[key]++
		}
	}

	stats := make([]*models.SolveStat, 0, len(challenges))
	for _, c := range challenges {
		stats = append(stats, &models.SolveStat{
			ChallengeID: c.ID,
			Title:       c.Title,
			Solves:      counts[models.ChallengeKey(c.ID)],
		})
	}

	return stats, nil
}

// SubmissionLog returns the user's solved challenges in submission order,
// with solve duration and accumulated active seconds per challenge.
func (s *Service) SubmissionLog(ctx context.Context, username string) ([]*models.LogEntry, error) {
	p, err := s.repo.GetProgress(ctx, username)
	if err != nil {
		return nil, err
	}

	challenges, err := s.repo.ListChallenges(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]*models.LogEntry, 0, len(p.Answers))
	for _, c := range challenges {
		key := models.ChallengeKey(c.ID)
		answer, ok := p.Answers[key]
		if !ok {
			continue
		}
		entries = append(entries, &models.LogEntry{
			ChallengeID:   c.ID,
			Title:         c.Title,
			Points:        c.Points,
			Value:         answer.Value,
			SubmittedAt:   answer.SubmittedAt,
			Duration:      answer.Duration,
			ActiveSeconds: p.ActiveTimes[key],
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].SubmittedAt.Before(entries[j].SubmittedAt)
	})

	return entries, nil
}

// Reset clears every user's score, answers, hints and active times
func (s *Service) Reset(ctx context.Context) error {
	if err := s.repo.ResetProgress(ctx); err != nil {
		return fmt.Errorf("failed to reset progress: %w", err)
	}
	return nil
}
