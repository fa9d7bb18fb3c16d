package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Putra1906/MBC-CaptureTheFlag/internal/models"
	"github.com/Putra1906/MBC-CaptureTheFlag/internal/storage"
)

// Loader reads challenge packs from YAML files. A pack is a named set of
// challenges; packs only seed the database, which stays authoritative so
// admins can edit challenges at runtime.
type Loader struct {
	mu         sync.RWMutex
	challenges map[int]*models.Challenge
}

// packFile is the YAML shape of one challenge pack
type packFile struct {
	Pack       string          `yaml:"pack"`
	Challenges []challengeSpec `yaml:"challenges"`
}

type challengeSpec struct {
	ID          int    `yaml:"id"`
	Title       string `yaml:"title"`
	Points      int    `yaml:"points"`
	Flag        string `yaml:"flag"`
	Difficulty  string `yaml:"difficulty"`
	Hint        string `yaml:"hint"`
	HintPenalty int    `yaml:"hint_penalty"`
}

// NewLoader creates an empty challenge pack loader
func NewLoader() *Loader {
	return &Loader{challenges: make(map[int]*models.Challenge)}
}

// LoadFromDir loads all YAML packs from a directory and its immediate
// subdirectories
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading challenge packs", "dir", dir)

	patterns := []string{"*.yaml", "*.yml"}
	var files []string

	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)

		subMatches, err := filepath.Glob(filepath.Join(dir, "*", pattern))
		if err != nil {
			continue
		}
		files = append(files, subMatches...)
	}

	loaded := 0
	for _, file := range files {
		if err := l.LoadFromFile(file); err != nil {
			slog.Warn("failed to load challenge pack", "file", file, "error", err)
			continue
		}
		loaded++
	}

	slog.Info("challenge packs loaded", "packs", loaded, "challenges", l.Count())
	return nil
}

// LoadFromFile loads a single pack from a YAML file
func (l *Loader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var pack packFile
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	for _, spec := range pack.Challenges {
		if err := validateSpec(spec); err != nil {
			return fmt.Errorf("challenge %d in %s: %w", spec.ID, filepath.Base(path), err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, spec := range pack.Challenges {
		if _, ok := l.challenges[spec.ID]; ok {
			return fmt.Errorf("duplicate challenge id %d in %s", spec.ID, filepath.Base(path))
		}
		l.challenges[spec.ID] = &models.Challenge{
			ID:          spec.ID,
			Title:       spec.Title,
			Points:      spec.Points,
			Flag:        spec.Flag,
			Difficulty:  spec.Difficulty,
			Hint:        spec.Hint,
			HintPenalty: spec.HintPenalty,
		}
	}

	return nil
}

func validateSpec(spec challengeSpec) error {
	if spec.ID <= 0 {
		return fmt.Errorf("id must be positive")
	}
	if spec.Title == "" {
		return fmt.Errorf("title is required")
	}
	if spec.Points <= 0 {
		return fmt.Errorf("points must be positive")
	}
	if spec.Flag == "" {
		return fmt.Errorf("flag is required")
	}
	if spec.HintPenalty < 0 {
		return fmt.Errorf("hint_penalty must not be negative")
	}
	return nil
}

// List returns the loaded challenges in presentation order
func (l *Loader) List() []*models.Challenge {
	l.mu.RLock()
	defer l.mu.RUnlock()

	challenges := make([]*models.Challenge, 0, len(l.challenges))
	for _, c := range l.challenges {
		challenges = append(challenges, c)
	}
	sort.Slice(challenges, func(i, j int) bool { return challenges[i].ID < challenges[j].ID })
	return challenges
}

// Get returns a loaded challenge by ID, nil when absent
func (l *Loader) Get(id int) *models.Challenge {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.challenges[id]
}

// Count returns the number of loaded challenges
func (l *Loader) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.challenges)
}

// Seed inserts the loaded challenges into an empty repository. A database
// that already has challenges is left untouched.
func (l *Loader) Seed(ctx context.Context, repo storage.Repository) error {
	count, err := repo.CountChallenges(ctx)
	if err != nil {
		return fmt.Errorf("failed to count challenges: %w", err)
	}
	if count > 0 {
		slog.Info("challenge table already populated, skipping seed", "count", count)
		return nil
	}

	for _, c := range l.List() {
		if err := repo.CreateChallenge(ctx, c); err != nil {
			return fmt.Errorf("failed to seed challenge %d: %w", c.ID, err)
		}
	}

	slog.Info("challenges seeded", "count", l.Count())
	return nil
}
