package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/Putra1906/MBC-CaptureTheFlag/internal/models"
)

// MemoryRepository is an in-memory Repository used by tests and local runs
// without a database. A single mutex held across MutateProgress gives the
// same serialization guarantee as the Postgres row lock.
type MemoryRepository struct {
	mu         sync.Mutex
	users      map[string]*models.User
	challenges map[int]*models.Challenge
	progress   map[string]*models.Progress
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:      make(map[string]*models.User),
		challenges: make(map[int]*models.Challenge),
		progress:   make(map[string]*models.Progress),
	}
}

// Ping always succeeds
func (r *MemoryRepository) Ping(ctx context.Context) error { return nil }

// Close is a no-op
func (r *MemoryRepository) Close() error { return nil }

// --- Users ---

func (r *MemoryRepository) CreateUser(ctx context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[u.Username]; ok {
		return ErrUserExists
	}
	cp := *u
	r.users[u.Username] = &cp
	return nil
}

func (r *MemoryRepository) GetUser(ctx context.Context, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryRepository) UpdateUser(ctx context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[u.Username]; !ok {
		return ErrUserNotFound
	}
	cp := *u
	r.users[u.Username] = &cp
	return nil
}

func (r *MemoryRepository) DeleteUser(ctx context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[username]; !ok {
		return ErrUserNotFound
	}
	delete(r.users, username)
	delete(r.progress, username)
	return nil
}

func (r *MemoryRepository) ListUsers(ctx context.Context) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]*models.User, 0, len(r.users))
	for _, u := range r.users {
		cp := *u
		users = append(users, &cp)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (r *MemoryRepository) CountUsers(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users), nil
}

// --- Challenges ---

func (r *MemoryRepository) CreateChallenge(ctx context.Context, c *models.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.challenges[c.ID]; ok {
		return ErrChallengeExists
	}
	cp := *c
	r.challenges[c.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetChallenge(ctx context.Context, id int) (*models.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.challenges[id]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) UpdateChallenge(ctx context.Context, c *models.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.challenges[c.ID]; !ok {
		return ErrChallengeNotFound
	}
	cp := *c
	r.challenges[c.ID] = &cp
	return nil
}

func (r *MemoryRepository) DeleteChallenge(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.challenges[id]; !ok {
		return ErrChallengeNotFound
	}
	delete(r.challenges, id)
	return nil
}

func (r *MemoryRepository) ListChallenges(ctx context.Context) ([]*models.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	challenges := make([]*models.Challenge, 0, len(r.challenges))
	for _, c := range r.challenges {
		cp := *c
		challenges = append(challenges, &cp)
	}
	sort.Slice(challenges, func(i, j int) bool { return challenges[i].ID < challenges[j].ID })
	return challenges, nil
}

func (r *MemoryRepository) CountChallenges(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.challenges), nil
}

// --- Progress ---

func (r *MemoryRepository) EnsureProgress(ctx context.Context, username, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.progress[username]; !ok {
		r.progress[username] = models.NewProgress(username, name)
	}
	return nil
}

func (r *MemoryRepository) GetProgress(ctx context.Context, username string) (*models.Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.progress[username]
	if !ok {
		return nil, ErrProgressNotFound
	}
	return copyProgress(p), nil
}

func (r *MemoryRepository) ListProgress(ctx context.Context) ([]*models.Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make([]*models.Progress, 0, len(r.progress))
	for _, p := range r.progress {
		records = append(records, copyProgress(p))
	}
	return records, nil
}

func (r *MemoryRepository) MutateProgress(ctx context.Context, username string, fn func(p *models.Progress) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.progress[username]
	if !ok {
		return ErrProgressNotFound
	}

	// fn works on a copy; the write is published only if fn succeeds
	cp := copyProgress(p)
	if err := fn(cp); err != nil {
		return err
	}
	r.progress[username] = cp
	return nil
}

func (r *MemoryRepository) ResetProgress(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for username, p := range r.progress {
		r.progress[username] = models.NewProgress(username, p.Name)
	}
	return nil
}

func copyProgress(p *models.Progress) *models.Progress {
	cp := models.NewProgress(p.Username, p.Name)
	cp.Score = p.Score
	if p.LastSubmit != nil {
		t := *p.LastSubmit
		cp.LastSubmit = &t
	}
	for k, v := range p.Answers {
		cp.Answers[k] = v
	}
	for k, v := range p.UsedHints {
		cp.UsedHints[k] = v
	}
	for k, v := range p.ActiveTimes {
		cp.ActiveTimes[k] = v
	}
	return cp
}
