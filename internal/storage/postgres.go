package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Putra1906/MBC-CaptureTheFlag/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	// Set pool configuration
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25 // default
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 5 // default
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// isUniqueViolation reports whether err is a duplicate-key error
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Users ---

// CreateUser inserts a new user record
func (r *PostgresRepository) CreateUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (username, name, role, password_hash)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.pool.Exec(ctx, query, u.Username, u.Name, string(u.Role), u.PasswordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUser retrieves a user by username
func (r *PostgresRepository) GetUser(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT username, name, role, password_hash
		FROM users
		WHERE username = $1
	`

	var u models.User
	var roleStr string

	err := r.pool.QueryRow(ctx, query, username).Scan(&u.Username, &u.Name, &roleStr, &u.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u.Role = models.Role(roleStr)
	return &u, nil
}

// UpdateUser updates name, role and password hash of an existing user
func (r *PostgresRepository) UpdateUser(ctx context.Context, u *models.User) error {
	query := `
		UPDATE users
		SET name = $2, role = $3, password_hash = $4
		WHERE username = $1
	`

	result, err := r.pool.Exec(ctx, query, u.Username, u.Name, string(u.Role), u.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

// DeleteUser deletes a user and, via cascade, its progress record
func (r *PostgresRepository) DeleteUser(ctx context.Context, username string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM users WHERE username = $1`, username)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

// ListUsers returns all users ordered by username
func (r *PostgresRepository) ListUsers(ctx context.Context) ([]*models.User, error) {
	query := `
		SELECT username, name, role, password_hash
		FROM users
		ORDER BY username
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User

	for rows.Next() {
		var u models.User
		var roleStr string

		if err := rows.Scan(&u.Username, &u.Name, &roleStr, &u.PasswordHash); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}

		u.Role = models.Role(roleStr)
		users = append(users, &u)
	}

	return users, rows.Err()
}

// CountUsers returns the number of registered users
func (r *PostgresRepository) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// --- Challenges ---

// CreateChallenge inserts a new challenge
func (r *PostgresRepository) CreateChallenge(ctx context.Context, c *models.Challenge) error {
	query := `
		INSERT INTO challenges (id, title, points, flag, difficulty, hint, hint_penalty)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		c.ID,
		c.Title,
		c.Points,
		c.Flag,
		nullString(c.Difficulty),
		nullString(c.Hint),
		c.HintPenalty,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrChallengeExists
		}
		return fmt.Errorf("failed to create challenge: %w", err)
	}

	return nil
}

// GetChallenge retrieves a challenge by ID
func (r *PostgresRepository) GetChallenge(ctx context.Context, id int) (*models.Challenge, error) {
	query := `
		SELECT id, title, points, flag, difficulty, hint, hint_penalty
		FROM challenges
		WHERE id = $1
	`

	c, err := scanChallenge(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}

	return c, nil
}

// UpdateChallenge updates an existing challenge
func (r *PostgresRepository) UpdateChallenge(ctx context.Context, c *models.Challenge) error {
	query := `
		UPDATE challenges
		SET title = $2, points = $3, flag = $4, difficulty = $5, hint = $6, hint_penalty = $7
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		c.ID,
		c.Title,
		c.Points,
		c.Flag,
		nullString(c.Difficulty),
		nullString(c.Hint),
		c.HintPenalty,
	)

	if err != nil {
		return fmt.Errorf("failed to update challenge: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrChallengeNotFound
	}

	return nil
}

// DeleteChallenge deletes a challenge by ID
func (r *PostgresRepository) DeleteChallenge(ctx context.Context, id int) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM challenges WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete challenge: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrChallengeNotFound
	}

	return nil
}

// ListChallenges returns all challenges in presentation order (ascending ID)
func (r *PostgresRepository) ListChallenges(ctx context.Context) ([]*models.Challenge, error) {
	query := `
		SELECT id, title, points, flag, difficulty, hint, hint_penalty
		FROM challenges
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	defer rows.Close()

	var challenges []*models.Challenge

	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		challenges = append(challenges, c)
	}

	return challenges, rows.Err()
}

// CountChallenges returns the number of configured challenges
func (r *PostgresRepository) CountChallenges(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM challenges`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count challenges: %w", err)
	}
	return count, nil
}

func scanChallenge(row pgx.Row) (*models.Challenge, error) {
	var c models.Challenge
	var difficulty, hint sql.NullString

	err := row.Scan(
		&c.ID,
		&c.Title,
		&c.Points,
		&c.Flag,
		&difficulty,
		&hint,
		&c.HintPenalty,
	)
	if err != nil {
		return nil, err
	}

	c.Difficulty = difficulty.String
	c.Hint = hint.String
	return &c, nil
}

// --- Progress ---

// EnsureProgress creates an empty progress record for the user if none
// exists. Safe to call concurrently; the insert is idempotent.
func (r *PostgresRepository) EnsureProgress(ctx context.Context, username, name string) error {
	query := `
		INSERT INTO progress (username, name) VALUES ($1, $2)
		ON CONFLICT (username) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query, username, name)
	if err != nil {
		return fmt.Errorf("failed to ensure progress: %w", err)
	}

	return nil
}

// GetProgress retrieves the progress record for a user
func (r *PostgresRepository) GetProgress(ctx context.Context, username string) (*models.Progress, error) {
	query := `
		SELECT username, name, score, last_submit, answers, used_hints, active_times
		FROM progress
		WHERE username = $1
	`

	p, err := scanProgress(r.pool.QueryRow(ctx, query, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProgressNotFound
		}
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}

	return p, nil
}

// ListProgress returns every progress record
func (r *PostgresRepository) ListProgress(ctx context.Context) ([]*models.Progress, error) {
	query := `
		SELECT username, name, score, last_submit, answers, used_hints, active_times
		FROM progress
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}
	defer rows.Close()

	var records []*models.Progress

	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan progress: %w", err)
		}
		records = append(records, p)
	}

	return records, rows.Err()
}

// MutateProgress applies fn to the user's progress record under a row lock,
// so concurrent mutations for the same user are serialized by the database.
// Returning an error from fn aborts the transaction without a write.
func (r *PostgresRepository) MutateProgress(ctx context.Context, username string, fn func(p *models.Progress) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		SELECT username, name, score, last_submit, answers, used_hints, active_times
		FROM progress
		WHERE username = $1
		FOR UPDATE
	`

	p, err := scanProgress(tx.QueryRow(ctx, query, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProgressNotFound
		}
		return fmt.Errorf("failed to lock progress: %w", err)
	}

	if err := fn(p); err != nil {
		return err
	}

	answersJSON, err := json.Marshal(p.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}

	hintsJSON, err := json.Marshal(p.UsedHints)
	if err != nil {
		return fmt.Errorf("failed to marshal used hints: %w", err)
	}

	timesJSON, err := json.Marshal(p.ActiveTimes)
	if err != nil {
		return fmt.Errorf("failed to marshal active times: %w", err)
	}

	update := `
		UPDATE progress
		SET score = $2, last_submit = $3, answers = $4, used_hints = $5, active_times = $6
		WHERE username = $1
	`

	if _, err := tx.Exec(ctx, update,
		p.Username,
		p.Score,
		nullTime(p.LastSubmit),
		answersJSON,
		hintsJSON,
		timesJSON,
	); err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit progress: %w", err)
	}

	return nil
}

// ResetProgress clears score, answers, hints and active times for every user
func (r *PostgresRepository) ResetProgress(ctx context.Context) error {
	query := `
		UPDATE progress
		SET score = 0, last_submit = NULL, answers = '{}', used_hints = '{}', active_times = '{}'
	`

	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to reset progress: %w", err)
	}

	return nil
}

func scanProgress(row pgx.Row) (*models.Progress, error) {
	var p models.Progress
	var lastSubmit sql.NullTime
	var answersJSON, hintsJSON, timesJSON []byte

	err := row.Scan(
		&p.Username,
		&p.Name,
		&p.Score,
		&lastSubmit,
		&answersJSON,
		&hintsJSON,
		&timesJSON,
	)
	if err != nil {
		return nil, err
	}

	if lastSubmit.Valid {
		p.LastSubmit = &lastSubmit.Time
	}

	if answersJSON != nil {
		if err := json.Unmarshal(answersJSON, &p.Answers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal answers: %w", err)
		}
	}

	if hintsJSON != nil {
		if err := json.Unmarshal(hintsJSON, &p.UsedHints); err != nil {
			return nil, fmt.Errorf("failed to unmarshal used hints: %w", err)
		}
	}

	if timesJSON != nil {
		if err := json.Unmarshal(timesJSON, &p.ActiveTimes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal active times: %w", err)
		}
	}

	p.Normalize()
	return &p, nil
}

// Helper functions for nullable values

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
