package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store against PostgreSQL. It is the durable
// backend of record; Redis and MemoryStore exist for fast paths and
// tests respectively.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a connection pool and verifies connectivity.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = 50
	cfg.MinConns = 5
	cfg.MaxConnLifetime = time.Hour
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) ListEnabledSlots(ctx context.Context) ([]*Slot, error) {
	query := `
		SELECT id, label, kind, base_url, proxy_url, enabled, account_id,
		       limit_per_hour, used_in_window, window_start, cooldown_until,
		       health, updated_at
		FROM slots WHERE enabled = true
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlot(row rowScanner) (*Slot, error) {
	var s Slot
	var cooldown *time.Time
	if err := row.Scan(
		&s.ID, &s.Label, &s.Kind, &s.BaseURL, &s.ProxyURL, &s.Enabled, &s.AccountID,
		&s.LimitPerHour, &s.UsedInWindow, &s.WindowStart, &cooldown,
		&s.Health, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if cooldown != nil {
		s.CooldownUntil = *cooldown
	}
	return &s, nil
}

func (s *PostgresStore) GetSlot(ctx context.Context, id string) (*Slot, error) {
	query := `
		SELECT id, label, kind, base_url, proxy_url, enabled, account_id,
		       limit_per_hour, used_in_window, window_start, cooldown_until,
		       health, updated_at
		FROM slots WHERE id = $1
	`
	row := s.pool.QueryRow(ctx, query, id)
	slot, err := scanSlot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return slot, nil
}

func (s *PostgresStore) UpsertSlot(ctx context.Context, slot *Slot) error {
	query := `
		INSERT INTO slots (id, label, kind, base_url, proxy_url, enabled, account_id,
		                    limit_per_hour, used_in_window, window_start, cooldown_until,
		                    health, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12, NOW())
		ON CONFLICT (id) DO UPDATE SET
			label = EXCLUDED.label,
			kind = EXCLUDED.kind,
			base_url = EXCLUDED.base_url,
			proxy_url = EXCLUDED.proxy_url,
			enabled = EXCLUDED.enabled,
			account_id = EXCLUDED.account_id,
			limit_per_hour = EXCLUDED.limit_per_hour,
			used_in_window = EXCLUDED.used_in_window,
			window_start = EXCLUDED.window_start,
			cooldown_until = EXCLUDED.cooldown_until,
			health = EXCLUDED.health,
			updated_at = NOW()
	`
	var cooldown *time.Time
	if slot.HasCooldown() {
		cooldown = &slot.CooldownUntil
	}
	_, err := s.pool.Exec(ctx, query,
		slot.ID, slot.Label, slot.Kind, slot.BaseURL, slot.ProxyURL, slot.Enabled, slot.AccountID,
		slot.LimitPerHour, slot.UsedInWindow, slot.WindowStart, cooldown, slot.Health,
	)
	return err
}

func (s *PostgresStore) WriteBackSlot(ctx context.Context, id string, usedInWindow int, windowStart time.Time, cooldownUntil time.Time, health Health) error {
	query := `
		UPDATE slots
		SET used_in_window = $2, window_start = $3, cooldown_until = $4, health = $5, updated_at = NOW()
		WHERE id = $1
	`
	var cooldown *time.Time
	if !cooldownUntil.IsZero() {
		cooldown = &cooldownUntil
	}
	tag, err := s.pool.Exec(ctx, query, id, usedInWindow, windowStart, cooldown, health)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListEnabledAccounts(ctx context.Context) ([]*Account, error) {
	query := `SELECT id, label, enabled FROM accounts WHERE enabled = true`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Label, &a.Enabled); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	query := `SELECT id, label, enabled FROM accounts WHERE id = $1`
	var a Account
	err := s.pool.QueryRow(ctx, query, id).Scan(&a.ID, &a.Label, &a.Enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) UpsertAccount(ctx context.Context, a *Account) error {
	query := `
		INSERT INTO accounts (id, label, enabled)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET label = EXCLUDED.label, enabled = EXCLUDED.enabled
	`
	_, err := s.pool.Exec(ctx, query, a.ID, a.Label, a.Enabled)
	return err
}

func (s *PostgresStore) ListAllAccounts(ctx context.Context) ([]*Account, error) {
	query := `SELECT id, label, enabled FROM accounts`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Label, &a.Enabled); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteAccount(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) CreateTask(ctx context.Context, t *Task) error {
	query := `
		INSERT INTO tasks (id, type, payload, priority, attempts, max_attempts, status,
		                    account_id, instance_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, NOW(), NOW())
	`
	_, err := s.pool.Exec(ctx, query,
		t.ID, t.Type, t.Payload, t.Priority, t.Attempts, t.MaxAttempts, t.Status,
		t.AccountID, t.InstanceID,
	)
	return err
}

func (s *PostgresStore) GetTask(ctx context.Context, id string) (*Task, error) {
	query := `
		SELECT id, type, payload, priority, attempts, max_attempts, status,
		       account_id, instance_id, created_at, updated_at, started_at, completed_at,
		       error, error_code
		FROM tasks WHERE id = $1
	`
	var t Task
	var startedAt, completedAt *time.Time
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.Type, &t.Payload, &t.Priority, &t.Attempts, &t.MaxAttempts, &t.Status,
		&t.AccountID, &t.InstanceID, &t.CreatedAt, &t.UpdatedAt, &startedAt, &completedAt,
		&t.Error, &t.ErrorCode,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if startedAt != nil {
		t.StartedAt = *startedAt
	}
	if completedAt != nil {
		t.CompletedAt = *completedAt
	}
	return &t, nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, t *Task) error {
	query := `
		UPDATE tasks
		SET status = $2, attempts = $3, instance_id = $4, started_at = $5,
		    completed_at = $6, error = $7, error_code = $8, updated_at = NOW()
		WHERE id = $1
	`
	var startedAt, completedAt *time.Time
	if !t.StartedAt.IsZero() {
		startedAt = &t.StartedAt
	}
	if !t.CompletedAt.IsZero() {
		completedAt = &t.CompletedAt
	}
	tag, err := s.pool.Exec(ctx, query, t.ID, t.Status, t.Attempts, t.InstanceID, startedAt, completedAt, t.Error, t.ErrorCode)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListQueuedTasks(ctx context.Context) ([]*Task, error) {
	query := `
		SELECT id, type, payload, priority, attempts, max_attempts, status,
		       account_id, instance_id, created_at, updated_at
		FROM tasks WHERE status = 'queued'
		ORDER BY priority ASC, created_at ASC
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(
			&t.ID, &t.Type, &t.Payload, &t.Priority, &t.Attempts, &t.MaxAttempts, &t.Status,
			&t.AccountID, &t.InstanceID, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CompareAndSetStatus(ctx context.Context, id string, from, to TaskStatus) (bool, error) {
	query := `UPDATE tasks SET status = $3, updated_at = NOW(),
		started_at = CASE WHEN $4 THEN NOW() ELSE started_at END
		WHERE id = $1 AND status = $2`
	tag, err := s.pool.Exec(ctx, query, id, from, to, to == StatusRunning)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListAllTasks(ctx context.Context) ([]*Task, error) {
	query := `
		SELECT id, type, payload, priority, attempts, max_attempts, status,
		       account_id, instance_id, created_at, updated_at, started_at, completed_at,
		       error, error_code
		FROM tasks
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		var t Task
		var startedAt, completedAt *time.Time
		if err := rows.Scan(
			&t.ID, &t.Type, &t.Payload, &t.Priority, &t.Attempts, &t.MaxAttempts, &t.Status,
			&t.AccountID, &t.InstanceID, &t.CreatedAt, &t.UpdatedAt, &startedAt, &completedAt,
			&t.Error, &t.ErrorCode,
		); err != nil {
			return nil, err
		}
		if startedAt != nil {
			t.StartedAt = *startedAt
		}
		if completedAt != nil {
			t.CompletedAt = *completedAt
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteTask(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	return err
}
