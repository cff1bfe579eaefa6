package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// postgresStore backs multi-connection deployments. Schema matches the
// sqlite variant field for field.
type postgresStore struct {
	db *sql.DB
}

// NewPostgres opens a connection pool for the DSN and ensures the schema
// exists.
func NewPostgres(dsn string) (Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := migratePostgres(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return &postgresStore{db: db}, nil
}

func migratePostgres(db *sql.DB) error {
	const stmt = `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		telegram_id BIGINT NOT NULL UNIQUE,
		username TEXT,
		first_name TEXT,
		last_name TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_activity TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS blocked_users (
		id BIGSERIAL PRIMARY KEY,
		telegram_id BIGINT NOT NULL UNIQUE,
		blocked_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		reason TEXT,
		blocked_by BIGINT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS products (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		price DOUBLE PRECISION NOT NULL,
		image_url TEXT,
		category TEXT,
		in_stock BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS orders (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		status TEXT NOT NULL DEFAULT 'pending',
		total_amount DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		contact_info JSONB
	);
	CREATE TABLE IF NOT EXISTS order_items (
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL REFERENCES orders(id),
		product_id BIGINT NOT NULL REFERENCES products(id),
		quantity INT NOT NULL,
		price DOUBLE PRECISION NOT NULL
	);
	CREATE TABLE IF NOT EXISTS rate_limits (
		id BIGSERIAL PRIMARY KEY,
		telegram_id BIGINT NOT NULL,
		action_type TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rate_limits_lookup
		ON rate_limits(telegram_id, action_type, timestamp);
	`
	_, err := db.Exec(stmt)
	return err
}

func (s *postgresStore) FindUser(ctx context.Context, telegramID int64) (*User, error) {
	var u User
	var username, first, last sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, telegram_id, username, first_name, last_name, created_at, last_activity
		 FROM users WHERE telegram_id = $1 LIMIT 1`, telegramID).
		Scan(&u.ID, &u.TelegramID, &username, &first, &last, &u.CreatedAt, &u.LastActivity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Username = username.String
	u.FirstName = first.String
	u.LastName = last.String
	return &u, nil
}

func (s *postgresStore) CreateUser(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users(telegram_id, username, first_name, last_name, created_at, last_activity)
		 VALUES($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (telegram_id) DO UPDATE SET last_activity = EXCLUDED.last_activity
		 RETURNING id`,
		u.TelegramID, u.Username, u.FirstName, u.LastName, now).Scan(&u.ID)
	if err != nil {
		return err
	}
	u.CreatedAt = now
	u.LastActivity = now
	return nil
}

func (s *postgresStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT telegram_id FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *postgresStore) CountUsers(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM users`)
}

func (s *postgresStore) CountUsersSince(ctx context.Context, since time.Time) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM users WHERE created_at >= $1`, since)
}

func (s *postgresStore) IsBlocked(ctx context.Context, telegramID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM blocked_users WHERE telegram_id = $1 LIMIT 1`, telegramID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return one == 1, err
}

func (s *postgresStore) CreateBlock(ctx context.Context, rec BlockRecord) error {
	at := rec.BlockedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blocked_users(telegram_id, blocked_at, reason, blocked_by)
		 VALUES($1, $2, $3, $4)`,
		rec.TelegramID, at, rec.Reason, rec.BlockedBy)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

func (s *postgresStore) DeleteBlock(ctx context.Context, telegramID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM blocked_users WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *postgresStore) ListBlocked(ctx context.Context) ([]BlockRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT telegram_id, blocked_at, COALESCE(reason, ''), blocked_by
		 FROM blocked_users ORDER BY blocked_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []BlockRecord
	for rows.Next() {
		var r BlockRecord
		if err := rows.Scan(&r.TelegramID, &r.BlockedAt, &r.Reason, &r.BlockedBy); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *postgresStore) CountRateEvents(ctx context.Context, telegramID int64, kind ActionKind, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rate_limits
		 WHERE telegram_id = $1 AND action_type = $2 AND timestamp >= $3`,
		telegramID, string(kind), since).Scan(&n)
	return n, err
}

func (s *postgresStore) CreateRateEvent(ctx context.Context, telegramID int64, kind ActionKind, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rate_limits(telegram_id, action_type, timestamp) VALUES($1, $2, $3)`,
		telegramID, string(kind), at)
	return err
}

func (s *postgresStore) DeleteRateEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM rate_limits WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *postgresStore) CountOrders(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM orders`)
}

func (s *postgresStore) CountOrdersSince(ctx context.Context, since time.Time) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM orders WHERE created_at >= $1`, since)
}

func (s *postgresStore) CountProducts(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM products`)
}

func (s *postgresStore) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func (s *postgresStore) Close() error {
	return s.db.Close()
}
