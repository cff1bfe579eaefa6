package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteStore is the embedded implementation, suitable for a single-operator
// support desk. WAL mode keeps concurrent readers cheap; writes are
// serialised through a single connection.
//
// modernc.org/sqlite is pure Go, so no CGO in CI/CD.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and ensures the schema
// exists. Caller owns Close().
func NewSQLite(path string) (Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := migrateSQLite(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteStore{db: db}, nil
}

func migrateSQLite(db *sql.DB) error {
	const stmt = `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		telegram_id INTEGER NOT NULL UNIQUE,
		username TEXT,
		first_name TEXT,
		last_name TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_activity TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS blocked_users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		telegram_id INTEGER NOT NULL UNIQUE,
		blocked_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		reason TEXT,
		blocked_by INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT,
		price REAL NOT NULL,
		image_url TEXT,
		category TEXT,
		in_stock INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		status TEXT NOT NULL DEFAULT 'pending',
		total_amount REAL NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		contact_info TEXT
	);
	CREATE TABLE IF NOT EXISTS order_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id INTEGER NOT NULL REFERENCES orders(id),
		product_id INTEGER NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL,
		price REAL NOT NULL
	);
	CREATE TABLE IF NOT EXISTS rate_limits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		telegram_id INTEGER NOT NULL,
		action_type TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rate_limits_lookup
		ON rate_limits(telegram_id, action_type, timestamp);
	`
	_, err := db.Exec(stmt)
	return err
}

func (s *sqliteStore) FindUser(ctx context.Context, telegramID int64) (*User, error) {
	var u User
	var username, first, last sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, telegram_id, username, first_name, last_name, created_at, last_activity
		 FROM users WHERE telegram_id = ? LIMIT 1;`, telegramID).
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

func (s *sqliteStore) CreateUser(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users(telegram_id, username, first_name, last_name, created_at, last_activity)
		 VALUES(?, ?, ?, ?, ?, ?);`,
		u.TelegramID, u.Username, u.FirstName, u.LastName, now, now)
	if err != nil {
		return err
	}
	u.CreatedAt = now
	u.LastActivity = now
	if id, err := res.LastInsertId(); err == nil {
		u.ID = id
	}
	return nil
}

func (s *sqliteStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT telegram_id FROM users ORDER BY id;`)
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

func (s *sqliteStore) CountUsers(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM users;`)
}

func (s *sqliteStore) CountUsersSince(ctx context.Context, since time.Time) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM users WHERE created_at >= ?;`, since)
}

func (s *sqliteStore) IsBlocked(ctx context.Context, telegramID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM blocked_users WHERE telegram_id = ? LIMIT 1;`, telegramID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return one == 1, err
}

func (s *sqliteStore) CreateBlock(ctx context.Context, rec BlockRecord) error {
	at := rec.BlockedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO blocked_users(telegram_id, blocked_at, reason, blocked_by)
		 VALUES(?, ?, ?, ?);`,
		rec.TelegramID, at, rec.Reason, rec.BlockedBy)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *sqliteStore) DeleteBlock(ctx context.Context, telegramID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM blocked_users WHERE telegram_id = ?;`, telegramID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) ListBlocked(ctx context.Context) ([]BlockRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT telegram_id, blocked_at, COALESCE(reason, ''), blocked_by
		 FROM blocked_users ORDER BY blocked_at DESC;`)
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

func (s *sqliteStore) CountRateEvents(ctx context.Context, telegramID int64, kind ActionKind, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rate_limits
		 WHERE telegram_id = ? AND action_type = ? AND timestamp >= ?;`,
		telegramID, string(kind), since).Scan(&n)
	return n, err
}

func (s *sqliteStore) CreateRateEvent(ctx context.Context, telegramID int64, kind ActionKind, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rate_limits(telegram_id, action_type, timestamp) VALUES(?, ?, ?);`,
		telegramID, string(kind), at)
	return err
}

func (s *sqliteStore) DeleteRateEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM rate_limits WHERE timestamp < ?;`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqliteStore) CountOrders(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM orders;`)
}

func (s *sqliteStore) CountOrdersSince(ctx context.Context, since time.Time) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM orders WHERE created_at >= ?;`, since)
}

func (s *sqliteStore) CountProducts(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM products;`)
}

func (s *sqliteStore) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
