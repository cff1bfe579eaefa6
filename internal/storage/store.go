package storage

import (
	"context"
	"errors"
	"time"
)

// ActionKind classifies rate-limited actions.
type ActionKind string

const (
	ActionMessage ActionKind = "message"
	ActionCommand ActionKind = "command"
)

// ErrDuplicate is returned by CreateBlock when a record for the identity
// already exists. Concurrent blocks race on the unique constraint by design;
// callers treat this error as "already blocked".
var ErrDuplicate = errors.New("storage: duplicate record")

// User is a registered bot user.
type User struct {
	ID           int64
	TelegramID   int64
	Username     string
	FirstName    string
	LastName     string
	CreatedAt    time.Time
	LastActivity time.Time
}

// BlockRecord marks an identity as banned from the support flow.
// At most one record exists per identity (unique constraint).
type BlockRecord struct {
	TelegramID int64
	BlockedAt  time.Time
	Reason     string
	BlockedBy  int64
}

// Store abstracts persistence for users, blocks, the rate-limit ledger and
// catalog/order statistics. Implementations must be safe for concurrent use.
//
// FindUser returns nil (not an error) when the user is unknown.
// DeleteBlock reports whether a record actually existed.
// Close frees resources; the Store must not be used afterwards.
type Store interface {
	FindUser(ctx context.Context, telegramID int64) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	ListUserIDs(ctx context.Context) ([]int64, error)
	CountUsers(ctx context.Context) (int64, error)
	CountUsersSince(ctx context.Context, since time.Time) (int64, error)

	IsBlocked(ctx context.Context, telegramID int64) (bool, error)
	CreateBlock(ctx context.Context, rec BlockRecord) error
	DeleteBlock(ctx context.Context, telegramID int64) (bool, error)
	ListBlocked(ctx context.Context) ([]BlockRecord, error)

	CountRateEvents(ctx context.Context, telegramID int64, kind ActionKind, since time.Time) (int, error)
	CreateRateEvent(ctx context.Context, telegramID int64, kind ActionKind, at time.Time) error
	DeleteRateEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	CountOrders(ctx context.Context) (int64, error)
	CountOrdersSince(ctx context.Context, since time.Time) (int64, error)
	CountProducts(ctx context.Context) (int64, error)

	Close() error
}
