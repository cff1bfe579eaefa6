package security

import (
	"context"
	"errors"

	"support_bot/internal/storage"
)

// Blocklist is the membership test plus add/remove for banned identities.
// Uniqueness is enforced by the store's constraint, not by locking here; a
// concurrent duplicate block surfaces as storage.ErrDuplicate and is
// reported as "already blocked".
type Blocklist struct {
	store storage.Store
}

// NewBlocklist wraps the store.
func NewBlocklist(store storage.Store) *Blocklist {
	return &Blocklist{store: store}
}

// IsBlocked reports whether the identity has an active block record.
func (b *Blocklist) IsBlocked(ctx context.Context, telegramID int64) (bool, error) {
	return b.store.IsBlocked(ctx, telegramID)
}

// Block creates a block record. Returns false when the identity was already
// blocked; no duplicate record is created either way.
func (b *Blocklist) Block(ctx context.Context, telegramID, by int64, reason string) (bool, error) {
	err := b.store.CreateBlock(ctx, storage.BlockRecord{
		TelegramID: telegramID,
		BlockedBy:  by,
		Reason:     SanitizeText(reason),
	})
	if errors.Is(err, storage.ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Unblock removes the block record. Returns false when none existed.
func (b *Blocklist) Unblock(ctx context.Context, telegramID int64) (bool, error) {
	return b.store.DeleteBlock(ctx, telegramID)
}

// List returns all block records, newest first.
func (b *Blocklist) List(ctx context.Context) ([]storage.BlockRecord, error) {
	return b.store.ListBlocked(ctx)
}
