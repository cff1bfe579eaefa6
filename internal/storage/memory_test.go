package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Users(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	u, err := s.FindUser(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, u)

	created := &User{TelegramID: 42, Username: "alice", FirstName: "Alice"}
	require.NoError(t, s.CreateUser(ctx, created))
	assert.NotZero(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	u, err = s.FindUser(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "alice", u.Username)

	n, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryStore_ListUserIDsInsertionOrder(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	for _, id := range []int64{5, 3, 9} {
		require.NoError(t, s.CreateUser(ctx, &User{TelegramID: id}))
	}

	ids, err := s.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 3, 9}, ids)
}

func TestMemoryStore_Blocked(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	require.NoError(t, s.CreateBlock(ctx, BlockRecord{TelegramID: 42, Reason: "спам"}))
	err := s.CreateBlock(ctx, BlockRecord{TelegramID: 42})
	assert.ErrorIs(t, err, ErrDuplicate)

	blocked, err := s.IsBlocked(ctx, 42)
	require.NoError(t, err)
	assert.True(t, blocked)

	existed, err := s.DeleteBlock(ctx, 42)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.DeleteBlock(ctx, 42)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestMemoryStore_ListBlockedNewestFirst(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, s.CreateBlock(ctx, BlockRecord{TelegramID: 1, BlockedAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, s.CreateBlock(ctx, BlockRecord{TelegramID: 2, BlockedAt: now}))
	require.NoError(t, s.CreateBlock(ctx, BlockRecord{TelegramID: 3, BlockedAt: now.Add(-time.Hour)}))

	records, err := s.ListBlocked(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, int64(2), records[0].TelegramID)
	assert.Equal(t, int64(3), records[1].TelegramID)
	assert.Equal(t, int64(1), records[2].TelegramID)
}

func TestMemoryStore_RateEvents(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.CreateRateEvent(ctx, 42, ActionMessage, now.Add(-30*time.Second)))
	require.NoError(t, s.CreateRateEvent(ctx, 42, ActionMessage, now.Add(-2*time.Minute)))
	require.NoError(t, s.CreateRateEvent(ctx, 42, ActionCommand, now))

	n, err := s.CountRateEvents(ctx, 42, ActionMessage, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.CountRateEvents(ctx, 42, ActionMessage, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	removed, err := s.DeleteRateEventsBefore(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
