package security

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support_bot/internal/storage"
)

func TestBlocklist_BlockAndCheck(t *testing.T) {
	bl := NewBlocklist(storage.NewMemory())
	ctx := context.Background()

	blocked, err := bl.IsBlocked(ctx, 42)
	require.NoError(t, err)
	assert.False(t, blocked)

	ok, err := bl.Block(ctx, 42, 100, "спам")
	require.NoError(t, err)
	assert.True(t, ok)

	blocked, err = bl.IsBlocked(ctx, 42)
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestBlocklist_DuplicateBlock(t *testing.T) {
	bl := NewBlocklist(storage.NewMemory())
	ctx := context.Background()

	ok, err := bl.Block(ctx, 42, 100, "")
	require.NoError(t, err)
	require.True(t, ok)

	// the second block is reported as already-blocked, not an error
	ok, err = bl.Block(ctx, 42, 100, "")
	require.NoError(t, err)
	assert.False(t, ok)

	records, err := bl.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestBlocklist_Unblock(t *testing.T) {
	bl := NewBlocklist(storage.NewMemory())
	ctx := context.Background()

	ok, err := bl.Unblock(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = bl.Block(ctx, 42, 100, "")
	require.NoError(t, err)

	ok, err = bl.Unblock(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)

	blocked, err := bl.IsBlocked(ctx, 42)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestBlocklist_ReasonSanitized(t *testing.T) {
	bl := NewBlocklist(storage.NewMemory())
	ctx := context.Background()

	_, err := bl.Block(ctx, 42, 100, "спам <script>x()</script>")
	require.NoError(t, err)

	records, err := bl.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "спам", records[0].Reason)
	assert.Equal(t, int64(100), records[0].BlockedBy)
}
