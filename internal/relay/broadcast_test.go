package relay

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support_bot/internal/storage"
)

func TestBroadcast_EmptyContent(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	_, err := eng.Broadcast(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidContent)
}

func TestBroadcast_FanOut(t *testing.T) {
	eng, ft, _ := newTestEngine(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		_, err := eng.RegisterUser(ctx, Profile{ID: id})
		require.NoError(t, err)
	}

	report, err := eng.Broadcast(ctx, []Content{{Kind: KindText, Text: "акция"}})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Sent)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 0, report.Skipped)
	assert.Len(t, ft.sentMessages(), 3)
}

func TestBroadcast_BlockedSkippedAtSendTime(t *testing.T) {
	eng, ft, store := newTestEngine(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		_, err := eng.RegisterUser(ctx, Profile{ID: id})
		require.NoError(t, err)
	}
	require.NoError(t, store.CreateBlock(ctx, storage.BlockRecord{TelegramID: 2}))

	report, err := eng.Broadcast(ctx, []Content{{Kind: KindText, Text: "акция"}})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Failed)

	for _, m := range ft.sentMessages() {
		assert.NotEqual(t, int64(2), m.chatID)
	}
}

func TestBroadcast_PartialFailure(t *testing.T) {
	eng, ft, _ := newTestEngine(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		_, err := eng.RegisterUser(ctx, Profile{ID: id})
		require.NoError(t, err)
	}
	ft.failChat(2, errors.New("forbidden: bot was blocked by the user"))

	report, err := eng.Broadcast(ctx, []Content{{Kind: KindText, Text: "акция"}})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 1, report.Failed)

	// the failed recipient never aborts the run
	assert.Len(t, ft.sentMessages(), 2)
}

func TestBroadcast_RunsToCompletionAfterCancel(t *testing.T) {
	eng, ft, _ := newTestEngine(t)

	for _, id := range []int64{1, 2, 3} {
		_, err := eng.RegisterUser(context.Background(), Profile{ID: id})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := eng.Broadcast(ctx, []Content{{Kind: KindText, Text: "акция"}})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Sent)
	assert.Len(t, ft.sentMessages(), 3)
}

func TestBroadcast_Album(t *testing.T) {
	eng, ft, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.RegisterUser(ctx, Profile{ID: 1})
	require.NoError(t, err)

	parts := []Content{
		{Kind: KindPhoto, FileID: "p1", Caption: "новинки"},
		{Kind: KindPhoto, FileID: "p2"},
	}
	report, err := eng.Broadcast(ctx, parts)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)

	albums := ft.sentAlbums()
	require.Len(t, albums, 1)
	assert.Len(t, albums[0].parts, 2)
}
