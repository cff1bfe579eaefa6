package relay

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support_bot/internal/security"
	"support_bot/internal/storage"
)

const (
	testAdminID   = int64(100)
	testTechID    = int64(200)
	testMonitorID = int64(300)
)

func newTestEngine(t *testing.T) (*Engine, *fakeTransport, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemory()
	ft := newFakeTransport()
	gate := Gate{AdminID: testAdminID, TechManagerID: testTechID, MonitorID: testMonitorID}
	eng := New(ft, store,
		security.NewBlocklist(store),
		security.NewRateLimiter(store, 5, 30),
		gate, 30*time.Millisecond, 0, nil)
	return eng, ft, store
}

func TestEngine_RegisterUser(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	isNew, err := eng.RegisterUser(ctx, Profile{ID: 42, Username: "alice", FirstName: "Alice"})
	require.NoError(t, err)
	assert.True(t, isNew)

	isNew, err = eng.RegisterUser(ctx, Profile{ID: 42, Username: "alice"})
	require.NoError(t, err)
	assert.False(t, isNew)
}

func TestEngine_AskQuestion_Blocked(t *testing.T) {
	eng, _, store := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, store.CreateBlock(ctx, storage.BlockRecord{TelegramID: 42}))

	err := eng.AskQuestion(ctx, 42)
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestEngine_HandleUserContent_NotAwaiting(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	err := eng.HandleUserContent(context.Background(), Profile{ID: 42},
		Content{Kind: KindText, Text: "hi"}, "", nil)
	assert.ErrorIs(t, err, ErrNotAwaiting)
}

func TestEngine_HandleUserContent_TextRelayed(t *testing.T) {
	eng, ft, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.AskQuestion(ctx, 42))
	err := eng.HandleUserContent(ctx, Profile{ID: 42, Username: "alice", FirstName: "Alice"},
		Content{Kind: KindText, Text: "где мой заказ?"}, "", nil)
	require.NoError(t, err)

	sent := ft.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, testAdminID, sent[0].chatID)
	assert.Contains(t, sent[0].content.Text, "ID: 42")
	assert.Contains(t, sent[0].content.Text, "@alice")
	assert.Contains(t, sent[0].content.Text, "💬 Вопрос:\nгде мой заказ?")
	require.NotNil(t, sent[0].controls)
	assert.Equal(t, ControlsQuestion, sent[0].controls.State)
	assert.Equal(t, int64(42), sent[0].controls.UserID)

	// awaiting flag is consumed by a successful relay
	err = eng.HandleUserContent(ctx, Profile{ID: 42},
		Content{Kind: KindText, Text: "еще"}, "", nil)
	assert.ErrorIs(t, err, ErrNotAwaiting)

	// the forwarded message resolves back to the user
	origin, ok := eng.ResolveOrigin(sent[0].ref.MessageID)
	require.True(t, ok)
	assert.Equal(t, int64(42), origin)
}

func TestEngine_HandleUserContent_BlockedIsTerminal(t *testing.T) {
	eng, _, store := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.AskQuestion(ctx, 42))
	require.NoError(t, store.CreateBlock(ctx, storage.BlockRecord{TelegramID: 42}))

	err := eng.HandleUserContent(ctx, Profile{ID: 42},
		Content{Kind: KindText, Text: "hi"}, "", nil)
	assert.ErrorIs(t, err, ErrBlocked)

	// blocked clears the awaiting flag
	err = eng.HandleUserContent(ctx, Profile{ID: 42},
		Content{Kind: KindText, Text: "hi"}, "", nil)
	assert.ErrorIs(t, err, ErrNotAwaiting)
}

func TestEngine_HandleUserContent_RateLimitedKeepsFlag(t *testing.T) {
	store := storage.NewMemory()
	ft := newFakeTransport()
	gate := Gate{AdminID: testAdminID}
	eng := New(ft, store, security.NewBlocklist(store),
		security.NewRateLimiter(store, 1, 30), gate, 30*time.Millisecond, 0, nil)
	ctx := context.Background()

	require.NoError(t, eng.AskQuestion(ctx, 42))
	require.NoError(t, eng.HandleUserContent(ctx, Profile{ID: 42},
		Content{Kind: KindText, Text: "раз"}, "", nil))

	require.NoError(t, eng.AskQuestion(ctx, 42))
	err := eng.HandleUserContent(ctx, Profile{ID: 42},
		Content{Kind: KindText, Text: "два"}, "", nil)

	var limitErr *security.LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, security.ScopeMinute, limitErr.Scope)

	// the flag survives a rate denial, the user may retry
	err = eng.HandleUserContent(ctx, Profile{ID: 42},
		Content{Kind: KindText, Text: "три"}, "", nil)
	require.ErrorAs(t, err, &limitErr)
}

func TestEngine_HandleUserContent_SanitizedEmptyRejected(t *testing.T) {
	eng, ft, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.AskQuestion(ctx, 42))
	err := eng.HandleUserContent(ctx, Profile{ID: 42},
		Content{Kind: KindText, Text: "<script>alert(1)</script>"}, "", nil)
	assert.ErrorIs(t, err, ErrInvalidContent)
	assert.Empty(t, ft.sentMessages())
}

func TestEngine_HandleUserContent_AlbumAssembled(t *testing.T) {
	eng, ft, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.AskQuestion(ctx, 42))

	var mu sync.Mutex
	var reported []error
	report := func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	}

	from := Profile{ID: 42, Username: "alice"}
	require.NoError(t, eng.HandleUserContent(ctx, from,
		Content{Kind: KindPhoto, FileID: "p1", Caption: "сломалось вот так"}, "g1", report))
	require.NoError(t, eng.HandleUserContent(ctx, from,
		Content{Kind: KindPhoto, FileID: "p2"}, "g1", report))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reported) == 1
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	require.NoError(t, reported[0])
	mu.Unlock()

	albums := ft.sentAlbums()
	require.Len(t, albums, 1)
	assert.Len(t, albums[0].parts, 2)
	assert.Equal(t, "p1", albums[0].parts[0].FileID)

	// header message carries the first caption, control message trails
	sent := ft.sentMessages()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].content.Text, "сломалось вот так")
	assert.Nil(t, sent[0].controls)
	require.NotNil(t, sent[1].controls)
	assert.Equal(t, ControlsQuestion, sent[1].controls.State)

	// both the first album message and the control message correlate back
	origin, ok := eng.ResolveOrigin(albums[0].refs[0].MessageID)
	require.True(t, ok)
	assert.Equal(t, int64(42), origin)
	origin, ok = eng.ResolveOrigin(sent[1].ref.MessageID)
	require.True(t, ok)
	assert.Equal(t, int64(42), origin)
}

func TestEngine_ReplyFlow(t *testing.T) {
	eng, ft, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.AskQuestion(ctx, 42))
	require.NoError(t, eng.HandleUserContent(ctx, Profile{ID: 42},
		Content{Kind: KindText, Text: "вопрос"}, "", nil))
	controlRef := ft.sentMessages()[0].ref

	require.NoError(t, eng.StartReply(ctx, testAdminID, 42))
	target, ok := eng.ReplyTarget(testAdminID)
	require.True(t, ok)
	assert.Equal(t, int64(42), target)

	// the pressed control switched to cancel
	edits := ft.editCalls()
	require.Len(t, edits, 1)
	assert.Equal(t, controlRef, edits[0].ref)
	assert.Equal(t, ControlsCancelReply, edits[0].controls.State)

	require.NoError(t, eng.HandleOperatorContent(ctx, testAdminID,
		Content{Kind: KindText, Text: "все в пути"}, "", nil))

	// the reply reached the user with the support prefix
	sent := ft.sentMessages()
	last := sent[len(sent)-1]
	assert.Equal(t, int64(42), last.chatID)
	assert.True(t, strings.HasPrefix(last.content.Text, "💬 Ответ поддержки:"))
	assert.Contains(t, last.content.Text, "все в пути")

	// session ended, controls relabeled answered
	_, ok = eng.ReplyTarget(testAdminID)
	assert.False(t, ok)
	edits = ft.editCalls()
	require.Len(t, edits, 2)
	assert.Equal(t, ControlsAnswered, edits[1].controls.State)
}

func TestEngine_ReplyFlow_SupersedingTarget(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.StartReply(ctx, testAdminID, 42))
	require.NoError(t, eng.StartReply(ctx, testAdminID, 43))

	target, ok := eng.ReplyTarget(testAdminID)
	require.True(t, ok)
	assert.Equal(t, int64(43), target)
}

func TestEngine_CancelReply(t *testing.T) {
	eng, ft, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.AskQuestion(ctx, 42))
	require.NoError(t, eng.HandleUserContent(ctx, Profile{ID: 42},
		Content{Kind: KindText, Text: "вопрос"}, "", nil))

	require.NoError(t, eng.StartReply(ctx, testAdminID, 42))
	target, err := eng.CancelReply(ctx, testAdminID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), target)

	_, ok := eng.ReplyTarget(testAdminID)
	assert.False(t, ok)

	// controls restored to the question affordance
	edits := ft.editCalls()
	require.Len(t, edits, 2)
	assert.Equal(t, ControlsQuestion, edits[1].controls.State)

	_, err = eng.CancelReply(ctx, testAdminID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_HandleOperatorContent_NoSession(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	err := eng.HandleOperatorContent(context.Background(), testAdminID,
		Content{Kind: KindText, Text: "ответ"}, "", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_ReplyToUser_MediaCaption(t *testing.T) {
	eng, ft, _ := newTestEngine(t)

	require.NoError(t, eng.ReplyToUser(context.Background(), 42,
		Content{Kind: KindPhoto, FileID: "p1", Caption: "вот скрин"}))

	sent := ft.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, KindPhoto, sent[0].content.Kind)
	assert.True(t, strings.HasPrefix(sent[0].content.Caption, "💬 Ответ поддержки:"))
	assert.Contains(t, sent[0].content.Caption, "вот скрин")
}

func TestEngine_Stats(t *testing.T) {
	eng, _, store := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.RegisterUser(ctx, Profile{ID: 1})
	require.NoError(t, err)
	_, err = eng.RegisterUser(ctx, Profile{ID: 2})
	require.NoError(t, err)
	store.AddOrder(time.Now().UTC())
	store.AddOrder(time.Now().UTC().AddDate(0, 0, -30))
	store.SetProducts(7)

	st, err := eng.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.TotalUsers)
	assert.Equal(t, int64(2), st.NewUsers)
	assert.Equal(t, int64(2), st.TotalOrders)
	assert.Equal(t, int64(1), st.NewOrders)
	assert.Equal(t, int64(7), st.Products)
}
