package telegram

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"support_bot/internal/relay"
	"support_bot/internal/security"
	"support_bot/internal/storage"
)

// Bot drives the update loop: it authorizes actions through the role gate,
// translates Telegram updates into relay engine calls and renders the
// engine's outcomes back as chat messages.
type Bot struct {
	api       *tgbotapi.BotAPI
	engine    *relay.Engine
	store     storage.Store
	blocklist *security.Blocklist
	gate      relay.Gate
	log       *zap.SugaredLogger

	// album assembly for broadcast drafts; question/reply albums are
	// assembled inside the engine
	albums *relay.Aggregator

	mu     sync.Mutex
	drafts map[int64]*broadcastDraft
}

// broadcastDraft holds content a privileged identity is composing.
type broadcastDraft struct {
	parts []relay.Content
}

// New creates a bot over an authorized API client.
func New(
	api *tgbotapi.BotAPI,
	engine *relay.Engine,
	store storage.Store,
	blocklist *security.Blocklist,
	albumWindow time.Duration,
	logger *zap.SugaredLogger,
) *Bot {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	b := &Bot{
		api:       api,
		engine:    engine,
		store:     store,
		blocklist: blocklist,
		gate:      engine.Gate(),
		log:       logger,
		albums:    relay.NewAggregator(albumWindow),
		drafts:    make(map[int64]*broadcastDraft),
	}
	b.log.Infow("telegram bot authorized", "username", api.Self.UserName)
	return b
}

// Run starts the bot's update loop. It blocks until context is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	b.log.Info("telegram bot started, waiting for updates")

	for {
		select {
		case <-ctx.Done():
			b.log.Info("telegram bot: context cancelled, stopping")
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				go b.safely(func() { b.handleCallbackQuery(ctx, update.CallbackQuery) })
			} else if update.Message != nil {
				go b.safely(func() { b.handleMessage(ctx, update.Message) })
			}
		}
	}
}

// safely keeps a panicking handler from taking down the update loop.
func (b *Bot) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorw("update handler panicked", "panic", r)
		}
	}()
	fn()
}

// SendMessage sends a plain text message to the specified chat ID.
func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := b.api.Send(msg)
	if err != nil {
		b.log.Warnw("failed to send telegram message", "chat_id", chatID, "err", err)
		return err
	}
	return nil
}

// SendMessageWithKeyboard sends a text message with a reply or inline keyboard.
func (b *Bot) SendMessageWithKeyboard(chatID int64, text string, keyboard interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	_, err := b.api.Send(msg)
	if err != nil {
		b.log.Warnw("failed to send telegram message with keyboard", "chat_id", chatID, "err", err)
		return err
	}
	return nil
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.log.Debugw("callback answer failed", "err", err)
	}
}

func (b *Bot) editMessageText(chatID int64, messageID int, text string) {
	if _, err := b.api.Request(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		b.log.Debugw("edit message text failed", "chat_id", chatID, "message_id", messageID, "err", err)
	}
}

func (b *Bot) editMessageMarkup(chatID int64, messageID int, kb *tgbotapi.InlineKeyboardMarkup) {
	if kb == nil {
		kb = &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	}
	if _, err := b.api.Request(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, *kb)); err != nil {
		b.log.Debugw("edit message markup failed", "chat_id", chatID, "message_id", messageID, "err", err)
	}
}

// broadcast draft helpers

func (b *Bot) startDraft(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drafts[userID] = &broadcastDraft{}
}

func (b *Bot) draftActive(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.drafts[userID]
	return ok
}

func (b *Bot) setDraftParts(userID int64, parts []relay.Content) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d, ok := b.drafts[userID]; ok {
		d.parts = parts
	}
}

// takeDraft removes and returns the draft's content.
func (b *Bot) takeDraft(userID int64) []relay.Content {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.drafts[userID]
	if !ok {
		return nil
	}
	delete(b.drafts, userID)
	return d.parts
}

func (b *Bot) clearDraft(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.drafts[userID]; !ok {
		return false
	}
	delete(b.drafts, userID)
	return true
}

// contentFrom maps a Telegram message onto relay content. The largest
// photo size is used. Returns false for unsupported message types.
func contentFrom(msg *tgbotapi.Message) (relay.Content, bool) {
	switch {
	case msg.Text != "":
		return relay.Content{Kind: relay.KindText, Text: msg.Text}, true
	case len(msg.Photo) > 0:
		return relay.Content{
			Kind:    relay.KindPhoto,
			FileID:  msg.Photo[len(msg.Photo)-1].FileID,
			Caption: msg.Caption,
		}, true
	case msg.Video != nil:
		return relay.Content{Kind: relay.KindVideo, FileID: msg.Video.FileID, Caption: msg.Caption}, true
	case msg.Document != nil:
		return relay.Content{Kind: relay.KindDocument, FileID: msg.Document.FileID, Caption: msg.Caption}, true
	case msg.Voice != nil:
		return relay.Content{Kind: relay.KindVoice, FileID: msg.Voice.FileID}, true
	case msg.Audio != nil:
		return relay.Content{Kind: relay.KindAudio, FileID: msg.Audio.FileID}, true
	default:
		return relay.Content{}, false
	}
}

func profileFrom(u *tgbotapi.User) relay.Profile {
	return relay.Profile{
		ID:        u.ID,
		Username:  u.UserName,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}
