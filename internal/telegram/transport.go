package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"support_bot/internal/relay"
)

// NewAPI authorizes against the Bot API with the given token.
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return api, nil
}

// Transport adapts the Bot API to the relay.Transport interface.
// An optional client-side limiter paces outgoing sends; it is disabled by
// default so the relay keeps its no-backpressure semantics unless
// configured otherwise. Safe for concurrent use.
type Transport struct {
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
	log     *zap.SugaredLogger
}

// TransportOption mutates the transport during construction.
type TransportOption func(*Transport)

// WithSendRate sets the per-second send rate and burst size.
// If rps <=0, the limiter stays disabled.
func WithSendRate(rps float64, burst int) TransportOption {
	return func(t *Transport) {
		if rps > 0 {
			t.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithTransportLogger injects a custom zap logger. If nil, a no-op logger
// is used.
func WithTransportLogger(l *zap.SugaredLogger) TransportOption {
	return func(t *Transport) {
		if l != nil {
			t.log = l
		}
	}
}

// NewTransport constructs a Transport with optional modifiers.
func NewTransport(api *tgbotapi.BotAPI, opts ...TransportOption) *Transport {
	t := &Transport{
		api:     api,
		limiter: rate.NewLimiter(rate.Inf, 0),
		log:     zap.NewNop().Sugar(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Send delivers one piece of content, optionally with inline controls.
func (t *Transport) Send(ctx context.Context, chatID int64, c relay.Content, controls *relay.Controls) (relay.MessageRef, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return relay.MessageRef{}, err
	}

	var msg tgbotapi.Chattable
	var kb *tgbotapi.InlineKeyboardMarkup
	if controls != nil {
		kb = ControlsKeyboard(*controls)
	}

	switch c.Kind {
	case relay.KindText:
		m := tgbotapi.NewMessage(chatID, c.Text)
		if kb != nil {
			m.ReplyMarkup = *kb
		}
		msg = m
	case relay.KindPhoto:
		m := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(c.FileID))
		m.Caption = c.Caption
		if kb != nil {
			m.ReplyMarkup = *kb
		}
		msg = m
	case relay.KindVideo:
		m := tgbotapi.NewVideo(chatID, tgbotapi.FileID(c.FileID))
		m.Caption = c.Caption
		if kb != nil {
			m.ReplyMarkup = *kb
		}
		msg = m
	case relay.KindDocument:
		m := tgbotapi.NewDocument(chatID, tgbotapi.FileID(c.FileID))
		m.Caption = c.Caption
		if kb != nil {
			m.ReplyMarkup = *kb
		}
		msg = m
	case relay.KindVoice:
		m := tgbotapi.NewVoice(chatID, tgbotapi.FileID(c.FileID))
		m.Caption = c.Caption
		if kb != nil {
			m.ReplyMarkup = *kb
		}
		msg = m
	case relay.KindAudio:
		m := tgbotapi.NewAudio(chatID, tgbotapi.FileID(c.FileID))
		m.Caption = c.Caption
		if kb != nil {
			m.ReplyMarkup = *kb
		}
		msg = m
	default:
		return relay.MessageRef{}, fmt.Errorf("unsupported content kind: %d", c.Kind)
	}

	sent, err := t.api.Send(msg)
	if err != nil {
		t.log.Warnw("telegram send failed", "chat_id", chatID, "kind", c.Kind, "err", err)
		return relay.MessageRef{}, err
	}
	return relay.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

// SendAlbum delivers parts as one media group. Non-media parts are skipped;
// captions ride on their own parts.
func (t *Transport) SendAlbum(ctx context.Context, chatID int64, parts []relay.Content) ([]relay.MessageRef, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	files := make([]interface{}, 0, len(parts))
	for _, p := range parts {
		switch p.Kind {
		case relay.KindPhoto:
			m := tgbotapi.NewInputMediaPhoto(tgbotapi.FileID(p.FileID))
			m.Caption = p.Caption
			files = append(files, m)
		case relay.KindVideo:
			m := tgbotapi.NewInputMediaVideo(tgbotapi.FileID(p.FileID))
			m.Caption = p.Caption
			files = append(files, m)
		case relay.KindDocument:
			m := tgbotapi.NewInputMediaDocument(tgbotapi.FileID(p.FileID))
			m.Caption = p.Caption
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("album has no sendable media")
	}

	msgs, err := t.api.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, files))
	if err != nil {
		t.log.Warnw("telegram media group send failed", "chat_id", chatID, "parts", len(files), "err", err)
		return nil, err
	}

	refs := make([]relay.MessageRef, 0, len(msgs))
	for _, m := range msgs {
		refs = append(refs, relay.MessageRef{ChatID: chatID, MessageID: m.MessageID})
	}
	return refs, nil
}

// EditControls swaps the inline keyboard on a previously sent message.
// ControlsNone clears the keyboard.
func (t *Transport) EditControls(ctx context.Context, ref relay.MessageRef, controls relay.Controls) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	kb := ControlsKeyboard(controls)
	if kb == nil {
		kb = &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(ref.ChatID, ref.MessageID, *kb)
	if _, err := t.api.Request(edit); err != nil {
		t.log.Warnw("telegram edit markup failed", "chat_id", ref.ChatID, "message_id", ref.MessageID, "err", err)
		return err
	}
	return nil
}
