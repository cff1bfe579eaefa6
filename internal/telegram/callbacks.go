package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"support_bot/internal/relay"
)

func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.Message == nil {
		b.answerCallback(query.ID, "")
		return
	}
	data := query.Data

	b.log.Debugw("received callback query", "user_id", query.From.ID, "data", data)

	switch {
	case strings.HasPrefix(data, CallbackCancelReplyPrefix):
		b.handleCancelReplyButton(ctx, query)
	case strings.HasPrefix(data, CallbackReplyPrefix):
		b.handleReplyButton(ctx, query)
	case strings.HasPrefix(data, CallbackBlockPrefix):
		b.handleBlockButton(ctx, query)
	case strings.HasPrefix(data, CallbackIgnorePrefix):
		b.handleIgnoreButton(query)
	case data == CallbackBroadcastConfirm:
		b.handleBroadcastConfirm(ctx, query)
	case data == CallbackBroadcastCancel:
		b.handleBroadcastCancel(query)
	case data == CallbackAnswered:
		b.answerCallback(query.ID, "")
	default:
		b.answerCallback(query.ID, "")
	}
}

func callbackTarget(data, prefix string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimPrefix(data, prefix), 10, 64)
	return id, err == nil
}

func (b *Bot) handleReplyButton(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.From.ID != b.gate.AdminID {
		b.answerCallback(query.ID, "У вас нет прав!")
		return
	}
	target, ok := callbackTarget(query.Data, CallbackReplyPrefix)
	if !ok {
		b.answerCallback(query.ID, "")
		return
	}

	if err := b.engine.StartReply(ctx, query.From.ID, target); err != nil {
		b.log.Errorw("start reply failed", "target", target, "err", err)
	}
	b.answerCallback(query.ID, "")
	b.SendMessage(query.Message.Chat.ID, fmt.Sprintf(
		"📝 Режим ответа пользователю %d\n\n"+
			"Отправьте ваш ответ (текст, фото, видео, альбом).\n"+
			"Нажмите 'Отменить ответ' для отмены.", target))
}

func (b *Bot) handleCancelReplyButton(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.From.ID != b.gate.AdminID {
		b.answerCallback(query.ID, "У вас нет прав!")
		return
	}

	if _, err := b.engine.CancelReply(ctx, query.From.ID); err != nil && !errors.Is(err, relay.ErrNotFound) {
		b.log.Errorw("cancel reply failed", "err", err)
	}
	b.answerCallback(query.ID, "Режим ответа отменен")
	b.SendMessage(query.Message.Chat.ID, "❌ Режим ответа отменен")
}

// handleBlockButton toggles the block state of the question's author and
// refreshes the control keyboard in place.
func (b *Bot) handleBlockButton(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.From.ID != b.gate.AdminID {
		b.answerCallback(query.ID, "У вас нет прав!")
		return
	}
	target, ok := callbackTarget(query.Data, CallbackBlockPrefix)
	if !ok {
		b.answerCallback(query.ID, "")
		return
	}

	blocked, err := b.blocklist.IsBlocked(ctx, target)
	if err != nil {
		b.log.Errorw("block toggle check failed", "target", target, "err", err)
		b.answerCallback(query.ID, "Ошибка, попробуйте позже")
		return
	}

	if blocked {
		if _, err := b.blocklist.Unblock(ctx, target); err != nil {
			b.log.Errorw("unblock via button failed", "target", target, "err", err)
			b.answerCallback(query.ID, "Ошибка, попробуйте позже")
			return
		}
		b.editMessageMarkup(query.Message.Chat.ID, query.Message.MessageID,
			ControlsKeyboard(relay.Controls{State: relay.ControlsQuestion, UserID: target, Blocked: false}))
		b.answerCallback(query.ID, "✅ Пользователь разблокирован")
		b.SendMessage(target, "✅ Вы были разблокированы. Теперь вы можете снова использовать бота.")
		return
	}

	if _, err := b.blocklist.Block(ctx, target, query.From.ID, "Заблокирован через кнопку"); err != nil {
		b.log.Errorw("block via button failed", "target", target, "err", err)
		b.answerCallback(query.ID, "Ошибка, попробуйте позже")
		return
	}
	b.editMessageMarkup(query.Message.Chat.ID, query.Message.MessageID,
		ControlsKeyboard(relay.Controls{State: relay.ControlsQuestion, UserID: target, Blocked: true}))
	b.answerCallback(query.ID, "🚫 Пользователь заблокирован")
	b.SendMessage(target, "⛔ Вы были заблокированы администратором.")
}

func (b *Bot) handleIgnoreButton(query *tgbotapi.CallbackQuery) {
	if query.From.ID != b.gate.AdminID {
		b.answerCallback(query.ID, "У вас нет прав!")
		return
	}

	b.editMessageMarkup(query.Message.Chat.ID, query.Message.MessageID, nil)
	b.SendMessage(query.Message.Chat.ID, "✅ Вопрос проигнорирован")
	b.answerCallback(query.ID, "")
}

func (b *Bot) handleBroadcastConfirm(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if !b.gate.IsPrivileged(query.From.ID) {
		b.answerCallback(query.ID, "У вас нет прав!")
		return
	}
	b.answerCallback(query.ID, "")

	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID

	parts := b.takeDraft(query.From.ID)
	if len(parts) == 0 {
		b.editMessageText(chatID, messageID, "❌ Сообщение для рассылки не найдено.")
		return
	}

	b.editMessageText(chatID, messageID, "📤 Начинаю рассылку...")

	report, err := b.engine.Broadcast(ctx, parts)
	if err != nil {
		b.log.Errorw("broadcast failed", "err", err)
		b.editMessageText(chatID, messageID, "❌ Ошибка при рассылке. Попробуйте позже.")
		return
	}

	b.editMessageText(chatID, messageID, fmt.Sprintf(
		"✅ Рассылка завершена!\n\n"+
			"Отправлено: %d\n"+
			"Не доставлено: %d",
		report.Sent, report.Failed))
}

func (b *Bot) handleBroadcastCancel(query *tgbotapi.CallbackQuery) {
	b.clearDraft(query.From.ID)
	b.answerCallback(query.ID, "")
	b.editMessageText(query.Message.Chat.ID, query.Message.MessageID, "❌ Рассылка отменена.")
}
