package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"support_bot/internal/relay"
)

// Callback button data prefixes
const (
	CallbackReplyPrefix       = "reply_"
	CallbackCancelReplyPrefix = "cancel_reply_"
	CallbackBlockPrefix       = "block_"
	CallbackIgnorePrefix      = "ignore_"
	CallbackBroadcastConfirm  = "broadcast_confirm"
	CallbackBroadcastCancel   = "broadcast_cancel"
	CallbackAnswered          = "answered"
)

// Labels on the persistent reply keyboards.
const (
	ButtonAskQuestion = "❓ Задать вопрос"
	ButtonStats       = "📊 Статистика"
	ButtonBroadcast   = "📢 Рассылка"
	ButtonBlocked     = "🚫 Заблокированные"
	ButtonAddProduct  = "➕ Добавить товар"
)

// UserKeyboard is the persistent keyboard shown to plain users.
func UserKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonAskQuestion),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

// AdminKeyboard is the persistent keyboard shown to the administrator.
func AdminKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonStats),
			tgbotapi.NewKeyboardButton(ButtonBroadcast),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonBlocked),
			tgbotapi.NewKeyboardButton(ButtonAskQuestion),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

// TechManagerKeyboard is the persistent keyboard shown to the tech manager.
func TechManagerKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonStats),
			tgbotapi.NewKeyboardButton(ButtonBroadcast),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonAddProduct),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

// ControlsKeyboard renders the inline controls attached to a forwarded
// question. A nil result means no keyboard.
func ControlsKeyboard(c relay.Controls) *tgbotapi.InlineKeyboardMarkup {
	switch c.State {
	case relay.ControlsQuestion:
		blockLabel := "🚫 Блок"
		if c.Blocked {
			blockLabel = "✅ Разблок"
		}
		kb := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("💬 Ответить", fmt.Sprintf("%s%d", CallbackReplyPrefix, c.UserID)),
				tgbotapi.NewInlineKeyboardButtonData(blockLabel, fmt.Sprintf("%s%d", CallbackBlockPrefix, c.UserID)),
			),
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("❌ Игнор", fmt.Sprintf("%s%d", CallbackIgnorePrefix, c.UserID)),
			),
		)
		return &kb
	case relay.ControlsCancelReply:
		kb := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("❌ Отменить ответ", fmt.Sprintf("%s%d", CallbackCancelReplyPrefix, c.UserID)),
			),
		)
		return &kb
	case relay.ControlsAnswered:
		kb := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ Ответ отправлен", CallbackAnswered),
			),
		)
		return &kb
	default:
		return nil
	}
}

// BroadcastConfirmKeyboard asks the sender to confirm a pending broadcast.
func BroadcastConfirmKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Отправить", CallbackBroadcastConfirm),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отменить", CallbackBroadcastCancel),
		),
	)
}
