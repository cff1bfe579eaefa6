package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"support_bot/internal/relay"
	"support_bot/internal/security"
)

const noRightsText = "❌ У вас нет прав для выполнения этой команды."

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg == nil || msg.From == nil {
		return
	}
	userID := msg.From.ID

	b.log.Debugw("received telegram message", "chat_id", msg.Chat.ID, "user_id", userID)

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	switch msg.Text {
	case ButtonAskQuestion:
		b.handleAskQuestion(ctx, msg)
		return
	case ButtonStats:
		if b.gate.IsPrivileged(userID) {
			b.handleStats(ctx, msg.Chat.ID)
		}
		return
	case ButtonBroadcast:
		if b.gate.IsPrivileged(userID) {
			b.startBroadcast(userID, msg.Chat.ID)
		}
		return
	case ButtonBlocked:
		if userID == b.gate.AdminID {
			b.handleBlockedList(ctx, msg.Chat.ID)
		}
		return
	case ButtonAddProduct:
		if userID == b.gate.TechManagerID {
			b.handleAddProduct(msg.Chat.ID)
		}
		return
	}

	if b.gate.IsPrivileged(userID) && b.draftActive(userID) {
		b.handleBroadcastContent(msg)
		return
	}

	if _, ok := b.engine.ReplyTarget(userID); ok {
		b.handleOperatorReply(ctx, msg)
		return
	}

	if userID == b.gate.AdminID && msg.ReplyToMessage != nil {
		b.handleSwipeReply(ctx, msg)
		return
	}

	if b.gate.IsStaff(userID) {
		return
	}

	b.handleUserContent(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg)
	case "admin":
		b.handleAdminPanel(ctx, msg)
	case "block":
		b.handleBlockCommand(ctx, msg)
	case "unblock":
		b.handleUnblockCommand(ctx, msg)
	case "stats":
		if b.gate.IsPrivileged(msg.From.ID) {
			b.handleStats(ctx, msg.Chat.ID)
		} else {
			b.SendMessage(msg.Chat.ID, noRightsText)
		}
	case "broadcast":
		if b.gate.IsPrivileged(msg.From.ID) {
			b.startBroadcast(msg.From.ID, msg.Chat.ID)
		} else {
			b.SendMessage(msg.Chat.ID, noRightsText)
		}
	case "cancel":
		if b.clearDraft(msg.From.ID) {
			b.SendMessage(msg.Chat.ID, "❌ Рассылка отменена.")
		}
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	from := profileFrom(msg.From)
	isNew, err := b.engine.RegisterUser(ctx, from)
	if err != nil {
		b.log.Errorw("user registration failed", "user_id", from.ID, "err", err)
	}
	if isNew && b.gate.MonitorID != 0 && from.ID != b.gate.MonitorID {
		username := from.Username
		if username == "" {
			username = "нет"
		}
		b.SendMessage(b.gate.MonitorID, fmt.Sprintf(
			"👤 Новый пользователь:\nID: %d\nUsername: @%s\nИмя: %s %s",
			from.ID, username, from.FirstName, from.LastName))
	}

	switch b.gate.RoleOf(from.ID) {
	case relay.RoleAdmin:
		b.SendMessageWithKeyboard(msg.Chat.ID,
			"👋 Здравствуйте, администратор!\n\n🔐 Выберите действие с помощью кнопок ниже:",
			AdminKeyboard())
	case relay.RoleTechManager:
		b.SendMessageWithKeyboard(msg.Chat.ID,
			"👋 Здравствуйте, технический менеджер!\n\n🔧 Выберите действие с помощью кнопок ниже:",
			TechManagerKeyboard())
	default:
		b.SendMessageWithKeyboard(msg.Chat.ID, fmt.Sprintf(
			"👋 Добро пожаловать, %s!\n\n"+
				"Я бот поддержки. Связаться с нами - ❓ Задать вопрос",
			from.FirstName), UserKeyboard())
	}
}

func (b *Bot) handleAskQuestion(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	// monitor and tech manager never enter the question flow
	if userID == b.gate.MonitorID || userID == b.gate.TechManagerID {
		return
	}

	err := b.engine.AskQuestion(ctx, userID)
	if errors.Is(err, relay.ErrBlocked) {
		b.SendMessage(msg.Chat.ID, "❌ Вы заблокированы и не можете писать в поддержку.")
		return
	}
	if err != nil {
		b.log.Errorw("ask question failed", "user_id", userID, "err", err)
		b.SendMessage(msg.Chat.ID, "❌ Произошла ошибка. Попробуйте позже.")
		return
	}

	b.SendMessage(msg.Chat.ID,
		"📝 Опишите ваш вопрос или проблему.\n"+
			"Вы можете отправить текст, фото, видео или документы.\n\n"+
			"Наша команда поддержки ответит вам в ближайшее время.")
}

func (b *Bot) handleUserContent(ctx context.Context, msg *tgbotapi.Message) {
	c, ok := contentFrom(msg)
	if !ok {
		return
	}
	chatID := msg.Chat.ID
	from := profileFrom(msg.From)
	groupID := msg.MediaGroupID

	err := b.engine.HandleUserContent(ctx, from, c, groupID, func(err error) {
		b.reportRelayOutcome(chatID, err)
	})
	if errors.Is(err, relay.ErrNotAwaiting) {
		return
	}
	// grouped content that was accepted reports through the callback
	if err == nil && groupID != "" {
		return
	}
	b.reportRelayOutcome(chatID, err)
}

func (b *Bot) reportRelayOutcome(chatID int64, err error) {
	var limitErr *security.LimitError
	switch {
	case err == nil:
		b.SendMessage(chatID,
			"✅ Ваше сообщение отправлено в поддержку!\n"+
				"Мы ответим вам в ближайшее время.")
	case errors.Is(err, relay.ErrBlocked):
		b.SendMessage(chatID, "❌ Вы заблокированы и не можете писать в поддержку.")
	case errors.As(err, &limitErr):
		b.SendMessage(chatID, "⚠️ "+limitErr.Reason)
	case errors.Is(err, relay.ErrInvalidContent):
		b.SendMessage(chatID, "❌ Сообщение содержит недопустимые символы.")
	default:
		b.SendMessage(chatID, "❌ Произошла ошибка при отправке сообщения. Попробуйте позже.")
	}
}

func (b *Bot) handleOperatorReply(ctx context.Context, msg *tgbotapi.Message) {
	c, ok := contentFrom(msg)
	if !ok {
		return
	}
	chatID := msg.Chat.ID
	groupID := msg.MediaGroupID

	err := b.engine.HandleOperatorContent(ctx, msg.From.ID, c, groupID, func(err error) {
		if err != nil {
			b.SendMessage(chatID, "❌ Ошибка: "+err.Error())
			return
		}
		b.SendMessage(chatID, "✅ Ответ с медиа отправлен пользователю!")
	})
	if err == nil && groupID != "" {
		return
	}
	if err != nil {
		b.SendMessage(chatID, "❌ Ошибка: "+err.Error())
		return
	}
	b.SendMessage(chatID, "✅ Ответ отправлен пользователю!")
}

func (b *Bot) handleSwipeReply(ctx context.Context, msg *tgbotapi.Message) {
	origin, ok := b.engine.ResolveOrigin(msg.ReplyToMessage.MessageID)
	if !ok {
		return
	}
	c, ok := contentFrom(msg)
	if !ok {
		return
	}
	if err := b.engine.ReplyToUser(ctx, origin, c); err != nil {
		b.SendMessage(msg.Chat.ID, "❌ Ошибка: "+err.Error())
		return
	}
	b.SendMessage(msg.Chat.ID, "✅ Ответ отправлен пользователю!")
}

func (b *Bot) handleAdminPanel(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From.ID != b.gate.AdminID {
		b.SendMessage(msg.Chat.ID, noRightsText)
		return
	}

	totalUsers, err := b.store.CountUsers(ctx)
	if err != nil {
		b.log.Errorw("admin panel stats failed", "err", err)
	}
	blocked, err := b.blocklist.List(ctx)
	if err != nil {
		b.log.Errorw("admin panel blocked list failed", "err", err)
	}
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	todayOrders, err := b.store.CountOrdersSince(ctx, midnight)
	if err != nil {
		b.log.Errorw("admin panel orders failed", "err", err)
	}

	b.SendMessage(msg.Chat.ID, fmt.Sprintf(
		"🔐 Панель администратора\n\n"+
			"📊 Статистика:\n"+
			"👥 Всего пользователей: %d\n"+
			"🚫 Заблокировано: %d\n"+
			"📦 Заказов сегодня: %d\n\n"+
			"📋 Доступные команды:\n"+
			"/block [user_id] - Заблокировать пользователя\n"+
			"/unblock [user_id] - Разблокировать\n"+
			"/broadcast - Отправить рассылку\n"+
			"/stats - Подробная статистика",
		totalUsers, len(blocked), todayOrders))
}

func (b *Bot) handleBlockCommand(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From.ID != b.gate.AdminID {
		b.SendMessage(msg.Chat.ID, noRightsText)
		return
	}

	args := strings.Fields(msg.CommandArguments())
	if len(args) < 1 {
		b.SendMessage(msg.Chat.ID,
			"❌ Использование: /block [user_id] [причина]\n"+
				"Пример: /block 123456789 спам")
		return
	}

	target, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || !security.ValidTelegramID(target) {
		b.SendMessage(msg.Chat.ID, "❌ Неверный формат ID пользователя.")
		return
	}
	if target == b.gate.AdminID || target == b.gate.MonitorID {
		b.SendMessage(msg.Chat.ID, "❌ Нельзя заблокировать этого пользователя.")
		return
	}

	reason := strings.Join(args[1:], " ")
	ok, err := b.blocklist.Block(ctx, target, msg.From.ID, reason)
	if err != nil {
		b.log.Errorw("block failed", "target", target, "err", err)
		b.SendMessage(msg.Chat.ID, "❌ Ошибка при блокировке. Попробуйте позже.")
		return
	}
	if !ok {
		b.SendMessage(msg.Chat.ID, fmt.Sprintf("❌ Пользователь %d уже заблокирован.", target))
		return
	}

	b.SendMessage(msg.Chat.ID, fmt.Sprintf("✅ Пользователь %d заблокирован.", target))
	if reason == "" {
		reason = "не указана"
	}
	b.SendMessage(target, "⛔ Вы были заблокированы администратором.\nПричина: "+reason)
}

func (b *Bot) handleUnblockCommand(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From.ID != b.gate.AdminID {
		b.SendMessage(msg.Chat.ID, noRightsText)
		return
	}

	args := strings.Fields(msg.CommandArguments())
	if len(args) < 1 {
		b.SendMessage(msg.Chat.ID,
			"❌ Использование: /unblock [user_id]\n"+
				"Пример: /unblock 123456789")
		return
	}

	target, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || !security.ValidTelegramID(target) {
		b.SendMessage(msg.Chat.ID, "❌ Неверный формат ID пользователя.")
		return
	}

	ok, err := b.blocklist.Unblock(ctx, target)
	if err != nil {
		b.log.Errorw("unblock failed", "target", target, "err", err)
		b.SendMessage(msg.Chat.ID, "❌ Ошибка при разблокировке. Попробуйте позже.")
		return
	}
	if !ok {
		b.SendMessage(msg.Chat.ID, fmt.Sprintf("❌ Пользователь %d не найден в списке заблокированных.", target))
		return
	}

	b.SendMessage(msg.Chat.ID, fmt.Sprintf("✅ Пользователь %d разблокирован.", target))
	b.SendMessage(target, "✅ Вы были разблокированы. Теперь вы можете снова использовать бота.")
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) {
	st, err := b.engine.Stats(ctx)
	if err != nil {
		b.log.Errorw("stats failed", "err", err)
		b.SendMessage(chatID, "❌ Ошибка при получении статистики. Попробуйте позже.")
		return
	}

	b.SendMessage(chatID, fmt.Sprintf(
		"📊 Статистика\n\n"+
			"👥 Пользователи:\n"+
			"  • Всего: %d\n"+
			"  • Новых за неделю: %d\n\n"+
			"📦 Заказы:\n"+
			"  • Всего: %d\n"+
			"  • За неделю: %d\n\n"+
			"🛍️ Товары:\n"+
			"  • В каталоге: %d",
		st.TotalUsers, st.NewUsers, st.TotalOrders, st.NewOrders, st.Products))
}

func (b *Bot) handleBlockedList(ctx context.Context, chatID int64) {
	records, err := b.blocklist.List(ctx)
	if err != nil {
		b.log.Errorw("blocked list failed", "err", err)
		b.SendMessage(chatID, "❌ Ошибка при получении списка. Попробуйте позже.")
		return
	}
	if len(records) == 0 {
		b.SendMessage(chatID, "✅ Нет заблокированных пользователей")
		return
	}

	var sb strings.Builder
	sb.WriteString("🚫 Заблокированные пользователи:\n\n")
	for _, r := range records {
		fmt.Fprintf(&sb, "ID: %d\n", r.TelegramID)
		if r.Reason != "" {
			fmt.Fprintf(&sb, "Причина: %s\n", r.Reason)
		}
		fmt.Fprintf(&sb, "Дата: %s\n", r.BlockedAt.Format("02.01.2006 15:04"))
		sb.WriteString(strings.Repeat("─", 30) + "\n")
	}
	b.SendMessage(chatID, sb.String())
}

func (b *Bot) handleAddProduct(chatID int64) {
	b.SendMessage(chatID,
		"📦 Добавление товара\n\n"+
			"Отправьте данные в формате:\n"+
			"/add_product Название | Описание | Цена | Категория")
}

func (b *Bot) startBroadcast(userID, chatID int64) {
	b.startDraft(userID)
	b.SendMessage(chatID,
		"📢 Отправьте сообщение для рассылки всем пользователям.\n"+
			"Вы можете отправить текст, фото, видео или альбом.\n\n"+
			"Отправьте /cancel для отмены.")
}

func (b *Bot) handleBroadcastContent(msg *tgbotapi.Message) {
	c, ok := contentFrom(msg)
	if !ok {
		return
	}
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if msg.MediaGroupID != "" {
		b.albums.Add(msg.MediaGroupID, c, func(parts []relay.Content) {
			b.setDraftParts(userID, parts)
			b.SendMessageWithKeyboard(chatID, fmt.Sprintf(
				"Вы уверены, что хотите отправить этот альбом (%d медиа) всем пользователям?",
				len(parts)), BroadcastConfirmKeyboard())
		})
		return
	}

	b.setDraftParts(userID, []relay.Content{c})
	b.SendMessageWithKeyboard(chatID,
		"Вы уверены, что хотите отправить это сообщение всем пользователям?",
		BroadcastConfirmKeyboard())
}
