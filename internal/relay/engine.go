package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"support_bot/internal/security"
	"support_bot/internal/storage"
	"support_bot/pkg/metrics"
)

const replyPrefix = "💬 Ответ поддержки:"

// albumTextDelay lets the platform deliver a media group before the trailing
// text message that carries the combined captions.
const albumTextDelay = 300 * time.Millisecond

// Engine is the relay core: it correlates inbound user questions with the
// operator-facing messages they produce, drives the per-operator reply
// state machine and owns the album aggregator shared by the question and
// reply flows. Broadcast lives in broadcast.go on the same receiver.
//
// The engine is safe for concurrent use; all mutable state sits in the
// mutex-guarded SessionStore and Aggregator.
type Engine struct {
	transport Transport
	store     storage.Store
	blocklist *security.Blocklist
	limiter   *security.RateLimiter
	gate      Gate
	sessions  *SessionStore
	albums    *Aggregator
	log       *zap.SugaredLogger
}

// New wires the engine. The operator channel is gate.AdminID.
func New(
	transport Transport,
	store storage.Store,
	blocklist *security.Blocklist,
	limiter *security.RateLimiter,
	gate Gate,
	albumWindow time.Duration,
	originLimit int,
	log *zap.SugaredLogger,
) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{
		transport: transport,
		store:     store,
		blocklist: blocklist,
		limiter:   limiter,
		gate:      gate,
		sessions:  NewSessionStore(originLimit),
		albums:    NewAggregator(albumWindow),
		log:       log,
	}
}

// Gate exposes the role gate for handler-level authorization.
func (e *Engine) Gate() Gate {
	return e.gate
}

// RegisterUser persists the user if unseen and reports whether it was new.
func (e *Engine) RegisterUser(ctx context.Context, from Profile) (bool, error) {
	existing, err := e.store.FindUser(ctx, from.ID)
	if err != nil {
		metrics.IncStorageError("find_user")
		return false, fmt.Errorf("find user: %w", err)
	}
	if existing != nil {
		return false, nil
	}
	u := &storage.User{
		TelegramID: from.ID,
		Username:   from.Username,
		FirstName:  from.FirstName,
		LastName:   from.LastName,
	}
	if err := e.store.CreateUser(ctx, u); err != nil {
		metrics.IncStorageError("create_user")
		return false, fmt.Errorf("create user: %w", err)
	}
	return true, nil
}

// AskQuestion puts the user into the awaiting-question state. Blocked users
// are refused.
func (e *Engine) AskQuestion(ctx context.Context, userID int64) error {
	blocked, err := e.blocklist.IsBlocked(ctx, userID)
	if err != nil {
		metrics.IncStorageError("is_blocked")
		return fmt.Errorf("block check: %w", err)
	}
	if blocked {
		return ErrBlocked
	}
	e.sessions.SetAwaiting(userID)
	return nil
}

// HandleUserContent validates and routes one inbound user event.
//
// Synchronous rejections (not awaiting, blocked, rate limited, sanitized to
// nothing) are returned directly. Accepted ungrouped content is forwarded
// immediately and its outcome returned. Accepted grouped content is
// buffered; the assembled album's outcome is reported via report once the
// quiescence window closes.
//
// Blocked is terminal: the awaiting flag is dropped. Every other failure
// leaves the flag set so the user may retry.
func (e *Engine) HandleUserContent(ctx context.Context, from Profile, c Content, groupID string, report func(error)) error {
	if !e.sessions.Awaiting(from.ID) {
		return ErrNotAwaiting
	}

	blocked, err := e.blocklist.IsBlocked(ctx, from.ID)
	if err != nil {
		metrics.IncStorageError("is_blocked")
		return fmt.Errorf("block check: %w", err)
	}
	if blocked {
		e.sessions.ClearAwaiting(from.ID)
		metrics.IncRelayRejection("blocked")
		return ErrBlocked
	}

	if err := e.limiter.CheckAndRecord(ctx, from.ID, storage.ActionMessage); err != nil {
		var le *security.LimitError
		if errors.As(err, &le) {
			metrics.IncRelayRejection("rate_limited")
			metrics.IncRateLimitHit(string(le.Scope))
		}
		return err
	}

	if c.Kind == KindText {
		c.Text = security.SanitizeText(c.Text)
		if c.Text == "" {
			metrics.IncRelayRejection("invalid")
			return ErrInvalidContent
		}
	} else {
		c.Caption = security.SanitizeText(c.Caption)
	}

	if groupID != "" {
		e.albums.Add(groupID, c, func(parts []Content) {
			err := e.forwardQuestion(context.Background(), from, parts)
			if err != nil {
				e.log.Errorw("album relay failed", "user_id", from.ID, "parts", len(parts), "err", err)
			}
			if report != nil {
				report(err)
			}
		})
		return nil
	}
	return e.forwardQuestion(ctx, from, []Content{c})
}

// forwardQuestion delivers assembled content to the operator channel,
// records the correlation and control handle, and clears the awaiting flag.
func (e *Engine) forwardQuestion(ctx context.Context, from Profile, parts []Content) error {
	blocked, err := e.blocklist.IsBlocked(ctx, from.ID)
	if err != nil {
		metrics.IncStorageError("is_blocked")
		return fmt.Errorf("block check: %w", err)
	}

	header := userHeader(from)
	operator := e.gate.AdminID
	controls := Controls{State: ControlsQuestion, UserID: from.ID, Blocked: blocked}

	if len(parts) > 1 {
		if err := e.forwardAlbum(ctx, operator, header, parts, controls, from.ID); err != nil {
			metrics.IncRelayRejection("transport")
			return err
		}
	} else {
		ref, err := e.forwardSingle(ctx, operator, header, parts[0], controls)
		if err != nil {
			metrics.IncRelayRejection("transport")
			return err
		}
		e.sessions.RecordOrigin(ref.MessageID, from.ID)
		e.sessions.SetControl(from.ID, ref)
	}

	e.sessions.ClearAwaiting(from.ID)
	metrics.RelayedQuestions.Inc()
	e.log.Infow("question relayed", "user_id", from.ID, "parts", len(parts))
	return nil
}

func (e *Engine) forwardSingle(ctx context.Context, operator int64, header string, c Content, controls Controls) (MessageRef, error) {
	out := c
	switch c.Kind {
	case KindText:
		out.Text = header + "\n\n💬 Вопрос:\n" + c.Text
	case KindPhoto, KindVideo, KindDocument:
		if c.Caption != "" {
			out.Caption = header + "\n\n💬 Вопрос:\n" + c.Caption
		} else {
			out.Caption = header
		}
	case KindVoice, KindAudio:
		out.Caption = header
	}
	ref, err := e.transport.Send(ctx, operator, out, &controls)
	if err != nil {
		metrics.IncTransportError("send")
		return MessageRef{}, &TransportError{Op: "send", Err: err}
	}
	return ref, nil
}

func (e *Engine) forwardAlbum(ctx context.Context, operator int64, header string, parts []Content, controls Controls, userID int64) error {
	// the first captioned part carries the question text
	text := header
	for _, p := range parts {
		if p.Caption != "" {
			text = header + "\n\n💬 Вопрос:\n" + p.Caption
			break
		}
	}
	if _, err := e.transport.Send(ctx, operator, Content{Kind: KindText, Text: text}, nil); err != nil {
		metrics.IncTransportError("send")
		return &TransportError{Op: "send", Err: err}
	}

	refs, err := e.transport.SendAlbum(ctx, operator, parts)
	if err != nil {
		metrics.IncTransportError("send_album")
		return &TransportError{Op: "send_album", Err: err}
	}

	controlMsg, err := e.transport.Send(ctx, operator,
		Content{Kind: KindText, Text: "⬆️ Управление вопросом:"}, &controls)
	if err != nil {
		metrics.IncTransportError("send")
		return &TransportError{Op: "send", Err: err}
	}

	if len(refs) > 0 {
		e.sessions.RecordOrigin(refs[0].MessageID, userID)
	}
	e.sessions.RecordOrigin(controlMsg.MessageID, userID)
	e.sessions.SetControl(userID, controlMsg)
	return nil
}

// StartReply puts the operator into reply mode targeting userID. A new
// press replaces any existing target; there is no queue of reply sessions
// per operator. The pressed control affordance is switched to "cancel".
func (e *Engine) StartReply(ctx context.Context, operatorID, userID int64) error {
	_, had := e.sessions.SetReplyTarget(operatorID, userID)
	if !had {
		metrics.ActiveReplySessions.Inc()
	}
	if ref, ok := e.sessions.Control(userID); ok {
		if err := e.transport.EditControls(ctx, ref, Controls{State: ControlsCancelReply, UserID: userID}); err != nil {
			metrics.IncTransportError("edit_controls")
			e.log.Warnw("switch controls to cancel failed", "user_id", userID, "err", err)
		}
	}
	return nil
}

// CancelReply leaves reply mode without sending anything and restores the
// question controls. Returns the abandoned target.
func (e *Engine) CancelReply(ctx context.Context, operatorID int64) (int64, error) {
	target, had := e.sessions.ClearReplyTarget(operatorID)
	if !had {
		return 0, ErrNotFound
	}
	metrics.ActiveReplySessions.Dec()

	blocked, err := e.blocklist.IsBlocked(ctx, target)
	if err != nil {
		metrics.IncStorageError("is_blocked")
		blocked = false
	}
	if ref, ok := e.sessions.Control(target); ok {
		if err := e.transport.EditControls(ctx, ref, Controls{State: ControlsQuestion, UserID: target, Blocked: blocked}); err != nil {
			metrics.IncTransportError("edit_controls")
			e.log.Warnw("restore controls failed", "user_id", target, "err", err)
		}
	}
	return target, nil
}

// ReplyTarget reports the user the operator is currently answering.
func (e *Engine) ReplyTarget(operatorID int64) (int64, bool) {
	return e.sessions.ReplyTarget(operatorID)
}

// ResolveOrigin maps an operator-channel message back to the user whose
// question produced it. Supports the swipe-reply path.
func (e *Engine) ResolveOrigin(messageID int) (int64, bool) {
	return e.sessions.Origin(messageID)
}

// HandleOperatorContent routes operator-authored content while in reply
// mode. Grouped parts are buffered like user albums and delivered as one
// album once quiescent, with the outcome passed to report; ungrouped
// content is sent immediately. On success the session ends and the control
// affordance is relabeled "answered".
func (e *Engine) HandleOperatorContent(ctx context.Context, operatorID int64, c Content, groupID string, report func(error)) error {
	target, ok := e.sessions.ReplyTarget(operatorID)
	if !ok {
		return ErrNotFound
	}

	if groupID != "" {
		e.albums.Add(groupID, c, func(parts []Content) {
			err := e.deliverReply(context.Background(), target, parts)
			if err != nil {
				e.log.Errorw("album reply failed", "user_id", target, "err", err)
			} else {
				e.finishReply(context.Background(), operatorID, target)
			}
			if report != nil {
				report(err)
			}
		})
		return nil
	}

	if err := e.deliverReply(ctx, target, []Content{c}); err != nil {
		return err
	}
	e.finishReply(ctx, operatorID, target)
	return nil
}

// ReplyToUser sends one answer directly, outside reply mode (the operator
// replied natively to a forwarded message). The control affordance is
// relabeled when one is known.
func (e *Engine) ReplyToUser(ctx context.Context, userID int64, c Content) error {
	if err := e.deliverReply(ctx, userID, []Content{c}); err != nil {
		return err
	}
	e.relabelAnswered(ctx, userID)
	return nil
}

func (e *Engine) deliverReply(ctx context.Context, target int64, parts []Content) error {
	if len(parts) > 1 {
		return e.deliverReplyAlbum(ctx, target, parts)
	}

	c := parts[0]
	out := c
	switch c.Kind {
	case KindText:
		out.Text = replyPrefix + "\n\n" + c.Text
	case KindPhoto, KindVideo, KindDocument:
		out.Caption = replyPrefix + "\n\n" + c.Caption
	case KindVoice, KindAudio:
		// sent as-is, the platform shows them as a reply already
	}
	if _, err := e.transport.Send(ctx, target, out, nil); err != nil {
		metrics.IncTransportError("send")
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

func (e *Engine) deliverReplyAlbum(ctx context.Context, target int64, parts []Content) error {
	// collect every caption; the album itself carries only the prefix
	var texts []string
	for _, p := range parts {
		if p.Caption != "" {
			texts = append(texts, p.Caption)
		}
	}
	combined := strings.Join(texts, "\n\n")

	media := make([]Content, 0, len(parts))
	for i, p := range parts {
		if !p.IsMedia() {
			continue
		}
		m := p
		m.Caption = ""
		if i == 0 && combined != "" {
			m.Caption = replyPrefix
		}
		media = append(media, m)
	}

	if _, err := e.transport.SendAlbum(ctx, target, media); err != nil {
		metrics.IncTransportError("send_album")
		return &TransportError{Op: "send_album", Err: err}
	}

	if combined != "" {
		// the Bot API gives no completion signal for a media group; a short
		// pause keeps the caption message from landing above the album
		time.Sleep(albumTextDelay)
		if _, err := e.transport.Send(ctx, target,
			Content{Kind: KindText, Text: replyPrefix + "\n\n" + combined}, nil); err != nil {
			metrics.IncTransportError("send")
			return &TransportError{Op: "send", Err: err}
		}
	}
	return nil
}

func (e *Engine) finishReply(ctx context.Context, operatorID, target int64) {
	if _, had := e.sessions.ClearReplyTarget(operatorID); had {
		metrics.ActiveReplySessions.Dec()
	}
	e.relabelAnswered(ctx, target)
	e.log.Infow("reply delivered", "operator_id", operatorID, "user_id", target)
}

func (e *Engine) relabelAnswered(ctx context.Context, userID int64) {
	ref, ok := e.sessions.Control(userID)
	if !ok {
		return
	}
	if err := e.transport.EditControls(ctx, ref, Controls{State: ControlsAnswered, UserID: userID}); err != nil {
		metrics.IncTransportError("edit_controls")
		e.log.Warnw("relabel answered failed", "user_id", userID, "err", err)
	}
	e.sessions.DeleteControl(userID)
}

// UsageStats aggregates the counters shown to privileged identities.
type UsageStats struct {
	TotalUsers  int64
	NewUsers    int64 // trailing 7 days
	TotalOrders int64
	NewOrders   int64 // trailing 7 days
	Products    int64
}

// Stats collects usage counters from the store.
func (e *Engine) Stats(ctx context.Context) (UsageStats, error) {
	weekAgo := time.Now().UTC().AddDate(0, 0, -7)

	var st UsageStats
	var err error
	if st.TotalUsers, err = e.store.CountUsers(ctx); err != nil {
		metrics.IncStorageError("count_users")
		return st, err
	}
	if st.NewUsers, err = e.store.CountUsersSince(ctx, weekAgo); err != nil {
		metrics.IncStorageError("count_users_since")
		return st, err
	}
	if st.TotalOrders, err = e.store.CountOrders(ctx); err != nil {
		metrics.IncStorageError("count_orders")
		return st, err
	}
	if st.NewOrders, err = e.store.CountOrdersSince(ctx, weekAgo); err != nil {
		metrics.IncStorageError("count_orders_since")
		return st, err
	}
	if st.Products, err = e.store.CountProducts(ctx); err != nil {
		metrics.IncStorageError("count_products")
		return st, err
	}
	return st, nil
}

func userHeader(from Profile) string {
	username := from.Username
	if username == "" {
		username = "нет"
	}
	return fmt.Sprintf(
		"👤 Вопрос от пользователя:\nID: %d\nUsername: @%s\nИмя: %s %s",
		from.ID, username, from.FirstName, from.LastName)
}
