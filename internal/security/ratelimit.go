package security

import (
	"context"
	"fmt"
	"time"

	"support_bot/internal/storage"
)

// LimitScope names the window that was exhausted.
type LimitScope string

const (
	ScopeMinute LimitScope = "minute"
	ScopeHour   LimitScope = "hour"
)

// LimitError is returned when an action exceeds a ceiling. The Reason is
// user-facing.
type LimitError struct {
	Scope  LimitScope
	Reason string
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limited (%s): %s", e.Scope, e.Reason)
}

// RateLimiter enforces sliding 60s/3600s ceilings over persisted rate
// events. The check-then-insert sequence is deliberately not transactional:
// concurrent requests from one identity can overshoot a ceiling by a small
// margin, which is fine for abuse mitigation (this is not a hard quota).
type RateLimiter struct {
	store     storage.Store
	perMinute int
	perHour   int
}

// NewRateLimiter builds a limiter with the given ceilings. Non-positive
// ceilings fall back to 5/minute and 30/hour.
func NewRateLimiter(store storage.Store, perMinute, perHour int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 5
	}
	if perHour <= 0 {
		perHour = 30
	}
	return &RateLimiter{store: store, perMinute: perMinute, perHour: perHour}
}

// CheckAndRecord counts persisted events for (id, kind) in the trailing
// minute and hour. If either ceiling is met the action is denied with a
// *LimitError and nothing is recorded; otherwise a new event stamped now is
// persisted. Storage errors propagate as-is.
func (r *RateLimiter) CheckAndRecord(ctx context.Context, telegramID int64, kind storage.ActionKind) error {
	now := time.Now().UTC()

	minuteCount, err := r.store.CountRateEvents(ctx, telegramID, kind, now.Add(-time.Minute))
	if err != nil {
		return fmt.Errorf("count rate events (minute): %w", err)
	}
	if minuteCount >= r.perMinute {
		return &LimitError{Scope: ScopeMinute, Reason: "Слишком много сообщений. Подождите минуту."}
	}

	hourCount, err := r.store.CountRateEvents(ctx, telegramID, kind, now.Add(-time.Hour))
	if err != nil {
		return fmt.Errorf("count rate events (hour): %w", err)
	}
	if hourCount >= r.perHour {
		return &LimitError{Scope: ScopeHour, Reason: "Превышен лимит сообщений в час. Попробуйте позже."}
	}

	if err := r.store.CreateRateEvent(ctx, telegramID, kind, now); err != nil {
		return fmt.Errorf("create rate event: %w", err)
	}
	return nil
}

// Cleanup removes events older than retention. Not called by the limiter
// itself; schedule it externally.
func (r *RateLimiter) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	return r.store.DeleteRateEventsBefore(ctx, time.Now().UTC().Add(-retention))
}
