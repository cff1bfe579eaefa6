package relay

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"support_bot/pkg/metrics"
)

// BroadcastReport summarizes one fan-out run. Sent + Failed equals the
// number of recipients actually attempted; Skipped counts users excluded
// by the block re-check at send time.
type BroadcastReport struct {
	Sent    int
	Failed  int
	Skipped int
}

// Broadcast fans the content out to every registered user. Delivery is
// best effort: a failed recipient never aborts the run. The block registry
// is consulted per recipient at send time, so users blocked after the
// audience snapshot are still excluded.
func (e *Engine) Broadcast(ctx context.Context, parts []Content) (BroadcastReport, error) {
	var report BroadcastReport
	if len(parts) == 0 {
		return report, ErrInvalidContent
	}

	ids, err := e.store.ListUserIDs(ctx)
	if err != nil {
		metrics.IncStorageError("list_user_ids")
		return report, fmt.Errorf("list recipients: %w", err)
	}

	runID := uuid.NewString()
	e.log.Infow("broadcast started", "run_id", runID, "recipients", len(ids), "parts", len(parts))

	// no cancellation once started: the run covers the full recipient list
	for _, id := range ids {
		blocked, err := e.blocklist.IsBlocked(ctx, id)
		if err != nil {
			metrics.IncStorageError("is_blocked")
			metrics.IncBroadcastDelivery("failed")
			report.Failed++
			e.log.Warnw("broadcast block check failed", "run_id", runID, "user_id", id, "err", err)
			continue
		}
		if blocked {
			metrics.IncBroadcastDelivery("skipped_blocked")
			report.Skipped++
			continue
		}

		if err := e.sendBroadcast(ctx, id, parts); err != nil {
			metrics.IncBroadcastDelivery("failed")
			report.Failed++
			e.log.Warnw("broadcast delivery failed", "run_id", runID, "user_id", id, "err", err)
			continue
		}
		metrics.IncBroadcastDelivery("sent")
		report.Sent++
	}

	e.log.Infow("broadcast finished",
		"run_id", runID, "sent", report.Sent, "failed", report.Failed, "skipped", report.Skipped)
	return report, nil
}

func (e *Engine) sendBroadcast(ctx context.Context, chatID int64, parts []Content) error {
	if len(parts) > 1 {
		if _, err := e.transport.SendAlbum(ctx, chatID, parts); err != nil {
			metrics.IncTransportError("send_album")
			return err
		}
		return nil
	}
	if _, err := e.transport.Send(ctx, chatID, parts[0], nil); err != nil {
		metrics.IncTransportError("send")
		return err
	}
	return nil
}
