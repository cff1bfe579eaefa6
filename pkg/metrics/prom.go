package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// RelayedQuestions counts questions successfully forwarded to the operator.
	RelayedQuestions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_bot_relayed_questions_total",
			Help: "Total number of user questions forwarded to the operator channel",
		},
	)

	// RelayRejections counts questions that never reached the operator.
	RelayRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_bot_relay_rejections_total",
			Help: "Total number of rejected user questions",
		},
		[]string{"cause"}, // cause: blocked, rate_limited, invalid, transport
	)

	// BroadcastDeliveries counts per-recipient broadcast outcomes.
	BroadcastDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_bot_broadcast_deliveries_total",
			Help: "Total number of broadcast delivery attempts by status",
		},
		[]string{"status"}, // status: sent, failed, skipped_blocked
	)

	// RateLimitHits counts rate limiter denials.
	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_bot_rate_limit_hits_total",
			Help: "Total number of rate limit denials",
		},
		[]string{"scope"}, // scope: minute, hour
	)

	// StorageErrors counts failed store operations.
	StorageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_bot_storage_errors_total",
			Help: "Total number of storage errors",
		},
		[]string{"operation"},
	)

	// TransportErrors counts failed Telegram API calls.
	TransportErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_bot_transport_errors_total",
			Help: "Total number of transport errors",
		},
		[]string{"operation"}, // operation: send, send_album, edit_controls
	)

	// ActiveReplySessions tracks operators currently composing a reply.
	ActiveReplySessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "support_bot_active_reply_sessions",
			Help: "Number of operators currently in reply mode",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RelayedQuestions,
		RelayRejections,
		BroadcastDeliveries,
		RateLimitHits,
		StorageErrors,
		TransportErrors,
		ActiveReplySessions,
	)
}

// MustServe exposes /metrics on addr in a background goroutine and returns
// the server so the caller can shut it down gracefully.
func MustServe(addr string, log *zap.SugaredLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		log.Infow("metrics endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("metrics server failed", "err", err)
		}
	}()

	return srv
}

// IncRelayRejection increments the rejection counter for a cause.
func IncRelayRejection(cause string) {
	RelayRejections.WithLabelValues(cause).Inc()
}

// IncBroadcastDelivery increments the broadcast counter for a status.
func IncBroadcastDelivery(status string) {
	BroadcastDeliveries.WithLabelValues(status).Inc()
}

// IncRateLimitHit increments the denial counter for a scope.
func IncRateLimitHit(scope string) {
	RateLimitHits.WithLabelValues(scope).Inc()
}

// IncStorageError increments the storage error counter for an operation.
func IncStorageError(operation string) {
	StorageErrors.WithLabelValues(operation).Inc()
}

// IncTransportError increments the transport error counter for an operation.
func IncTransportError(operation string) {
	TransportErrors.WithLabelValues(operation).Inc()
}
