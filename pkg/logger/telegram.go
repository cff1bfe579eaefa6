package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// telegram log mirroring: error-and-above entries are forwarded to a chat
// (normally the tech manager) so incidents are visible without shell access.

const maxForwardLen = 3500

// WithTelegramNotifier returns a logger that additionally calls send with a
// short rendering of every Error+ entry. send must be non-blocking for the
// caller; delivery failures are swallowed so logging can never take the bot
// down with it.
func WithTelegramNotifier(l *zap.SugaredLogger, send func(text string)) *zap.SugaredLogger {
	if send == nil {
		return l
	}
	return l.Desugar().WithOptions(zap.Hooks(func(e zapcore.Entry) error {
		if e.Level < zapcore.ErrorLevel {
			return nil
		}
		text := "🚨 Ошибка в боте\n" + e.Message
		if e.Caller.Defined {
			text += "\n📍 " + e.Caller.TrimmedPath()
		}
		if len(text) > maxForwardLen {
			text = text[:maxForwardLen] + "..."
		}
		go send(text)
		return nil
	})).Sugar()
}
