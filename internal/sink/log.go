package sink

import (
	"context"
	"log/slog"

	"github.com/atsv3/resilience-core/internal/domain"
)

// LogSink never fails; it exists so categories/rules that resolve
// to no real channel still produce an observable trail, and so tests have a
// zero-dependency sink to exercise the dispatcher end to end.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Kind() domain.ChannelKind { return domain.ChannelLog }

func (s *LogSink) Send(ctx context.Context, env Envelope) Result {
	s.logger.Info("notification",
		"notification_id", env.NotificationID,
		"user_id", env.UserID,
		"level", env.Level.String(),
		"category", env.Category,
		"subject", env.Subject,
	)
	return Result{Delivered: true}
}
