package sink

import (
	"log/slog"
	"net/http"

	"go.uber.org/fx"

	"github.com/atsv3/resilience-core/internal/config"
	"github.com/atsv3/resilience-core/internal/domain"
	"github.com/atsv3/resilience-core/internal/sink/transport"
)

// Set is the channel-kind-to-Sink map the dispatcher sends through. fx
// assembles it once at startup from the concrete transport implementations.
type Set map[domain.ChannelKind]Sink

var Module = fx.Module("sink",
	fx.Provide(newSet),
)

func newSet(cfg config.Config, log *slog.Logger) Set {
	client := &http.Client{Timeout: cfg.Dispatcher.SinkTimeout}

	s := Set{
		domain.ChannelPush:    NewPushSink(transport.NewLoggingPush(log)),
		domain.ChannelEmail:   NewEmailSink(transport.NewLoggingEmail(log)),
		domain.ChannelSMS:     NewSMSSink(transport.NewLoggingSMS(log)),
		domain.ChannelWebhook: NewWebhookSink(transport.NewHTTPWebhook(client)),
		domain.ChannelLog:     NewLogSink(log),
	}
	if cfg.Slack.WebhookURL != "" {
		s[domain.ChannelSlack] = NewSlackSink(transport.NewSlackWebhook(cfg.Slack.WebhookURL, client))
	}
	return s
}
