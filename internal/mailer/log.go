package mailer

import (
	"context"
	"log/slog"
)

// LogDispatcher writes emails to the logger instead of sending them. Used when
// no relay is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Send(ctx context.Context, to string, kind Kind, link string) error {
	msg, err := render(kind, link)
	if err != nil {
		return err
	}
	d.logger.InfoContext(ctx, "email not sent: no relay configured",
		"to", to,
		"kind", string(kind),
		"subject", msg.Subject,
		"link", link,
	)
	return nil
}
