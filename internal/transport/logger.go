package transport

import "log/slog"

// transportLogger resolves slog.Default on every call so loggers pick up the
// handler installed by logging.Manager after the transport was created.
func transportLogger(link string, attrs ...any) *slog.Logger {
	logger := slog.Default().With("component", "transport", "link", link)
	if len(attrs) == 0 {
		return logger
	}

	return logger.With(attrs...)
}
