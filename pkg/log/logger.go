package log

import (
	"log/slog"
	"strings"
)

// ParseLevel maps debug, info, warn and error to their slog level. Anything else is info.
func ParseLevel(level string) slog.Level {
	var parsed slog.Level

	err := parsed.UnmarshalText([]byte(strings.TrimSpace(level)))
	if err != nil {
		return slog.LevelInfo
	}

	return parsed
}
