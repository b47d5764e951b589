package logging

import (
	"log/slog"
	"os"
)

// Setup installs a JSON slog handler as the process default. Debug level
// in dev, info otherwise.
func Setup(env string) *slog.Logger {
	level := slog.LevelInfo
	if env == "dev" {
		level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	log := slog.New(h)
	slog.SetDefault(log)
	return log
}
