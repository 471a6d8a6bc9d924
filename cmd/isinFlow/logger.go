package main

import (
	"io"
	"isinFlow/config"
	"isinFlow/internal/lib/logger/handlers/slogpretty"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// setupLogger picks the handler for the environment. With LOG_FILE set the
// JSON output is also written to a rotating file.
func setupLogger(cfg *config.Config, out io.Writer) *slog.Logger {
	var file io.Writer
	if cfg.LogFile != "" {
		file = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
			Compress:   true,
		}
	}

	var log *slog.Logger

	switch cfg.Env {
	case config.EnvDev:
		log = slog.New(
			slog.NewJSONHandler(withFile(out, file), &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case config.EnvProd:
		log = slog.New(
			slog.NewJSONHandler(withFile(out, file), &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		if file != nil {
			log = slog.New(
				slog.NewJSONHandler(withFile(out, file), &slog.HandlerOptions{Level: slog.LevelDebug}),
			)
		} else {
			log = setupPrettySlog(out)
		}
	}

	return log
}

func withFile(out, file io.Writer) io.Writer {
	if file == nil {
		return out
	}
	return io.MultiWriter(out, file)
}

func setupPrettySlog(out io.Writer) *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(out)

	return slog.New(handler)
}
