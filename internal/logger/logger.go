package logger

import (
	"log/slog"
	"os"

	"rag-chatbot-platform/internal/config"
)

var Logger *slog.Logger

// InitLogger initializes structured JSON logging based on configuration.
func InitLogger(cfg *config.Config) {
	level := slog.LevelInfo
	if cfg.GinMode == "debug" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.GinMode == "debug",
	}

	Logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
	Logger.Info("structured logging initialized", "level", level.String())
}

// Helper functions for common log operations. Safe before InitLogger so
// library code can log from tests without a configured host.
func Info(msg string, args ...any) {
	if Logger != nil {
		Logger.Info(msg, args...)
	}
}

func Error(msg string, args ...any) {
	if Logger != nil {
		Logger.Error(msg, args...)
	}
}

func Debug(msg string, args ...any) {
	if Logger != nil {
		Logger.Debug(msg, args...)
	}
}

func Warn(msg string, args ...any) {
	if Logger != nil {
		Logger.Warn(msg, args...)
	}
}
