package cmd

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/thiagokokada/gitrails/internal/config"
)

// setupLogging installs the default slog logger. With cfg.File set, records
// go to a rotating file instead of stderr.
func setupLogging(cfg config.LogConfig, verbose bool, stderr io.Writer) (func() error, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	w := stderr
	closeFn := func() error { return nil }
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		w = lj
		closeFn = lj.Close
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
	return closeFn, nil
}
