package manager

import (
	"log/slog"
	"os"
)

// logger is the manager process's leveled logger. cmd/manager wires a
// real handler at startup; without that, records at Info and above go
// to stderr through a text handler.
var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

// SetLogger replaces the package-level logger used throughout manager.
func SetLogger(l *slog.Logger) { logger = l }
