package spiflash

import (
	"context"
	"log/slog"
)

// Nil-safe logging helpers; a Flash without a logger pays nothing on
// the command path.

func (f *Flash) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if f.log == nil {
		return
	}
	f.log.LogAttrs(context.Background(), level, msg, attrs...)
}

func (f *Flash) debug(msg string, attrs ...slog.Attr) {
	f.logattrs(slog.LevelDebug, msg, attrs...)
}

func (f *Flash) info(msg string, attrs ...slog.Attr) {
	f.logattrs(slog.LevelInfo, msg, attrs...)
}

func (f *Flash) logerr(msg string, attrs ...slog.Attr) {
	f.logattrs(slog.LevelError, msg, attrs...)
}
