package console

import (
	"context"
	"log/slog"
)

func (c *Console) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if c.log == nil {
		return
	}
	c.log.LogAttrs(context.Background(), level, msg, attrs...)
}

func (c *Console) debug(msg string, attrs ...slog.Attr) {
	c.logattrs(slog.LevelDebug, msg, attrs...)
}

func (c *Console) info(msg string, attrs ...slog.Attr) {
	c.logattrs(slog.LevelInfo, msg, attrs...)
}
