package console

import (
	"log/slog"

	"github.com/osresearch/spiflash"
)

// Config carries the console's protocol knobs. Construct it through
// New and the With* options.
type Config struct {
	Logger *slog.Logger

	// Banner is written once at startup, CRLF-terminated. Empty
	// disables it.
	Banner string

	// WaitDSR holds startup until the host raises DTR (seen here as
	// DSR), the way the old firmware waited for a terminal before
	// printing anything.
	WaitDSR bool

	// ReadLen is the byte count served per 'r' command.
	ReadLen int

	// UploadSize is the fixed raw-byte total consumed by 'u'.
	UploadSize int

	// UploadChunk is the program granularity of 'u'; clamped to
	// [1, PageSize], the range a single page program accepts.
	UploadChunk int

	// DumpTop, when nonzero, overrides the dump's exclusive end
	// address.
	DumpTop uint32
}

type Option func(*Config)

func defaultConfig() Config {
	return Config{
		Banner:      "spiflash",
		WaitDSR:     true,
		ReadLen:     16,
		UploadSize:  64 << 10,
		UploadChunk: spiflash.PageSize,
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

func WithBanner(s string) Option {
	return func(c *Config) { c.Banner = s }
}

func WithDSRWait(on bool) Option {
	return func(c *Config) { c.WaitDSR = on }
}

func WithReadLen(n int) Option {
	return func(c *Config) { c.ReadLen = n }
}

func WithUploadSize(n int) Option {
	return func(c *Config) { c.UploadSize = n }
}

func WithUploadChunk(n int) Option {
	return func(c *Config) { c.UploadChunk = min(max(n, 1), spiflash.PageSize) }
}

func WithDumpTop(n uint32) Option {
	return func(c *Config) { c.DumpTop = n }
}
