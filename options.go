package spiflash

import (
	"log/slog"
	"time"
)

// Config carries the tunable knobs for a Flash. Construct it through
// New and the With* options.
type Config struct {
	Logger *slog.Logger

	// WaitTimeout caps every write-in-progress poll. Negative (the
	// default) uses the identified chip's worst-case cycle time for
	// the operation in flight; zero waits forever.
	WaitTimeout time.Duration

	// PollInterval overrides the per-operation status poll interval
	// when positive.
	PollInterval time.Duration

	// Capacity overrides the addressable size in bytes, normally
	// latched from the chip's ID. Must be a power of two.
	Capacity uint32
}

type Option func(*Config)

func defaultConfig() Config {
	return Config{WaitTimeout: -1}
}

// WithLogger routes operation logging to l. Nil (the default) disables
// logging entirely.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithWaitTimeout caps write-in-progress polling at d regardless of the
// operation; busy beyond it surfaces ErrTimeout. Zero restores the
// legacy behavior of waiting indefinitely.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *Config) { c.WaitTimeout = d }
}

// WithPollInterval sets how often the status register is re-read while
// an operation is in progress.
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) { c.PollInterval = d }
}

// WithCapacity fixes the chip's addressable size instead of detecting
// it from the JEDEC ID.
func WithCapacity(n uint32) Option {
	return func(c *Config) { c.Capacity = n }
}
