// Package xmodem implements the original checksum-mode XMODEM block
// transfer: 128-byte payloads framed with a sequence number, its
// complement and an additive 8-bit checksum, paced by single-byte
// ACK/NAK responses.
//
// The Sender speaks the device side of a whole-flash dump. The peer's
// opening NAK doubles as the dump trigger and is expected to have been
// consumed by the caller, so SendBlock transmits immediately. The
// Receiver is the matching host side and issues that opening NAK
// itself.
//
// Reference: Ward Christensen's MODEM protocol, as described in
// XMODEM.TXT (https://www.menie.org/georges/embedded/xmodem_specification.html)
package xmodem

import (
	"context"
	"errors"
	"log/slog"
)

// Protocol control bytes.
const (
	SOH = 0x01 // start of a 128-byte block
	EOT = 0x04 // end of transmission
	ACK = 0x06
	NAK = 0x15 // also the receiver's session trigger
	CAN = 0x18 // session abort
)

// BlockSize is the payload length of every block. Shorter payloads are
// padded with SUB (0x1A), the protocol's traditional filler.
const BlockSize = 128

const padByte = 0x1A

var (
	// ErrCancelled reports a peer abort (CAN) mid-session.
	ErrCancelled = errors.New("xmodem: cancelled by peer")

	// ErrRetryLimit reports a block that was never acknowledged, or
	// never received intact, within the retry budget.
	ErrRetryLimit = errors.New("xmodem: retry limit exceeded")
)

// Config carries the session knobs shared by Sender and Receiver.
type Config struct {
	Logger *slog.Logger

	// Retries is the per-block (re)transmission budget (default 10).
	Retries int
}

type Option func(*Config)

const defaultRetries = 10

func defaultConfig() Config {
	return Config{Retries: defaultRetries}
}

// WithLogger routes session logging to l; nil disables it.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithRetries bounds how often one block is retried before the session
// gives up with ErrRetryLimit.
func WithRetries(n int) Option {
	return func(c *Config) { c.Retries = n }
}

func checksum(p []byte) byte {
	var sum byte
	for _, b := range p {
		sum += b
	}
	return sum
}

func logAttrs(l *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if l == nil {
		return
	}
	l.LogAttrs(context.Background(), level, msg, attrs...)
}
