package xmodem

import (
	"fmt"
	"io"
	"log/slog"
)

// Receiver drives the host side of a session: it emits the opening NAK
// (which doubles as the flash programmer's dump trigger), validates
// each block and acknowledges or rejects it. Not safe for concurrent
// use.
type Receiver struct {
	rw      io.ReadWriter
	log     *slog.Logger
	retries int

	seq byte
}

func NewReceiver(rw io.ReadWriter, opts ...Option) *Receiver {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Receiver{rw: rw, log: cfg.Logger, retries: cfg.Retries, seq: 1}
}

// Receive pulls blocks until EOT and writes their payloads to w in
// order, dropping the duplicates a lost ACK produces. It returns the
// byte count written. Trailing pad bytes are the caller's concern;
// flash dumps are exact multiples of BlockSize so none appear there.
func (r *Receiver) Receive(w io.Writer) (int64, error) {
	if _, err := r.rw.Write([]byte{NAK}); err != nil {
		return 0, err
	}

	var total int64
	bad := 0
	for {
		b, err := r.readByte()
		if err != nil {
			return total, err
		}
		switch b {
		case SOH:
		case EOT:
			_, err := r.rw.Write([]byte{ACK})
			return total, err
		case CAN:
			return total, ErrCancelled
		default:
			// Junk between frames draws a NAK like a bad block.
			if err := r.reject(&bad); err != nil {
				return total, err
			}
			continue
		}

		var frame [2 + BlockSize + 1]byte
		if _, err := io.ReadFull(r.rw, frame[:]); err != nil {
			return total, err
		}
		seq, inv := frame[0], frame[1]
		payload := frame[2 : 2+BlockSize]
		sum := frame[2+BlockSize]

		if inv != ^seq || sum != checksum(payload) {
			r.debug("Receive:bad-frame", slog.Int("seq", int(seq)))
			if err := r.reject(&bad); err != nil {
				return total, err
			}
			continue
		}

		switch seq {
		case r.seq:
			if _, err := w.Write(payload); err != nil {
				return total, err
			}
			total += BlockSize
			r.seq++
			bad = 0
			if _, err := r.rw.Write([]byte{ACK}); err != nil {
				return total, err
			}
		case r.seq - 1:
			// Retransmission of a block whose ACK got lost.
			if _, err := r.rw.Write([]byte{ACK}); err != nil {
				return total, err
			}
		default:
			r.rw.Write([]byte{CAN})
			return total, fmt.Errorf("xmodem: block %d while expecting %d", seq, r.seq)
		}
	}
}

// reject counts a bad frame and NAKs for a retransmission, cancelling
// the session once the budget is spent.
func (r *Receiver) reject(bad *int) error {
	*bad++
	if *bad >= r.retries {
		r.rw.Write([]byte{CAN})
		return ErrRetryLimit
	}
	_, err := r.rw.Write([]byte{NAK})
	return err
}

func (r *Receiver) readByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r.rw, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Receiver) debug(msg string, attrs ...slog.Attr) {
	logAttrs(r.log, slog.LevelDebug, msg, attrs...)
}
