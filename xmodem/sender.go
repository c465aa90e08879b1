package xmodem

import (
	"fmt"
	"io"
	"log/slog"
)

// Sender transmits blocks over rw. Not safe for concurrent use.
type Sender struct {
	rw      io.ReadWriter
	log     *slog.Logger
	retries int

	seq   byte
	frame [3 + BlockSize + 1]byte
}

// NewSender starts a sending session. The receiver's opening NAK must
// already have been read from rw by the caller.
func NewSender(rw io.ReadWriter, opts ...Option) *Sender {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Sender{rw: rw, log: cfg.Logger, retries: cfg.Retries, seq: 1}
}

// SendBlock frames p and transmits it until the peer acknowledges,
// retransmitting on NAK. Payloads shorter than BlockSize are padded;
// longer ones are an error. Returns ErrCancelled when the peer sends
// CAN, and ErrRetryLimit when the budget runs out, in which case a CAN
// is sent to release the peer.
func (s *Sender) SendBlock(p []byte) error {
	if len(p) > BlockSize {
		return fmt.Errorf("xmodem: block of %d bytes exceeds %d", len(p), BlockSize)
	}

	s.frame[0] = SOH
	s.frame[1] = s.seq
	s.frame[2] = ^s.seq
	for i := copy(s.frame[3:3+BlockSize], p); i < BlockSize; i++ {
		s.frame[3+i] = padByte
	}
	s.frame[3+BlockSize] = checksum(s.frame[3 : 3+BlockSize])

	for attempt := 0; attempt < s.retries; attempt++ {
		if _, err := s.rw.Write(s.frame[:]); err != nil {
			return err
		}
		resp, err := s.readByte()
		if err != nil {
			return err
		}
		switch resp {
		case ACK:
			s.seq++
			return nil
		case CAN:
			return ErrCancelled
		case NAK:
			s.debug("SendBlock:nak", slog.Int("seq", int(s.seq)), slog.Int("attempt", attempt+1))
		default:
			// Line noise draws a retransmission like a NAK.
			s.debug("SendBlock:junk", slog.Int("resp", int(resp)))
		}
	}
	s.rw.Write([]byte{CAN})
	return ErrRetryLimit
}

// Close ends the session with EOT and waits for the closing ACK,
// re-sending on NAK like any other block.
func (s *Sender) Close() error {
	for attempt := 0; attempt < s.retries; attempt++ {
		if _, err := s.rw.Write([]byte{EOT}); err != nil {
			return err
		}
		resp, err := s.readByte()
		if err != nil {
			return err
		}
		switch resp {
		case ACK:
			return nil
		case CAN:
			return ErrCancelled
		}
	}
	return ErrRetryLimit
}

func (s *Sender) readByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(s.rw, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (s *Sender) debug(msg string, attrs ...slog.Attr) {
	logAttrs(s.log, slog.LevelDebug, msg, attrs...)
}
