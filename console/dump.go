package console

import (
	"errors"
	"io"
	"log/slog"

	"github.com/osresearch/spiflash/xmodem"
)

// readWriter pairs the console's buffered reader with the raw port for
// the transfer protocol, which must see bytes the dispatcher may
// already have buffered.
type readWriter struct {
	io.Reader
	io.Writer
}

// dump streams the chip to the host: 128-byte read frames in strictly
// increasing address order, one transfer block each, then the session
// close. A peer abort only trims the dump; the trailer line announces
// the return to the interactive loop either way.
func (c *Console) dump() error {
	if err := c.flash.Power(true); err != nil {
		return err
	}

	top := c.top()
	c.info("dump:start", slog.Uint64("top", uint64(top)))

	s := xmodem.NewSender(readWriter{c.br, c.port}, xmodem.WithLogger(c.log))
	buf := make([]byte, xmodem.BlockSize)
	err := func() error {
		for addr := uint32(0); addr < top; addr += uint32(len(buf)) {
			if err := c.flash.ReadInto(addr, buf); err != nil {
				return err
			}
			if err := s.SendBlock(buf); err != nil {
				return err
			}
		}
		return s.Close()
	}()
	switch {
	case errors.Is(err, xmodem.ErrCancelled), errors.Is(err, xmodem.ErrRetryLimit):
		c.info("dump:aborted", slog.String("err", err.Error()))
	case err != nil:
		return err
	default:
		c.info("dump:done", slog.Uint64("bytes", uint64(top)))
	}
	return c.write([]byte("xmodem done\r\n"))
}

// top is the dump's exclusive end address: the configured value when
// set, else the identified chip's capacity, else 8 MiB.
func (c *Console) top() uint32 {
	if c.cfg.DumpTop != 0 {
		return c.cfg.DumpTop
	}
	if n := c.flash.Capacity(); n != 0 {
		return n
	}
	return 8 << 20
}
