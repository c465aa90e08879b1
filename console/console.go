// Package console serves the interactive flash-programmer protocol on
// a serial port: single-byte commands with hex-ASCII arguments and
// CRLF-terminated responses, plus a whole-chip XMODEM dump triggered by
// the transfer protocol's opening NAK.
//
// Protocol summary ('.' and '?' are single bytes, everything else hex
// ASCII):
//
//	i         read the 4-byte JEDEC ID          -> 8 hex chars, CRLF
//	r <addr>  read 16 bytes at addr             -> "XX " per byte, CRLF
//	w         write enable                      -> status before/after as 4 hex chars, '!' if the enable did not take
//	e <addr>  erase the 4KB sector at addr      -> 'E' + 6 hex chars, CRLF; "wp!" if protected
//	u <addr>  program a fixed count of raw bytes -> one '.' per page, then "done!" CRLF; "wp!" if protected
//	x         raw status register               -> 2 hex chars
//	NAK       dump the whole chip over XMODEM   -> blocks, then "xmodem done" CRLF
//	other     -> '?'
//
// Program and erase run under a bounded busy-wait; expiry answers
// "to!" while the chip keeps working. Until a later status read shows
// it idle, 'e' and 'u' answer "wp!" and 'w' reports a failed enable.
package console

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.bug.st/serial"

	"github.com/osresearch/spiflash"
	"github.com/osresearch/spiflash/xmodem"
)

// Port is the slice of a serial port the console needs. A
// go.bug.st/serial.Port satisfies it directly.
type Port interface {
	io.ReadWriter
	// ResetInputBuffer drops bytes received but not yet read.
	ResetInputBuffer() error
	// GetModemStatusBits reports the control lines; DSR high is taken
	// as "a terminal is attached".
	GetModemStatusBits() (*serial.ModemStatusBits, error)
}

// Console runs the read-dispatch-respond loop on one port against one
// flash chip. Single-threaded by construction: at any moment at most
// one command frame or transfer block is in flight.
type Console struct {
	port  Port
	flash *spiflash.Flash
	br    *bufio.Reader
	cfg   Config
	log   *slog.Logger
}

func New(port Port, flash *spiflash.Flash, opts ...Option) *Console {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Console{
		port:  port,
		flash: flash,
		br:    bufio.NewReader(port),
		cfg:   cfg,
		log:   cfg.Logger,
	}
}

// Run serves the protocol until the port closes (returning nil) or the
// transport or SPI bus fails. Protocol conditions (write protection,
// poll timeout, transfer aborts, unknown commands) are reported on the
// wire and never terminate the loop.
func (c *Console) Run() error {
	if c.cfg.WaitDSR {
		if err := c.waitTerminal(); err != nil {
			return err
		}
	}
	// Host OSes probe fresh serial devices with modem chatter;
	// whatever arrived before the banner is not ours.
	if err := c.port.ResetInputBuffer(); err != nil {
		return err
	}
	if c.cfg.Banner != "" {
		if err := c.write([]byte(c.cfg.Banner + "\r\n")); err != nil {
			return err
		}
	}

	if err := c.flash.Power(true); err != nil {
		return err
	}
	defer c.flash.Power(false)

	for {
		b, err := c.br.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := c.dispatch(b); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// waitTerminal polls the modem lines until the host raises DTR. Ports
// that cannot report modem bits skip the wait.
func (c *Console) waitTerminal() error {
	for {
		bits, err := c.port.GetModemStatusBits()
		if err != nil {
			c.debug("waitTerminal:unsupported", slog.String("err", err.Error()))
			return nil
		}
		if bits.DSR {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (c *Console) dispatch(b byte) error {
	switch b {
	case 'i':
		return c.identify()
	case 'r':
		return c.readChunk()
	case 'w':
		return c.writeEnable()
	case 'e':
		return c.erase()
	case 'u':
		return c.upload()
	case 'x':
		return c.statusByte()
	case xmodem.NAK:
		return c.dump()
	default:
		c.debug("dispatch:unknown", slog.Int("byte", int(b)))
		return c.write([]byte{'?'})
	}
}

// readHex accumulates hex digits from the stream into a 32-bit value.
// The first non-hex byte ends the literal and is consumed with it, so
// "1A2B," yields 0x1A2B and a bare terminator yields 0.
func (c *Console) readHex() (uint32, error) {
	var v uint32
	for {
		b, err := c.br.ReadByte()
		if err != nil {
			return v, err
		}
		switch {
		case '0' <= b && b <= '9':
			v = v<<4 | uint32(b-'0')
		case 'a' <= b && b <= 'f':
			v = v<<4 | uint32(b-'a'+0xA)
		case 'A' <= b && b <= 'F':
			v = v<<4 | uint32(b-'A'+0xA)
		default:
			return v, nil
		}
	}
}

func (c *Console) identify() error {
	id, name, err := c.flash.ReadID()
	if err != nil {
		return err
	}
	c.debug("identify", slog.String("id", fmt.Sprintf("%X", id)), slog.String("name", name))
	return c.printf("%X\r\n", id)
}

func (c *Console) readChunk() error {
	addr, err := c.readHex()
	if err != nil {
		return err
	}
	data, err := c.flash.Read(addr, c.cfg.ReadLen)
	if err != nil {
		return err
	}

	var out bytes.Buffer
	for _, b := range data {
		fmt.Fprintf(&out, "%02X ", b)
	}
	out.WriteString("\r\n")
	return c.write(out.Bytes())
}

func (c *Console) writeEnable() error {
	before, after, err := c.flash.WriteEnable()
	if errors.Is(err, spiflash.ErrWriteProtected) {
		// A busy chip refuses the enable untried. Answer like a failed
		// enable; the echoed status carries the WIP bit.
		return c.printf("%02X%02X!", byte(before), byte(after))
	}
	if err != nil {
		return err
	}
	if !after.WriteEnabled() {
		return c.printf("%02X%02X!", byte(before), byte(after))
	}
	return c.printf("%02X%02X", byte(before), byte(after))
}

func (c *Console) erase() error {
	addr, err := c.readHex()
	if err != nil {
		return err
	}
	switch err := c.flash.EraseSector(addr); {
	case errors.Is(err, spiflash.ErrWriteProtected):
		return c.write([]byte("wp!\r\n"))
	case errors.Is(err, spiflash.ErrTimeout):
		return c.write([]byte("to!\r\n"))
	case err != nil:
		return err
	}
	return c.printf("E%06X\r\n", addr&0xFFFFFF)
}

// upload programs UploadSize raw bytes from the stream at the parsed
// address, one page-sized chunk at a time with a fresh WriteEnable
// before each. The write gate is probed before any data is consumed,
// so a protected or still-busy chip answers "wp!" while the host can
// still hold its bytes back.
func (c *Console) upload() error {
	addr, err := c.readHex()
	if err != nil {
		return err
	}

	switch _, after, err := c.flash.WriteEnable(); {
	case errors.Is(err, spiflash.ErrWriteProtected):
		return c.write([]byte("wp!\r\n"))
	case err != nil:
		return err
	case !after.WriteEnabled():
		return c.write([]byte("wp!\r\n"))
	}

	buf := make([]byte, c.cfg.UploadChunk)
	for off := 0; off < c.cfg.UploadSize; off += len(buf) {
		chunk := buf
		if remaining := c.cfg.UploadSize - off; remaining < len(buf) {
			chunk = buf[:remaining]
		}
		if _, err := io.ReadFull(c.br, chunk); err != nil {
			return err
		}
		if off > 0 {
			// The chip dropped the latch after the previous page.
			if _, _, err := c.flash.WriteEnable(); errors.Is(err, spiflash.ErrWriteProtected) {
				return c.write([]byte("wp!\r\n"))
			} else if err != nil {
				return err
			}
		}
		switch err := c.flash.ProgramPage(addr+uint32(off), chunk); {
		case errors.Is(err, spiflash.ErrWriteProtected):
			return c.write([]byte("wp!\r\n"))
		case errors.Is(err, spiflash.ErrTimeout):
			return c.write([]byte("to!\r\n"))
		case err != nil:
			return err
		}
		if err := c.write([]byte{'.'}); err != nil {
			return err
		}
	}
	return c.write([]byte("done!\r\n"))
}

func (c *Console) statusByte() error {
	sr, err := c.flash.ReadStatusRegister()
	if err != nil {
		return err
	}
	return c.printf("%02X", byte(sr))
}

func (c *Console) write(p []byte) error {
	for len(p) > 0 {
		n, err := c.port.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func (c *Console) printf(format string, a ...any) error {
	return c.write(fmt.Appendf(nil, format, a...))
}
