// Command spidump pulls a whole flash image out of a running spiflash
// console. It raises DTR so the programmer comes out of its terminal
// wait, then starts an XMODEM receive; the opening NAK doubles as the
// dump trigger.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"go.bug.st/serial"

	"github.com/osresearch/spiflash/xmodem"
)

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

func main() {
	portName := flag.String("port", "/dev/ttyACM0", "serial port of the programmer")
	baud := flag.Int("baud", 9600, "baud rate")
	out := flag.String("o", "flash.bin", "output file")
	noBanner := flag.Bool("no-banner", false, "do not wait for the programmer banner")
	verbose := flag.Bool("v", false, "verbose log")
	flag.Parse()

	var logger *slog.Logger
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	port, err := serial.Open(*portName, &serial.Mode{
		BaudRate: *baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		fatalf("failed to open %s: %v", *portName, err)
	}
	defer port.Close()

	if err := port.ResetInputBuffer(); err != nil {
		fatalf("failed to flush %s: %v", *portName, err)
	}
	// The programmer holds until it sees a terminal on the line.
	if err := port.SetDTR(true); err != nil {
		fatalf("failed to raise DTR: %v", err)
	}
	if !*noBanner {
		banner, err := readLine(port)
		if err != nil {
			fatalf("failed to read banner: %v", err)
		}
		fmt.Fprintf(os.Stderr, "%s\n", banner)
	}

	f, err := os.Create(*out)
	if err != nil {
		fatalf("%v", err)
	}

	pw := &progressWriter{w: f}
	start := time.Now()
	n, err := xmodem.NewReceiver(port, xmodem.WithLogger(logger)).Receive(pw)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		f.Close()
		fatalf("transfer failed after %d bytes: %v", n, err)
	}
	if err := f.Close(); err != nil {
		fatalf("%v", err)
	}
	fmt.Fprintf(os.Stderr, "%s: %d bytes in %s\n", *out, n, time.Since(start).Round(time.Second))

	// The console signs off with a status line after the transfer.
	if trailer, err := readLine(port); err == nil {
		fmt.Fprintf(os.Stderr, "%s\n", trailer)
	}
}

// readLine collects bytes until '\n', dropping '\r'.
func readLine(r io.Reader) (string, error) {
	var line []byte
	buf := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			return string(line), err
		}
		switch buf[0] {
		case '\r':
		case '\n':
			return string(line), nil
		default:
			line = append(line, buf[0])
		}
	}
}

const progressStride = 32 * xmodem.BlockSize

// progressWriter prints a '#' to stderr every 4KiB so a slow dump over
// 9600 baud shows signs of life.
type progressWriter struct {
	w       io.Writer
	pending int
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.pending += n
	for p.pending >= progressStride {
		fmt.Fprint(os.Stderr, "#")
		p.pending -= progressStride
	}
	return n, err
}
