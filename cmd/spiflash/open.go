package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"

	"github.com/osresearch/spiflash"
)

// deviceFlags selects the SPI backend shared by every subcommand:
// an FTDI adapter (the default), a spireg port such as a Raspberry Pi
// header, or bit-banged GPIO pins.
type deviceFlags struct {
	spiPort string
	cs      string
	power   string

	bbSCK  string
	bbMOSI string
	bbMISO string

	clockMHz int
	verbose  bool
}

func addDeviceFlags(fs *flag.FlagSet) *deviceFlags {
	df := &deviceFlags{}
	fs.StringVar(&df.spiPort, "spi", "", "SPI port name from spireg (default: first FTDI adapter)")
	fs.StringVar(&df.cs, "cs", "", "chip-select pin (FTDI default D4; empty with -spi uses the port's own CS)")
	fs.StringVar(&df.power, "power", "", "flash power-enable pin (optional)")
	fs.StringVar(&df.bbSCK, "bb-sck", "", "bit-bang SCK pin (selects the software SPI driver)")
	fs.StringVar(&df.bbMOSI, "bb-mosi", "", "bit-bang MOSI pin")
	fs.StringVar(&df.bbMISO, "bb-miso", "", "bit-bang MISO pin")
	fs.IntVar(&df.clockMHz, "clk", 30, "SPI clock in MHz")
	fs.BoolVar(&df.verbose, "v", false, "debug logging to stderr")
	return df
}

var hostInitialized atomic.Bool

func initHost() error {
	if hostInitialized.CompareAndSwap(false, true) {
		if _, err := host.Init(); err != nil {
			return fmt.Errorf("host initialization failed: %w", err)
		}
	}
	return nil
}

func (df *deviceFlags) logger() *slog.Logger {
	if !df.verbose {
		return nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// openFlash wires a Flash to the selected backend. The returned
// closer releases the SPI port when one was claimed.
func (df *deviceFlags) openFlash() (*spiflash.Flash, func(), error) {
	if err := initHost(); err != nil {
		return nil, nil, err
	}

	var (
		bus    spiflash.Bus
		closer = func() {}
	)
	switch {
	case df.bbSCK != "":
		bb := &spiflash.BitBangBus{
			SCK:  gpioreg.ByName(df.bbSCK),
			MOSI: gpioreg.ByName(df.bbMOSI),
			MISO: gpioreg.ByName(df.bbMISO),
			CS:   gpioreg.ByName(df.cs),
			PWR:  gpioreg.ByName(df.power),
		}
		if err := bb.Init(); err != nil {
			return nil, nil, fmt.Errorf("bit-bang setup failed: %w", err)
		}
		bus = bb

	case df.spiPort != "":
		port, err := spireg.Open(df.spiPort)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open SPI port %q: %w", df.spiPort, err)
		}
		conn, err := port.Connect(physic.Frequency(df.clockMHz)*physic.MegaHertz, spi.Mode0, 8)
		if err != nil {
			port.Close()
			return nil, nil, err
		}
		var cs, power gpio.PinIO
		if df.cs != "" {
			if cs = gpioreg.ByName(df.cs); cs == nil {
				port.Close()
				return nil, nil, fmt.Errorf("unknown chip-select pin %q", df.cs)
			}
		}
		if df.power != "" {
			if power = gpioreg.ByName(df.power); power == nil {
				port.Close()
				return nil, nil, fmt.Errorf("unknown power pin %q", df.power)
			}
		}
		bus = spiflash.NewSPIBus(conn, cs, power)
		closer = func() { port.Close() }

	default:
		ft, err := openFTDI()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open FTDI adapter: %w", err)
		}
		port, err := ft.SPI()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get SPI port: %w", err)
		}
		// [FTDI-AN_135|3.2.1 Divisors] allows up to 30MHz; the MPSSE
		// engine only supports mode 0 and mode 2, and every chip in
		// the parameter table supports mode 0.
		conn, err := port.Connect(physic.Frequency(df.clockMHz)*physic.MegaHertz, spi.Mode0, 8)
		if err != nil {
			return nil, nil, err
		}
		cs := ftdiPin(ft, df.cs)
		if cs == nil {
			return nil, nil, fmt.Errorf("unknown FTDI chip-select pin %q", df.cs)
		}
		var power gpio.PinIO
		if df.power != "" {
			if power = ftdiPin(ft, df.power); power == nil {
				return nil, nil, fmt.Errorf("unknown FTDI power pin %q", df.power)
			}
		}
		bus = spiflash.NewSPIBus(conn, cs, power)
	}

	return spiflash.New(bus, spiflash.WithLogger(df.logger())), closer, nil
}

// openFTDI picks the first FT232H or FT2232H on the bus.
func openFTDI() (*ftdi.FT232H, error) {
	const (
		vendorID       = 0x0403 // FTDI
		productFT2232H = 0x6010
		productFT232H  = 0x6014
	)

	info := ftdi.Info{}
	for _, dev := range ftdi.All() {
		dev.Info(&info)
		if info.VenID != vendorID {
			continue
		}
		if info.DevID != productFT2232H && info.DevID != productFT232H {
			continue
		}
		if ft, ok := dev.(*ftdi.FT232H); ok {
			return ft, nil
		}
	}

	return nil, errors.New("not found")
}

// ftdiPin resolves a GPIO name on the adapter. D0-D2 carry the MPSSE
// SPI signals and are not offered.
func ftdiPin(ft *ftdi.FT232H, name string) gpio.PinIO {
	switch name {
	case "", "D4":
		return ft.D4
	case "D3":
		return ft.D3
	case "D5":
		return ft.D5
	case "D6":
		return ft.D6
	case "D7":
		return ft.D7
	case "C0":
		return ft.C0
	case "C1":
		return ft.C1
	case "C2":
		return ft.C2
	case "C3":
		return ft.C3
	case "C4":
		return ft.C4
	case "C5":
		return ft.C5
	case "C6":
		return ft.C6
	case "C7":
		return ft.C7
	}
	return nil
}

// wake releases deep power-down and identifies the chip, warning on
// IDs missing from the parameter table the way unknown chips usually
// surface: everything still works, but poll budgets and capacity fall
// back to worst-case defaults.
func wake(f *spiflash.Flash) error {
	if err := f.ReleasePowerDown(); err != nil {
		return fmt.Errorf("flash power up failed: %w", err)
	}
	id, name, err := f.ReadID()
	if err != nil {
		return fmt.Errorf("read flash ID failed: %w", err)
	}
	if name == "" {
		fmt.Fprintf(os.Stderr, "unknown flash ID (%X)\n", id)
	}
	return nil
}
