package main

import (
	"flag"

	"go.bug.st/serial"

	"github.com/osresearch/spiflash/console"
)

func consoleCommand(args []string) {
	fs := flag.NewFlagSet("console", flag.ExitOnError)
	df := addDeviceFlags(fs)
	var (
		portName   string
		baud       int
		noDTR      bool
		banner     string
		top        uint
		uploadSize int
	)
	fs.StringVar(&portName, "port", "", "serial device to serve on (required)")
	fs.IntVar(&baud, "baud", 9600, "serial baud rate")
	fs.BoolVar(&noDTR, "no-dtr", false, "serve immediately instead of waiting for the host terminal's DTR")
	fs.StringVar(&banner, "banner", "spiflash", "startup banner (empty disables)")
	fs.UintVar(&top, "top", 0, "dump end address (default: detected capacity, else 8 MiB)")
	fs.IntVar(&uploadSize, "upload", 64<<10, "total raw bytes consumed by the 'u' command")
	fs.Parse(args)
	if portName == "" {
		fatalUsage("-port is required")
	}

	f, closer, err := df.openFlash()
	if err != nil {
		fatalf("%v", err)
	}
	defer closer()

	if err := wake(f); err != nil {
		fatalf("%v", err)
	}
	defer f.DeepPowerDown()

	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		fatalf("failed to open %s: %v", portName, err)
	}
	defer port.Close()

	opts := []console.Option{
		console.WithLogger(df.logger()),
		console.WithBanner(banner),
		console.WithDSRWait(!noDTR),
		console.WithUploadSize(uploadSize),
	}
	if top != 0 {
		opts = append(opts, console.WithDumpTop(uint32(top)))
	}
	if err := console.New(port, f, opts...).Run(); err != nil {
		fatalf("console failed: %v", err)
	}
}
