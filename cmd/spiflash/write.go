package main

import (
	"flag"
	"os"
)

func writeCommand(args []string) {
	fs := flag.NewFlagSet("write", flag.ExitOnError)
	df := addDeviceFlags(fs)
	var (
		filename  string
		addr      uint
		erase     bool
		bulkErase bool
	)
	fs.StringVar(&filename, "f", "", "input file (required)")
	fs.UintVar(&addr, "addr", 0, "start address")
	fs.BoolVar(&erase, "e", false, "erase the target range first")
	fs.BoolVar(&bulkErase, "chip-erase", false, "bulk erase the entire flash first")
	fs.Parse(args)

	if filename == "" {
		fatalUsage("input file is required")
	}
	input, err := os.Open(filename)
	if err != nil {
		fatalf("failed to open file: %v", err)
	}
	defer input.Close()
	st, err := input.Stat()
	if err != nil {
		fatalf("%v", err)
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

	switch {
	case bulkErase:
		if _, _, err := f.WriteEnable(); err != nil {
			fatalf("write enable failed: %v", err)
		}
		if err := f.EraseChip(); err != nil {
			fatalf("bulk erase flash failed: %v", err)
		}
	case erase:
		if err := f.EraseRange(uint32(addr), int(st.Size())); err != nil {
			fatalf("erase flash failed: %v", err)
		}
	}

	if err := f.Write(uint32(addr), input); err != nil {
		fatalf("write flash failed: %v", err)
	}
}
