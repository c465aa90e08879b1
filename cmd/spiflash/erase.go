package main

import "flag"

func eraseCommand(args []string) {
	fs := flag.NewFlagSet("erase", flag.ExitOnError)
	df := addDeviceFlags(fs)
	var (
		addr      uint
		size      int
		bulkErase bool
	)
	fs.UintVar(&addr, "addr", 0, "start address (sector aligned)")
	fs.IntVar(&size, "n", 4<<10, "number of bytes to erase (rounds up to whole sectors)")
	fs.BoolVar(&bulkErase, "chip", false, "bulk erase the entire flash")
	fs.Parse(args)

	f, closer, err := df.openFlash()
	if err != nil {
		fatalf("%v", err)
	}
	defer closer()

	if err := wake(f); err != nil {
		fatalf("%v", err)
	}
	defer f.DeepPowerDown()

	if bulkErase {
		if _, _, err := f.WriteEnable(); err != nil {
			fatalf("write enable failed: %v", err)
		}
		if err := f.EraseChip(); err != nil {
			fatalf("bulk erase flash failed: %v", err)
		}
		return
	}
	if err := f.EraseRange(uint32(addr), size); err != nil {
		fatalf("erase flash failed: %v", err)
	}
}
