package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
)

func readCommand(args []string) {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	df := addDeviceFlags(fs)
	var (
		nread   int
		addr    uint
		outFile string
	)
	fs.IntVar(&nread, "n", 256, "number of bytes to read")
	fs.UintVar(&addr, "addr", 0, "start address")
	fs.StringVar(&outFile, "o", "", "output file (default: hexdump)")
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

	data, err := f.Read(uint32(addr), nread)
	if err != nil {
		fatalf("read flash failed: %v", err)
	}
	if outFile == "" {
		fmt.Println(hex.Dump(data))
		return
	}
	if err := os.WriteFile(outFile, data, 0644); err != nil {
		fmt.Fprintln(os.Stderr, "write file failed:", err)
	}
}
