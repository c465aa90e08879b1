package main

import (
	"flag"
	"fmt"
)

func idCommand(args []string) {
	fs := flag.NewFlagSet("id", flag.ExitOnError)
	df := addDeviceFlags(fs)
	fs.Parse(args)

	f, closer, err := df.openFlash()
	if err != nil {
		fatalf("%v", err)
	}
	defer closer()

	if err := f.ReleasePowerDown(); err != nil {
		fatalf("flash power up failed: %v", err)
	}
	defer f.DeepPowerDown()

	id, name, err := f.ReadID()
	if err != nil {
		fatalf("read flash ID failed: %v", err)
	}
	fmt.Printf("%X\t%s\n", id, name)
}

func statusCommand(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	df := addDeviceFlags(fs)
	fs.Parse(args)

	f, closer, err := df.openFlash()
	if err != nil {
		fatalf("%v", err)
	}
	defer closer()

	if err := f.ReleasePowerDown(); err != nil {
		fatalf("flash power up failed: %v", err)
	}
	defer f.DeepPowerDown()

	sr, err := f.ReadStatusRegister()
	if err != nil {
		fatalf("read flash status register failed: %v", err)
	}
	fmt.Println(sr)
}
