package main

import (
	"flag"
	"fmt"
	"os"
)

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

func fatalUsage(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(2)
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
	spiflash <command> [arguments]

Commands:
	console	 serve the interactive programmer protocol on a serial port
	id	 print the flash JEDEC ID
	status	 print the flash status register
	read	 read flash memory
	write	 write flash memory
	erase	 erase flash memory
	info	 print FTDI adapter details
`)
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
	}

	switch cmd := flag.Arg(0); cmd {
	case "console":
		consoleCommand(flag.Args()[1:])
	case "id":
		idCommand(flag.Args()[1:])
	case "status":
		statusCommand(flag.Args()[1:])
	case "read":
		readCommand(flag.Args()[1:])
	case "write":
		writeCommand(flag.Args()[1:])
	case "erase":
		eraseCommand(flag.Args()[1:])
	case "info":
		infoCommand(flag.Args()[1:])
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %q\n", cmd)
		usage()
	}
}
