package main

import (
	"flag"
	"fmt"

	"periph.io/x/host/v3/ftdi"
)

// The MPSSE engine owns D0-D2 for the SPI signals; the rest of the
// header is free for chip-select and power. [FTDI-AN_135|2.2]
var flashWiring = map[string]string{
	"D0": "flash CLK",
	"D1": "flash DI (MOSI)",
	"D2": "flash DO (MISO)",
	"D4": "flash /CS (default, -cs to change)",
}

// infoCommand prints the FTDI adapter's identity and its header pins
// annotated with the wiring the programmer expects, which is how a
// miswired chip-select usually gets caught.
func infoCommand(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	fs.Parse(args)

	if err := initHost(); err != nil {
		fatalf("%v", err)
	}
	ft, err := openFTDI()
	if err != nil {
		fatalf("failed to open FTDI adapter: %v", err)
	}

	// Reference: https://github.com/periph/cmd/tree/main/ftdi-list
	i := ftdi.Info{}
	ft.Info(&i)
	fmt.Printf("Type:          %s\n", i.Type)
	fmt.Printf("Vendor ID:     %#04x\n", i.VenID)
	fmt.Printf("Device ID:     %#04x\n", i.DevID)

	ee := ftdi.EEPROM{}
	if err := ft.EEPROM(&ee); err != nil {
		fatalf("failed to read EEPROM: %v", err)
	}
	fmt.Printf("Manufacturer:  %s %s\n", ee.Manufacturer, ee.ManufacturerID)
	fmt.Printf("Desc:          %s\n", ee.Desc)
	fmt.Printf("Serial:        %s\n", ee.Serial)

	// Bus-powered flash hangs off the adapter's budget, so the power
	// configuration is worth a look when the chip browns out mid-erase.
	h := ee.AsHeader()
	fmt.Printf("MaxPower:      %dmA\n", h.MaxPower)
	fmt.Printf("SelfPowered:   %v\n", h.SelfPowered)

	fmt.Println()
	for _, p := range ft.Header() {
		if use, ok := flashWiring[p.Name()]; ok {
			fmt.Printf("%s: %s [%s]\n", p, p.Function(), use)
			continue
		}
		fmt.Printf("%s: %s\n", p, p.Function())
	}
}
