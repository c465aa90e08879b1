package spiflash

import (
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// Bus is the transport beneath the flash command layer: a full-duplex
// byte exchange plus the chip-select and power-enable lines that frame
// it. One command frame is Select(true), a single Tx, Select(false);
// the frame is the unit of atomicity and a new one never opens before
// the previous chip-select is released.
type Bus interface {
	// Power drives the flash power-enable line. Implementations
	// without a power pin treat it as a no-op.
	Power(on bool) error
	// Select drives chip-select; assert means active (line low).
	Select(assert bool) error
	// Tx exchanges len(w) bytes full duplex, strictly in order, no
	// retries. len(r) must equal len(w).
	Tx(w, r []byte) error
}

// SPIBus is a Bus over a hardware SPI connection with GPIO-driven
// chip-select and power lines.
//
// A nil cs leaves framing to the port's own chip-select: each Tx is
// then one frame, which holds for every command the Flash layer
// issues. A nil power makes Power a no-op.
type SPIBus struct {
	conn  spi.Conn
	cs    gpio.PinIO
	power gpio.PinIO
}

func NewSPIBus(conn spi.Conn, cs, power gpio.PinIO) *SPIBus {
	return &SPIBus{conn: conn, cs: cs, power: power}
}

func (b *SPIBus) Power(on bool) error {
	if b.power == nil {
		return nil
	}
	return b.power.Out(gpio.Level(on))
}

func (b *SPIBus) Select(assert bool) error {
	if b.cs == nil {
		return nil
	}
	return b.cs.Out(gpio.Level(!assert))
}

func (b *SPIBus) Tx(w, r []byte) error {
	return b.conn.Tx(w, r)
}
