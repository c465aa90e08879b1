package spiflash

import (
	"errors"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// BitBangBus is a software mode-0 SPI Bus over plain GPIO pins, for
// hosts without a usable SPI peripheral. SCK idles low; bits shift
// MSB-first, driven while SCK is low and sampled on the rising edge.
type BitBangBus struct {
	SCK  gpio.PinIO
	MOSI gpio.PinIO
	MISO gpio.PinIO
	CS   gpio.PinIO
	PWR  gpio.PinIO // optional power-enable line

	// Delay is the settle time after each pin change. Zero clocks as
	// fast as the pin driver allows.
	Delay time.Duration
}

// Init claims the pins and parks the bus idle: clock low, chip-select
// released.
func (b *BitBangBus) Init() error {
	if b.SCK == nil || b.MOSI == nil || b.MISO == nil || b.CS == nil {
		return errors.New("bit-bang bus needs SCK, MOSI, MISO and CS pins")
	}
	if err := b.SCK.Out(gpio.Low); err != nil {
		return err
	}
	if err := b.MOSI.Out(gpio.Low); err != nil {
		return err
	}
	if err := b.MISO.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return err
	}
	if b.PWR != nil {
		if err := b.PWR.Out(gpio.Low); err != nil {
			return err
		}
	}
	return b.CS.Out(gpio.High)
}

func (b *BitBangBus) Power(on bool) error {
	if b.PWR == nil {
		return nil
	}
	return b.PWR.Out(gpio.Level(on))
}

func (b *BitBangBus) Select(assert bool) error {
	return b.CS.Out(gpio.Level(!assert))
}

func (b *BitBangBus) Tx(w, r []byte) error {
	for i := range w {
		in, err := b.transfer(w[i])
		if err != nil {
			return err
		}
		if r != nil {
			r[i] = in
		}
	}
	return nil
}

func (b *BitBangBus) transfer(out byte) (byte, error) {
	var in byte
	for bit := 7; bit >= 0; bit-- {
		if err := b.MOSI.Out(gpio.Level(out&(1<<bit) != 0)); err != nil {
			return 0, err
		}
		b.settle()
		if err := b.SCK.Out(gpio.High); err != nil {
			return 0, err
		}
		if b.MISO.Read() == gpio.High {
			in |= 1 << bit
		}
		b.settle()
		if err := b.SCK.Out(gpio.Low); err != nil {
			return 0, err
		}
	}
	return in, nil
}

func (b *BitBangBus) settle() {
	if b.Delay > 0 {
		time.Sleep(b.Delay)
	}
}
