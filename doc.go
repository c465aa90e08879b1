// Package spiflash drives JEDEC SPI NOR flash chips: identify, read,
// erase and program over any full-duplex SPI transport, with the chip's
// write-enable latch and write-in-progress bit tracked as an explicit
// write gate.
//
// # References:
//
// SPI Flash
//   - [W25Q64]: W25Q64FV Winbond Serial Flash Memory (https://www.winbond.com/resource-files/w25q64fv%20revs%2007182017.pdf)
//   - [W25Q128]: W25Q128JV-DTR Winbond Serial Flash Memory (https://www.winbond.com/resource-files/W25Q128JV_DTR%20RevD%2012232024%20Plus.pdf)
//   - [N25Q32]: N25Q032A Micron Serial NOR Flash Memory datasheet (could not find the official public URL)
//
// FTDI (https://ftdichip.com/document/application-notes/)
//   - [FTDI-AN_108]: Command Processor for MPSSE and MCU Host Bus Emulation Modes (https://ftdichip.com/wp-content/uploads/2020/08/AN_108_Command_Processor_for_MPSSE_and_MCU_Host_Bus_Emulation_Modes.pdf)
//   - [FTDI-AN_135]: FTDI MPSSE Basics (https://ftdichip.com/wp-content/uploads/2020/08/AN_135_MPSSE_Basics.pdf)
package spiflash
