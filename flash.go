package spiflash

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Flash command opcodes. The wire values are fixed by the JEDEC command
// set and must not change:
//   - [N25Q32|Table 16: Command Set]
//   - [W25Q64|8.1.2 Instruction Set Table 1]
const (
	cmdReleasePowerDown = 0xAB
	cmdDeepPowerDown    = 0xB9
	cmdReadID           = 0x9F
	cmdRead             = 0x03
	cmdWriteEnable      = 0x06
	cmdPageProgram      = 0x02
	cmdEraseSector      = 0x20 // Sector Erase (4KB) / Subsector Erase
	cmdEraseBlock64K    = 0xD8 // Block Erase (64KB) / Sector Erase
	cmdEraseChip        = 0xC7 // Chip Erase / Bulk Erase
	cmdReadStatus       = 0x05
)

const (
	// PageSize is the program granularity shared by every chip in the
	// parameter table.
	PageSize = 256
	// SectorSize is the smallest erase granularity (opcode 0x20).
	SectorSize = 4 << 10
	// BlockSize is the large erase granularity (opcode 0xD8).
	BlockSize = 64 << 10
)

var (
	// ErrWriteProtected reports a program, erase or write enable that
	// the gate refused: the write-enable latch was clear, or the chip
	// still had a prior operation in progress. The command was not
	// issued and the flash contents are unchanged.
	ErrWriteProtected = errors.New("write protected")

	// ErrTimeout reports a write-in-progress poll that exhausted its
	// budget. The chip may well still be working: the gate stays Busy
	// and refuses program and erase until a status read shows WIP clear.
	ErrTimeout = errors.New("busy-wait timeout")
)

// State is the write gate's view of the chip. Program and erase are
// only issued from Enabled, and every completed program or erase
// reverts to Locked because the chip clears its own write-enable latch.
type State int

const (
	Locked  State = iota // WEL clear; program/erase refused
	Enabled              // WEL set via WriteEnable
	Busy                 // program/erase issued, WIP not yet observed clear
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Enabled:
		return "enabled"
	case Busy:
		return "busy"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Flash drives a JEDEC SPI NOR flash chip over a Bus.
//
// Methods are not safe for concurrent use: the bus and its chip-select
// line belong to one command frame at a time.
type Flash struct {
	bus   Bus
	log   *slog.Logger
	cfg   Config
	state State

	id [4]byte
	pr *flashParams
}

// New wires a Flash to bus. The chip may still be in deep power-down;
// call ReleasePowerDown and then ReadID before relying on per-chip
// parameters such as capacity.
func New(bus Bus, opts ...Option) *Flash {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Flash{bus: bus, log: cfg.Logger, cfg: cfg, state: Locked}
}

// State reports the write gate. It is advisory: the authoritative
// WEL/WIP bits live in the chip's status register and are re-read
// before every program or erase.
func (f *Flash) State() State { return f.state }

// Power drives the bus's power-enable line.
func (f *Flash) Power(on bool) error {
	f.debug("Power", slog.Bool("on", on))
	return f.bus.Power(on)
}

// Capacity returns the chip's addressable size in bytes: the configured
// override if any, else the identified chip's size after ReadID, else 0.
func (f *Flash) Capacity() uint32 {
	if f.cfg.Capacity != 0 {
		return f.cfg.Capacity
	}
	if f.pr != nil {
		return f.pr.capacity
	}
	return 0
}

// Name returns the identified chip's name, or "" before ReadID or for
// an ID missing from the parameter table.
func (f *Flash) Name() string {
	if f.pr != nil {
		return f.pr.name
	}
	return ""
}

// tx runs one command frame: chip-select asserted, buf exchanged in
// place, chip-select released.
func (f *Flash) tx(buf []byte) (err error) {
	if err = f.bus.Select(true); err != nil {
		return err
	}
	defer func() {
		if csErr := f.bus.Select(false); csErr != nil && err == nil {
			err = csErr
		}
	}()
	err = f.bus.Tx(buf, buf)
	return
}

// putAddr encodes addr into buf MSB-first, masked to the chip's
// addressable range (24 bits while the chip is unidentified).
func (f *Flash) putAddr(buf []byte, addr uint32) {
	addr &= f.addrMask()
	buf[0] = byte(addr >> 16)
	buf[1] = byte(addr >> 8)
	buf[2] = byte(addr)
}

func (f *Flash) addrMask() uint32 {
	if c := f.Capacity(); c != 0 {
		return c - 1
	}
	return 1<<24 - 1
}

// ReleasePowerDown wakes the chip from deep power-down (opcode 0xAB)
// and waits tRES1 before the next frame may open.
func (f *Flash) ReleasePowerDown() error {
	if err := f.tx([]byte{cmdReleasePowerDown}); err != nil {
		return err
	}
	time.Sleep(f.tRES1())
	return nil
}

// DeepPowerDown puts the chip into its lowest-power state (opcode
// 0xB9). Only ReleasePowerDown is accepted until it wakes again.
func (f *Flash) DeepPowerDown() error {
	if err := f.tx([]byte{cmdDeepPowerDown}); err != nil {
		return err
	}
	time.Sleep(f.tDP())
	return nil
}

// ReadID issues JEDEC RDID (0x9F) and returns the four bytes the chip
// clocks out: manufacturer, memory type, capacity, and whatever the
// chip shifts for the fourth exchange. All four come from the wire;
// none is substituted. A known ID latches the chip's parameters
// (capacity, poll budgets) and yields a non-empty name.
func (f *Flash) ReadID() (id [4]byte, name string, err error) {
	buf := make([]byte, 5)
	buf[0] = cmdReadID
	if err = f.tx(buf); err != nil {
		return id, "", err
	}

	f.id = [4]byte(buf[1:])
	if params, ok := knownFlash[[3]byte(buf[1:4])]; ok {
		f.pr = &params
		name = params.name
	}
	f.info("ReadID", slog.String("id", fmt.Sprintf("%X", f.id)), slog.String("name", name))
	return f.id, name, nil
}

// Read returns n bytes starting at addr (opcode 0x03).
func (f *Flash) Read(addr uint32, n int) ([]byte, error) {
	out := make([]byte, n)
	if err := f.ReadInto(addr, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadInto fills p from addr, splitting into multiple frames only when
// a transaction would exceed the transport limit; anything up to 64KB
// is a single frame, which the bulk dump path relies on.
func (f *Flash) ReadInto(addr uint32, p []byte) error {
	const (
		maxTx    = 65536 // [FTDI-AN_108]
		cmdBytes = 4     // opcode + 24-bit address
		maxData  = maxTx - cmdBytes
	)

	off := 0
	for remaining := len(p); remaining > 0; {
		chunk := min(remaining, maxData)
		buf := make([]byte, cmdBytes+chunk)
		buf[0] = cmdRead
		f.putAddr(buf[1:4], addr)
		// buf[4:] dummy bytes

		if err := f.tx(buf); err != nil {
			return err
		}
		copy(p[off:], buf[cmdBytes:])

		addr += uint32(chunk)
		off += chunk
		remaining -= chunk
	}
	return nil
}

// ReadStatusRegister issues RDSR (0x05) and returns the live register.
func (f *Flash) ReadStatusRegister() (StatusRegister, error) {
	buf := []byte{cmdReadStatus, 0}
	if err := f.tx(buf); err != nil {
		return 0, err
	}
	return StatusRegister(buf[1]), nil
}

// WriteEnable sets the chip's write-enable latch (opcode 0x06) and
// returns the status register from immediately before and after. The
// gate moves to Enabled only when after.WriteEnabled() reports the
// latch actually set; hardware protection can hold it clear. While a
// prior program or erase still reports write-in-progress the chip
// accepts nothing but a status read, so WriteEnable returns
// ErrWriteProtected without issuing the command and the gate stays
// Busy.
func (f *Flash) WriteEnable() (before, after StatusRegister, err error) {
	if before, err = f.ReadStatusRegister(); err != nil {
		return
	}
	if before.Busy() {
		return before, before, ErrWriteProtected
	}
	if err = f.tx([]byte{cmdWriteEnable}); err != nil {
		return
	}
	if after, err = f.ReadStatusRegister(); err != nil {
		return
	}
	if after.WriteEnabled() {
		f.state = Enabled
	} else {
		f.state = Locked
	}
	f.debug("WriteEnable", slog.String("before", before.String()), slog.String("after", after.String()))
	return before, after, nil
}

// checkEnabled re-reads the status register and refuses the operation
// with ErrWriteProtected when the chip is still busy with a prior
// program or erase, or when the write-enable latch is clear. A busy
// chip accepts nothing but a status read, so a command issued before
// WIP clears would be silently ignored. The chip has not been touched
// when checkEnabled fails.
func (f *Flash) checkEnabled() error {
	sr, err := f.ReadStatusRegister()
	if err != nil {
		return err
	}
	if sr.Busy() {
		// Not demoted to Locked: WEL still belongs to the running operation.
		return ErrWriteProtected
	}
	if !sr.WriteEnabled() {
		f.state = Locked
		return ErrWriteProtected
	}
	return nil
}

// ProgramPage programs data at addr (opcode 0x02). data must fit one
// page; chips wrap a write that runs past the page boundary back to
// its start, so callers chunk on PageSize. WriteEnable must have been
// called first: the gate is verified with a fresh status read and
// ErrWriteProtected returned without issuing the command when the
// latch is clear or the previous operation is still in progress.
// Blocks until WIP clears or the poll budget expires.
func (f *Flash) ProgramPage(addr uint32, data []byte) error {
	if len(data) > PageSize {
		return fmt.Errorf("program of %d bytes exceeds the %d-byte page", len(data), PageSize)
	}
	if err := f.checkEnabled(); err != nil {
		return err
	}

	buf := make([]byte, 4+len(data))
	buf[0] = cmdPageProgram
	f.putAddr(buf[1:4], addr)
	copy(buf[4:], data)
	if err := f.tx(buf); err != nil {
		return err
	}
	f.state = Busy
	f.debug("ProgramPage", slog.Uint64("addr", uint64(addr)), slog.Int("len", len(data)))

	if err := f.waitIdle(100*time.Microsecond, f.tPP()); err != nil {
		return err
	}
	f.state = Locked
	return nil
}

// EraseSector erases the 4KB sector containing addr (opcode 0x20),
// with the same write-enable discipline as ProgramPage.
func (f *Flash) EraseSector(addr uint32) error {
	if err := f.checkEnabled(); err != nil {
		return err
	}

	buf := make([]byte, 4)
	buf[0] = cmdEraseSector
	f.putAddr(buf[1:], addr)
	if err := f.tx(buf); err != nil {
		return err
	}
	f.state = Busy
	f.debug("EraseSector", slog.Uint64("addr", uint64(addr)))

	if err := f.waitIdle(50*time.Millisecond, f.tEraseSector()); err != nil {
		return err
	}
	f.state = Locked
	return nil
}

// EraseBlock64K erases the 64KB block containing addr (opcode 0xD8).
func (f *Flash) EraseBlock64K(addr uint32) error {
	if err := f.checkEnabled(); err != nil {
		return err
	}

	buf := make([]byte, 4)
	buf[0] = cmdEraseBlock64K
	f.putAddr(buf[1:], addr)
	if err := f.tx(buf); err != nil {
		return err
	}
	f.state = Busy
	f.debug("EraseBlock64K", slog.Uint64("addr", uint64(addr)))

	if err := f.waitIdle(100*time.Millisecond, f.tEraseBlock64K()); err != nil {
		return err
	}
	f.state = Locked
	return nil
}

// EraseChip erases the entire chip (opcode 0xC7).
func (f *Flash) EraseChip() error {
	if err := f.checkEnabled(); err != nil {
		return err
	}

	if err := f.tx([]byte{cmdEraseChip}); err != nil {
		return err
	}
	f.state = Busy
	f.info("EraseChip")

	if err := f.waitIdle(time.Second, f.tEraseChip()); err != nil {
		return err
	}
	f.state = Locked
	return nil
}

// EraseRange erases size bytes starting at addr, using 64KB blocks
// where possible and 4KB sectors for the remainder. It issues its own
// WriteEnable before each erase, since the chip clears the latch after
// every one. addr should be sector-aligned; size rounds up to whole
// sectors.
func (f *Flash) EraseRange(addr uint32, size int) error {
	remaining := size
	for remaining >= BlockSize {
		if _, _, err := f.WriteEnable(); err != nil {
			return err
		}
		if err := f.EraseBlock64K(addr); err != nil {
			return err
		}
		addr += BlockSize
		remaining -= BlockSize
	}
	for remaining > 0 {
		if _, _, err := f.WriteEnable(); err != nil {
			return err
		}
		if err := f.EraseSector(addr); err != nil {
			return err
		}
		addr += SectorSize
		remaining -= SectorSize
	}
	return nil
}

// Write programs everything from r starting at addr, page by page,
// with a WriteEnable before each page. The destination range must
// already be erased. A start inside a page shortens the first chunk so
// the rest stay page-aligned.
func (f *Flash) Write(addr uint32, r io.Reader) error {
	buf := make([]byte, PageSize)
	for {
		chunk := buf
		if off := int(addr % PageSize); off != 0 {
			chunk = buf[:PageSize-off]
		}
		n, err := io.ReadFull(r, chunk)
		if n > 0 {
			if _, _, werr := f.WriteEnable(); werr != nil {
				return werr
			}
			if perr := f.ProgramPage(addr, chunk[:n]); perr != nil {
				return perr
			}
			addr += uint32(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// waitIdle polls the status register at interval until WIP clears.
// budget is the worst-case cycle time for the operation in flight; a
// configured WaitTimeout overrides it, and a zero timeout waits
// forever the way the old firmware did. Expiry returns ErrTimeout and
// leaves the gate Busy, since the chip may genuinely still be working.
func (f *Flash) waitIdle(interval, budget time.Duration) error {
	if f.cfg.PollInterval > 0 {
		interval = f.cfg.PollInterval
	}
	timeout := budget
	if f.cfg.WaitTimeout >= 0 {
		timeout = f.cfg.WaitTimeout
	}

	// Fast path
	if sr, err := f.ReadStatusRegister(); err == nil && !sr.Busy() {
		return nil
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-expired:
			f.logerr("waitIdle:timeout", slog.Duration("timeout", timeout))
			return ErrTimeout
		case <-ticker.C:
			sr, err := f.ReadStatusRegister()
			if err != nil {
				return err
			}
			if !sr.Busy() {
				return nil
			}
		}
	}
}

// StatusRegister represents the status register of the flash chip.
//
//	Bits| [N25Q32|Table 9]                     | [W25Q64|7.1 Status Registers]
//	----+--------------------------------------+-------------------------------
//	7   | Status register write enable/disable | SRP: Status Register Protect
//	6   | Reserved                             | SEC: Sector protect
//	5   | Top/bottom                           | TB: Top/Bottom protect
//	4:2 | Block protect 2-0                    | BP2-0: Block Protect bit 2-0
//	1   | Write enable latch                   | WEL: Write Enable Latch
//	0   | Write in progress                    | BUSY: Erase/Write in progress
type StatusRegister byte

func (sr StatusRegister) StatusRegisterProtect() bool { return sr&(1<<7) != 0 }
func (sr StatusRegister) SectorProtect() bool         { return sr&(1<<6) != 0 }
func (sr StatusRegister) TopBottom() bool             { return sr&(1<<5) != 0 }
func (sr StatusRegister) BlockProtect2() bool         { return sr&(1<<4) != 0 }
func (sr StatusRegister) BlockProtect1() bool         { return sr&(1<<3) != 0 }
func (sr StatusRegister) BlockProtect0() bool         { return sr&(1<<2) != 0 }
func (sr StatusRegister) WriteEnabled() bool          { return sr&(1<<1) != 0 }
func (sr StatusRegister) Busy() bool                  { return sr&(1<<0) != 0 }

func (sr StatusRegister) String() string {
	b := fmt.Sprintf("%08b", byte(sr))
	s := []string{}
	if sr.StatusRegisterProtect() {
		s = append(s, "SRP")
	}
	if sr.SectorProtect() {
		s = append(s, "SEC")
	}
	if sr.TopBottom() {
		s = append(s, "TB")
	}
	if sr.BlockProtect2() {
		s = append(s, "BP2")
	}
	if sr.BlockProtect1() {
		s = append(s, "BP1")
	}
	if sr.BlockProtect0() {
		s = append(s, "BP0")
	}
	if sr.WriteEnabled() {
		s = append(s, "WEL")
	}
	if sr.Busy() {
		s = append(s, "BUSY")
	}
	if len(s) == 0 {
		return b
	}
	return b + " " + strings.Join(s, ",")
}
