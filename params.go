package spiflash

import "time"

// flashParams carries a chip's addressable size and the datasheet
// worst-case cycle times used as write-in-progress poll budgets.
type flashParams struct {
	name     string
	capacity uint32

	tRES1          time.Duration
	tDP            time.Duration
	tPP            time.Duration
	tEraseSector   time.Duration
	tEraseBlock64K time.Duration
	tEraseChip     time.Duration
}

var (
	flashIDMicronN25Q32   = [3]byte{0x20, 0xBA, 0x16}
	flashIDWinbondW25Q64  = [3]byte{0xEF, 0x40, 0x17}
	flashIDWinbondW25Q128 = [3]byte{0xEF, 0x70, 0x18}
)

// knownFlash is keyed by the first three RDID bytes (manufacturer,
// memory type, capacity code).
var knownFlash = map[[3]byte]flashParams{
	flashIDMicronN25Q32: {
		name:     "Micron N25Q 32Mb",
		capacity: 4 << 20,

		// [N25Q32|Table 38: AC Characteristics and Operating Conditions]
		// tPP: PAGE PROGRAM cycle time (256 bytes)
		tPP: 5 * time.Millisecond,
		// tSSE: Subsector ERASE cycle time
		tEraseSector: 800 * time.Millisecond,
		// tSE: Sector ERASE cycle time
		tEraseBlock64K: 3 * time.Second,
		// tBE: Bulk ERASE cycle time
		tEraseChip: 60 * time.Second,
	},

	flashIDWinbondW25Q64: {
		name:     "Winbond W25Q 64Mb",
		capacity: 8 << 20,

		// [W25Q64|9.6 AC Electrical Characteristics]:
		// tRES1: /CS High to Standby Mode without ID Read
		tRES1: 3 * time.Microsecond,
		// tDP: /CS High to Power-down Mode
		tDP: 3 * time.Microsecond,
		// tPP: Page Program Time
		tPP: 3 * time.Millisecond,
		// tSE: Sector Erase Time (4KB)
		tEraseSector: 400 * time.Millisecond,
		// tBE: Block Erase Time (64KB)
		tEraseBlock64K: 2000 * time.Millisecond,
		// tCE: Chip Erase Time
		tEraseChip: 100 * time.Second,
	},

	flashIDWinbondW25Q128: {
		name:     "Winbond W25Q 128Mb",
		capacity: 16 << 20,

		// [W25Q128|9.6 AC Electrical Characteristics]:
		// tRES1: /CS High to Standby Mode without ID Read
		tRES1: 3 * time.Microsecond,
		// tDP: /CS High to Power-down Mode
		tDP: 3 * time.Microsecond,
		// tPP: Page Program Time
		tPP: 3 * time.Millisecond,
		// tSE: Sector Erase Time (4KB)
		tEraseSector: 400 * time.Millisecond,
		// tBE2: Block Erase Time (64KB)
		tEraseBlock64K: 2000 * time.Millisecond,
		// tCE: Chip Erase Time
		tEraseChip: 200 * time.Second,
	},
}

func (f *Flash) paramOrMax(get func(*flashParams) time.Duration) time.Duration {
	// get parameter if configured
	if f.pr != nil {
		return get(f.pr)
	}

	// fall back to maximum duration from all known flash parameters
	var tmax time.Duration
	for _, param := range knownFlash {
		tmax = max(tmax, get(&param))
	}
	return tmax
}

func (f *Flash) tRES1() time.Duration {
	return f.paramOrMax(func(p *flashParams) time.Duration { return p.tRES1 })
}
func (f *Flash) tDP() time.Duration {
	return f.paramOrMax(func(p *flashParams) time.Duration { return p.tDP })
}
func (f *Flash) tPP() time.Duration {
	return f.paramOrMax(func(p *flashParams) time.Duration { return p.tPP })
}
func (f *Flash) tEraseSector() time.Duration {
	return f.paramOrMax(func(p *flashParams) time.Duration { return p.tEraseSector })
}
func (f *Flash) tEraseBlock64K() time.Duration {
	return f.paramOrMax(func(p *flashParams) time.Duration { return p.tEraseBlock64K })
}
func (f *Flash) tEraseChip() time.Duration {
	return f.paramOrMax(func(p *flashParams) time.Duration { return p.tEraseChip })
}
