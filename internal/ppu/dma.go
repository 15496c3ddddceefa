package ppu

import (
	"github.com/TheThief/CoroGB/internal/mem"
	"github.com/TheThief/CoroGB/internal/sched"
)

// runDMA is the OAM DMA task. A write to 0xFF46 triggers it; it waits 8
// cycles of setup, snapshots the source page, takes OAM away from the CPU for
// the 640-cycle transfer window and then copies 160 bytes in. A re-trigger
// during the window supersedes the pending copy and restarts the whole cycle
// with the new source.
func (p *PPU) runDMA() error {
	for {
		p.dmaTrigger.Reset()
		p.dmaTrigger.Await(p.dmaCo)

		var src byte
		for {
			p.sch.Cycles(p.dmaCo, sched.UnitDMA, sched.Write, 8)

			src = p.dmaStart
			if src >= 0xE0 {
				// sources from 0xE0 up read the WRAM mirror: 0xFE00 DMAs from
				// 0xDE00, not OAM
				src -= 0x20
			}

			p.dmaActive = true
			p.mm.SetMapping(mem.Mapping{Start: 0xFE00, End: 0xFE9F})

			if !p.sch.InterruptibleCycles(&p.dmaTrigger, p.dmaCo, sched.UnitDMA, sched.Write, 640) {
				break
			}
		}

		for off := uint16(0); off < 0xA0; off++ {
			p.oam[off] = p.mm.Read8(uint16(src)<<8 + off)
		}

		p.dmaActive = false
		p.restoreOAMAccess()
	}
}
