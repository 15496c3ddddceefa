package cart

import (
	"bytes"
	"errors"
	"testing"

	"github.com/TheThief/CoroGB/internal/mem"
	"github.com/TheThief/CoroGB/internal/sched"
)

// buildROM makes an image of the given size with the first byte of every bank
// stamped with its bank number, plus a minimal header.
func buildROM(size int, cartType, ramSizeCode byte) []byte {
	rom := make([]byte, size)
	for bank := 0; bank*0x4000 < size; bank++ {
		rom[bank*0x4000] = byte(bank)
		rom[bank*0x4000+1] = byte(bank >> 8)
	}
	rom[0x0147] = cartType
	for code := byte(0); code <= 0x08; code++ {
		if 32*1024<<code == size {
			rom[0x0148] = code
			break
		}
	}
	rom[0x0149] = ramSizeCode
	return rom
}

func stampLogo(rom []byte, bank int) {
	copy(rom[bank*0x4000+0x104:], nintendoLogo[:])
}

func newTestMapper() *mem.Mapper {
	return mem.New(sched.New())
}

func mustMap(t *testing.T, rom []byte) (*Cartridge, *mem.Mapper) {
	t.Helper()
	c, err := New(rom)
	if err != nil {
		t.Fatal(err)
	}
	m := newTestMapper()
	if err := c.MapTo(m); err != nil {
		t.Fatal(err)
	}
	return c, m
}

func TestROMSizeValidation(t *testing.T) {
	for _, size := range []int{0, 0x2000, 0x4000 + 1, 9 * 1024 * 1024} {
		if _, err := New(make([]byte, size)); !errors.Is(err, ErrROMSize) {
			t.Fatalf("size %#x err got %v want ErrROMSize", size, err)
		}
	}
}

func TestUnsupportedCartType(t *testing.T) {
	rom := buildROM(0x8000, 0xFC, 0)
	if _, err := New(rom); !errors.Is(err, ErrUnsupportedCart) {
		t.Fatalf("err got %v want ErrUnsupportedCart", err)
	}
}

func TestROMOnly(t *testing.T) {
	rom := buildROM(0x8000, 0x00, 0)
	_, m := mustMap(t, rom)
	if got := m.Read8(0x0000); got != 0x00 {
		t.Fatalf("bank0 got %02X want 00", got)
	}
	if got := m.Read8(0x4000); got != 0x01 {
		t.Fatalf("bank1 got %02X want 01", got)
	}
	// control writes are discarded, nothing rebanked
	m.Write8(0x2000, 0x05)
	if got := m.Read8(0x4000); got != 0x01 {
		t.Fatalf("bank1 after write got %02X want 01", got)
	}
}

func TestMBC1BankSelect(t *testing.T) {
	rom := buildROM(1024*1024, 0x01, 0)
	_, m := mustMap(t, rom)
	if got := m.Read8(0x4000); got != 0x01 {
		t.Fatalf("default bank got %02X want 01", got)
	}
	m.Write8(0x2000, 0x03)
	if got := m.Read8(0x4000); got != 0x03 {
		t.Fatalf("bank3 got %02X want 03", got)
	}
	// writing 0 after X selects bank 1
	m.Write8(0x2000, 0x00)
	if got := m.Read8(0x4000); got != 0x01 {
		t.Fatalf("bank0->1 remap got %02X want 01", got)
	}
	// outer register supplies bits 5-6
	m.Write8(0x2000, 0x02)
	m.Write8(0x4000, 0x01)
	if got := m.Read8(0x4000); got != 0x22 {
		t.Fatalf("outer bank got %02X want 22", got)
	}
}

func TestMBC1Mode1Bank0Window(t *testing.T) {
	// after mode 1 + outer 0x02, the 0x0000 window shows bank 0x40
	rom := buildROM(2*1024*1024, 0x01, 0)
	_, m := mustMap(t, rom)
	m.Write8(0x6000, 0x01)
	m.Write8(0x4000, 0x02)
	if got := m.Read8(0x0000); got != 0x40 {
		t.Fatalf("mode1 bank0 window got %02X want 40 (bank 0x40)", got)
	}
	// flipping back restores bank 0 immediately
	m.Write8(0x6000, 0x00)
	if got := m.Read8(0x0000); got != 0x00 {
		t.Fatalf("mode0 bank0 window got %02X want 00", got)
	}
}

func TestMBC1RAMEnableDisable(t *testing.T) {
	rom := buildROM(0x8000, 0x03, 0x03) // 32 KiB RAM
	_, m := mustMap(t, rom)

	// disabled: reads 0xFF, writes discarded
	m.Write8(0xA000, 0x55)
	if got := m.Read8(0xA000); got != 0xFF {
		t.Fatalf("disabled ram read got %02X want FF", got)
	}

	m.Write8(0x0000, 0x0A)
	m.Write8(0xA000, 0x55)
	if got := m.Read8(0xA000); got != 0x55 {
		t.Fatalf("enabled ram read got %02X want 55", got)
	}

	m.Write8(0x0000, 0x00)
	if got := m.Read8(0xA000); got != 0xFF {
		t.Fatalf("re-disabled ram read got %02X want FF", got)
	}

	// re-enable restores the stored contents
	m.Write8(0x0000, 0x1A) // low nibble A still enables
	if got := m.Read8(0xA000); got != 0x55 {
		t.Fatalf("re-enabled ram read got %02X want 55", got)
	}
}

func TestMBC1RAMBanking(t *testing.T) {
	rom := buildROM(0x8000, 0x03, 0x03)
	_, m := mustMap(t, rom)
	m.Write8(0x0000, 0x0A)
	m.Write8(0x6000, 0x01) // mode 1: ram banked
	m.Write8(0x4000, 0x02) // ram bank 2
	m.Write8(0xA000, 0x77)
	m.Write8(0x4000, 0x00)
	if got := m.Read8(0xA000); got == 0x77 {
		t.Fatal("bank 0 aliased bank 2")
	}
	m.Write8(0x4000, 0x02)
	if got := m.Read8(0xA000); got != 0x77 {
		t.Fatalf("ram bank 2 got %02X want 77", got)
	}
}

func TestMBC1MulticartDetection(t *testing.T) {
	rom := buildROM(1024*1024, 0x01, 0)
	stampLogo(rom, 0x10)
	stampLogo(rom, 0x20)
	_, m := mustMap(t, rom)
	// inner bank restricted to 4 bits, outer is bits 4-5
	m.Write8(0x2000, 0x1F) // top bit ignored -> inner 0x0F
	m.Write8(0x4000, 0x01)
	if got := m.Read8(0x4000); got != 0x1F {
		t.Fatalf("multicart bank got %02X want 1F", got)
	}
}

func TestMBC1LargeROMAndRAMRejected(t *testing.T) {
	rom := buildROM(1024*1024, 0x03, 0x03)
	if _, err := New(rom); !errors.Is(err, ErrMBC1Layout) {
		t.Fatalf("err got %v want ErrMBC1Layout", err)
	}
}

func TestMBC2BitEightDecode(t *testing.T) {
	rom := buildROM(256*1024, 0x06, 0)
	_, m := mustMap(t, rom)
	// address bit 8 set: ROM bank select
	m.Write8(0x2100, 0x03)
	if got := m.Read8(0x4000); got != 0x03 {
		t.Fatalf("bank got %02X want 03", got)
	}
	m.Write8(0x2100, 0x00)
	if got := m.Read8(0x4000); got != 0x01 {
		t.Fatalf("bank0->1 remap got %02X want 01", got)
	}
	// address bit 8 clear: RAM enable, even at 0x2000
	m.Write8(0x2000, 0x0A)
	m.Write8(0xA000, 0xAB)
	if got := m.Read8(0xA000); got != 0xFB {
		t.Fatalf("nibble ram got %02X want FB", got)
	}
	m.Write8(0x2000, 0x00)
	if got := m.Read8(0xA000); got != 0xFF {
		t.Fatalf("disabled nibble ram got %02X want FF", got)
	}
}

func TestMBC3BankSelect(t *testing.T) {
	rom := buildROM(2*1024*1024, 0x13, 0x03)
	_, m := mustMap(t, rom)
	m.Write8(0x2000, 0x7F)
	if got := m.Read8(0x4000); got != 0x7F {
		t.Fatalf("bank got %02X want 7F", got)
	}
	m.Write8(0x2000, 0x00)
	if got := m.Read8(0x4000); got != 0x01 {
		t.Fatalf("bank0->1 remap got %02X want 01", got)
	}
}

func TestMBC3RAMBanking(t *testing.T) {
	rom := buildROM(0x80000, 0x13, 0x03)
	_, m := mustMap(t, rom)
	m.Write8(0x0000, 0x0A)
	m.Write8(0x4000, 0x03)
	m.Write8(0xA123, 0x66)
	m.Write8(0x4000, 0x00)
	m.Write8(0xA123, 0x11)
	m.Write8(0x4000, 0x03)
	if got := m.Read8(0xA123); got != 0x66 {
		t.Fatalf("ram bank 3 got %02X want 66", got)
	}
}

func TestMBC5BankZeroIsReal(t *testing.T) {
	rom := buildROM(8*1024*1024, 0x19, 0)
	_, m := mustMap(t, rom)
	m.Write8(0x2000, 0x05)
	if got := m.Read8(0x4000); got != 0x05 {
		t.Fatalf("bank got %02X want 05", got)
	}
	// bank 0 is a valid selection on MBC5
	m.Write8(0x2000, 0x00)
	if got := m.Read8(0x4000); got != 0x00 {
		t.Fatalf("bank0 got %02X want 00", got)
	}
	// 9th bit via 0x3000
	m.Write8(0x2000, 0x02)
	m.Write8(0x3000, 0x01)
	if got := m.Read8(0x4001); got != 0x01 {
		t.Fatalf("bank high byte got %02X want 01", got)
	}
	if got := m.Read8(0x4000); got != 0x02 {
		t.Fatalf("bank low byte got %02X want 02", got)
	}
}

func TestBatteryRAMRoundTrip(t *testing.T) {
	rom := buildROM(0x8000, 0x03, 0x02) // 8 KiB RAM
	c, err := New(rom)
	if err != nil {
		t.Fatal(err)
	}
	seed := make([]byte, 8*1024)
	for i := range seed {
		seed[i] = byte(i)
	}
	if err := c.LoadBatteryRAM(seed); err != nil {
		t.Fatal(err)
	}
	var flushed []byte
	c.SetSaveSink(func(data []byte) { flushed = data })

	m := newTestMapper()
	if err := c.MapTo(m); err != nil {
		t.Fatal(err)
	}
	m.Write8(0x0000, 0x0A)
	m.Write8(0xA000, 0xEE)
	c.Unmap()

	if len(flushed) != 8*1024 {
		t.Fatalf("flushed %d bytes want 8192", len(flushed))
	}
	if flushed[0] != 0xEE || flushed[1] != 0x01 {
		t.Fatalf("flushed content got %02X %02X want EE 01", flushed[0], flushed[1])
	}
}

func TestLoadBatteryRAMTooSmall(t *testing.T) {
	rom := buildROM(0x8000, 0x03, 0x03)
	c, err := New(rom)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.LoadBatteryRAM(make([]byte, 100)); !errors.Is(err, ErrRAMFile) {
		t.Fatalf("err got %v want ErrRAMFile", err)
	}
}

func TestMapUnmapRemap(t *testing.T) {
	rom := buildROM(0x8000, 0x01, 0)
	c, m := mustMap(t, rom)
	c.Unmap()
	if got := m.Read8(0x0000); got != 0xFF {
		t.Fatalf("after unmap got %02X want FF", got)
	}
	if err := c.MapTo(m); err != nil {
		t.Fatal(err)
	}
	if got := m.Read8(0x0000); got != 0x00 {
		t.Fatalf("after remap got %02X want 00", got)
	}
}

// buildMMM01 assembles a 512 KiB menu image: a trailing 32 KiB menu block
// with its own valid header, and a primary header whose size code disagrees.
func buildMMM01() []byte {
	size := 512 * 1024
	rom := make([]byte, size)
	for bank := 0; bank*0x4000 < size; bank++ {
		rom[bank*0x4000] = byte(bank)
		rom[bank*0x4000+1] = byte(bank >> 8)
	}
	rom[0x0147] = 0x01
	rom[0x0148] = 0x01 // claims 64 KiB: mismatch
	base := size - 0x8000
	copy(rom[base+0x0104:], nintendoLogo[:])
	rom[base+0x0147] = 0x0B
	rom[base+0x0148] = 0x04 // 512 KiB: agrees
	rom[base+0x0149] = 0x02
	return rom
}

func TestMMM01Detection(t *testing.T) {
	rom := buildMMM01()
	c, err := New(rom)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.ctrl.(*mmm01); !ok {
		t.Fatalf("controller got %T want *mmm01", c.ctrl)
	}
	// same image with an agreeing primary size code is not a menu cart
	rom2 := buildMMM01()
	rom2[0x0148] = 0x04
	c2, err := New(rom2)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c2.ctrl.(*mmm01); ok {
		t.Fatal("agreeing primary header misdetected as MMM01")
	}
}

func TestMMM01MenuBanksAtStart(t *testing.T) {
	rom := buildMMM01()
	_, m := mustMap(t, rom)
	// 512 KiB image: menu banks are 0x1E/0x1F
	if got := m.Read8(0x0000); got != 0x1E {
		t.Fatalf("menu bank0 got %02X want 1E", got)
	}
	if got := m.Read8(0x4000); got != 0x1F {
		t.Fatalf("menu bank1 got %02X want 1F", got)
	}
}

func TestMMM01MapLatch(t *testing.T) {
	rom := buildMMM01()
	_, m := mustMap(t, rom)
	// menu programs a game at base bank 0x08 with low bits 3-4 locked,
	// leaving bits 0-2 as the game's own bank selector
	m.Write8(0x2000, 0x08) // low=8, mid=0
	m.Write8(0x6000, 0x30) // mask bits 3-4, no multiplex
	m.Write8(0x0000, 0x40) // map enable
	if got := m.Read8(0x0000); got != 0x08 {
		t.Fatalf("mapped base bank got %02X want 08", got)
	}
	// switchable window: unmasked low bits zero selects base|1
	if got := m.Read8(0x4000); got != 0x09 {
		t.Fatalf("zero-adjusted bank got %02X want 09", got)
	}
	m.Write8(0x2000, 0x02)
	if got := m.Read8(0x4000); got != 0x0A {
		t.Fatalf("switchable bank got %02X want 0A", got)
	}
	// masked bits are latched: mapped-mode writes cannot move the base
	m.Write8(0x2000, 0x1F)
	if got := m.Read8(0x0000); got != 0x08 {
		t.Fatalf("latched base moved: got %02X want 08", got)
	}
	if got := m.Read8(0x4000); got != 0x0F {
		t.Fatalf("in-game bank got %02X want 0F", got)
	}
}

func TestMMM01WriteEnableMask(t *testing.T) {
	rom := buildMMM01()
	_, m := mustMap(t, rom)
	// lock rom bank bits 1-4, leaving only bit 0 writable, base low = 0x10
	m.Write8(0x2000, 0x10)
	m.Write8(0x6000, 0x3C) // mask bits 2-5 set -> lock low bits 1-4
	m.Write8(0x0000, 0x40) // map enable
	// unmasked low bits zero: forced to 1
	if got := m.Read8(0x4000); got != 0x11 {
		t.Fatalf("masked switchable bank got %02X want 11", got)
	}
	m.Write8(0x2000, 0x0F) // only bit 0 lands
	if got := m.Read8(0x4000); got != 0x11 {
		t.Fatalf("mask leak: got %02X want 11", got)
	}
	if got := m.Read8(0x0000); got != 0x10 {
		t.Fatalf("base bank got %02X want 10", got)
	}
}

func TestHeaderChecksum(t *testing.T) {
	rom := buildROM(0x8000, 0x00, 0)
	var sum byte
	for addr := 0x0134; addr <= 0x014C; addr++ {
		sum = sum - rom[addr] - 1
	}
	rom[0x014D] = sum
	if !HeaderChecksumOK(rom) {
		t.Fatal("checksum should verify")
	}
	rom[0x0134] = 'X'
	if HeaderChecksumOK(rom) {
		t.Fatal("checksum should fail after mutation")
	}
}

func TestSaveFileReplacedByLatestLoad(t *testing.T) {
	rom := buildROM(0x8000, 0x03, 0x02)
	c, err := New(rom)
	if err != nil {
		t.Fatal(err)
	}
	x := bytes.Repeat([]byte{0xAA}, 8*1024)
	y := bytes.Repeat([]byte{0xBB}, 8*1024)

	var file []byte
	c.SetSaveSink(func(data []byte) { file = data })

	m := newTestMapper()
	if err := c.MapTo(m); err != nil {
		t.Fatal(err)
	}
	if err := c.LoadBatteryRAM(x); err != nil {
		t.Fatal(err)
	}
	c.Unmap()
	if err := c.MapTo(m); err != nil {
		t.Fatal(err)
	}
	if err := c.LoadBatteryRAM(y); err != nil {
		t.Fatal(err)
	}
	c.Unmap()

	if len(file) != 8*1024 || file[0] != 0xBB {
		t.Fatalf("save file got len=%d first=%02X want 8192/BB", len(file), file[0])
	}
}
