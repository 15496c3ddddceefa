package cart

import (
	"bytes"
	"errors"
	"strings"
)

const (
	headerStart = 0x0100
	headerEnd   = 0x014F
)

var nintendoLogo = [48]byte{
	0xCE, 0xED, 0x66, 0x66, 0xCC, 0x0D, 0x00, 0x0B, 0x03, 0x73, 0x00, 0x83, 0x00, 0x0C, 0x00, 0x0D,
	0x00, 0x08, 0x11, 0x1F, 0x88, 0x89, 0x00, 0x0E, 0xDC, 0xCC, 0x6E, 0xE6, 0xDD, 0xDD, 0xD9, 0x99,
	0xBB, 0xBB, 0x67, 0x63, 0x6E, 0x0E, 0xEC, 0xCC, 0xDD, 0xDC, 0x99, 0x9F, 0xBB, 0xB9, 0x33, 0x3E,
}

// Header is the cartridge header at 0x0100-0x014F.
type Header struct {
	Title          string // trimmed ASCII
	CartType       byte   // 0x0147
	ROMSizeCode    byte   // 0x0148
	RAMSizeCode    byte   // 0x0149
	HeaderChecksum byte   // 0x014D

	// decoded helpers
	ROMSizeBytes int
	RAMSizeBytes int
	CartTypeStr  string
}

// ParseHeader reads the header at the given base offset (0 for the primary
// header; MMM01 carts carry a second one at the start of the last 32 KiB).
func ParseHeader(rom []byte, base int) (*Header, error) {
	if base < 0 || len(rom) < base+headerEnd+1 {
		return nil, errors.New("ROM too small to contain header")
	}
	rawTitle := rom[base+0x0134 : base+0x0144]
	h := &Header{
		Title:          strings.TrimRight(string(rawTitle), "\x00"),
		CartType:       rom[base+0x0147],
		ROMSizeCode:    rom[base+0x0148],
		RAMSizeCode:    rom[base+0x0149],
		HeaderChecksum: rom[base+0x014D],
	}
	h.ROMSizeBytes = decodeROMSize(h.ROMSizeCode)
	h.RAMSizeBytes, _ = decodeRAMSize(h.RAMSizeCode)
	h.CartTypeStr = cartTypeString(h.CartType)
	return h, nil
}

// logoAt reports whether the Nintendo logo sits at the given ROM offset.
// Multicart and MMM01 detection probe for it in the middle of the image.
func logoAt(rom []byte, offset int) bool {
	if offset < 0 || offset+len(nintendoLogo) > len(rom) {
		return false
	}
	return bytes.Equal(rom[offset:offset+len(nintendoLogo)], nintendoLogo[:])
}

func decodeROMSize(code byte) int {
	if code <= 0x08 {
		return 32 * 1024 << code
	}
	return 0
}

func decodeRAMSize(code byte) (int, error) {
	switch code {
	case 0x00:
		return 0, nil
	case 0x01:
		return 2 * 1024, nil
	case 0x02:
		return 8 * 1024, nil
	case 0x03:
		return 32 * 1024, nil
	case 0x04:
		return 128 * 1024, nil
	case 0x05:
		return 64 * 1024, nil
	default:
		return 0, errors.New("bad ram size code")
	}
}

func cartTypeString(code byte) string {
	switch code {
	case 0x00, 0x08, 0x09:
		return "ROM ONLY"
	case 0x01, 0x02, 0x03:
		return "MBC1"
	case 0x05, 0x06:
		return "MBC2"
	case 0x0B, 0x0C, 0x0D:
		return "MMM01"
	case 0x0F, 0x10, 0x11, 0x12, 0x13:
		return "MBC3"
	case 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E:
		return "MBC5"
	default:
		return "Other/unknown"
	}
}

// HeaderChecksumOK verifies the 0x0134-0x014C checksum at 0x014D.
func HeaderChecksumOK(rom []byte) bool {
	if len(rom) < 0x014E {
		return false
	}
	var sum byte
	for addr := 0x0134; addr <= 0x014C; addr++ {
		sum = sum - rom[addr] - 1
	}
	return sum == rom[0x014D]
}
