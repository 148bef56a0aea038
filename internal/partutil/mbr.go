// Package partutil parses the partition table of the freshly-written flash
// device so the Post-Flash Writer can compute byte offsets for loop-device
// mounts (§3 PartInfo, §4.6 step 1). MBR is parsed by hand, deliberately
// (§9 Design Notes); GPT is read via github.com/diskfs/go-diskfs/partition/gpt,
// the library real balena/Canonical disk tooling uses for this (grounded in
// other_examples' ubuntu-image statemachine helper).
package partutil

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	sectorSize      = 512
	mbrSignatureOff = 0x1FE
	mbrPartTableOff = 0x1BE
	mbrPartEntrySize = 16
	mbrSignature    = 0xAA55

	// MBR partition types that mark an extended/container partition,
	// requiring recursive descent into its first-lba field (§9).
	partTypeExtendedCHS  = 0x05
	partTypeExtendedLBA  = 0x0F
	partTypeExtendedLinux = 0x85
)

// PartInfo describes one partition found on the written disk, zero-based
// index, enough to compute a byte offset and size for a loop mount.
type PartInfo struct {
	Index     int
	Type      string // MBR type byte as "0xNN", or GPT partition type GUID
	StartLBA  uint64
	Sectors   uint64
	Label     string // GPT partition name, empty for MBR
}

// ByteOffset returns the partition's start offset in bytes.
func (p PartInfo) ByteOffset() int64 { return int64(p.StartLBA) * sectorSize }

// ByteSize returns the partition's size in bytes.
func (p PartInfo) ByteSize() int64 { return int64(p.Sectors) * sectorSize }

func isExtended(partType byte) bool {
	return partType == partTypeExtendedCHS || partType == partTypeExtendedLBA || partType == partTypeExtendedLinux
}

// ReadMBR hand-parses the MBR partition table at sector 0 of r, recursing
// into extended/container partitions by chasing their first-lba field
// (§9). Returns (nil, nil) if sector 0 has no valid 0x55AA signature —
// callers should fall back to ReadGPT. A GPT protective MBR is not
// detected here: it comes back as a single partition of type "0xEE".
func ReadMBR(r io.ReaderAt) ([]PartInfo, error) {
	sector0 := make([]byte, sectorSize)
	if _, err := r.ReadAt(sector0, 0); err != nil {
		return nil, fmt.Errorf("read sector 0: %w", err)
	}

	if binary.LittleEndian.Uint16(sector0[mbrSignatureOff:]) != mbrSignature {
		return nil, nil
	}

	var parts []PartInfo
	index := 0
	if err := parseMBRTable(r, sector0, 0, &index, &parts); err != nil {
		return nil, err
	}
	return parts, nil
}

// parseMBRTable parses the four primary entries of the sector at
// baseLBA (0 for the real MBR, the extended-partition's own first-lba for
// a logical partition chain), appending non-empty/non-extended entries to
// *parts and recursing into the first extended entry found, if any.
func parseMBRTable(r io.ReaderAt, sector []byte, baseLBA uint64, index *int, parts *[]PartInfo) error {
	for i := 0; i < 4; i++ {
		entry := sector[mbrPartTableOff+i*mbrPartEntrySize : mbrPartTableOff+(i+1)*mbrPartEntrySize]
		partType := entry[4]
		startLBA := uint64(binary.LittleEndian.Uint32(entry[8:12]))
		numSectors := uint64(binary.LittleEndian.Uint32(entry[12:16]))

		if partType == 0 || numSectors == 0 {
			continue
		}

		if isExtended(partType) {
			absoluteLBA := baseLBA + startLBA
			nextSector := make([]byte, sectorSize)
			if _, err := r.ReadAt(nextSector, int64(absoluteLBA)*sectorSize); err != nil {
				return fmt.Errorf("read extended partition at lba %d: %w", absoluteLBA, err)
			}
			// Logical partitions inside an extended container are
			// addressed relative to the container's own first LBA.
			if err := parseMBRTable(r, nextSector, absoluteLBA, index, parts); err != nil {
				return err
			}
			continue
		}

		*parts = append(*parts, PartInfo{
			Index:    *index,
			Type:     fmt.Sprintf("0x%02X", partType),
			StartLBA: baseLBA + startLBA,
			Sectors:  numSectors,
		})
		*index++
	}
	return nil
}
