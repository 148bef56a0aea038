package partutil

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeMBR builds a 512-byte sector-0 image with up to 4 primary entries.
type mbrEntry struct {
	partType byte
	startLBA uint32
	sectors  uint32
}

func fakeMBR(entries ...mbrEntry) []byte {
	sector := make([]byte, sectorSize)
	for i, e := range entries {
		off := mbrPartTableOff + i*mbrPartEntrySize
		sector[off+4] = e.partType
		binary.LittleEndian.PutUint32(sector[off+8:], e.startLBA)
		binary.LittleEndian.PutUint32(sector[off+12:], e.sectors)
	}
	binary.LittleEndian.PutUint16(sector[mbrSignatureOff:], mbrSignature)
	return sector
}

func TestReadMBRSimple(t *testing.T) {
	img := fakeMBR(
		mbrEntry{partType: 0x0C, startLBA: 2048, sectors: 204800},
		mbrEntry{partType: 0x83, startLBA: 206848, sectors: 1000000},
	)
	parts, err := ReadMBR(bytes.NewReader(img))
	require.NoError(t, err)
	require.Len(t, parts, 2)
	require.Equal(t, uint64(2048), parts[0].StartLBA)
	require.Equal(t, "0x0C", parts[0].Type)
	require.Equal(t, uint64(206848), parts[1].StartLBA)
}

func TestReadMBRNoSignature(t *testing.T) {
	img := make([]byte, sectorSize)
	parts, err := ReadMBR(bytes.NewReader(img))
	require.NoError(t, err)
	require.Nil(t, parts)
}

func TestReadMBRExtendedChain(t *testing.T) {
	// Primary table: one normal partition, one extended container at LBA 1000.
	primary := fakeMBR(
		mbrEntry{partType: 0x83, startLBA: 2048, sectors: 204800},
		mbrEntry{partType: 0x05, startLBA: 1000, sectors: 50000},
	)

	// Logical partition inside the extended container, relative to LBA 1000.
	logical := fakeMBR(
		mbrEntry{partType: 0x83, startLBA: 2, sectors: 20000},
	)

	img := make([]byte, (1000+1)*sectorSize)
	copy(img[0:sectorSize], primary)
	copy(img[1000*sectorSize:], logical)

	parts, err := ReadMBR(bytes.NewReader(img))
	require.NoError(t, err)
	require.Len(t, parts, 2)
	require.Equal(t, uint64(2048), parts[0].StartLBA)
	// Logical partition's absolute LBA is baseLBA(1000) + relative(2).
	require.Equal(t, uint64(1002), parts[1].StartLBA)
}

func TestPartInfoByteMath(t *testing.T) {
	p := PartInfo{StartLBA: 2048, Sectors: 1000}
	require.Equal(t, int64(2048*sectorSize), p.ByteOffset())
	require.Equal(t, int64(1000*sectorSize), p.ByteSize())
}
