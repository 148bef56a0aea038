package partutil

import (
	"fmt"
	"io"

	"github.com/diskfs/go-diskfs/partition"
	"github.com/diskfs/go-diskfs/partition/gpt"
)

// ReadGPT reads the GPT partition table from r using the same library
// real disk-image tooling uses for this (diskfs/go-diskfs, grounded in
// other_examples' ubuntu-image helper.go, which builds gpt.Partition{Start,
// Size, Type, Name} entries the same way the Post-Flash Writer needs to
// read them back here). Returns one PartInfo per partition, in table order.
func ReadGPT(r io.ReadWriterAt, logicalBlocksize, physicalBlocksize int) ([]PartInfo, error) {
	table, err := partition.Read(r, logicalBlocksize, physicalBlocksize)
	if err != nil {
		return nil, err
	}

	gptTable, ok := table.(*gpt.Table)
	if !ok {
		return nil, fmt.Errorf("partition table is not GPT")
	}

	var parts []PartInfo
	for i, p := range gptTable.Partitions {
		if p.Size == 0 {
			continue
		}
		parts = append(parts, PartInfo{
			Index:    i,
			Type:     string(p.Type),
			StartLBA: p.Start,
			Sectors:  p.Size / sectorSize,
			Label:    p.Name,
		})
	}
	return parts, nil
}

// ReadTable reads whichever of MBR or GPT is present on r, preferring MBR
// when a valid 0x55AA-signed table is found there (§9). A GPT disk always
// carries a protective MBR too, which ReadMBR returns as a single opaque
// partition of type 0xEE; ReadTable treats that lone entry as the sign of
// a GPT disk and reads the GPT instead. GPT is also read when sector 0 has
// no valid MBR signature at all.
func ReadTable(r io.ReadWriterAt, logicalBlocksize, physicalBlocksize int) ([]PartInfo, error) {
	mbrParts, err := ReadMBR(r)
	if err != nil {
		return nil, err
	}
	if mbrParts != nil {
		// A lone 0xEE (GPT protective) entry means the real table is GPT.
		if len(mbrParts) == 1 && mbrParts[0].Type == "0xEE" {
			return ReadGPT(r, logicalBlocksize, physicalBlocksize)
		}
		return mbrParts, nil
	}
	return ReadGPT(r, logicalBlocksize, physicalBlocksize)
}
