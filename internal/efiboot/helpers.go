package efiboot

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"
)

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

func encodeUint16(v uint16) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, v)
	return buf
}

// sortByBootOrder reorders entries to match the number sequence encoded
// in order (pairs of little-endian uint16s), placing any entry not
// mentioned in order after the ones that are, in numeric order.
func sortByBootOrder(entries []Entry, order []byte) []Entry {
	byNumber := make(map[uint16]Entry, len(entries))
	for _, e := range entries {
		byNumber[e.Number] = e
	}

	var sorted []Entry
	seen := make(map[uint16]bool)
	for i := 0; i+1 < len(order); i += 2 {
		n := binary.LittleEndian.Uint16(order[i : i+2])
		if e, ok := byNumber[n]; ok {
			sorted = append(sorted, e)
			seen[n] = true
		}
	}
	var rest []Entry
	for _, e := range entries {
		if !seen[e.Number] {
			rest = append(rest, e)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].Number < rest[j].Number })
	return append(sorted, rest...)
}
