package efiboot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSortByBootOrder(t *testing.T) {
	entries := []Entry{
		{Number: 0, Label: "Boot0"},
		{Number: 1, Label: "Boot1"},
		{Number: 2, Label: "Boot2"},
	}
	order := append(encodeUint16(2), encodeUint16(0)...)

	sorted := sortByBootOrder(entries, order)
	require.Len(t, sorted, 3)
	require.Equal(t, uint16(2), sorted[0].Number)
	require.Equal(t, uint16(0), sorted[1].Number)
	require.Equal(t, uint16(1), sorted[2].Number)
}

func TestEncodeDecodeUint16Roundtrip(t *testing.T) {
	entries := []Entry{{Number: 300}}
	sorted := sortByBootOrder(entries, encodeUint16(300))
	require.Equal(t, uint16(300), sorted[0].Number)
}
