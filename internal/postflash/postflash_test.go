package postflash

import (
	"testing"

	"github.com/balena-os/takeover/internal/partutil"
	"github.com/stretchr/testify/require"
)

func TestFindPartitionByLabel(t *testing.T) {
	parts := []partutil.PartInfo{
		{Index: 0, Label: ""},
		{Index: 1, Label: bootPartitionLabel},
		{Index: 2, Label: rootAPartitionLabel},
	}

	boot, ok := findPartition(parts, bootPartitionIndex, bootPartitionLabel)
	require.True(t, ok)
	require.Equal(t, 1, boot.Index)

	rootA, ok := findPartition(parts, rootAPartitionIndex, rootAPartitionLabel)
	require.True(t, ok)
	require.Equal(t, 2, rootA.Index)

	_, ok = findPartition(parts, dataPartitionIndex, dataPartitionLabel)
	require.False(t, ok)
}
