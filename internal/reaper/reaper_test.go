package reaper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnderRoot(t *testing.T) {
	require.True(t, underRoot("/mnt/old_root", "/mnt/old_root"))
	require.True(t, underRoot("/mnt/old_root/usr/bin/foo", "/mnt/old_root"))
	require.False(t, underRoot("/mnt/old_root_other/foo", "/mnt/old_root"))
	require.False(t, underRoot("/usr/bin/foo", "/mnt/old_root"))
}
