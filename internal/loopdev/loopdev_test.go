package loopdev

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateString(t *testing.T) {
	require.Equal(t, "free", StateFree.String())
	require.Equal(t, "attached", StateAttached.String())
	require.Equal(t, "active", StateActive.String())
	require.Equal(t, "detached", StateDetached.String())
}

func TestAttachRejectsNonFreeDevice(t *testing.T) {
	d := &Device{Path: "/dev/loop0", state: StateActive}
	err := d.Attach("/nonexistent", 0, 0)
	require.Error(t, err)
}

func TestDetachOnNeverAttachedIsNoop(t *testing.T) {
	d := &Device{Path: "/dev/loop0", state: StateFree}
	require.NoError(t, d.Detach())
	require.Equal(t, StateDetached, d.State())
}
