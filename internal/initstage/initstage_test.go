package initstage

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsOpenFD(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "fd-probe")
	require.NoError(t, err)
	defer f.Close()

	require.True(t, isOpenFD(int(f.Fd())))
	require.False(t, isOpenFD(999))
}
