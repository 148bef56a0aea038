package pivot

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsInitProcess(t *testing.T) {
	require.Equal(t, os.Getpid() == 1, IsInitProcess())
}
