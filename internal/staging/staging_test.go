package staging

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequireAbsentOrEmpty(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "staging")

	require.NoError(t, requireAbsentOrEmpty(target))

	require.NoError(t, os.MkdirAll(target, 0755))
	require.NoError(t, requireAbsentOrEmpty(target))

	require.NoError(t, os.WriteFile(filepath.Join(target, "leftover"), []byte("x"), 0644))
	require.Error(t, requireAbsentOrEmpty(target))
}

func TestFlashDiskName(t *testing.T) {
	r := Request{FlashDevice: "/dev/sda"}
	require.Equal(t, "sda", r.flashDiskName())
}

func TestUnwinderRunsInReverseUnlessDisarmed(t *testing.T) {
	var order []int
	u := newUnwinder(slog.Default())
	u.push(func() error { order = append(order, 1); return nil })
	u.push(func() error { order = append(order, 2); return nil })
	u.push(func() error { order = append(order, 3); return errors.New("boom") })
	u.runIfNotDisarmed()
	require.Equal(t, []int{3, 2, 1}, order)
}

func TestUnwinderDisarmed(t *testing.T) {
	ran := false
	u := newUnwinder(slog.Default())
	u.push(func() error { ran = true; return nil })
	u.disarm()
	u.runIfNotDisarmed()
	require.False(t, ran)
}
