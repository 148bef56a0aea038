package flash

import (
	"bytes"
	"compress/gzip"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeGzipImage(t *testing.T, path string, data []byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gw := gzip.NewWriter(f)
	_, err = gw.Write(data)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
}

func TestWriteInternalMatchesImage(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "image.img.gz")
	devPath := filepath.Join(dir, "flash-dev")

	payload := bytes.Repeat([]byte{0xAB}, bufferSize*3+17)
	writeGzipImage(t, imagePath, payload)

	require.NoError(t, os.WriteFile(devPath, nil, 0644))

	e := New(slog.Default())
	result := e.WriteInternal(context.Background(), imagePath, devPath)
	require.Equal(t, OutcomeOK, result.Outcome)
	require.Equal(t, int64(len(payload)), result.BytesWritten)

	written, err := os.ReadFile(devPath)
	require.NoError(t, err)
	require.True(t, bytes.Equal(payload, written))
}

func TestVerifyDetectsMismatch(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "image.img.gz")
	devPath := filepath.Join(dir, "flash-dev")

	payload := bytes.Repeat([]byte{0x11}, verifyBlockSize*2)
	writeGzipImage(t, imagePath, payload)

	corrupted := make([]byte, len(payload))
	copy(corrupted, payload)
	corrupted[verifyBlockSize+5] = 0xFF
	require.NoError(t, os.WriteFile(devPath, corrupted, 0644))

	e := New(slog.Default())
	mismatches, err := e.Verify(imagePath, devPath)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	require.Equal(t, 1, mismatches[0].BlockIndex)
}

func TestVerifyNoMismatch(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "image.img.gz")
	devPath := filepath.Join(dir, "flash-dev")

	payload := bytes.Repeat([]byte{0x22}, verifyBlockSize)
	writeGzipImage(t, imagePath, payload)
	require.NoError(t, os.WriteFile(devPath, payload, 0644))

	e := New(slog.Default())
	mismatches, err := e.Verify(imagePath, devPath)
	require.NoError(t, err)
	require.Empty(t, mismatches)
}
