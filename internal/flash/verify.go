package flash

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/pgzip"
)

// verifyBlockSize is the comparison granularity for optional
// read-verify (§4.5 "Optional verification... at the same 64 KiB
// granularity").
const verifyBlockSize = 64 * 1024

// maxMismatchesReported caps how many block mismatches get collected
// before verification gives up (§4.5 "Abort reporting after 20 mismatches").
const maxMismatchesReported = 20

// Mismatch records one verification block that didn't match.
type Mismatch struct {
	BlockIndex int
	Offset     int64
}

// Verify reopens the flash device read-only, re-decompresses the image,
// and compares block-for-block, returning any mismatches found (up to
// maxMismatchesReported, at which point it stops comparing) and an error
// if either side could not be read.
func (e *Engine) Verify(imagePath, flashDevice string) ([]Mismatch, error) {
	imgFile, err := os.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", imagePath, err)
	}
	defer imgFile.Close()

	gz, err := pgzip.NewReader(imgFile)
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	dev, err := os.Open(flashDevice)
	if err != nil {
		return nil, fmt.Errorf("open flash device %s read-only: %w", flashDevice, err)
	}
	defer dev.Close()

	expected := make([]byte, verifyBlockSize)
	actual := make([]byte, verifyBlockSize)

	var mismatches []Mismatch
	var offset int64
	for block := 0; ; block++ {
		en, expErr := io.ReadFull(gz, expected)
		if en == 0 && expErr == io.EOF {
			break
		}

		an, actErr := io.ReadFull(dev, actual[:en])
		if actErr != nil && actErr != io.ErrUnexpectedEOF {
			return mismatches, fmt.Errorf("read flash device at block %d: %w", block, actErr)
		}

		if an != en || !bytes.Equal(expected[:en], actual[:an]) {
			mismatches = append(mismatches, Mismatch{BlockIndex: block, Offset: offset})
			if len(mismatches) >= maxMismatchesReported {
				e.log.Warn("verification aborted: too many mismatches", "count", len(mismatches))
				return mismatches, nil
			}
		}

		offset += int64(en)
		if expErr == io.EOF || expErr == io.ErrUnexpectedEOF {
			break
		}
		if expErr != nil {
			return mismatches, fmt.Errorf("read decompressed image at block %d: %w", block, expErr)
		}
	}

	return mismatches, nil
}
