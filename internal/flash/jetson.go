package flash

import (
	"context"
	"fmt"
	"os/exec"
)

// WriteJetsonQSPI implements the Jetson Xavier boot-blob strategy:
// mtd_debug erase over a fixed size, then mtd_debug write of the blob
// (§4.5 "Jetson QSPI variant"). The blob itself is extracted from the
// new image's root partition by the Post-Flash Writer, not here; this
// function only performs the raw MTD erase/write cycle.
func (e *Engine) WriteJetsonQSPI(ctx context.Context, mtdDevice, blobPath string, eraseSize int64) Result {
	eraseCmd := exec.CommandContext(ctx, "mtd_debug", "erase", mtdDevice, "0", fmt.Sprintf("%d", eraseSize))
	if out, err := eraseCmd.CombinedOutput(); err != nil {
		return Result{Outcome: OutcomeRecoverable, Err: fmt.Errorf("mtd_debug erase: %w (%s)", err, string(out))}
	}

	writeCmd := exec.CommandContext(ctx, "mtd_debug", "write", mtdDevice, "0", fmt.Sprintf("%d", eraseSize), blobPath)
	out, err := writeCmd.CombinedOutput()
	if err != nil {
		// Erase has already happened: the device is in an indeterminate
		// state until a write succeeds, so this is non-recoverable.
		return Result{Outcome: OutcomeNonRecoverable, Err: fmt.Errorf("mtd_debug write: %w (%s)", err, string(out))}
	}

	e.log.Info("jetson qspi boot blob written", "device", mtdDevice, "blob", blobPath)
	return Result{Outcome: OutcomeOK}
}
