// Package devicetype selects the Post-Flash Writer's boot-artifact policy
// from an already-resolved device family tag. Detecting the family from
// /proc/device-tree/model or x86 secure-boot state is out of scope (§1);
// this package only consumes the resolved config.DeviceType (SPEC_FULL §12.1,
// grounded in the original's src/stage1/device_impl/*.rs family-specific
// boot logic).
package devicetype

import "github.com/balena-os/takeover/internal/config"

// BootPolicy describes what the Post-Flash Writer must do for a device
// family beyond the common boot/rootA/data partition overlay.
type BootPolicy struct {
	// EFISetup means an EFI boot entry should be created/replaced (§4.6 step 7).
	EFISetup bool
	// QSPIBootBlob means the platform boot blob is written to QSPI flash
	// via mtd_debug rather than an eMMC boot partition (§4.5 Jetson QSPI
	// variant, §4.6 step 4).
	QSPIBootBlob bool
	// EMMCBootPartition means the blob goes to the hardware's hidden
	// eMMC boot partition, unlocked via force_ro first (§4.6 step 4).
	EMMCBootPartition bool
	// BootBlobRelPath is the path of the platform boot blob inside the
	// mounted rootA partition, under /opt/ per §6's on-disk image format.
	BootBlobRelPath string
}

// PolicyFor returns the boot policy for a device type.
func PolicyFor(dt config.DeviceType) BootPolicy {
	switch dt {
	case config.DeviceIntelNUC:
		return BootPolicy{EFISetup: true}
	case config.DeviceJetsonXavier:
		return BootPolicy{QSPIBootBlob: true, BootBlobRelPath: "opt/jetson-xavier/boot.img"}
	case config.DeviceRaspberryPi:
		return BootPolicy{}
	case config.DeviceBeagleBone:
		return BootPolicy{EMMCBootPartition: true, BootBlobRelPath: "opt/beaglebone/MLO"}
	default:
		return BootPolicy{}
	}
}
