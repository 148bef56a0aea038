// Package stage1deps declares the interfaces for the external collaborators
// spec.md §1 explicitly places out of scope: downloading the image from a
// remote API, selecting a version from a version list, and parsing existing
// WiFi configs (NetworkManager/wpa_supplicant/connman) into portable
// descriptors. The Staging Builder depends on these as interfaces only; no
// implementation lives in this module.
package stage1deps

import (
	"context"

	"github.com/balena-os/takeover/internal/netprofile"
)

// ImageSource resolves the local path of the gzipped OS image to stage,
// fetching it if necessary. A real implementation talks to balenaCloud's
// image API; that HTTP/auth logic is out of scope here.
type ImageSource interface {
	ResolveImage(ctx context.Context) (path string, err error)
}

// VersionSource picks which OS version to install from a remote version
// list. Out of scope: the version-list format and selection policy.
type VersionSource interface {
	ResolveVersion(ctx context.Context) (version string, err error)
}

// WifiConfigSource parses whatever WiFi configuration already exists on the
// host (NetworkManager, wpa_supplicant, connman) into portable descriptors.
// Out of scope: the three source formats' parsers. The Staging Builder only
// consumes the resulting []netprofile.WifiParams (§4.1 step 8, SPEC_FULL §12.3).
type WifiConfigSource interface {
	ResolveWifiConfigs(ctx context.Context) ([]netprofile.WifiParams, error)
}

// BackupSource resolves the path of an already-built backup archive
// (tar+gzip of user-selected volumes). Out of scope: the archiver itself.
type BackupSource interface {
	ResolveBackup(ctx context.Context) (path string, err error)
}
