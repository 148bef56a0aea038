// Package paths centralizes the filesystem paths the takeover pivot reserves
// on the host, matching §6 External Interfaces ("Paths reserved on the
// host").
package paths

import "path/filepath"

// StagingRoot is the mountpoint of the RAM-backed staging tree built while
// the source OS is still live. The default location; BalenaOS uses
// StagingRootBalenaOS instead since its root is already read-only and
// /mnt/data is the writable overlay.
const StagingRoot = "/balena-takeover"

// StagingRootBalenaOS is the staging mountpoint used when running on
// balenaOS itself (§4.3 step 2).
const StagingRootBalenaOS = "/mnt/data/balena-takeover"

// Stage2ConfigName is the filename of the serialized Stage2Config (§3),
// written at the root of the staging tree.
const Stage2ConfigName = "stage2-config.yml"

// OldRootMount is the pivot_root "put_old" directory, relative to the new
// root, that the original filesystem lands on after pivot_root (§4.3 step 8).
const OldRootMount = "mnt/old_root"

// LogMount is where an external log device gets mounted inside the staging
// tree, if one is configured (§4.3 step 6).
const LogMount = "mnt/log"

// InitLogName is the log file fds 1/2 are redirected to under the tree
// root during §4.3 step 5, before any external log device (step 6) is
// considered.
const InitLogName = "init-stage.log"

// BootMount and PartMount are transient mountpoints the Post-Flash Writer
// uses for the freshly-flashed partitions (§6).
const (
	BootMount = "/mnt/balena-boot"
	PartMount = "/mnt/balena-part"
)

// Tree builds absolute paths rooted at a staging directory (StagingRoot or
// StagingRootBalenaOS, chosen at Staging Builder entry per §4.3 step 2).
type Tree struct {
	root string
}

// New returns a Tree rooted at root.
func New(root string) *Tree {
	return &Tree{root: root}
}

// Root returns the tree's root directory.
func (t *Tree) Root() string { return t.root }

// Join joins elem onto the tree root.
func (t *Tree) Join(elem ...string) string {
	return filepath.Join(append([]string{t.root}, elem...)...)
}

// Bin returns the path of a copied executable by its base name, under bin/.
func (t *Tree) Bin(name string) string { return t.Join("bin", name) }

// Etc, Proc, Tmp, Sys, Dev, DevPts, and MntOldRoot are the directory
// skeleton created during staging (§4.1 step 4).
func (t *Tree) Etc() string       { return t.Join("etc") }
func (t *Tree) Proc() string      { return t.Join("proc") }
func (t *Tree) Tmp() string       { return t.Join("tmp") }
func (t *Tree) Sys() string       { return t.Join("sys") }
func (t *Tree) Dev() string       { return t.Join("dev") }
func (t *Tree) DevPts() string    { return t.Join("dev", "pts") }
func (t *Tree) MntOldRoot() string { return t.Join(OldRootMount) }
func (t *Tree) MntLog() string    { return t.Join(LogMount) }
func (t *Tree) Mtab() string      { return t.Join("etc", "mtab") }

// Stage2Config returns the path of the serialized Stage2Config.
func (t *Tree) Stage2Config() string { return t.Join(Stage2ConfigName) }

// ImagePath, ConfigPath, and BackupPath return the canonical in-tree
// locations for the OS image, config.json, and optional backup archive
// (§3 Stage2Config fields).
func (t *Tree) ImagePath() string  { return t.Join("image.img.gz") }
func (t *Tree) ConfigPath() string { return t.Join("config.json") }
func (t *Tree) BackupPath() string { return t.Join("backup.tar.gz") }

// NetworkConnectionsRelDir is the directory NetworkManager connection
// profiles are written to (§4.1 step 8), relative to the tree root. Since
// the staging tree becomes the new "/" after pivot_root, this same
// relative path is where the Post-Flash Writer finds them again in
// stage2.
const NetworkConnectionsRelDir = "system-connections"

// NetworkConnectionsDir returns the absolute in-tree path of the
// NetworkManager connection profile directory.
func (t *Tree) NetworkConnectionsDir() string {
	return t.Join(NetworkConnectionsRelDir)
}

// SystemProxyRelDir is the directory of proxy configuration files staged
// alongside system-connections/ (§4.6 step 3: "Into the boot partition
// copy config.json and the system-connections/ and system-proxy/
// directories"), relative to the tree root.
const SystemProxyRelDir = "system-proxy"

// SystemProxyDir returns the absolute in-tree path of the staged
// system-proxy directory.
func (t *Tree) SystemProxyDir() string {
	return t.Join(SystemProxyRelDir)
}
