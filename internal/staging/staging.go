// Package staging implements the Staging Builder (§4.1): it constructs
// the self-sufficient RAM-backed root filesystem that the Pivot Launcher
// will hand pid 1 over to. It is modeled on the teacher's "Manager"
// pattern — an interface backed by a private struct holding an
// *slog.Logger and a sync.Mutex — the same shape onkernel-hypeman uses
// for its lib/network and lib/instances managers.
package staging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/balena-os/takeover/internal/blockdev"
	"github.com/balena-os/takeover/internal/closure"
	"github.com/balena-os/takeover/internal/config"
	"github.com/balena-os/takeover/internal/mountutil"
	"github.com/balena-os/takeover/internal/netprofile"
	"github.com/balena-os/takeover/internal/paths"
)

// Request is everything the Staging Builder needs from the validated
// CLI/config layer (§4.1 Contract): flash target, image/config/backup
// paths, optional log device, optional network profile sources.
type Request struct {
	Root          string // staging root, paths.StagingRoot or paths.StagingRootBalenaOS
	ProgName      string
	SelfExe       string // /proc/self/exe
	ExtraBinaries []string // dd, efibootmgr, mtd_debug as applicable
	FlashDevice   string // e.g. "/dev/sda", as resolved by the CLI layer
	ImagePath     string
	ConfigPath    string
	BackupPath    string
	LogDevice     *config.LogDevice
	LogLevel      string
	Pretend       bool
	DeviceType    config.DeviceType
	TTY           string
	NoEFISetup    bool
	WifiSources   []netprofile.Source
	// SystemProxyFiles are literal proxy configuration files to stage
	// into system-proxy/ (§4.6 step 3); empty by default, the same way
	// WifiSources degrades to a no-op overlay when unpopulated.
	SystemProxyFiles []string
	HasEFIVars       bool
	HasDevtmpfs      bool
}

// Builder builds the staging tmpfs. Mirrors the teacher's
// Manager-interface-over-private-struct shape (e.g. lib/network.Manager).
type Builder interface {
	Build(ctx context.Context, req Request) (*config.Stage2Config, error)
}

type builder struct {
	mu  sync.Mutex
	log *slog.Logger
}

// New constructs a Builder logging through log.
func New(log *slog.Logger) Builder {
	return &builder{log: log}
}

// Build runs the full §4.1 algorithm. On any failure prior to writing
// stage2-config.yml it unwinds everything it mounted/created, in reverse
// order, leaving the host untouched (§4.1 Failure semantics).
func (b *builder) Build(ctx context.Context, req Request) (*config.Stage2Config, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tree := paths.New(req.Root)

	if err := disableSwap(ctx); err != nil {
		return nil, fmt.Errorf("staging: disable swap: %w", err)
	}

	clos, err := b.computeClosure(req)
	if err != nil {
		return nil, fmt.Errorf("staging: compute executable closure: %w", err)
	}

	if err := requireAbsentOrEmpty(tree.Root()); err != nil {
		return nil, fmt.Errorf("staging: %w", err)
	}
	if err := os.MkdirAll(tree.Root(), 0755); err != nil {
		return nil, fmt.Errorf("staging: create %s: %w", tree.Root(), err)
	}

	unwind := newUnwinder(b.log)
	defer unwind.runIfNotDisarmed()
	unwind.push(func() error { return os.Remove(tree.Root()) })

	if err := mountutil.Mount("tmpfs", tree.Root(), "tmpfs", 0, ""); err != nil {
		return nil, fmt.Errorf("staging: mount tmpfs at %s: %w", tree.Root(), err)
	}
	unwind.push(func() error { return mountutil.Unmount(tree.Root(), true) })

	if err := b.checkHeadroom(tree.Root(), clos); err != nil {
		return nil, fmt.Errorf("staging: %w", err)
	}

	if err := mkSkeleton(tree); err != nil {
		return nil, fmt.Errorf("staging: build skeleton: %w", err)
	}

	pseudo, err := mountPseudoFilesystems(tree, req.HasEFIVars, req.HasDevtmpfs)
	if err != nil {
		return nil, fmt.Errorf("staging: mount pseudo-filesystems: %w", err)
	}
	for _, m := range pseudo {
		mountpoint := m
		unwind.push(func() error { return mountutil.Unmount(mountpoint, true) })
	}

	if err := closure.CopyInto(tree.Root(), clos); err != nil {
		return nil, fmt.Errorf("staging: copy executable closure: %w", err)
	}
	if err := copySelfAs(req.SelfExe, tree.Bin(req.ProgName)); err != nil {
		return nil, fmt.Errorf("staging: copy migration binary: %w", err)
	}

	if err := copyPayload(tree, req); err != nil {
		return nil, fmt.Errorf("staging: copy payload: %w", err)
	}

	if err := writeNetworkProfiles(tree, req.WifiSources); err != nil {
		return nil, fmt.Errorf("staging: write network profiles: %w", err)
	}
	if err := writeSystemProxyFiles(tree, req.SystemProxyFiles); err != nil {
		return nil, fmt.Errorf("staging: write system-proxy files: %w", err)
	}

	devices, err := blockdev.Enumerate()
	if err != nil {
		return nil, fmt.Errorf("staging: enumerate block devices: %w", err)
	}
	disk, ok := blockdev.FindDisk(devices, req.flashDiskName())
	if !ok {
		return nil, fmt.Errorf("staging: flash device %s not found among block devices", req.FlashDevice)
	}
	umounts := blockdev.UmountPlan(devices, disk.Name, nil)
	if err := blockdev.ValidateLeafFirst(umounts); err != nil {
		return nil, fmt.Errorf("staging: %w", err)
	}

	backupPath := ""
	if req.BackupPath != "" {
		backupPath = tree.BackupPath()
	}

	networkConnDir := ""
	if len(req.WifiSources) > 0 {
		networkConnDir = paths.NetworkConnectionsRelDir
	}

	systemProxyDir := ""
	if len(req.SystemProxyFiles) > 0 {
		systemProxyDir = paths.SystemProxyRelDir
	}

	cfg := &config.Stage2Config{
		FlashDevice:    disk.DevPath(),
		LogDevice:      req.LogDevice,
		LogLevel:       req.LogLevel,
		Pretend:        req.Pretend,
		Umounts:        umounts,
		ImagePath:      tree.ImagePath(),
		ConfigPath:     tree.ConfigPath(),
		BackupPath:     backupPath,
		NetworkConnDir: networkConnDir,
		SystemProxyDir: systemProxyDir,
		TTY:            req.TTY,
		DeviceType:     req.DeviceType,
		NoEFISetup:     req.NoEFISetup,
	}
	if err := config.WriteStage2Config(tree.Stage2Config(), cfg); err != nil {
		return nil, fmt.Errorf("staging: write stage2 config: %w", err)
	}

	unwind.disarm()
	return cfg, nil
}

// requireAbsentOrEmpty enforces idempotency: a retry must refuse to
// proceed if the staging root already exists non-empty (§4.1 Failure).
func requireAbsentOrEmpty(root string) error {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", root, err)
	}
	if len(entries) > 0 {
		return fmt.Errorf("%s already exists and is non-empty; refusing to retry staging", root)
	}
	return nil
}
