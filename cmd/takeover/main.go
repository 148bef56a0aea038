// Command takeover is the single binary that implements every stage of
// the in-place takeover migration (§6 CLI surface): stage 1 (Staging
// Builder + Pivot Launcher) when invoked normally, the Init Stage when
// its own pid is 1, and stage 2 (the migration worker: Process Reaper,
// Flash Engine, Post-Flash Writer) when re-exec'd with --stage2.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/balena-os/takeover/internal/config"
	"github.com/balena-os/takeover/internal/flash"
	"github.com/balena-os/takeover/internal/initstage"
	"github.com/balena-os/takeover/internal/logger"
	"github.com/balena-os/takeover/internal/paths"
	"github.com/balena-os/takeover/internal/pivot"
	"github.com/balena-os/takeover/internal/postflash"
	"github.com/balena-os/takeover/internal/reaper"
	"github.com/balena-os/takeover/internal/staging"
	"github.com/balena-os/takeover/internal/xerr"
)

const progName = "takeover"

func main() {
	sink := logger.NewRedirectable(os.Stderr)
	logCfg := logger.NewConfig()

	var err error
	switch {
	case pivot.IsInitProcess():
		err = runInitStage(sink, logCfg)
	default:
		flags, parseErr := config.Parse(progName, os.Args[1:])
		if parseErr != nil {
			fmt.Fprintln(os.Stderr, parseErr)
			os.Exit(2)
		}
		if flags.Stage2 {
			err = runStage2(flags, sink, logCfg)
		} else {
			err = runStage1(flags, sink, logCfg)
		}
	}

	if err != nil {
		if xerr.Is(err, xerr.KindDisplayed) {
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runStage1 builds the staging tmpfs and hands pid 1 over to it
// (§4.1, §4.2).
func runStage1(flags *config.Flags, sink *logger.Redirectable, logCfg logger.Config) error {
	log := logger.NewSubsystemLogger(logger.SubsystemStage1, logCfg, sink)

	selfExe, err := os.Readlink("/proc/self/exe")
	if err != nil {
		return xerr.Wrap(xerr.KindUpstream, "runStage1", "read /proc/self/exe", err)
	}

	root := paths.StagingRoot
	if _, err := os.Stat("/mnt/data"); err == nil {
		root = paths.StagingRootBalenaOS
	}

	logDevice, err := parseLogDevice(flags.LogTo)
	if err != nil {
		return xerr.Wrap(xerr.KindInvParam, "runStage1", "parse --log-to", err)
	}

	// Device-type detection (device-tree model, secure-boot state) is out
	// of scope; the slug balena already wrote into config.json is enough
	// to pick a boot-artifact policy.
	deviceType, err := config.ReadDeviceType(flags.Config)
	if err != nil {
		log.Warn("could not determine device type from config.json, defaulting to generic", "error", err)
	}

	hasEFIVars, hasDevtmpfs := hostCapabilities()

	tty, _ := os.Readlink("/proc/self/fd/0")

	req := staging.Request{
		Root:          root,
		ProgName:      progName,
		SelfExe:       selfExe,
		ExtraBinaries: []string{"/bin/dd", "/usr/bin/dd"},
		FlashDevice:   flags.FlashTo,
		ImagePath:     flags.Image,
		ConfigPath:    flags.Config,
		BackupPath:    flags.BackupCfg,
		LogDevice:     logDevice,
		LogLevel:      flags.S2LogLevel,
		Pretend:       flags.Pretend,
		DeviceType:    deviceType,
		TTY:           tty,
		NoEFISetup:    flags.NoEFISetup,
		// WifiSources is left empty: parsing the host's existing
		// NetworkManager/wpa_supplicant/connman configs is an external
		// collaborator (stage1deps.WifiConfigSource) this module only
		// declares an interface for.
		//
		// SystemProxyFiles is left empty here for the same reason
		// WifiSources is: no CLI flag surfaces proxy config file paths
		// (§6), so there's nothing for this call site to pass yet. The
		// staging and post-flash overlay steps are fully wired and
		// degrade to a no-op when the list is empty, exactly like
		// system-connections/.
		HasEFIVars:  hasEFIVars,
		HasDevtmpfs: hasDevtmpfs,
	}

	builder := staging.New(logger.NewSubsystemLogger(logger.SubsystemStaging, logCfg, sink))
	if _, err := builder.Build(context.Background(), req); err != nil {
		return xerr.Wrap(xerr.KindUpstream, "runStage1", "build staging tree", err)
	}

	if !flags.NoAck {
		fmt.Fprintln(os.Stderr, "about to pivot into the staged migration environment; ctrl-c now to abort")
		time.Sleep(3 * time.Second)
	}

	log.Info("staging complete, invoking pivot launcher")
	if err := pivot.Launch(pivotBinaryPath(root)); err != nil {
		return xerr.Wrap(xerr.KindUpstream, "runStage1", "pivot launcher", err)
	}
	return nil
}

func pivotBinaryPath(root string) string {
	return paths.New(root).Bin(progName)
}

// runInitStage runs as pid 1 after the bind-mount handoff (§4.3).
func runInitStage(sink *logger.Redirectable, logCfg logger.Config) error {
	log := logger.NewSubsystemLogger(logger.SubsystemInit, logCfg, sink)

	root := paths.StagingRoot
	if _, err := os.Stat(paths.StagingRootBalenaOS); err == nil {
		root = paths.StagingRootBalenaOS
	}

	if err := initstage.Run(root, progName, sink, log); err != nil {
		// §4.3 step 1: if this process isn't really pid 1, or any step
		// before pivot_root fails, reboot rather than leaving a half
		// migrated host running.
		log.Error("init stage failed, rebooting", "error", err)
		rebootHost(log)
		return err
	}
	return nil
}

// runStage2 runs as the re-exec'd migration worker: reaper, flash
// engine, post-flash writer (§4.4, §4.5, §4.6).
func runStage2(flags *config.Flags, sink *logger.Redirectable, logCfg logger.Config) error {
	log := logger.NewSubsystemLogger(logger.SubsystemReaper, logCfg, sink)

	tree := paths.New(filepath.Join("/", paths.OldRootMount))
	cfg, err := config.ReadStage2Config("stage2-config.yml")
	if err != nil {
		return xerr.Wrap(xerr.KindUpstream, "runStage2", "read stage2 config", err)
	}

	r := reaper.New(log)
	// pid 1 (init, blocked in its wait() loop) and this worker are the
	// two entities §4.4's Contract protects by identity; they are never
	// the same pid once the worker has re-exec'd off of init.
	if err := r.KillUnder(tree.Root(), 1, int32(os.Getpid())); err != nil {
		return xerr.Wrap(xerr.KindUpstream, "runStage2", "reap processes", err)
	}
	if err := r.UnmountDeviceSubmounts("etc/mtab", cfg.FlashDevice); err != nil {
		return xerr.Wrap(xerr.KindUpstream, "runStage2", "unmount flash device submounts", err)
	}

	if !cfg.Pretend {
		flashLog := logger.NewSubsystemLogger(logger.SubsystemFlash, logCfg, sink)
		engine := flash.New(flashLog)
		result := engine.WriteExternalDD(context.Background(), cfg.ImagePath, cfg.FlashDevice)
		if result.Err != nil {
			return xerr.Wrap(xerr.KindCmdIo, "runStage2", "flash engine", result.Err)
		}

		networkConnDir := ""
		if cfg.NetworkConnDir != "" {
			networkConnDir = filepath.Join("/", cfg.NetworkConnDir)
		}

		systemProxyDir := ""
		if cfg.SystemProxyDir != "" {
			systemProxyDir = filepath.Join("/", cfg.SystemProxyDir)
		}

		pfLog := logger.NewSubsystemLogger(logger.SubsystemPostFlash, logCfg, sink)
		writer := postflash.New(pfLog)
		pfReq := postflash.Request{
			FlashDevice:    cfg.FlashDevice,
			ConfigPath:     cfg.ConfigPath,
			NetworkConnDir: networkConnDir,
			SystemProxyDir: systemProxyDir,
			BackupPath:     cfg.BackupPath,
			DeviceType:     cfg.DeviceType,
			NoEFISetup:     cfg.NoEFISetup,
		}
		if err := writer.Run(pfReq); err != nil {
			return xerr.Wrap(xerr.KindUpstream, "runStage2", "post-flash writer", err)
		}
	} else {
		log.Info("pretend mode: skipping flash and post-flash writer")
	}

	log.Info("migration complete, rebooting")
	rebootHost(log)
	return nil
}

// rebootHost implements §5's shutdown ordering: sync, sleep 3s to let
// the logger flush, then reboot().
func rebootHost(log *slog.Logger) {
	syncFilesystems()
	time.Sleep(3 * time.Second)
	if err := reboot(); err != nil {
		log.Error("reboot syscall failed", "error", err)
	}
}
