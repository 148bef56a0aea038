// Package config holds the data that crosses the pivot boundary
// (Stage2Config, §3) and the flags the core consumes (§6). Flag parsing
// itself stays mechanical since CLI/flag parsing is an out-of-scope
// external collaborator (§1) — this package just gives it a typed home.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// LogDevice identifies an external partition the Init Stage should mount
// and redirect logging to, post-pivot (§3, §4.3 step 6).
type LogDevice struct {
	Device string `yaml:"device"`
	FSType string `yaml:"fs_type"`
}

// UmountEntry describes one submount of the flash device that the Process
// Reaper must tear down before flashing (§3 UmountEntry, §4.4). Entries are
// stored leaf-first: if mountpoint A is a prefix of mountpoint B... no —
// the invariant is the reverse: no earlier entry's mountpoint is a prefix of
// a later one, i.e. children precede their parents.
type UmountEntry struct {
	Device     string `yaml:"device"`
	Mountpoint string `yaml:"mountpoint"`
	FSType     string `yaml:"fs_type"`
}

// DeviceType tags the target hardware family so the Post-Flash Writer can
// select the right boot-artifact policy (§3, supplemented in SPEC_FULL §12.1).
type DeviceType string

const (
	DeviceGeneric      DeviceType = "generic"
	DeviceIntelNUC     DeviceType = "intel-nuc"
	DeviceRaspberryPi  DeviceType = "raspberrypi"
	DeviceBeagleBone   DeviceType = "beaglebone"
	DeviceJetsonXavier DeviceType = "jetson-xavier"
)

// Stage2Config is the only information that survives the pivot — the
// original filesystem is gone by the time the Init Stage reads it back.
// Written once by the Staging Builder, read once by the Init Stage and
// again by the Post-Flash Writer, and destroyed with the RAM root at
// reboot (§3).
type Stage2Config struct {
	// FlashDevice is the block device to be overwritten wholesale.
	FlashDevice string `yaml:"flash_device"`

	// LogDevice is an optional partition+fs to mount for post-pivot logging.
	LogDevice *LogDevice `yaml:"log_device,omitempty"`

	// LogLevel is re-applied by the Init Stage on entry (§4.3 step 4).
	LogLevel string `yaml:"log_level"`

	// Pretend, if set, causes the Flash Engine to log its invocation
	// without writing any bytes (§6, §8 "pretend mode").
	Pretend bool `yaml:"pretend"`

	// Umounts lists every submount of FlashDevice, leaf-first, that the
	// Process Reaper must unmount before the Flash Engine runs.
	Umounts []UmountEntry `yaml:"umounts"`

	// ImagePath, ConfigPath, and BackupPath are absolute paths inside the
	// new root (the staging tree, now mounted as /) for the OS image,
	// config.json, and optional backup archive.
	ImagePath  string `yaml:"image_path"`
	ConfigPath string `yaml:"config_path"`
	BackupPath string `yaml:"backup_path,omitempty"`

	// NetworkConnDir is the directory of staged NetworkManager connection
	// profiles, relative to the tree root (paths.NetworkConnectionsRelDir).
	// Empty if no WiFi sources were staged.
	NetworkConnDir string `yaml:"network_conn_dir,omitempty"`

	// SystemProxyDir is the directory of staged proxy configuration
	// files, relative to the tree root (paths.SystemProxyRelDir). Empty
	// if no proxy files were staged.
	SystemProxyDir string `yaml:"system_proxy_dir,omitempty"`

	// TTY is the path of the controlling terminal, preserved so the Init
	// Stage can still report fatal errors somewhere a human might see them.
	TTY string `yaml:"tty,omitempty"`

	// DeviceType selects the Post-Flash Writer's boot-artifact policy.
	DeviceType DeviceType `yaml:"device_type"`

	// NoEFISetup mirrors the --no-efi-setup CLI flag, carried across the
	// pivot since stage2 can no longer consult the original command line
	// (the process was re-exec'd from the staging tree).
	NoEFISetup bool `yaml:"no_efi_setup"`
}

// LevelValue returns the configured log level as an slog.Level, defaulting
// to Info for an unrecognized or empty string.
func (c *Stage2Config) LevelValue() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WriteStage2Config serializes cfg as YAML to path (§4.1 step 10).
func WriteStage2Config(path string, cfg *Stage2Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal stage2 config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write stage2 config %s: %w", path, err)
	}
	return nil
}

// ReadStage2Config deserializes a Stage2Config previously written by
// WriteStage2Config (§4.3 step 3).
func ReadStage2Config(path string) (*Stage2Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stage2 config %s: %w", path, err)
	}
	var cfg Stage2Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal stage2 config: %w", err)
	}
	return &cfg, nil
}
