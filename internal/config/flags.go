package config

import (
	"flag"
)

// Flags holds the command-line surface the core consumes (§6). Everything
// else — help text polish, subcommands, man-page generation — is the
// out-of-scope CLI layer (§1); this is deliberately a flat, mechanical
// flag.FlagSet matching the teacher's cmd/exec flag style.
type Flags struct {
	FlashTo      string
	LogTo        string
	S2LogLevel   string
	Image        string
	Config       string
	BackupCfg    string
	NoOSCheck    bool
	NoDtCheck    bool
	NoEFISetup   bool
	Pretend      bool
	NoAck        bool
	Stage2       bool
}

// Parse parses args (typically os.Args[1:]) into a Flags. It never calls
// os.Exit; callers decide how to surface a parse error.
func Parse(name string, args []string) (*Flags, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	f := &Flags{}

	fs.StringVar(&f.FlashTo, "flash-to", "", "block device to overwrite with the new OS image")
	fs.StringVar(&f.LogTo, "log-to", "", "partition to mount for post-pivot logging (device:fstype)")
	fs.StringVar(&f.S2LogLevel, "s2-log-level", "info", "stage2 log level (debug, info, warn, error)")
	fs.StringVar(&f.Image, "image", "", "path to the gzipped OS image")
	fs.StringVar(&f.Config, "config", "", "path to config.json")
	fs.StringVar(&f.BackupCfg, "backup-cfg", "", "path to an optional backup archive")
	fs.BoolVar(&f.NoOSCheck, "no-os-check", false, "skip verifying the running OS is a supported source")
	fs.BoolVar(&f.NoDtCheck, "no-dt-check", false, "skip device-tree compatibility check")
	fs.BoolVar(&f.NoEFISetup, "no-efi-setup", false, "skip writing an EFI boot entry")
	fs.BoolVar(&f.Pretend, "pretend", false, "stop short of writing the flash device")
	fs.BoolVar(&f.NoAck, "no-ack", false, "don't wait for operator confirmation before pivoting")
	fs.BoolVar(&f.Stage2, "stage2", false, "internal: marks the re-exec'd migration worker")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}
