package main

import (
	"fmt"
	"strings"

	"github.com/balena-os/takeover/internal/config"
)

// parseLogDevice parses the --log-to flag's "device:fstype" form into a
// config.LogDevice. An empty string means no log device was requested.
func parseLogDevice(flag string) (*config.LogDevice, error) {
	if flag == "" {
		return nil, nil
	}
	device, fsType, ok := strings.Cut(flag, ":")
	if !ok || device == "" || fsType == "" {
		return nil, fmt.Errorf("invalid --log-to %q, expected device:fstype", flag)
	}
	return &config.LogDevice{Device: device, FSType: fsType}, nil
}
