package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ReadDeviceType extracts the "deviceType" slug balena writes into
// config.json and maps it to the DeviceType family PolicyFor consumes.
// Detecting the family from hardware (device-tree model, secure-boot
// state) is out of scope (§1); this only reads a field the Staging
// Builder already copies onto the image, grounded in the original's
// balena_cfg_json.rs get_device_type.
func ReadDeviceType(configPath string) (DeviceType, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return DeviceGeneric, fmt.Errorf("read device type from %s: %w", configPath, err)
	}

	var doc struct {
		DeviceType string `json:"deviceType"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return DeviceGeneric, fmt.Errorf("parse device type from %s: %w", configPath, err)
	}

	return classifyDeviceTypeSlug(doc.DeviceType), nil
}

// classifyDeviceTypeSlug maps a balena device-type slug (e.g.
// "raspberrypi4-64", "jetson-xavier-nx-devkit") to the coarse family
// PolicyFor needs. Unrecognized slugs default to generic, matching any
// x86 board without a device-specific boot-writing step.
func classifyDeviceTypeSlug(slug string) DeviceType {
	switch {
	case strings.HasPrefix(slug, "intel-nuc"):
		return DeviceIntelNUC
	case strings.HasPrefix(slug, "raspberrypi"):
		return DeviceRaspberryPi
	case strings.HasPrefix(slug, "beaglebone"):
		return DeviceBeagleBone
	case strings.HasPrefix(slug, "jetson-xavier"):
		return DeviceJetsonXavier
	default:
		return DeviceGeneric
	}
}
