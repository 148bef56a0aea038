// Package netprofile renders portable WiFi descriptors into NetworkManager
// connection profiles staged into the new root (§4.1 step 8). Parsing
// *existing* on-host WiFi configuration into WifiParams is out of scope
// (stage1deps.WifiConfigSource); this package only renders already-resolved
// parameters, or copies a literal profile file through unchanged.
package netprofile

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Security identifies the WiFi security mode of a profile.
type Security string

const (
	SecurityNone Security = "none"
	SecurityWPAPSK Security = "wpa-psk"
)

// WifiParams is a portable, source-agnostic WiFi descriptor: the common
// subset that NetworkManager, wpa_supplicant, and connman configs all
// reduce to.
type WifiParams struct {
	SSID     string
	PSK      string // pre-shared key; empty for open networks
	Hidden   bool
	Security Security
}

// Source is one entry to stage as a connection profile: either a literal
// file to copy verbatim, or synthesized WifiParams to render.
type Source struct {
	// LiteralPath, if set, is copied byte-for-byte as the connection file.
	LiteralPath string
	// Params, used when LiteralPath is empty, is rendered to NetworkManager's
	// .ini-style format.
	Params *WifiParams
}

// ConnectionName returns the sequentially-numbered profile name used by the
// Staging Builder (§4.1 step 8): "balena-01", "balena-02", ...
func ConnectionName(index int) string {
	return fmt.Sprintf("balena-%02d", index)
}

// RenderNetworkManagerProfile produces the canonical NetworkManager
// .nmconnection document for the given WiFi parameters. The UUID is
// deterministic given the SSID so repeated staging runs (e.g. a retry before
// step 10 completes) produce byte-identical output.
func RenderNetworkManagerProfile(p WifiParams) string {
	id := p.SSID
	connUUID := uuid.NewSHA1(uuid.NameSpaceDNS, []byte("balena-takeover:"+p.SSID)).String()

	var b strings.Builder
	fmt.Fprintf(&b, "[connection]\n")
	fmt.Fprintf(&b, "id=%s\n", id)
	fmt.Fprintf(&b, "uuid=%s\n", connUUID)
	fmt.Fprintf(&b, "type=wifi\n\n")

	fmt.Fprintf(&b, "[wifi]\n")
	fmt.Fprintf(&b, "mode=infrastructure\n")
	fmt.Fprintf(&b, "ssid=%s\n", p.SSID)
	if p.Hidden {
		fmt.Fprintf(&b, "hidden=true\n")
	}
	b.WriteString("\n")

	if p.Security == SecurityWPAPSK && p.PSK != "" {
		fmt.Fprintf(&b, "[wifi-security]\n")
		fmt.Fprintf(&b, "key-mgmt=wpa-psk\n")
		fmt.Fprintf(&b, "psk=%s\n\n", p.PSK)
	}

	fmt.Fprintf(&b, "[ipv4]\n")
	fmt.Fprintf(&b, "method=auto\n\n")

	fmt.Fprintf(&b, "[ipv6]\n")
	fmt.Fprintf(&b, "method=auto\n")

	return b.String()
}
