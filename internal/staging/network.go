package staging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/balena-os/takeover/internal/netprofile"
	"github.com/balena-os/takeover/internal/paths"
)

// writeNetworkProfiles renders or copies each WiFi source into the
// staging tree's system-connections directory, sequentially numbered
// (§4.1 step 8).
func writeNetworkProfiles(tree *paths.Tree, sources []netprofile.Source) error {
	if len(sources) == 0 {
		return nil
	}
	dir := tree.NetworkConnectionsDir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	for i, src := range sources {
		name := netprofile.ConnectionName(i + 1)
		dst := filepath.Join(dir, name+".nmconnection")

		if src.LiteralPath != "" {
			if err := copyRegularFile(src.LiteralPath, dst, 0600); err != nil {
				return fmt.Errorf("copy literal network profile %s: %w", src.LiteralPath, err)
			}
			continue
		}
		if src.Params == nil {
			continue
		}
		rendered := netprofile.RenderNetworkManagerProfile(*src.Params)
		if err := os.WriteFile(dst, []byte(rendered), 0600); err != nil {
			return fmt.Errorf("write network profile %s: %w", dst, err)
		}
	}
	return nil
}

// writeSystemProxyFiles copies each literal proxy config file into the
// staging tree's system-proxy directory (§4.6 step 3's counterpart to
// system-connections/). Degrades to a no-op when no files are supplied,
// the same way writeNetworkProfiles does for an empty WiFi source list.
func writeSystemProxyFiles(tree *paths.Tree, files []string) error {
	if len(files) == 0 {
		return nil
	}
	dir := tree.SystemProxyDir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	for _, src := range files {
		dst := filepath.Join(dir, filepath.Base(src))
		if err := copyRegularFile(src, dst, 0600); err != nil {
			return fmt.Errorf("copy system-proxy file %s: %w", src, err)
		}
	}
	return nil
}
