package closure

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyInto copies every file in the closure into destRoot, preserving
// each file's absolute path relative to destRoot (so /usr/bin/dd becomes
// destRoot/usr/bin/dd). When the host's /lib is itself a symlink (the
// merged-/usr layout), a leading "/lib" prefix is rewritten to
// "/usr/lib" so each library lands at its real path rather than under
// the symlinked one (§4.1 step 5); on other hosts paths are kept as is.
func CopyInto(destRoot string, c Closure) error {
	libInfo, err := os.Lstat("/lib")
	mergedLib := err == nil && libInfo.Mode()&os.ModeSymlink != 0
	for _, src := range c.Files() {
		rel := src
		if mergedLib {
			rel = rewriteLibPath(src)
		}
		dst := filepath.Join(destRoot, rel)
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("copy %s into closure: %w", src, err)
		}
	}
	return nil
}

func rewriteLibPath(path string) string {
	const oldPrefix = "/lib"
	const newPrefix = "/usr/lib"
	if path == oldPrefix || (len(path) > len(oldPrefix) && path[:len(oldPrefix)] == oldPrefix && path[len(oldPrefix)] == '/') {
		return newPrefix + path[len(oldPrefix):]
	}
	return path
}

func copyFile(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return err
		}
		_ = os.Remove(dst)
		return os.Symlink(target, dst)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
