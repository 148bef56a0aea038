// Package closure computes the Executable Closure (§3, §4.1 step 2): the
// new init binary plus every shared library and helper tool it needs to
// run from the staging tmpfs after the old root disappears underneath it.
// Transitive shared-library resolution is done with
// github.com/u-root/u-root/pkg/ldd, the same ELF-dependency walker u-root's
// own ldd command is built on (grounded in the teacher's existing
// u-root/u-root dependency, here exercising a second subpackage of it).
package closure

import (
	"fmt"
	"os"

	"github.com/u-root/u-root/pkg/ldd"
)

// Closure is the flattened set of absolute paths that must survive the
// switch to the staging tmpfs: the init binary itself, every shared
// library in its transitive dependency graph, and a handful of external
// tools the later stages shell out to (dd, and optionally efibootmgr or
// mtd_debug depending on device type).
type Closure struct {
	Binaries  []string // ELF executables resolved directly, in input order
	Libraries []string // transitively required .so files, deduplicated
}

// Files returns the full flattened file list: binaries followed by
// libraries, each an absolute path.
func (c Closure) Files() []string {
	out := make([]string, 0, len(c.Binaries)+len(c.Libraries))
	out = append(out, c.Binaries...)
	out = append(out, c.Libraries...)
	return out
}

// TotalBytes sums the on-disk size of every file in the closure, used by
// the 10 MiB headroom check (§4.1 step 2, §8 boundary scenario 5).
func (c Closure) TotalBytes() (int64, error) {
	var total int64
	for _, f := range c.Files() {
		info, err := os.Stat(f)
		if err != nil {
			return 0, fmt.Errorf("stat %s: %w", f, err)
		}
		total += info.Size()
	}
	return total, nil
}

// Build resolves the transitive shared-library closure of the given
// executables via ldd.Ldd, deduplicating libraries already present in the
// binary list itself (a statically-linked helper needs no entries at
// all, and Ldd returns an empty dependency list for it).
func Build(executables []string) (Closure, error) {
	for _, exe := range executables {
		if _, err := os.Stat(exe); err != nil {
			return Closure{}, fmt.Errorf("executable closure member %s: %w", exe, err)
		}
	}

	deps, err := ldd.Ldd(executables)
	if err != nil {
		return Closure{}, fmt.Errorf("resolve shared library closure: %w", err)
	}

	seen := make(map[string]bool, len(executables))
	for _, e := range executables {
		seen[e] = true
	}

	libs := make([]string, 0, len(deps))
	for _, d := range deps {
		if d == nil || seen[d.FullName] {
			continue
		}
		seen[d.FullName] = true
		libs = append(libs, d.FullName)
	}

	return Closure{Binaries: executables, Libraries: libs}, nil
}

// RequiredHeadroomBytes is the fixed safety margin the staging tmpfs must
// keep free beyond the closure's own size (§4.1 step 2, §8 scenario 5):
// enough slack for the kernel's own runtime allocations once the old root
// is gone and nothing can be paged back in from it.
const RequiredHeadroomBytes = 10 * 1024 * 1024

// CheckHeadroom verifies that availableBytes (the staging tmpfs's free
// capacity, itself bounded by free RAM since tmpfs is backed by it) can
// hold the closure plus RequiredHeadroomBytes of slack.
func CheckHeadroom(c Closure, availableBytes int64) error {
	size, err := c.TotalBytes()
	if err != nil {
		return err
	}
	needed := size + RequiredHeadroomBytes
	if availableBytes < needed {
		return fmt.Errorf("insufficient tmpfs headroom: closure needs %d bytes (%d data + %d headroom), only %d available",
			needed, size, RequiredHeadroomBytes, availableBytes)
	}
	return nil
}
