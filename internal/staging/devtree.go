package staging

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/balena-os/takeover/internal/mountutil"
	"golang.org/x/sys/unix"
)

// copyDevTree recursively copies src (the host's /dev) into dst, the
// fallback path when devtmpfs itself cannot be mounted (§4.1 step 5):
// symlinks copied as links, directories recreated, block/char devices
// recreated via mknod, FIFOs recreated, sockets skipped, regular files
// copied, with hard links within src preserved via an inode-tracking table.
func copyDevTree(src, dst string) error {
	inodeTable := map[uint64]string{}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if rel == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		stat, ok := info.Sys().(*unix.Stat_t)
		if !ok {
			return nil
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(linkTarget, target)

		case info.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())

		case info.Mode()&os.ModeSocket != 0:
			return nil // sockets are not recreated

		case info.Mode()&(os.ModeDevice|os.ModeCharDevice) != 0:
			if existing, ok := inodeTable[stat.Ino]; ok && stat.Nlink > 1 {
				return os.Link(existing, target)
			}
			dev := mountutil.Mkdev(unix.Major(uint64(stat.Rdev)), unix.Minor(uint64(stat.Rdev)))
			mode := uint32(info.Mode().Perm())
			if info.Mode()&os.ModeCharDevice != 0 {
				mode |= unix.S_IFCHR
			} else {
				mode |= unix.S_IFBLK
			}
			if err := mountutil.Mknod(target, mode, dev); err != nil {
				return err
			}
			inodeTable[stat.Ino] = target
			return nil

		case info.Mode()&os.ModeNamedPipe != 0:
			return unix.Mkfifo(target, uint32(info.Mode().Perm()))

		default:
			if existing, ok := inodeTable[stat.Ino]; ok && stat.Nlink > 1 {
				return os.Link(existing, target)
			}
			if err := copyRegularFile(path, target, info.Mode()); err != nil {
				return err
			}
			inodeTable[stat.Ino] = target
			return nil
		}
	})
}

func copyRegularFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}
	return nil
}
