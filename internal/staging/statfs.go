package staging

import "golang.org/x/sys/unix"

// tmpfsAvailableBytes reads the free-space figure statfs reports for a
// tmpfs mount, which is itself bounded by free RAM (tmpfs has no backing
// store), matching the closure headroom check's intent (§4.1 step 2).
func tmpfsAvailableBytes(mountpoint string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(mountpoint, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
