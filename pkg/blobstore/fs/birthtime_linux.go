//go:build linux

package fs

import (
	iofs "io/fs"
	"time"

	"golang.org/x/sys/unix"
)

// createdAt returns the file's birth time when the filesystem records one
// (statx STATX_BTIME). Otherwise it falls back to the later of mtime and
// ctime: a later timestamp can only postpone deletion.
func createdAt(path string, info iofs.FileInfo) time.Time {
	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW,
		unix.STATX_BTIME|unix.STATX_MTIME|unix.STATX_CTIME, &stx)
	if err != nil {
		return info.ModTime()
	}
	if stx.Mask&unix.STATX_BTIME != 0 && stx.Btime.Sec != 0 {
		return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec))
	}

	mtime := time.Unix(stx.Mtime.Sec, int64(stx.Mtime.Nsec))
	ctime := time.Unix(stx.Ctime.Sec, int64(stx.Ctime.Nsec))
	if ctime.After(mtime) {
		return ctime
	}
	return mtime
}
