//go:build !linux

package fs

import (
	iofs "io/fs"
	"time"
)

func createdAt(_ string, info iofs.FileInfo) time.Time {
	return info.ModTime()
}
