// file: internal/scanner/inode_unix.go
// version: 2.0.0
// guid: a1b2c3d4-e5f6-7890-abcd-ef1234567890

//go:build !windows

package scanner

import (
	"os"
	"syscall"
)

// fileIdentity returns the device and inode of info so hardlinked tracks are
// only counted once. Returns false if the syscall type is unavailable.
func fileIdentity(info os.FileInfo) (fileID, bool) {
	sys, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fileID{}, false
	}
	return fileID{dev: uint64(sys.Dev), ino: uint64(sys.Ino)}, true
}
