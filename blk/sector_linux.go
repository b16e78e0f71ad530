//go:build linux

package blk

import (
	"os"

	"golang.org/x/sys/unix"
)

// SectorSize returns the logical sector size of the backing file. Block
// devices are asked with the BLKSSZGET ioctl; regular files use DefaultSectorSize.
func (fs *FileStorage) SectorSize() (int, error) {
	info, err := fs.File.Stat()
	if err != nil {
		return 0, err
	}

	if info.Mode()&os.ModeDevice == 0 {
		return DefaultSectorSize, nil
	}

	return unix.IoctlGetInt(int(fs.File.Fd()), unix.BLKSSZGET)
}
