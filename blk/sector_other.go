//go:build !linux

package blk

// SectorSize returns DefaultSectorSize. Only Linux can ask a block device.
func (fs *FileStorage) SectorSize() (int, error) {
	return DefaultSectorSize, nil
}
