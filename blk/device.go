// Package blk provides sector-level access to the storage holding boot
// partitions, and partition lookup by name.
package blk

import (
	"errors"
	"fmt"
	"io"
)

// Device is a sector-addressed view of a Storage.
type Device struct {

	// Storage is the backing storage. Storage may also implement
	// io.WriterAt to enable writes.
	Storage Storage

	// SectorSize is the size of a sector in bytes. It must be a power of two.
	// If SectorSize is 0, DefaultSectorSize is used.
	SectorSize int

	// ReadOnly forbids writes even if Storage implements io.WriterAt.
	ReadOnly bool
}

// DefaultSectorSize is the sector size of a Device that doesn't set one.
const DefaultSectorSize = 512

// MaxSectorSize bounds Device.SectorSize.
const MaxSectorSize = 64 << 10

var (
	ErrDeviceUnavailable = errors.New("blk: no boot device")
	ErrPartitionNotFound = errors.New("blk: partition not found")
	ErrIO                = errors.New("blk: I/O error")
	ErrReadOnly          = errors.New("blk: device is read-only")
	ErrSectorSize        = errors.New("blk: invalid sector size")
	ErrShortBuffer       = errors.New("blk: buffer is too small")
)

// Sector returns the device's sector size in bytes.
func (d *Device) Sector() int {
	if d == nil || d.SectorSize == 0 {
		return DefaultSectorSize
	}

	return d.SectorSize
}

// Sectors returns the capacity of the device in whole sectors.
func (d *Device) Sectors() (uint64, error) {
	if err := d.check(); err != nil {
		return 0, err
	}

	sz, err := d.Storage.Size()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrIO, err)
	}

	return uint64(sz) / uint64(d.Sector()), nil
}

// ReadSectors reads count sectors starting at sector start into buf. It returns
// the number of whole sectors read. If that's less than count, the error wraps ErrIO.
func (d *Device) ReadSectors(start uint64, count int, buf []byte) (int, error) {
	if err := d.check(); err != nil {
		return 0, err
	}

	p, off, err := d.span(start, count, buf)
	if err != nil {
		return 0, err
	}

	n, err := d.Storage.ReadAt(p, off)
	if got := n / d.Sector(); got < count {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}

		return got, fmt.Errorf("%w: read %d of %d sectors at %d: %w", ErrIO, got, count, start, err)
	}

	return count, nil
}

// WriteSectors writes count sectors from buf starting at sector start. It returns
// the number of whole sectors written. If that's less than count, the error wraps ErrIO.
func (d *Device) WriteSectors(start uint64, count int, buf []byte) (int, error) {
	if err := d.check(); err != nil {
		return 0, err
	}

	w, ok := d.Storage.(io.WriterAt)
	if d.ReadOnly || !ok {
		return 0, ErrReadOnly
	}

	p, off, err := d.span(start, count, buf)
	if err != nil {
		return 0, err
	}

	n, err := w.WriteAt(p, off)
	if got := n / d.Sector(); got < count {
		if err == nil {
			err = io.ErrShortWrite
		}

		return got, fmt.Errorf("%w: wrote %d of %d sectors at %d: %w", ErrIO, got, count, start, err)
	}

	return count, nil
}

// Writable reports whether WriteSectors can succeed.
func (d *Device) Writable() bool {
	if d == nil || d.Storage == nil || d.ReadOnly {
		return false
	}

	_, ok := d.Storage.(io.WriterAt)
	return ok
}

func (d *Device) check() error {
	if d == nil || d.Storage == nil {
		return ErrDeviceUnavailable
	}

	if ss := d.Sector(); ss <= 0 || ss > MaxSectorSize || ss&(ss-1) != 0 {
		return fmt.Errorf("%w: %d", ErrSectorSize, ss)
	}

	return nil
}

// span returns the part of buf covering count sectors and the byte offset of start.
func (d *Device) span(start uint64, count int, buf []byte) ([]byte, int64, error) {
	ss := d.Sector()

	if count < 0 {
		return nil, 0, fmt.Errorf("%w: negative sector count %d", ErrIO, count)
	}

	if need := count * ss; len(buf) < need {
		return nil, 0, fmt.Errorf("%w: %d < %d", ErrShortBuffer, len(buf), need)
	}

	off := start * uint64(ss)
	if off/uint64(ss) != start || off > 1<<62 {
		return nil, 0, fmt.Errorf("%w: sector %d is out of range", ErrIO, start)
	}

	return buf[:count*ss], int64(off), nil
}
