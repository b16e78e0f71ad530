package abootimg

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/c35s/aboot/blk"
	"github.com/c35s/aboot/mem"
)

var (
	ErrInvalidArgument = errors.New("abootimg: invalid argument")
	ErrInvalidImage    = errors.New("abootimg: invalid Android image header")
	ErrImageTooLarge   = errors.New("abootimg: image too large")
)

// Loader loads boot images from partitions.
type Loader struct {

	// Logger receives diagnostics. If Logger is nil, slog.Default() is used.
	Logger *slog.Logger
}

// Load is Loader.Load with the default logger.
func Load(dev *blk.Device, part blk.Partition, w *mem.Window, addr, maxSize uint64) (int, error) {
	return new(Loader).Load(dev, part, w, addr, maxSize)
}

// Load copies the boot image at the start of part into w at physical
// address addr, reading at most maxSize bytes. It returns the number of
// sectors read.
//
// The first sector is read and checked for the magic before any size in it
// is trusted. Then the whole image, first sector included, is read in one go.
// Nothing is read past the first sector if the image doesn't fit in maxSize.
func (l *Loader) Load(dev *blk.Device, part blk.Partition, w *mem.Window, addr, maxSize uint64) (int, error) {
	if dev == nil || dev.Storage == nil {
		return 0, blk.ErrDeviceUnavailable
	}

	ss := uint64(dev.Sector())
	if maxSize < ss {
		return 0, fmt.Errorf("%w: max size %d is less than a sector (%d)", ErrInvalidArgument, maxSize, ss)
	}

	buf, err := w.Slice(addr, maxSize)
	if err != nil {
		return 0, fmt.Errorf("%w: load window: %w", ErrInvalidArgument, err)
	}

	if _, err := dev.ReadSectors(part.Start, 1, buf); err != nil {
		return 0, fmt.Errorf("abootimg: read %s header: %w", part.Name, err)
	}

	if !HasMagic(buf) {
		return 0, fmt.Errorf("%w: %s: bad magic", ErrInvalidImage, part.Name)
	}

	img := &Image{Base: addr}
	if err := img.Header.UnmarshalBinary(padHeader(buf[:ss])); err != nil {
		return 0, err
	}

	if err := img.Validate(); err != nil {
		return 0, fmt.Errorf("%s: %w", part.Name, err)
	}

	size := img.EndAddress() - addr
	count := (size + ss - 1) / ss

	if count*ss > maxSize {
		l.logger().Debug("android image too big", "partition", part.Name, "size", size, "max", maxSize)
		return 0, fmt.Errorf("%w: %d bytes, max %d", ErrImageTooLarge, size, maxSize)
	}

	if !part.Contains(0, count) {
		return 0, fmt.Errorf("%w: %d sectors don't fit in %s", ErrInvalidImage, count, part)
	}

	l.logger().Debug("loading android image", "partition", part.Name, "blocks", count, "addr", fmt.Sprintf("%#x", addr))

	n, err := dev.ReadSectors(part.Start, int(count), buf)
	if err != nil {
		return n, fmt.Errorf("abootimg: read %s: %w", part.Name, err)
	}

	return n, nil
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}

	return slog.Default()
}

// Open parses the image already loaded at physical address addr. The whole
// image must lie inside w.
func Open(w *mem.Window, addr uint64) (*Image, error) {
	if !w.Contains(addr, MagicSize) {
		return nil, fmt.Errorf("%w: %#x isn't in the window", ErrInvalidArgument, addr)
	}

	n := min(w.End()-addr, HeaderSize)
	raw, _ := w.Slice(addr, n)

	img := &Image{Base: addr}
	if err := img.Header.UnmarshalBinary(padHeader(raw)); err != nil {
		return nil, err
	}

	if err := img.Validate(); err != nil {
		return nil, err
	}

	if end := img.EndAddress(); end > w.End() {
		return nil, fmt.Errorf("%w: image ends at %#x past the window end %#x", ErrImageTooLarge, end, w.End())
	}

	return img, nil
}

// padHeader copies what's available of a header into a zeroed header-sized buffer.
func padHeader(b []byte) []byte {
	hdr := make([]byte, HeaderSize)
	copy(hdr, b)

	return hdr
}
