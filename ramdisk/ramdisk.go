// Package ramdisk inspects the initial ramdisk carried by a boot image.
package ramdisk

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cavaliergopher/cpio"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Compression identifies how a ramdisk is compressed.
type Compression int

const (
	Unknown Compression = iota
	None                // a bare cpio archive
	Gzip
	XZ
	LZ4
	LZ4Legacy
	Zstd
)

var ErrUnknownFormat = errors.New("ramdisk: unknown format")

var magics = []struct {
	magic []byte
	comp  Compression
}{
	{[]byte{0x1f, 0x8b}, Gzip},
	{[]byte{0xfd, '7', 'z', 'X', 'Z', 0x00}, XZ},
	{[]byte{0x04, 0x22, 0x4d, 0x18}, LZ4},
	{[]byte{0x02, 0x21, 0x4c, 0x18}, LZ4Legacy},
	{[]byte{0x28, 0xb5, 0x2f, 0xfd}, Zstd},
	{[]byte("070701"), None},
	{[]byte("070702"), None},
	{[]byte("070707"), None},
}

func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case XZ:
		return "xz"
	case LZ4:
		return "lz4"
	case LZ4Legacy:
		return "lz4-legacy"
	case Zstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// Detect identifies the compression of b by its magic.
func Detect(b []byte) Compression {
	for _, m := range magics {
		if bytes.HasPrefix(b, m.magic) {
			return m.comp
		}
	}

	return Unknown
}

// Open returns a reader of the cpio archive in b, decompressing it if needed.
func Open(b []byte) (io.ReadCloser, error) {
	r := bytes.NewReader(b)

	switch c := Detect(b); c {
	case None:
		return io.NopCloser(r), nil

	case Gzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("ramdisk: gzip: %w", err)
		}

		return gr, nil

	case XZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("ramdisk: xz: %w", err)
		}

		return io.NopCloser(xr), nil

	case LZ4, LZ4Legacy:
		return io.NopCloser(lz4.NewReader(r)), nil

	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("ramdisk: zstd: %w", err)
		}

		return zr.IOReadCloser(), nil

	default:
		return nil, ErrUnknownFormat
	}
}

// Entry is a file in a ramdisk archive.
type Entry struct {
	Name     string
	Mode     os.FileMode
	Size     int64
	Linkname string
}

func (e Entry) String() string {
	if e.Linkname != "" {
		return fmt.Sprintf("%s %8d %s -> %s", e.Mode, e.Size, e.Name, e.Linkname)
	}

	return fmt.Sprintf("%s %8d %s", e.Mode, e.Size, e.Name)
}

// List returns the entries of the archive in b, which may be compressed.
func List(b []byte) ([]Entry, error) {
	rc, err := Open(b)
	if err != nil {
		return nil, err
	}

	defer rc.Close()

	var entries []Entry
	cr := cpio.NewReader(rc)

	for {
		hdr, err := cr.Next()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}

		if err != nil {
			return entries, fmt.Errorf("ramdisk: %s: %w", Detect(b), err)
		}

		entries = append(entries, Entry{
			Name:     hdr.Name,
			Mode:     hdr.FileInfo().Mode(),
			Size:     hdr.Size,
			Linkname: hdr.Linkname,
		})
	}
}
