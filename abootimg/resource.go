package abootimg

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Rockchip images carry their device trees in a resource image in the
// second-stage slot. A resource image is a header block, an index table of
// one-block entries, and the files, all in 512-byte blocks.
const (
	ResourceMagic      = "RSCE"
	ResourceEntryTag   = "ENTR"
	DefaultResourceDTB = "rk-kernel.dtb"

	resourceBlockSize = 512
	resourceNameSize  = 256
)

// resourceHeader corresponds to struct resource_img_hdr.
type resourceHeader struct {
	Magic          [4]byte
	PtnVersion     uint16
	IndexVersion   uint16
	HeaderBlocks   uint8
	TableOffset    uint8 // blocks
	TableEntrySize uint8 // blocks
	_              uint8
	TableEntries   uint32
}

// resourceEntry corresponds to struct resource_entry.
type resourceEntry struct {
	Tag    [4]byte
	Name   [resourceNameSize]byte
	Offset uint32 // blocks from the start of the resource image
	Size   uint32 // bytes
}

// ResourceFile is a file stored in a resource image.
type ResourceFile struct {
	Name string
	Data []byte
}

// ResourceFileOffset returns the byte offset of the file called name inside
// the resource image blob. It returns false if blob isn't a resource image,
// the file isn't there, or the index table is damaged.
func ResourceFileOffset(blob []byte, name string) (uint64, bool) {
	var hdr resourceHeader
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, &hdr); err != nil {
		return 0, false
	}

	if string(hdr.Magic[:]) != ResourceMagic || hdr.TableEntrySize == 0 {
		return 0, false
	}

	for i := uint64(0); i < uint64(hdr.TableEntries); i++ {
		off := (uint64(hdr.TableOffset) + i*uint64(hdr.TableEntrySize)) * resourceBlockSize
		if off >= uint64(len(blob)) {
			return 0, false
		}

		var e resourceEntry
		if err := binary.Read(bytes.NewReader(blob[off:]), binary.LittleEndian, &e); err != nil {
			return 0, false
		}

		if string(e.Tag[:]) != ResourceEntryTag {
			return 0, false
		}

		if cstring(e.Name[:]) != name {
			continue
		}

		foff := uint64(e.Offset) * resourceBlockSize
		if foff+uint64(e.Size) > uint64(len(blob)) {
			return 0, false
		}

		return foff, true
	}

	return 0, false
}

// PackResource builds a resource image holding files.
func PackResource(files []ResourceFile) ([]byte, error) {
	const (
		headerBlocks = 1
		entryBlocks  = 1
	)

	hdr := resourceHeader{
		HeaderBlocks:   headerBlocks,
		TableOffset:    headerBlocks,
		TableEntrySize: entryBlocks,
		TableEntries:   uint32(len(files)),
	}

	copy(hdr.Magic[:], ResourceMagic)

	out := make([]byte, (headerBlocks+len(files)*entryBlocks)*resourceBlockSize)
	if err := putLE(out, &hdr); err != nil {
		return nil, err
	}

	for i, f := range files {
		if len(f.Name) >= resourceNameSize {
			return nil, fmt.Errorf("%w: resource name %q is too long", ErrInvalidArgument, f.Name)
		}

		e := resourceEntry{
			Offset: uint32(len(out) / resourceBlockSize),
			Size:   uint32(len(f.Data)),
		}

		copy(e.Tag[:], ResourceEntryTag)
		copy(e.Name[:], f.Name)

		if err := putLE(out[(headerBlocks+i*entryBlocks)*resourceBlockSize:], &e); err != nil {
			return nil, err
		}

		out = append(out, f.Data...)
		out = append(out, make([]byte, int(AlignUp(uint64(len(out)), resourceBlockSize))-len(out))...)
	}

	return out, nil
}

func putLE(dst []byte, v any) error {
	b := new(bytes.Buffer)
	if err := binary.Write(b, binary.LittleEndian, v); err != nil {
		return err
	}

	copy(dst, b.Bytes())
	return nil
}
