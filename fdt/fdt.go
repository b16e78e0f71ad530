// Package fdt validates flattened device tree headers.
package fdt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Header is the big-endian header at the start of every FDT blob.
type Header struct {
	Magic           uint32
	TotalSize       uint32
	OffDTStruct     uint32
	OffDTStrings    uint32
	OffMemRsvmap    uint32
	Version         uint32
	LastCompVersion uint32
	BootCPUIDPhys   uint32
	SizeDTStrings   uint32
	SizeDTStruct    uint32
}

const (
	Magic      = 0xd00dfeed
	HeaderSize = 0x28

	// Version is the version written by MarshalBinary.
	Version = 17

	// FirstVersion is the oldest blob version accepted by CheckHeader.
	FirstVersion = 16
)

var (
	ErrBadMagic  = errors.New("fdt: bad magic")
	ErrBadHeader = errors.New("fdt: bad header")
	ErrTruncated = errors.New("fdt: truncated")
)

const (
	tokenBeginNode = 0x1
	tokenEndNode   = 0x2
	tokenEnd       = 0x9
)

// UnmarshalBinary decodes the header at the start of data.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return ErrTruncated
	}

	return binary.Read(bytes.NewReader(data[:HeaderSize]), binary.BigEndian, h)
}

// MarshalBinary encodes the header.
func (h *Header) MarshalBinary() ([]byte, error) {
	b := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	if err := binary.Write(b, binary.BigEndian, h); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// CheckHeader reports whether data starts with a usable FDT header: the
// magic matches, the version is one we understand, and the blocks named by
// the header lie inside totalsize. It only looks at the header; data needn't
// hold the whole blob.
func CheckHeader(data []byte) error {
	var h Header
	if err := h.UnmarshalBinary(data); err != nil {
		return err
	}

	return h.Check()
}

// Check validates the header fields.
func (h *Header) Check() error {
	if h.Magic != Magic {
		return fmt.Errorf("%w: %#x != %#x", ErrBadMagic, h.Magic, uint32(Magic))
	}

	if h.Version < FirstVersion || h.LastCompVersion > Version {
		return fmt.Errorf("%w: unsupported version %d (compatible with %d)", ErrBadHeader, h.Version, h.LastCompVersion)
	}

	if h.TotalSize < HeaderSize {
		return fmt.Errorf("%w: totalsize %d < %d", ErrBadHeader, h.TotalSize, HeaderSize)
	}

	blocks := []struct {
		name     string
		off, len uint32
	}{
		{"memory reservation map", h.OffMemRsvmap, 16},
		{"structure block", h.OffDTStruct, h.SizeDTStruct},
		{"strings block", h.OffDTStrings, h.SizeDTStrings},
	}

	for _, b := range blocks {
		if b.off < HeaderSize || uint64(b.off)+uint64(b.len) > uint64(h.TotalSize) {
			return fmt.Errorf("%w: %s at %#x+%#x is outside %#x bytes", ErrBadHeader, b.name, b.off, b.len, h.TotalSize)
		}
	}

	return nil
}

// Empty returns a valid blob holding only an empty root node.
func Empty() []byte {
	var structure []byte
	for _, tok := range []uint32{tokenBeginNode, 0, tokenEndNode, tokenEnd} {
		structure = binary.BigEndian.AppendUint32(structure, tok)
	}

	const offRsvmap = HeaderSize
	offStruct := offRsvmap + 16

	h := Header{
		Magic:           Magic,
		TotalSize:       uint32(offStruct + len(structure)),
		OffDTStruct:     uint32(offStruct),
		OffDTStrings:    uint32(offStruct + len(structure)),
		OffMemRsvmap:    offRsvmap,
		Version:         Version,
		LastCompVersion: FirstVersion,
		SizeDTStruct:    uint32(len(structure)),
	}

	hdr, _ := h.MarshalBinary()

	blob := make([]byte, h.TotalSize)
	copy(blob, hdr)
	copy(blob[offStruct:], structure)

	return blob
}
