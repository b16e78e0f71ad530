package abootimg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// PackSpec describes a boot image to build.
type PackSpec struct {
	Kernel  []byte
	Ramdisk []byte
	Second  []byte

	// Name is the product name, at most NameSize bytes.
	Name string

	// Cmdline is the embedded kernel command line. It must leave room for
	// the terminating NUL in the ArgsSize-byte field.
	Cmdline string

	// PageSize is the image page size. If PageSize is 0, 2048 is used.
	PageSize uint32

	// Base and the offsets give the load addresses recorded in the header.
	// Zero values select the defaults of the usual image tools, which put
	// the kernel at LegacyKernelAddr.
	Base          uint32
	KernelOffset  uint32
	RamdiskOffset uint32
	SecondOffset  uint32
	TagsOffset    uint32

	OSVersion uint32
}

const (
	DefaultPageSize      = 2048
	DefaultBase          = 0x10000000
	DefaultKernelOffset  = 0x00008000
	DefaultRamdiskOffset = 0x01000000
	DefaultSecondOffset  = 0x00f00000
	DefaultTagsOffset    = 0x00000100
)

func (s PackSpec) withDefaults() PackSpec {
	if s.PageSize == 0 {
		s.PageSize = DefaultPageSize
	}

	if s.Base == 0 {
		s.Base = DefaultBase
	}

	if s.KernelOffset == 0 {
		s.KernelOffset = DefaultKernelOffset
	}

	if s.RamdiskOffset == 0 {
		s.RamdiskOffset = DefaultRamdiskOffset
	}

	if s.SecondOffset == 0 {
		s.SecondOffset = DefaultSecondOffset
	}

	if s.TagsOffset == 0 {
		s.TagsOffset = DefaultTagsOffset
	}

	return s
}

func (s PackSpec) validate() error {
	if ps := s.PageSize; ps < HeaderSize || ps&(ps-1) != 0 {
		return fmt.Errorf("page size %d must be a power of two of at least %d", ps, HeaderSize)
	}

	if len(s.Name) > NameSize {
		return fmt.Errorf("name %q is longer than %d bytes", s.Name, NameSize)
	}

	if len(s.Cmdline) > ArgsSize-1 {
		return fmt.Errorf("command line is longer than %d bytes", ArgsSize-1)
	}

	for _, p := range [][]byte{s.Kernel, s.Ramdisk, s.Second} {
		if uint64(len(p)) > 1<<32-1 {
			return fmt.Errorf("payload of %d bytes doesn't fit in a header size field", len(p))
		}
	}

	return nil
}

// Header returns the header describing the image s builds.
func (s PackSpec) Header() (*Header, error) {
	s = s.withDefaults()
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	h := &Header{
		KernelSize:  uint32(len(s.Kernel)),
		KernelAddr:  s.Base + s.KernelOffset,
		RamdiskSize: uint32(len(s.Ramdisk)),
		RamdiskAddr: s.Base + s.RamdiskOffset,
		SecondSize:  uint32(len(s.Second)),
		SecondAddr:  s.Base + s.SecondOffset,
		TagsAddr:    s.Base + s.TagsOffset,
		PageSize:    s.PageSize,
		OSVersion:   s.OSVersion,
	}

	copy(h.Magic[:], Magic)
	copy(h.Name[:], s.Name)

	copy(h.Cmdline[:], s.Cmdline)

	sum := s.checksum()
	h.ID[0] = uint32(sum)
	h.ID[1] = uint32(sum >> 32)

	return h, nil
}

// checksum digests every payload and its size.
func (s PackSpec) checksum() uint64 {
	d := xxhash.New()

	for _, p := range [][]byte{s.Kernel, s.Ramdisk, s.Second} {
		d.Write(p)
		binary.Write(d, binary.LittleEndian, uint32(len(p)))
	}

	return d.Sum64()
}

// Pack writes the image described by s to w.
func Pack(w io.Writer, s PackSpec) error {
	s = s.withDefaults()

	h, err := s.Header()
	if err != nil {
		return err
	}

	hdr, err := h.MarshalBinary()
	if err != nil {
		return err
	}

	for _, p := range [][]byte{hdr, s.Kernel, s.Ramdisk, s.Second} {
		if err := writePadded(w, p, s.PageSize); err != nil {
			return fmt.Errorf("abootimg: pack: %w", err)
		}
	}

	return nil
}

// PackBytes returns the image described by s.
func PackBytes(s PackSpec) ([]byte, error) {
	b := new(bytes.Buffer)
	if err := Pack(b, s); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// writePadded writes p followed by zeros up to the next page boundary.
func writePadded(w io.Writer, p []byte, pageSize uint32) error {
	if _, err := w.Write(p); err != nil {
		return err
	}

	pad := AlignUp(uint64(len(p)), uint64(pageSize)) - uint64(len(p))
	if pad == 0 {
		return nil
	}

	_, err := w.Write(make([]byte, pad))
	return err
}
