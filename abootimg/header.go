package abootimg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Header is the first page of an Android boot image. It corresponds to
// struct andr_img_hdr (version 0). Name, Cmdline and ExtraCmdline are
// fixed-size fields that aren't guaranteed to be NUL-terminated on disk.
type Header struct {
	Magic        [MagicSize]byte     // char magic[ANDR_BOOT_MAGIC_SIZE];
	KernelSize   uint32              // u32 kernel_size;  /* size in bytes */
	KernelAddr   uint32              // u32 kernel_addr;  /* physical load addr */
	RamdiskSize  uint32              // u32 ramdisk_size; /* size in bytes */
	RamdiskAddr  uint32              // u32 ramdisk_addr; /* physical load addr */
	SecondSize   uint32              // u32 second_size;  /* size in bytes */
	SecondAddr   uint32              // u32 second_addr;  /* physical load addr */
	TagsAddr     uint32              // u32 tags_addr;    /* physical addr for kernel tags */
	PageSize     uint32              // u32 page_size;    /* flash page size we assume */
	Unused       uint32              // u32 unused;       /* header_version in later formats */
	OSVersion    uint32              // u32 os_version;
	Name         [NameSize]byte      // char name[ANDR_BOOT_NAME_SIZE]; /* asciiz product name */
	Cmdline      [ArgsSize]byte      // char cmdline[ANDR_BOOT_ARGS_SIZE];
	ID           [8]uint32           // u32 id[8]; /* timestamp / checksum / sha1 / etc */
	ExtraCmdline [ExtraArgsSize]byte // char extra_cmdline[ANDR_BOOT_EXTRA_ARGS_SIZE];
}

const (
	// Magic is the required value of Header.Magic.
	Magic = "ANDROID!"

	MagicSize     = 8
	NameSize      = 16
	ArgsSize      = 512
	ExtraArgsSize = 1024

	// HeaderSize is the size of a marshaled Header in bytes.
	HeaderSize = 1632
)

// MarshalBinary marshals the header into the layout of struct andr_img_hdr.
func (h *Header) MarshalBinary() (data []byte, err error) {
	b := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	if err := binary.Write(b, binary.LittleEndian, h); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// UnmarshalBinary unmarshals a struct andr_img_hdr into the header.
// It returns io.ErrUnexpectedEOF if the given data is too short.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return io.ErrUnexpectedEOF
	}

	return binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, h)
}

// HasMagic reports whether data starts with the boot image magic.
func HasMagic(data []byte) bool {
	return len(data) >= MagicSize && string(data[:MagicSize]) == Magic
}

// Validate checks the magic and the page size. It's all the validation a
// header gets: the id is never verified.
func (h *Header) Validate() error {
	if string(h.Magic[:]) != Magic {
		return fmt.Errorf("%w: bad magic %q", ErrInvalidImage, h.Magic[:])
	}

	if ps := h.PageSize; ps == 0 || ps&(ps-1) != 0 {
		return fmt.Errorf("%w: page size %d isn't a power of two", ErrInvalidImage, ps)
	}

	return nil
}

// NameString returns the product name. The name is copied into a buffer one
// byte longer than the field and terminated there before it's used.
func (h *Header) NameString() string {
	return cstring(h.Name[:])
}

// CmdlineString returns the embedded kernel command line, bounded the same way.
func (h *Header) CmdlineString() string {
	return cstring(h.Cmdline[:])
}

// ExtraCmdlineString returns the supplemental command line.
func (h *Header) ExtraCmdlineString() string {
	return cstring(h.ExtraCmdline[:])
}

// Version returns the OS version A.B.C packed into OSVersion.
func (h *Header) Version() (a, b, c int) {
	ver := h.OSVersion >> 11
	return int(ver>>14) & 0x7f, int(ver>>7) & 0x7f, int(ver) & 0x7f
}

// PatchLevel returns the security patch level packed into OSVersion.
func (h *Header) PatchLevel() (year, month int) {
	lvl := h.OSVersion & (1<<11 - 1)
	return int(lvl>>4) + 2000, int(lvl) & 0x0f
}

// EncodeOSVersion packs an OS version and patch level the way OSVersion stores them.
func EncodeOSVersion(a, b, c, year, month int) uint32 {
	ver := uint32(a&0x7f)<<14 | uint32(b&0x7f)<<7 | uint32(c&0x7f)
	lvl := uint32((year-2000)&0x7f)<<4 | uint32(month&0x0f)

	return ver<<11 | lvl
}

func cstring(field []byte) string {
	buf := make([]byte, len(field)+1)
	copy(buf, field)

	return string(buf[:bytes.IndexByte(buf, 0)])
}
