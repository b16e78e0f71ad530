package blk

import (
	"errors"
	"fmt"
	"io"

	"github.com/diskfs/go-diskfs/partition/gpt"
)

// GPT is a Table read from a GUID partition table.
type GPT struct {
	parts StaticTable
}

// ErrNoGPT means the device doesn't hold a readable GUID partition table.
var ErrNoGPT = errors.New("blk: no GUID partition table")

// ReadGPT reads the primary GUID partition table of dev.
func ReadGPT(dev *Device) (*GPT, error) {
	if err := dev.check(); err != nil {
		return nil, err
	}

	ss := dev.Sector()
	t, err := gpt.Read(&deviceFile{dev: dev}, ss, ss)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoGPT, err)
	}

	g := new(GPT)
	for _, p := range t.Partitions {
		if p == nil || p.Type == gpt.Unused {
			continue
		}

		g.parts = append(g.parts, Partition{
			Name:    p.Name,
			Start:   p.Start,
			Sectors: p.End - p.Start + 1,
		})
	}

	return g, nil
}

// Find returns the partition whose GPT name is name.
func (g *GPT) Find(name string) (Partition, error) {
	return g.parts.Find(name)
}

// Partitions returns the used entries of the table in on-disk order.
func (g *GPT) Partitions() StaticTable {
	return append(StaticTable(nil), g.parts...)
}

// deviceFile adapts a Device to the ReaderAt/WriterAt/Seeker file go-diskfs reads tables from.
type deviceFile struct {
	dev *Device
	off int64
}

func (f *deviceFile) ReadAt(p []byte, off int64) (int, error) {
	return f.dev.Storage.ReadAt(p, off)
}

func (f *deviceFile) WriteAt(p []byte, off int64) (int, error) {
	if !f.dev.Writable() {
		return 0, ErrReadOnly
	}

	return f.dev.Storage.(io.WriterAt).WriteAt(p, off)
}

func (f *deviceFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += f.off
	case io.SeekEnd:
		sz, err := f.dev.Storage.Size()
		if err != nil {
			return 0, err
		}

		offset += sz
	default:
		return 0, fmt.Errorf("blk: bad whence %d", whence)
	}

	if offset < 0 {
		return 0, fmt.Errorf("blk: negative seek offset %d", offset)
	}

	f.off = offset
	return offset, nil
}
