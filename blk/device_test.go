package blk_test

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c35s/aboot/blk"
	"github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/google/go-cmp/cmp"
)

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i / 512)
	}

	return b
}

func TestReadSectors(t *testing.T) {
	dev := &blk.Device{Storage: &blk.MemStorage{Bytes: pattern(8 * 512)}}

	buf := make([]byte, 2*512)
	n, err := dev.ReadSectors(3, 2, buf)
	if err != nil {
		t.Fatal(err)
	}

	if n != 2 {
		t.Fatalf("read %d sectors != 2", n)
	}

	if buf[0] != 3 || buf[512] != 4 {
		t.Errorf("wrong sectors read: %d, %d", buf[0], buf[512])
	}
}

func TestReadSectorsShort(t *testing.T) {
	dev := &blk.Device{Storage: &blk.MemStorage{Bytes: pattern(4 * 512)}}

	n, err := dev.ReadSectors(2, 4, make([]byte, 4*512))
	if !errors.Is(err, blk.ErrIO) {
		t.Fatalf("%v isn't ErrIO", err)
	}

	if n != 2 {
		t.Errorf("read %d sectors != 2", n)
	}
}

func TestReadSectorsShortBuffer(t *testing.T) {
	dev := &blk.Device{Storage: &blk.MemStorage{Bytes: pattern(4 * 512)}}

	if _, err := dev.ReadSectors(0, 2, make([]byte, 700)); !errors.Is(err, blk.ErrShortBuffer) {
		t.Fatalf("%v isn't ErrShortBuffer", err)
	}
}

func TestDeviceUnavailable(t *testing.T) {
	var dev *blk.Device
	if _, err := dev.ReadSectors(0, 1, make([]byte, 512)); !errors.Is(err, blk.ErrDeviceUnavailable) {
		t.Errorf("nil device: %v isn't ErrDeviceUnavailable", err)
	}

	dev = new(blk.Device)
	if _, err := dev.WriteSectors(0, 1, make([]byte, 512)); !errors.Is(err, blk.ErrDeviceUnavailable) {
		t.Errorf("nil storage: %v isn't ErrDeviceUnavailable", err)
	}
}

func TestBadSectorSize(t *testing.T) {
	for _, ss := range []int{-512, 3, 500, blk.MaxSectorSize * 2} {
		dev := &blk.Device{Storage: &blk.MemStorage{Bytes: make([]byte, 4096)}, SectorSize: ss}
		if _, err := dev.ReadSectors(0, 1, make([]byte, 1<<20)); !errors.Is(err, blk.ErrSectorSize) {
			t.Errorf("sector size %d: %v isn't ErrSectorSize", ss, err)
		}
	}
}

func TestWriteSectors(t *testing.T) {
	ms := &blk.MemStorage{Bytes: make([]byte, 4*4096)}
	dev := &blk.Device{Storage: ms, SectorSize: 4096}

	src := bytes.Repeat([]byte{0xaa}, 4096)
	if _, err := dev.WriteSectors(1, 1, src); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(src, ms.Bytes[4096:8192]); diff != "" {
		t.Errorf("sector differs: %s", diff)
	}

	if ms.Bytes[0] != 0 || ms.Bytes[8192] != 0 {
		t.Error("write spilled into neighbouring sectors")
	}
}

func TestWriteSectorsReadOnly(t *testing.T) {
	dev := &blk.Device{Storage: &blk.MemStorage{Bytes: make([]byte, 1024)}, ReadOnly: true}
	if _, err := dev.WriteSectors(0, 1, make([]byte, 512)); !errors.Is(err, blk.ErrReadOnly) {
		t.Errorf("%v isn't ErrReadOnly", err)
	}

	if dev.Writable() {
		t.Error("read-only device is writable")
	}
}

func TestWriteSectorsPastEnd(t *testing.T) {
	dev := &blk.Device{Storage: &blk.MemStorage{Bytes: make([]byte, 1024)}}

	n, err := dev.WriteSectors(1, 2, make([]byte, 1024))
	if !errors.Is(err, blk.ErrIO) {
		t.Fatalf("%v isn't ErrIO", err)
	}

	if n != 1 {
		t.Errorf("wrote %d sectors != 1", n)
	}
}

func TestHTTPStorage(t *testing.T) {
	data := pattern(16 * 512)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "disk.img", time.Time{}, bytes.NewReader(data))
	}))

	defer srv.Close()

	hs := &blk.HTTPStorage{URL: srv.URL}

	sz, err := hs.Size()
	if err != nil {
		t.Fatal(err)
	}

	if sz != int64(len(data)) {
		t.Fatalf("size %d != %d", sz, len(data))
	}

	dev := &blk.Device{Storage: hs}
	if dev.Writable() {
		t.Error("http device is writable")
	}

	buf := make([]byte, 3*512)
	if _, err := dev.ReadSectors(5, 3, buf); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(data[5*512:8*512], buf); diff != "" {
		t.Errorf("sectors differ: %s", diff)
	}
}

func TestStaticTable(t *testing.T) {
	table := blk.StaticTable{
		{Name: "misc", Start: 0x4000, Sectors: 0x2000},
		{Name: "boot", Start: 0x6000, Sectors: 0x10000},
	}

	p, err := table.Find("boot")
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(table[1], p); diff != "" {
		t.Errorf("partition differs: %s", diff)
	}

	if _, err := table.Find("recovery"); !errors.Is(err, blk.ErrPartitionNotFound) {
		t.Errorf("%v isn't ErrPartitionNotFound", err)
	}

	if diff := cmp.Diff([]string{"boot", "misc"}, table.Names()); diff != "" {
		t.Errorf("names differ: %s", diff)
	}
}

func TestPartitionContains(t *testing.T) {
	p := blk.Partition{Name: "misc", Start: 100, Sectors: 64}

	if !p.Contains(32, 32) {
		t.Error("last 32 sectors aren't contained")
	}

	if p.Contains(32, 33) {
		t.Error("33 sectors at 32 are contained")
	}

	if p.Contains(65, 0) {
		t.Error("offset past the end is contained")
	}

	if !(blk.Partition{Name: "open"}).Contains(1<<40, 1<<40) {
		t.Error("partition of unknown length doesn't contain everything")
	}
}

func TestReadGPT(t *testing.T) {
	const diskSize = 8 << 20

	f, err := os.Create(filepath.Join(t.TempDir(), "disk.img"))
	if err != nil {
		t.Fatal(err)
	}

	defer f.Close()

	if err := f.Truncate(diskSize); err != nil {
		t.Fatal(err)
	}

	table := &gpt.Table{
		LogicalSectorSize:  512,
		PhysicalSectorSize: 512,
		ProtectiveMBR:      true,
		Partitions: []*gpt.Partition{
			{Start: 2048, End: 4095, Size: 2048 * 512, Type: gpt.LinuxFilesystem, Name: "misc"},
			{Start: 4096, End: 12287, Size: 8192 * 512, Type: gpt.LinuxFilesystem, Name: "boot"},
		},
	}

	if err := table.Write(f, diskSize); err != nil {
		t.Fatal(err)
	}

	g, err := blk.ReadGPT(&blk.Device{Storage: &blk.FileStorage{File: f}})
	if err != nil {
		t.Fatal(err)
	}

	want := blk.StaticTable{
		{Name: "misc", Start: 2048, Sectors: 2048},
		{Name: "boot", Start: 4096, Sectors: 8192},
	}

	if diff := cmp.Diff(want, g.Partitions()); diff != "" {
		t.Errorf("partitions differ: %s", diff)
	}

	if _, err := g.Find("userdata"); !errors.Is(err, blk.ErrPartitionNotFound) {
		t.Errorf("%v isn't ErrPartitionNotFound", err)
	}
}

func TestReadGPTBlank(t *testing.T) {
	dev := &blk.Device{Storage: &blk.MemStorage{Bytes: make([]byte, 1<<20)}}
	if _, err := blk.ReadGPT(dev); !errors.Is(err, blk.ErrNoGPT) {
		t.Errorf("%v isn't ErrNoGPT", err)
	}
}
