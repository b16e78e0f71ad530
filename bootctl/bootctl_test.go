package bootctl_test

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/c35s/aboot/blk"
	"github.com/c35s/aboot/bootctl"
	"github.com/c35s/aboot/cmdline"
	"github.com/google/go-cmp/cmp"
)

// countingStorage counts the writes that reach a MemStorage.
type countingStorage struct {
	blk.MemStorage
	writes int
}

func (cs *countingStorage) WriteAt(p []byte, off int64) (int, error) {
	cs.writes++
	return cs.MemStorage.WriteAt(p, off)
}

const miscStart = 64 // sectors of 512 bytes

var table = blk.StaticTable{
	{Name: "misc", Start: miscStart, Sectors: 2048},
	{Name: "tiny", Start: 8, Sectors: 16},
}

func newDisk(t *testing.T, command string) (*countingStorage, *blk.Device) {
	t.Helper()

	cs := &countingStorage{MemStorage: blk.MemStorage{Bytes: make([]byte, 2<<20)}}

	msg := new(bootctl.Message)
	copy(msg.Command[:], command)
	copy(msg.Recovery[:], "recovery\n--wipe_data\n")

	data, err := msg.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	copy(cs.Bytes[miscStart*512+bootctl.MessageOffset:], data)

	return cs, &blk.Device{Storage: cs}
}

func readBack(t *testing.T, dev *blk.Device) *bootctl.Message {
	t.Helper()

	r := &bootctl.Reader{Device: dev, Table: table}
	msg, err := r.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}

	return msg
}

func TestMessageSize(t *testing.T) {
	data, err := new(bootctl.Message).MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	if len(data) != bootctl.MessageSize {
		t.Fatalf("message byte size %d != %d", len(data), bootctl.MessageSize)
	}
}

func TestUnmarshalMessageShort(t *testing.T) {
	msg := new(bootctl.Message)
	if err := msg.UnmarshalBinary(make([]byte, bootctl.MessageSize-1)); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("%+v isn't ErrUnexpectedEOF", err)
	}
}

func TestMessageUnterminated(t *testing.T) {
	msg := new(bootctl.Message)
	copy(msg.Command[:], strings.Repeat("x", 32))
	copy(msg.Status[:], "OK")

	if got := msg.CommandString(); got != strings.Repeat("x", 32) {
		t.Errorf("command %q runs past its field", got)
	}

	if got := msg.StatusString(); got != "OK" {
		t.Errorf("status %q != OK", got)
	}

	if msg.Mode() != bootctl.Normal {
		t.Errorf("garbage command is %v", msg.Mode())
	}
}

func TestSetCommandTooLong(t *testing.T) {
	msg := new(bootctl.Message)
	if err := msg.SetCommand(strings.Repeat("y", 32)); err == nil {
		t.Error("32-byte command accepted")
	}

	if err := msg.SetCommand(strings.Repeat("y", 31)); err != nil {
		t.Error(err)
	}
}

func TestClassify(t *testing.T) {
	for cmd, want := range map[string]bootctl.Mode{
		"":                    bootctl.Normal,
		"boot-recovery":       bootctl.Recovery,
		"boot-factory":        bootctl.Factory,
		"boot-recovery ":      bootctl.Normal,
		"bootonce-bootloader": bootctl.Normal,
		"\xff\xfe":            bootctl.Normal,
	} {
		if got := bootctl.Classify(cmd); got != want {
			t.Errorf("%q: %v != %v", cmd, got, want)
		}
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range []bootctl.Mode{bootctl.Normal, bootctl.Recovery, bootctl.Factory} {
		got, err := bootctl.ParseMode(m.String())
		if err != nil {
			t.Fatal(err)
		}

		if got != m {
			t.Errorf("%v != %v", got, m)
		}
	}

	if _, err := bootctl.ParseMode("fastboot"); err == nil {
		t.Error("unknown mode parsed")
	}
}

func TestNormal(t *testing.T) {
	cs, dev := newDisk(t, "")
	args := cmdline.Parse("console=ttyS2")

	r := &bootctl.Reader{Device: dev, Table: table}
	mode, err := r.DetermineMode(args)
	if err != nil {
		t.Fatal(err)
	}

	if mode != bootctl.Normal {
		t.Errorf("mode %v != normal", mode)
	}

	if got, want := args.String(), "console=ttyS2 ratta.bootmode=normal"; got != want {
		t.Errorf("%q != %q", got, want)
	}

	if cs.writes != 0 {
		t.Errorf("normal boot wrote %d times", cs.writes)
	}
}

func TestRecovery(t *testing.T) {
	cs, dev := newDisk(t, bootctl.CommandRecovery)
	before := readBack(t, dev)
	args := cmdline.Parse("console=ttyS2 ratta.bootmode=normal")

	r := &bootctl.Reader{Device: dev, Table: table}
	mode, err := r.DetermineMode(args)
	if err != nil {
		t.Fatal(err)
	}

	if mode != bootctl.Recovery {
		t.Errorf("mode %v != recovery", mode)
	}

	if got, want := args.String(), "console=ttyS2 ratta.bootmode=recovery"; got != want {
		t.Errorf("%q != %q", got, want)
	}

	if cs.writes != 0 {
		t.Errorf("recovery boot wrote %d times", cs.writes)
	}

	if diff := cmp.Diff(before, readBack(t, dev)); diff != "" {
		t.Errorf("message changed: %s", diff)
	}
}

func TestFactoryIsOneShot(t *testing.T) {
	_, dev := newDisk(t, bootctl.CommandFactory)
	args := cmdline.Parse("console=ttyS2")

	r := &bootctl.Reader{Device: dev, Table: table}
	mode, err := r.DetermineMode(args)
	if err != nil {
		t.Fatal(err)
	}

	if mode != bootctl.Factory {
		t.Errorf("mode %v != factory", mode)
	}

	if got, want := args.String(), "console=ttyS2 ratta.bootmode=factory androidboot.selinux=permissive"; got != want {
		t.Errorf("%q != %q", got, want)
	}

	if msg := readBack(t, dev); !msg.IsZero() {
		t.Errorf("message wasn't cleared: %q", msg.CommandString())
	}

	mode, err = r.DetermineMode(cmdline.Parse(""))
	if err != nil {
		t.Fatal(err)
	}

	if mode != bootctl.Normal {
		t.Errorf("second boot mode %v != normal", mode)
	}
}

func TestFactoryClearFailureIsNotFatal(t *testing.T) {
	_, dev := newDisk(t, bootctl.CommandFactory)
	dev.ReadOnly = true

	logs := new(bytes.Buffer)
	r := &bootctl.Reader{
		Device: dev,
		Table:  table,
		Logger: slog.New(slog.NewTextHandler(logs, nil)),
	}

	mode, err := r.DetermineMode(cmdline.Parse(""))
	if err != nil {
		t.Fatal(err)
	}

	if mode != bootctl.Factory {
		t.Errorf("mode %v != factory", mode)
	}

	if !strings.Contains(logs.String(), "clear factory boot message failed") {
		t.Errorf("failure wasn't logged: %s", logs)
	}

	if msg := readBack(t, dev); msg.Mode() != bootctl.Factory {
		t.Errorf("read-only message changed to %v", msg.Mode())
	}
}

func TestZeroedMessageIsNormal(t *testing.T) {
	_, dev := newDisk(t, bootctl.CommandRecovery)

	w := &bootctl.Writer{Device: dev, Table: table}
	if err := w.Clear(); err != nil {
		t.Fatal(err)
	}

	r := &bootctl.Reader{Device: dev, Table: table}
	mode, err := r.DetermineMode(nil)
	if err != nil {
		t.Fatal(err)
	}

	if mode != bootctl.Normal {
		t.Errorf("mode %v != normal", mode)
	}
}

func TestWriterSetMode(t *testing.T) {
	_, dev := newDisk(t, "")

	w := &bootctl.Writer{Device: dev, Table: table}
	if err := w.SetMode(bootctl.Recovery); err != nil {
		t.Fatal(err)
	}

	msg := readBack(t, dev)
	if msg.CommandString() != bootctl.CommandRecovery {
		t.Errorf("command %q != %q", msg.CommandString(), bootctl.CommandRecovery)
	}

	if msg.RecoveryString() != "" {
		t.Errorf("recovery field survived: %q", msg.RecoveryString())
	}
}

func TestLargeSectors(t *testing.T) {
	ms := &blk.MemStorage{Bytes: make([]byte, 1<<20)}
	dev := &blk.Device{Storage: ms, SectorSize: 4096}
	tbl := blk.StaticTable{{Name: "misc", Start: 16, Sectors: 64}}

	w := &bootctl.Writer{Device: dev, Table: tbl}
	if err := w.SetMode(bootctl.Factory); err != nil {
		t.Fatal(err)
	}

	off := 16*4096 + bootctl.MessageOffset
	if got := string(ms.Bytes[off : off+len(bootctl.CommandFactory)]); got != bootctl.CommandFactory {
		t.Fatalf("command %q isn't at byte %d", got, off)
	}

	r := &bootctl.Reader{Device: dev, Table: tbl}
	if mode, err := r.DetermineMode(nil); err != nil || mode != bootctl.Factory {
		t.Fatalf("mode %v, err %v", mode, err)
	}

	if !bytes.Equal(ms.Bytes[off:off+4096], make([]byte, 4096)) {
		t.Error("whole sector wasn't zeroed")
	}
}

func TestSectorsLargerThanOffset(t *testing.T) {
	const ss = 32 << 10

	ms := &blk.MemStorage{Bytes: make([]byte, 1<<20)}
	dev := &blk.Device{Storage: ms, SectorSize: ss}
	tbl := blk.StaticTable{{Name: "misc", Start: 2, Sectors: 4}}

	// bytes sharing the sector with the message
	start := 2 * ss
	head := ms.Bytes[start : start+bootctl.MessageOffset]
	for i := range head {
		head[i] = 0xee
	}

	w := &bootctl.Writer{Device: dev, Table: tbl}
	if err := w.SetMode(bootctl.Factory); err != nil {
		t.Fatal(err)
	}

	off := start + bootctl.MessageOffset
	if got := string(ms.Bytes[off : off+len(bootctl.CommandFactory)]); got != bootctl.CommandFactory {
		t.Fatalf("command %q isn't at byte %d", got, off)
	}

	args := cmdline.Parse("console=ttyS2")
	r := &bootctl.Reader{Device: dev, Table: tbl}

	if mode, err := r.DetermineMode(args); err != nil || mode != bootctl.Factory {
		t.Fatalf("mode %v, err %v", mode, err)
	}

	msg, err := r.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}

	if !msg.IsZero() {
		t.Error("factory message wasn't cleared")
	}

	if !bytes.Equal(head, bytes.Repeat([]byte{0xee}, bootctl.MessageOffset)) {
		t.Error("bytes before the message were overwritten")
	}
}

func TestReaderErrors(t *testing.T) {
	_, dev := newDisk(t, "")

	for _, tt := range []struct {
		name string
		r    bootctl.Reader
		want error
	}{
		{"no device", bootctl.Reader{Table: table}, blk.ErrDeviceUnavailable},
		{"no storage", bootctl.Reader{Device: new(blk.Device), Table: table}, blk.ErrDeviceUnavailable},
		{"no table", bootctl.Reader{Device: dev}, blk.ErrPartitionNotFound},
		{"no partition", bootctl.Reader{Device: dev, Table: table, Partition: "para"}, blk.ErrPartitionNotFound},
		{"tiny partition", bootctl.Reader{Device: dev, Table: table, Partition: "tiny"}, bootctl.ErrPartitionTooSmall},
		{"short read", bootctl.Reader{
			Device: &blk.Device{Storage: &blk.MemStorage{Bytes: make([]byte, miscStart*512+bootctl.MessageOffset+512)}},
			Table:  table,
		}, blk.ErrIO},
	} {
		t.Run(tt.name, func(t *testing.T) {
			args := cmdline.Parse("console=ttyS2")

			if _, err := tt.r.DetermineMode(args); !errors.Is(err, tt.want) {
				t.Errorf("%v isn't %v", err, tt.want)
			}

			if got := args.String(); got != "console=ttyS2" {
				t.Errorf("args changed on error: %q", got)
			}
		})
	}
}
