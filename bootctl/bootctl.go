// Package bootctl decides the boot mode from the control message in the misc
// partition. Recovery is persistent until the recovery flow clears it;
// factory is one-shot and cleared as soon as it's read.
package bootctl

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/c35s/aboot/blk"
	"github.com/c35s/aboot/cmdline"
)

// DefaultPartition is the name of the partition holding the message.
const DefaultPartition = "misc"

// ErrPartitionTooSmall means the message doesn't fit in the misc partition.
var ErrPartitionTooSmall = errors.New("bootctl: partition is too small for the control message")

// Reader reads the control message.
type Reader struct {

	// Device is the boot device.
	Device *blk.Device

	// Table locates Partition on Device.
	Table blk.Table

	// Partition names the misc partition.
	// If Partition is empty, DefaultPartition is used.
	Partition string

	// Logger receives diagnostics. If Logger is nil, slog.Default() is used.
	Logger *slog.Logger
}

// Writer writes the control message. Host tools and the recovery flow use it
// to arm or clear a mode.
type Writer struct {
	Device    *blk.Device
	Table     blk.Table
	Partition string
}

// location is where the message lives on the device.
type location struct {
	part  blk.Partition
	start uint64 // absolute sector
	count int    // sectors
	skip  int    // bytes before the message in the first sector
}

// DetermineMode reads the control message, sets the mode's kernel arguments
// in args and returns the mode. A factory message is cleared after it's read.
// Failing to clear it is logged and otherwise ignored so the boot can proceed.
func (r *Reader) DetermineMode(args *cmdline.Args) (Mode, error) {
	msg, loc, err := r.read()
	if err != nil {
		return Normal, err
	}

	mode := msg.Mode()
	r.logger().Info("boot mode", "mode", mode, "command", msg.CommandString(), "partition", loc.part.Name)

	if args != nil {
		args.Update(mode.BootArgs())
	}

	if mode == Factory {
		if err := write(r.Device, loc, new(Message)); err != nil {
			r.logger().Error("clear factory boot message failed", "partition", loc.part.Name, "err", err)
		}
	}

	return mode, nil
}

// ReadMessage reads the control message without acting on it.
func (r *Reader) ReadMessage() (*Message, error) {
	msg, _, err := r.read()
	return msg, err
}

func (r *Reader) read() (*Message, location, error) {
	loc, err := locate(r.Device, r.Table, r.Partition)
	if err != nil {
		return nil, loc, err
	}

	buf, err := readSectors(r.Device, loc)
	if err != nil {
		return nil, loc, err
	}

	msg := new(Message)
	if err := msg.UnmarshalBinary(buf[loc.skip:]); err != nil {
		return nil, loc, err
	}

	return msg, loc, nil
}

func (r *Reader) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}

	return slog.Default()
}

// WriteMessage writes msg to the misc partition.
func (w *Writer) WriteMessage(msg *Message) error {
	loc, err := locate(w.Device, w.Table, w.Partition)
	if err != nil {
		return err
	}

	return write(w.Device, loc, msg)
}

// SetMode arms mode for the next boot. Setting Normal clears the message.
func (w *Writer) SetMode(mode Mode) error {
	msg := new(Message)
	if err := msg.SetCommand(mode.Command()); err != nil {
		return err
	}

	return w.WriteMessage(msg)
}

// Clear zeroes the message.
func (w *Writer) Clear() error {
	return w.WriteMessage(new(Message))
}

// locate finds the sectors holding the message. The message is rounded up
// to whole sectors; the slack past MessageSize is written as zeros. With
// sectors larger than MessageOffset the message starts inside a sector and
// the bytes before it are left alone.
func locate(dev *blk.Device, table blk.Table, name string) (location, error) {
	if dev == nil || dev.Storage == nil {
		return location{}, blk.ErrDeviceUnavailable
	}

	if name == "" {
		name = DefaultPartition
	}

	if table == nil {
		return location{}, fmt.Errorf("%w: %q: no partition table", blk.ErrPartitionNotFound, name)
	}

	part, err := table.Find(name)
	if err != nil {
		return location{}, err
	}

	ss := dev.Sector()
	first := uint64(MessageOffset / ss)

	loc := location{
		part:  part,
		start: part.Start + first,
		skip:  MessageOffset % ss,
	}

	loc.count = (loc.skip + MessageSize + ss - 1) / ss

	if !part.Contains(first, uint64(loc.count)) {
		return location{}, fmt.Errorf("%w: %s", ErrPartitionTooSmall, part)
	}

	return loc, nil
}

func readSectors(dev *blk.Device, loc location) ([]byte, error) {
	buf := make([]byte, loc.count*dev.Sector())
	if _, err := dev.ReadSectors(loc.start, loc.count, buf); err != nil {
		return nil, fmt.Errorf("bootctl: read %s: %w", loc.part.Name, err)
	}

	return buf, nil
}

func write(dev *blk.Device, loc location, msg *Message) error {
	data, err := msg.MarshalBinary()
	if err != nil {
		return err
	}

	buf := make([]byte, loc.count*dev.Sector())
	if loc.skip != 0 {
		if buf, err = readSectors(dev, loc); err != nil {
			return err
		}
	}

	clear(buf[loc.skip:])
	copy(buf[loc.skip:], data)

	if _, err := dev.WriteSectors(loc.start, loc.count, buf); err != nil {
		return fmt.Errorf("bootctl: write %s: %w", loc.part.Name, err)
	}

	return nil
}
