package bootctl

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Message is the bootloader control message stored in the misc partition.
// It corresponds to struct bootloader_message. All fields are NUL-padded
// strings that aren't guaranteed to be NUL-terminated.
type Message struct {
	Command    [32]byte  // char command[32];
	Status     [32]byte  // char status[32];
	Recovery   [768]byte // char recovery[768];
	Stage      [32]byte  // char stage[32];
	SlotSuffix [32]byte  // char slot_suffix[32];
	Reserved   [192]byte // char reserved[192];
}

const (
	// MessageOffset is the byte offset of the message in the misc partition.
	MessageOffset = 16 << 10

	// MessageSize is the size of a marshaled Message in bytes.
	MessageSize = 1088
)

// MarshalBinary marshals the message into the layout of struct bootloader_message.
func (m *Message) MarshalBinary() (data []byte, err error) {
	b := bytes.NewBuffer(make([]byte, 0, MessageSize))
	if err := binary.Write(b, binary.LittleEndian, m); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// UnmarshalBinary unmarshals a struct bootloader_message into the message.
// It returns io.ErrUnexpectedEOF if the given data is too short.
func (m *Message) UnmarshalBinary(data []byte) error {
	if len(data) < MessageSize {
		return io.ErrUnexpectedEOF
	}

	return binary.Read(bytes.NewReader(data[:MessageSize]), binary.LittleEndian, m)
}

// CommandString returns the command field up to its first NUL.
func (m *Message) CommandString() string {
	return cstring(m.Command[:])
}

// StatusString returns the status field up to its first NUL.
func (m *Message) StatusString() string {
	return cstring(m.Status[:])
}

// RecoveryString returns the recovery command line up to its first NUL.
func (m *Message) RecoveryString() string {
	return cstring(m.Recovery[:])
}

// StageString returns the stage field up to its first NUL.
func (m *Message) StageString() string {
	return cstring(m.Stage[:])
}

// SlotSuffixString returns the slot suffix up to its first NUL.
func (m *Message) SlotSuffixString() string {
	return cstring(m.SlotSuffix[:])
}

// Mode classifies the message's command.
func (m *Message) Mode() Mode {
	return Classify(m.CommandString())
}

// SetCommand stores s in the command field. The stored command is always
// NUL-terminated, so s may be at most 31 bytes.
func (m *Message) SetCommand(s string) error {
	return setCString(m.Command[:], s)
}

// SetRecovery stores the recovery command line, at most 767 bytes.
func (m *Message) SetRecovery(s string) error {
	return setCString(m.Recovery[:], s)
}

// IsZero reports whether every byte of the message is zero.
func (m *Message) IsZero() bool {
	return *m == Message{}
}

// cstring copies b up to its first NUL. A field without a NUL is used whole.
func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}

	return string(b)
}

func setCString(dst []byte, s string) error {
	if len(s) >= len(dst) {
		return fmt.Errorf("bootctl: %q is too long: %d >= %d", s, len(s), len(dst))
	}

	clear(dst)
	copy(dst, s)

	return nil
}
