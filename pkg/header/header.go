// Package header encodes the control records exchanged with the flash
// routine in target RAM. Both records are little-endian with no implicit
// padding.
package header

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	TaskLen   = 24
	TimingLen = 12
)

// Operation bits of the FlashOperation field.
const (
	DoInitFlash       uint16 = 1 << 0
	DoEraseBlock      uint16 = 1 << 1
	DoEraseRange      uint16 = 1 << 2
	DoBlankCheckRange uint16 = 1 << 3
	DoProgramRange    uint16 = 1 << 4
	DoVerifyRange     uint16 = 1 << 5
	DoUnlockFlash     uint16 = 1 << 6
	DoLockFlash       uint16 = 1 << 7
	DoTimingLoop      uint16 = 1 << 8
	IsComplete        uint16 = 1 << 15
)

// ErrHeaderLength is returned when a buffer does not hold exactly one header.
var ErrHeaderLength = errors.New("header: length mismatch")

// Task is the parameter/result block of program, erase and blank-check
// operations.
type Task struct {
	FlashOperation uint16
	ErrorCode      uint16
	Controller     uint32
	Frequency      uint16
	SectorSize     uint16
	Address        uint32
	DataSize       uint16
	Pad            uint16
	DataAddress    uint32
}

// Len returns the encoded size of the header.
func (h *Task) Len() uint32 { return TaskLen }

// Complete reports whether the routine has marked the task finished.
func (h *Task) Complete() bool { return h.FlashOperation&IsComplete != 0 }

// MarshalBinary implements encoding.BinaryMarshaler.
func (h *Task) MarshalBinary() ([]byte, error) {
	b := make([]byte, TaskLen)
	binary.LittleEndian.PutUint16(b[0:], h.FlashOperation)
	binary.LittleEndian.PutUint16(b[2:], h.ErrorCode)
	binary.LittleEndian.PutUint32(b[4:], h.Controller)
	binary.LittleEndian.PutUint16(b[8:], h.Frequency)
	binary.LittleEndian.PutUint16(b[10:], h.SectorSize)
	binary.LittleEndian.PutUint32(b[12:], h.Address)
	binary.LittleEndian.PutUint16(b[16:], h.DataSize)
	binary.LittleEndian.PutUint16(b[18:], h.Pad)
	binary.LittleEndian.PutUint32(b[20:], h.DataAddress)
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (h *Task) UnmarshalBinary(b []byte) error {
	if len(b) != TaskLen {
		return fmt.Errorf("task %w: got %d bytes, want %d", ErrHeaderLength, len(b), TaskLen)
	}
	h.FlashOperation = binary.LittleEndian.Uint16(b[0:])
	h.ErrorCode = binary.LittleEndian.Uint16(b[2:])
	h.Controller = binary.LittleEndian.Uint32(b[4:])
	h.Frequency = binary.LittleEndian.Uint16(b[8:])
	h.SectorSize = binary.LittleEndian.Uint16(b[10:])
	h.Address = binary.LittleEndian.Uint32(b[12:])
	h.DataSize = binary.LittleEndian.Uint16(b[16:])
	h.Pad = binary.LittleEndian.Uint16(b[18:])
	h.DataAddress = binary.LittleEndian.Uint32(b[20:])
	return nil
}

// Timing is the record used by the bus-speed measurement loop.
type Timing struct {
	FlashOperation uint16
	ErrorCode      uint16
	Controller     uint32
	Count          uint32
}

// Len returns the encoded size of the header.
func (h *Timing) Len() uint32 { return TimingLen }

// MarshalBinary implements encoding.BinaryMarshaler.
func (h *Timing) MarshalBinary() ([]byte, error) {
	b := make([]byte, TimingLen)
	binary.LittleEndian.PutUint16(b[0:], h.FlashOperation)
	binary.LittleEndian.PutUint16(b[2:], h.ErrorCode)
	binary.LittleEndian.PutUint32(b[4:], h.Controller)
	binary.LittleEndian.PutUint32(b[8:], h.Count)
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (h *Timing) UnmarshalBinary(b []byte) error {
	if len(b) != TimingLen {
		return fmt.Errorf("timing %w: got %d bytes, want %d", ErrHeaderLength, len(b), TimingLen)
	}
	h.FlashOperation = binary.LittleEndian.Uint16(b[0:])
	h.ErrorCode = binary.LittleEndian.Uint16(b[2:])
	h.Controller = binary.LittleEndian.Uint32(b[4:])
	h.Count = binary.LittleEndian.Uint32(b[8:])
	return nil
}

// OperationString names the bits set in op, e.g. "init|program|complete".
func OperationString(op uint16) string {
	names := []struct {
		bit  uint16
		name string
	}{
		{DoInitFlash, "init"},
		{DoEraseBlock, "erase-block"},
		{DoEraseRange, "erase-range"},
		{DoBlankCheckRange, "blank-check"},
		{DoProgramRange, "program"},
		{DoVerifyRange, "verify"},
		{DoUnlockFlash, "unlock"},
		{DoLockFlash, "lock"},
		{DoTimingLoop, "timing"},
		{IsComplete, "complete"},
	}
	s := ""
	for _, n := range names {
		if op&n.bit == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += n.name
	}
	if s == "" {
		return "none"
	}
	return s
}
