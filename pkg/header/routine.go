package header

import (
	"encoding/binary"
	"fmt"
)

const RoutineLen = 24

// Capability bits advertised by a flash routine.
const (
	CapBlankCheckRange uint32 = 1 << 3
	CapEraseBlock      uint32 = 1 << 1
	CapEraseRange      uint32 = 1 << 2
	CapProgramRange    uint32 = 1 << 4
	CapVerifyRange     uint32 = 1 << 5
	CapTimingLoop      uint32 = 1 << 8
)

// Routine is the metadata record at the start of every flash routine image.
// Addresses are word addresses.
type Routine struct {
	LoadAddress    uint32
	EntryAddress   uint32
	Capabilities   uint32
	CalibFrequency uint32
	CalibFactor    uint32
	HeaderAddress  uint32
}

// Len returns the encoded size of the record.
func (h *Routine) Len() uint32 { return RoutineLen }

// MarshalBinary implements encoding.BinaryMarshaler.
func (h *Routine) MarshalBinary() ([]byte, error) {
	b := make([]byte, RoutineLen)
	binary.LittleEndian.PutUint32(b[0:], h.LoadAddress)
	binary.LittleEndian.PutUint32(b[4:], h.EntryAddress)
	binary.LittleEndian.PutUint32(b[8:], h.Capabilities)
	binary.LittleEndian.PutUint32(b[12:], h.CalibFrequency)
	binary.LittleEndian.PutUint32(b[16:], h.CalibFactor)
	binary.LittleEndian.PutUint32(b[20:], h.HeaderAddress)
	return b, nil
}

// UnmarshalBinary decodes the first RoutineLen bytes of b; trailing bytes
// (the routine code) are ignored.
func (h *Routine) UnmarshalBinary(b []byte) error {
	if len(b) < RoutineLen {
		return fmt.Errorf("routine %w: got %d bytes, want at least %d", ErrHeaderLength, len(b), RoutineLen)
	}
	h.LoadAddress = binary.LittleEndian.Uint32(b[0:])
	h.EntryAddress = binary.LittleEndian.Uint32(b[4:])
	h.Capabilities = binary.LittleEndian.Uint32(b[8:])
	h.CalibFrequency = binary.LittleEndian.Uint32(b[12:])
	h.CalibFactor = binary.LittleEndian.Uint32(b[16:])
	h.HeaderAddress = binary.LittleEndian.Uint32(b[20:])
	return nil
}
