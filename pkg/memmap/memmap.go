package memmap

import (
	"fmt"
	"strings"
)

// Access combines an access width with the address space it targets. The
// values match the memory-space byte of the probe's memory commands.
type Access uint8

const (
	SizeByte Access = 0x01
	SizeWord Access = 0x02
	SizeLong Access = 0x04

	SpaceProgram Access = 0x10
	SpaceData    Access = 0x20

	sizeMask  Access = 0x07
	spaceMask Access = 0x70
)

const (
	ProgramByte = SpaceProgram | SizeByte
	ProgramWord = SpaceProgram | SizeWord
	ProgramLong = SpaceProgram | SizeLong
	DataByte    = SpaceData | SizeByte
	DataWord    = SpaceData | SizeWord
	DataLong    = SpaceData | SizeLong
)

var accessNames = map[Access]string{
	ProgramByte: "pbyte",
	ProgramWord: "pword",
	ProgramLong: "plong",
	DataByte:    "xbyte",
	DataWord:    "xword",
	DataLong:    "xlong",
}

// Size reports the access width in bytes.
func (a Access) Size() int {
	return int(a & sizeMask)
}

// Space strips the width, leaving SpaceProgram, SpaceData or zero.
func (a Access) Space() Access {
	return a & spaceMask
}

func (a Access) String() string {
	if name, ok := accessNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Access(0x%02X)", uint8(a))
}

// ParseAccess converts names such as "pword" or "xbyte" into an Access.
func ParseAccess(s string) (Access, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for a, name := range accessNames {
		if name == key {
			return a, nil
		}
	}
	return 0, fmt.Errorf("memmap: unknown access type %q", s)
}

// Kind tags the memory a segment describes.
type Kind uint8

const (
	Ram Kind = iota
	DataEeprom
	FlashProgram
)

func (k Kind) String() string {
	switch k {
	case Ram:
		return "ram"
	case DataEeprom:
		return "eeprom"
	case FlashProgram:
		return "flash"
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// ParseKind converts "ram", "eeprom" or "flash" into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ram":
		return Ram, nil
	case "eeprom", "dataeeprom", "data-eeprom":
		return DataEeprom, nil
	case "flash", "flashprogram", "program-flash":
		return FlashProgram, nil
	}
	return 0, fmt.Errorf("memmap: unknown segment kind %q", s)
}

// Segment is one contiguous region of the target address space. Start and
// End are inclusive word addresses.
type Segment struct {
	Kind   Kind
	Name   string
	Start  uint32
	End    uint32
	Access Access
}

// Contains reports whether addr lies inside the segment and access targets
// the same address space. An access without a space matches any segment.
func (s Segment) Contains(addr uint32, access Access) bool {
	if addr < s.Start || addr > s.End {
		return false
	}
	if sp := access.Space(); sp != 0 && sp != s.Access.Space() {
		return false
	}
	return true
}

// Words returns the number of addressable units in the segment.
func (s Segment) Words() uint32 {
	return s.End - s.Start + 1
}

// Bytes returns the segment size in bytes. Word and long segments are
// addressed in 16-bit words.
func (s Segment) Bytes() int {
	if s.Access.Size() >= 2 {
		return int(s.Words()) * 2
	}
	return int(s.Words())
}

func (s Segment) String() string {
	name := s.Name
	if name == "" {
		name = s.Kind.String()
	}
	return fmt.Sprintf("%s [0x%06X-0x%06X] %s", name, s.Start, s.End, s.Access)
}

// Map is the ordered memory map of one target.
type Map []Segment

// Find returns the first segment containing addr for the given access.
func (m Map) Find(addr uint32, access Access) (Segment, bool) {
	for _, s := range m {
		if s.Contains(addr, access) {
			return s, true
		}
	}
	return Segment{}, false
}

// First returns the first segment of the given kind.
func (m Map) First(kind Kind) (Segment, bool) {
	for _, s := range m {
		if s.Kind == kind {
			return s, true
		}
	}
	return Segment{}, false
}

// OfKind returns every segment of the given kind, in map order.
func (m Map) OfKind(kind Kind) []Segment {
	var out []Segment
	for _, s := range m {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// ContainsRange reports whether [addr, addr+words) lies inside a single
// segment of the given kind.
func (m Map) ContainsRange(kind Kind, addr, words uint32, access Access) bool {
	if words == 0 {
		return false
	}
	for _, s := range m {
		if s.Kind != kind || !s.Contains(addr, access) {
			continue
		}
		return addr+words-1 <= s.End
	}
	return false
}

// Validate checks every segment has a non-empty range and a known access
// width.
func (m Map) Validate() error {
	for i, s := range m {
		if s.End < s.Start {
			return fmt.Errorf("memmap: segment %d (%s) ends before it starts", i, s.Name)
		}
		switch s.Access.Size() {
		case 1, 2, 4:
		default:
			return fmt.Errorf("memmap: segment %d (%s) has invalid access %s", i, s.Name, s.Access)
		}
	}
	return nil
}
