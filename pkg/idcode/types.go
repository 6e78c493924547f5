package idcode

import "fmt"

// IDCode represents a parsed IEEE 1149.1 JTAG IDCODE
type IDCode struct {
	Raw              uint32 // full IDCODE
	Version          uint8  // [31:28]
	PartNumber       uint16 // [27:12]
	ManufacturerCode uint16 // [11:1] JEP106
	HasIDCode        bool   // bit 0 == 1
}

// Manufacturer represents a JEP106 manufacturer entry
type Manufacturer struct {
	Code         uint16 // JEP106 code
	Name         string // "Freescale (Motorola)"
	Abbreviation string // "Freescale"
}

// String formats the ID with its manufacturer, part and revision.
func (i IDCode) String() string {
	m, _ := LookupManufacturer(i.ManufacturerCode)
	return fmt.Sprintf("0x%08X (Mfg: %s, Part: 0x%04X, Rev: %d)", i.Raw, m.Abbreviation, i.PartNumber, i.Version)
}

// SamePart reports whether two IDs name the same part, ignoring the
// silicon revision nibble.
func (i IDCode) SamePart(other IDCode) bool {
	return i.ManufacturerCode == other.ManufacturerCode && i.PartNumber == other.PartNumber
}
