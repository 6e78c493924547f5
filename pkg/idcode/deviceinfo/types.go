package deviceinfo

import "github.com/OpenTraceLab/OpenTraceDSC/pkg/idcode"

// DeviceInfo describes the chip behind a master TAP ID.
type DeviceInfo struct {
	IDCode       idcode.IDCode
	Manufacturer idcode.Manufacturer

	Name        string // "MC56F8006"
	Family      string // flash routine family, "mc56f80xx"
	Description string
	Core        string // "56800E"

	FlashKB int
	RAMKB   int

	// Master TLM instruction register length
	IRLength int
	Known    bool
}
