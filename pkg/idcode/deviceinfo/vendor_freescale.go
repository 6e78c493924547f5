package deviceinfo

import "github.com/OpenTraceLab/OpenTraceDSC/pkg/idcode"

// Freescale/NXP 56800E digital signal controllers
func init() {
	const fsl = idcode.Freescale

	// MC56F800x
	register(key{ManufacturerCode: fsl, PartNumber: 0x1C1E}, DeviceInfo{
		Name:        "MC56F8002",
		Family:      "mc56f80xx",
		Description: "56800E DSC, 12 KB flash",
		Core:        "56800E",
		FlashKB:     12,
		RAMKB:       2,
		IRLength:    8,
	})
	register(key{ManufacturerCode: fsl, PartNumber: 0x1C06}, DeviceInfo{
		Name:        "MC56F8006",
		Family:      "mc56f80xx",
		Description: "56800E DSC, 16 KB flash",
		Core:        "56800E",
		FlashKB:     16,
		RAMKB:       2,
		IRLength:    8,
	})

	// MC56F827xx
	register(key{ManufacturerCode: fsl, PartNumber: 0xF48A}, DeviceInfo{
		Name:        "MC56F82723",
		Family:      "mc56f82xx",
		Description: "56800EX DSC, 32 KB flash",
		Core:        "56800EX",
		FlashKB:     32,
		RAMKB:       6,
		IRLength:    8,
	})
	register(key{ManufacturerCode: fsl, PartNumber: 0xF48C}, DeviceInfo{
		Name:        "MC56F82748",
		Family:      "mc56f82xx",
		Description: "56800EX DSC, 64 KB flash, 4 KB data flash",
		Core:        "56800EX",
		FlashKB:     64,
		RAMKB:       8,
		IRLength:    8,
	})
}
