package dsc

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Family holds the behaviour that differs between DSC flash controllers.
type Family interface {
	Name() string
	// IsUnsecure classifies the core ID read over JTAG.
	IsUnsecure(coreID, expected uint32) SecurityStatus
	// InitForWriteErase prepares the flash controller before a write or
	// erase.
	InitForWriteErase(t *Target) error
	MassErase(t *Target) error
}

// A secured core hides its ID and reads as zero.
func classifyCoreID(coreID, expected uint32) SecurityStatus {
	switch {
	case coreID == expected:
		return Unsecured
	case coreID == 0:
		return Secured
	}
	return SecurityUnknown
}

func familyFor(name string) (Family, error) {
	switch strings.ToLower(name) {
	case "mc56f80xx":
		return mc56f80xx{}, nil
	case "mc56f82xx":
		return mc56f82xx{}, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownFamily, name)
}

// mc56f80xx parts use the FM flash controller clocked from the bus, so the
// bus frequency is measured before the first write or erase.
type mc56f80xx struct{}

func (mc56f80xx) Name() string { return "mc56f80xx" }

func (mc56f80xx) IsUnsecure(coreID, expected uint32) SecurityStatus {
	return classifyCoreID(coreID, expected)
}

func (mc56f80xx) InitForWriteErase(t *Target) error {
	if t.engine.Frequency() != 0 {
		return nil
	}
	khz, err := t.engine.MeasureSpeed()
	if err != nil {
		return fmt.Errorf("dsc: measure bus speed: %w", err)
	}
	log.Infof("dsc: FM clock from %d kHz bus", khz)
	return nil
}

func (f mc56f80xx) MassErase(t *Target) error {
	if err := f.InitForWriteErase(t); err != nil {
		return err
	}
	for _, seg := range t.flashSegments() {
		log.Infof("dsc: erasing %s", seg)
		if err := t.engine.EraseBlock(seg.Start); err != nil {
			return fmt.Errorf("dsc: erase %s: %w", seg.Name, err)
		}
	}
	sec := t.desc.SecurityBytes
	if len(sec) == 0 {
		return nil
	}
	log.Debugf("dsc: restoring security bytes at P:0x%06X", t.desc.SecurityAddress)
	if err := t.engine.WriteProgramMemory(sec, t.desc.SecurityAddress, nil); err != nil {
		return fmt.Errorf("dsc: write security bytes: %w", err)
	}
	return nil
}

// mc56f82xx parts use the FTFA controller with its own clock; only the RAM
// the routine runs from is checked before flash work.
type mc56f82xx struct{}

func (mc56f82xx) Name() string { return "mc56f82xx" }

func (mc56f82xx) IsUnsecure(coreID, expected uint32) SecurityStatus {
	return classifyCoreID(coreID, expected)
}

func (mc56f82xx) InitForWriteErase(t *Target) error {
	return t.ramTest()
}

func (f mc56f82xx) MassErase(t *Target) error {
	if err := f.InitForWriteErase(t); err != nil {
		return err
	}
	for _, seg := range t.flashSegments() {
		log.Infof("dsc: erasing %s", seg)
		if err := t.engine.EraseRange(seg.Start, seg.Words()); err != nil {
			return fmt.Errorf("dsc: erase %s: %w", seg.Name, err)
		}
	}
	return nil
}
