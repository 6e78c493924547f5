// Package once runs the JTAG sequences that reach the DSC on-chip debug
// (ONCE) module: the master TAP linking module, the core TAP behind it and
// the ONCE status reported in the core instruction capture.
package once

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceDSC/pkg/jtag"
)

// Master TAP (JTAG TAP linking module) instructions, 8-bit IR.
const (
	MasterIRLen   = 8
	TLMIDCode     = 0x02
	TLMSelect     = 0x05
	TLMBypass     = 0xFF
	tlmSelectLen  = 4
	TLMSelectCore = 0x2
)

// Core TAP instructions, 4-bit IR.
const (
	CoreIRLen         = 4
	CoreIDCode        = 0x2
	CoreEnableOnce    = 0x6
	CoreDebugRequest  = 0x7
	CoreBypass        = 0xF
	idCodeLen         = 32
	captureSignature  = 0x1
	captureSigMask    = 0x3
	captureStateShift = 2
)

// Status is the core state reported through the core TAP IR capture.
type Status uint8

const (
	UnknownMode Status = iota
	Executing
	StopWait
	Busy
	DebugMode
)

func (s Status) String() string {
	switch s {
	case UnknownMode:
		return "unknown"
	case Executing:
		return "executing"
	case StopWait:
		return "stop/wait"
	case Busy:
		return "busy"
	case DebugMode:
		return "debug"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// DecodeStatus interprets a core IR capture value. Captures without the
// fixed 01 signature in the low bits mean the core TAP is not reachable.
func DecodeStatus(capture byte) Status {
	if capture&captureSigMask != captureSignature {
		return UnknownMode
	}
	switch (capture >> captureStateShift) & 0x3 {
	case 0:
		return Executing
	case 1:
		return StopWait
	case 2:
		return Busy
	default:
		return DebugMode
	}
}

// EncodeStatus is the inverse of DecodeStatus, used by simulators.
func EncodeStatus(s Status) byte {
	switch s {
	case Executing:
		return 0<<captureStateShift | captureSignature
	case StopWait:
		return 1<<captureStateShift | captureSignature
	case Busy:
		return 2<<captureStateShift | captureSignature
	case DebugMode:
		return 3<<captureStateShift | captureSignature
	}
	return 0
}

func readID(a jtag.Adapter) (uint32, error) {
	tdo, err := a.ShiftDR(nil, make([]byte, idCodeLen/8), idCodeLen)
	if err != nil {
		return 0, err
	}
	return uint32(jtag.UnpackBits(tdo, idCodeLen)), nil
}

// ReadMasterID resets the TAP and reads the master (chip) IDCODE.
func ReadMasterID(a jtag.Adapter) (uint32, error) {
	if err := a.ResetTAP(false); err != nil {
		return 0, fmt.Errorf("once: reset TAP: %w", err)
	}
	if _, err := a.ShiftIR(nil, jtag.PackBits(TLMIDCode, MasterIRLen), MasterIRLen); err != nil {
		return 0, fmt.Errorf("once: select master IDCODE: %w", err)
	}
	id, err := readID(a)
	if err != nil {
		return 0, fmt.Errorf("once: read master IDCODE: %w", err)
	}
	log.Debugf("once: master IDCODE 0x%08X", id)
	return id, nil
}

// EnableCoreTAP switches the TAP linking module to the core TAP. Every
// following instruction goes to the 4-bit core IR.
func EnableCoreTAP(a jtag.Adapter) error {
	if _, err := a.ShiftIR(nil, jtag.PackBits(TLMSelect, MasterIRLen), MasterIRLen); err != nil {
		return fmt.Errorf("once: select TLM: %w", err)
	}
	if _, err := a.ShiftDR(nil, jtag.PackBits(TLMSelectCore, tlmSelectLen), tlmSelectLen); err != nil {
		return fmt.Errorf("once: enable core TAP: %w", err)
	}
	return nil
}

// ReadCoreID reads the core IDCODE. The core TAP must be enabled first.
func ReadCoreID(a jtag.Adapter) (uint32, error) {
	if _, err := a.ShiftIR(nil, jtag.PackBits(CoreIDCode, CoreIRLen), CoreIRLen); err != nil {
		return 0, fmt.Errorf("once: select core IDCODE: %w", err)
	}
	id, err := readID(a)
	if err != nil {
		return 0, fmt.Errorf("once: read core IDCODE: %w", err)
	}
	log.Debugf("once: core IDCODE 0x%08X", id)
	return id, nil
}

func coreInstruction(a jtag.Adapter, instr uint8) (Status, error) {
	tdo, err := a.ShiftIR(nil, jtag.PackBits(uint64(instr), CoreIRLen), CoreIRLen)
	if err != nil {
		return UnknownMode, err
	}
	if len(tdo) == 0 {
		return UnknownMode, nil
	}
	return DecodeStatus(tdo[0]), nil
}

// DebugRequest asks the core to enter debug mode and returns the status
// captured while the request was shifted in.
func DebugRequest(a jtag.Adapter) (Status, error) {
	st, err := coreInstruction(a, CoreDebugRequest)
	if err != nil {
		return UnknownMode, fmt.Errorf("once: debug request: %w", err)
	}
	return st, nil
}

// Enable arms the ONCE module for memory and register access.
func Enable(a jtag.Adapter) (Status, error) {
	st, err := coreInstruction(a, CoreEnableOnce)
	if err != nil {
		return UnknownMode, fmt.Errorf("once: enable: %w", err)
	}
	return st, nil
}

// ReadStatus samples the core status without changing it.
func ReadStatus(a jtag.Adapter) (Status, error) {
	st, err := coreInstruction(a, CoreBypass)
	if err != nil {
		return UnknownMode, fmt.Errorf("once: read status: %w", err)
	}
	return st, nil
}
