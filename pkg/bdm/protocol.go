package bdm

import (
	"encoding/binary"
	"fmt"
)

// Probe command codes. Every command frame is [len, cmd, params...].
const (
	CmdGetCommandResponse = 0
	CmdSetTarget          = 1
	CmdSetVdd             = 2
	CmdDebug              = 3
	CmdGetBDMStatus       = 4
	CmdGetCapabilities    = 5
	CmdSetOptions         = 6
	CmdControlPins        = 8
	CmdGetVer             = 12
	CmdConnect            = 15
	CmdSetSpeed           = 16
	CmdGetSpeed           = 17
	CmdReadStatusReg      = 20
	CmdWriteControlReg    = 21
	CmdTargetReset        = 22
	CmdTargetStep         = 23
	CmdTargetGo           = 24
	CmdTargetHalt         = 25
	CmdWriteReg           = 26
	CmdReadReg            = 27
	CmdWriteMem           = 32
	CmdReadMem            = 33
	CmdJTAGGotoReset      = 35
	CmdJTAGGotoShift      = 36
	CmdJTAGWrite          = 37
	CmdJTAGRead           = 38
	CmdJTAGReadWrite      = 40
)

var commandNames = map[byte]string{
	CmdGetCommandResponse: "GET_COMMAND_RESPONSE",
	CmdSetTarget:          "SET_TARGET",
	CmdSetVdd:             "SET_VDD",
	CmdDebug:              "DEBUG",
	CmdGetBDMStatus:       "GET_BDM_STATUS",
	CmdGetCapabilities:    "GET_CAPABILITIES",
	CmdSetOptions:         "SET_OPTIONS",
	CmdControlPins:        "CONTROL_PINS",
	CmdGetVer:             "GET_VER",
	CmdConnect:            "CONNECT",
	CmdSetSpeed:           "SET_SPEED",
	CmdGetSpeed:           "GET_SPEED",
	CmdReadStatusReg:      "READ_STATUS_REG",
	CmdWriteControlReg:    "WRITE_CONTROL_REG",
	CmdTargetReset:        "TARGET_RESET",
	CmdTargetStep:         "TARGET_STEP",
	CmdTargetGo:           "TARGET_GO",
	CmdTargetHalt:         "TARGET_HALT",
	CmdWriteReg:           "WRITE_REG",
	CmdReadReg:            "READ_REG",
	CmdWriteMem:           "WRITE_MEM",
	CmdReadMem:            "READ_MEM",
	CmdJTAGGotoReset:      "JTAG_GOTORESET",
	CmdJTAGGotoShift:      "JTAG_GOTOSHIFT",
	CmdJTAGWrite:          "JTAG_WRITE",
	CmdJTAGRead:           "JTAG_READ",
	CmdJTAGReadWrite:      "JTAG_READ_WRITE",
}

// CommandName returns the mnemonic of a command code.
func CommandName(cmd byte) string {
	if name, ok := commandNames[cmd]; ok {
		return name
	}
	return fmt.Sprintf("CMD_%d", cmd)
}

// TargetType selects the debug interface personality of the probe.
type TargetType uint8

const (
	TargetHCS12     TargetType = 0
	TargetHCS08     TargetType = 1
	TargetRS08      TargetType = 2
	TargetCFV1      TargetType = 3
	TargetCFVx      TargetType = 4
	TargetJTAG      TargetType = 5
	TargetEZFlash   TargetType = 6
	TargetMC56F80xx TargetType = 7
	TargetOff       TargetType = 0xFF
)

// Vdd is the target supply level requested from the probe.
type Vdd uint8

const (
	VddOff Vdd = 0
	Vdd3V3 Vdd = 1
	Vdd5V  Vdd = 2
)

func (v Vdd) String() string {
	switch v {
	case VddOff:
		return "off"
	case Vdd3V3:
		return "3.3V"
	case Vdd5V:
		return "5V"
	}
	return fmt.Sprintf("Vdd(%d)", uint8(v))
}

// ParseVdd converts "off", "3.3"/"3v3" or "5" into a Vdd level.
func ParseVdd(s string) (Vdd, error) {
	switch s {
	case "off", "0", "none":
		return VddOff, nil
	case "3.3", "3v3", "3.3V", "3V3", "3":
		return Vdd3V3, nil
	case "5", "5v", "5V":
		return Vdd5V, nil
	}
	return 0, fmt.Errorf("bdm: unknown power level %q", s)
}

// JTAG shift selectors for CmdJTAGGotoShift.
const (
	ShiftDR = 0
	ShiftIR = 1
)

// JTAG exit actions for CmdJTAGWrite/Read/ReadWrite.
const (
	ExitShift = 0
	ExitIdle  = 1
)

// Register numbers for CmdWriteReg / CmdReadReg.
const (
	RegPC uint16 = 0x01
)

// Reset modes for CmdTargetReset.
const (
	ResetSpecial  = 0x00
	ResetNormal   = 0x01
	ResetHardware = 0x04
)

// StatusWord is the 16-bit probe status returned by CmdGetBDMStatus.
type StatusWord uint16

const (
	statusAcknowledge = 1 << 3
	statusResetState  = 1 << 4
	statusHalt        = 1 << 6
	statusPowerShift  = 11
	statusPowerMask   = 0x3 << statusPowerShift
)

// PowerSense is the probe's view of the target supply.
type PowerSense uint8

const (
	PowerNone     PowerSense = 0
	PowerExternal PowerSense = 1
	PowerInternal PowerSense = 2
	PowerError    PowerSense = 3
)

func (p PowerSense) String() string {
	switch p {
	case PowerNone:
		return "none"
	case PowerExternal:
		return "external"
	case PowerInternal:
		return "internal"
	case PowerError:
		return "error"
	}
	return fmt.Sprintf("PowerSense(%d)", uint8(p))
}

// Power extracts the 2-bit power sensor field.
func (s StatusWord) Power() PowerSense {
	return PowerSense((uint16(s) & statusPowerMask) >> statusPowerShift)
}

// ResetAsserted reports whether the target reset line is low.
func (s StatusWord) ResetAsserted() bool {
	return uint16(s)&statusResetState == 0
}

// Halted reports whether the probe last saw the target halted.
func (s StatusWord) Halted() bool {
	return uint16(s)&statusHalt != 0
}

// NewStatusWord composes a status word, used by the simulator.
func NewStatusWord(power PowerSense, halted bool) StatusWord {
	v := uint16(power)<<statusPowerShift | statusAcknowledge | statusResetState
	if halted {
		v |= statusHalt
	}
	return StatusWord(v)
}

// EncodeFrame builds a command frame.
func EncodeFrame(cmd byte, params ...byte) []byte {
	frame := make([]byte, 0, 2+len(params))
	frame = append(frame, byte(2+len(params)), cmd)
	return append(frame, params...)
}

// DecodeFrame splits a command frame into command and parameters.
func DecodeFrame(frame []byte) (cmd byte, params []byte, err error) {
	if len(frame) < 2 {
		return 0, nil, fmt.Errorf("bdm: frame too short (%d bytes)", len(frame))
	}
	if int(frame[0]) != len(frame) {
		return 0, nil, fmt.Errorf("bdm: frame length byte %d, have %d bytes", frame[0], len(frame))
	}
	return frame[1], frame[2:], nil
}

func memoryParams(access byte, addr uint32, count int) []byte {
	p := make([]byte, 6)
	p[0] = access
	p[1] = byte(count)
	binary.BigEndian.PutUint32(p[2:], addr)
	return p
}

// Version is the probe firmware/hardware identification.
type Version struct {
	BDMSoftware byte
	BDMHardware byte
	ICPSoftware byte
	ICPHardware byte
}

func (v Version) String() string {
	return fmt.Sprintf("BDM SW %d.%d.%d HW 0x%02X, ICP SW %d.%d.%d HW 0x%02X",
		v.BDMSoftware>>4, (v.BDMSoftware>>2)&0x3, v.BDMSoftware&0x3, v.BDMHardware,
		v.ICPSoftware>>4, (v.ICPSoftware>>2)&0x3, v.ICPSoftware&0x3, v.ICPHardware)
}
