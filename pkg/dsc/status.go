// Package dsc connects to a DSC through a BDM/JTAG probe and runs memory,
// flash and self-test operations on it.
package dsc

import (
	"errors"
	"fmt"
)

var (
	ErrTargetSecured      = errors.New("dsc: target is secured")
	ErrTargetNotConnected = errors.New("dsc: target not connected")
	ErrRAMTestFault       = errors.New("dsc: RAM self-test failed")
	ErrPowerState         = errors.New("dsc: target power did not reach requested state")
	ErrVerify             = errors.New("dsc: verify failed")
	ErrOutsideFlash       = errors.New("dsc: address range not in program flash")
	ErrUnknownFamily      = errors.New("dsc: unknown family")
	ErrNoDataRAM          = errors.New("dsc: no data RAM segment")
)

// SecurityStatus is the result of comparing the core ID against the
// database value.
type SecurityStatus uint8

const (
	SecurityUnknown SecurityStatus = iota
	Secured
	Unsecured
)

func (s SecurityStatus) String() string {
	switch s {
	case SecurityUnknown:
		return "unknown"
	case Secured:
		return "secured"
	case Unsecured:
		return "unsecured"
	}
	return fmt.Sprintf("SecurityStatus(%d)", uint8(s))
}

// PowerStatus is the target supply as seen by the probe.
type PowerStatus uint8

const (
	PowerOff PowerStatus = iota
	PowerOn
)

func (p PowerStatus) String() string {
	if p == PowerOn {
		return "on"
	}
	return "off"
}

// State is the connection state of a Target.
type State uint8

const (
	StateNotConnected State = iota
	StateConnecting
	StateConnected
	StateSecured
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateNotConnected:
		return "not connected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSecured:
		return "secured"
	case StateErrored:
		return "error"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}
