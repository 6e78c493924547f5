package jtag

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceDSC/pkg/tap"
)

// ShiftRegion identifies whether a shift operation targets the instruction or
// data register.
type ShiftRegion uint8

const (
	ShiftRegionIR ShiftRegion = iota
	ShiftRegionDR
)

func (r ShiftRegion) String() string {
	if r == ShiftRegionIR {
		return "IR"
	}
	return "DR"
}

// ShiftHook allows the simulator to emulate device-specific TDO behavior.
type ShiftHook func(region ShiftRegion, tms, tdi []byte, bits int) ([]byte, error)

// ShiftOp captures one shift invocation for inspection within tests.
type ShiftOp struct {
	Region ShiftRegion
	TMS    []byte
	TDI    []byte
	Bits   int
}

// SimAdapter is an in-memory adapter useful for unit tests. It records every
// shift request, walks a TAP state machine the way a probe would, and can
// provide deterministic TDO data via OnShift.
type SimAdapter struct {
	InfoData AdapterInfo
	SpeedHz  int

	OnShift ShiftHook

	history   []ShiftOp
	resets    int
	hardReset int
	tap       *tap.StateMachine
}

// NewSimAdapter constructs a simulator configured with the provided AdapterInfo.
func NewSimAdapter(info AdapterInfo) *SimAdapter {
	return &SimAdapter{InfoData: info, tap: tap.NewStateMachine()}
}

// TAPState returns the state the simulated TAP controller is in.
func (s *SimAdapter) TAPState() tap.State {
	return s.tap.State()
}

// Clocks returns the TCK cycles issued so far, including shifted bits.
func (s *SimAdapter) Clocks() int {
	return s.tap.Clocks()
}

// LastShift returns a copy of the most recent shift request.
func (s *SimAdapter) LastShift() ShiftOp {
	if len(s.history) == 0 {
		return ShiftOp{}
	}
	return copyShift(s.history[len(s.history)-1])
}

// History returns copies of all shift requests in issue order.
func (s *SimAdapter) History() []ShiftOp {
	out := make([]ShiftOp, len(s.history))
	for i, op := range s.history {
		out[i] = copyShift(op)
	}
	return out
}

// ResetCounts reports how many resets have been requested (soft as total,
// hardReset as subset).
func (s *SimAdapter) ResetCounts() (soft, hard int) {
	return s.resets, s.hardReset
}

func (s *SimAdapter) Info() (AdapterInfo, error) {
	return s.InfoData, nil
}

func (s *SimAdapter) ShiftIR(tms, tdi []byte, bits int) ([]byte, error) {
	return s.shift(ShiftRegionIR, tms, tdi, bits)
}

func (s *SimAdapter) ShiftDR(tms, tdi []byte, bits int) ([]byte, error) {
	return s.shift(ShiftRegionDR, tms, tdi, bits)
}

func (s *SimAdapter) ResetTAP(hard bool) error {
	s.tap.Reset()
	s.resets++
	if hard {
		s.hardReset++
	}
	return nil
}

func (s *SimAdapter) SetSpeed(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("jtag: invalid speed %dHz", hz)
	}
	s.SpeedHz = hz
	return nil
}

func (s *SimAdapter) shift(region ShiftRegion, tms, tdi []byte, bits int) ([]byte, error) {
	if _, err := ValidateShiftBuffers(tms, tdi, bits); err != nil {
		return nil, err
	}

	shiftState := tap.StateShiftDR
	if region == ShiftRegionIR {
		shiftState = tap.StateShiftIR
	}
	if _, err := s.tap.GoTo(shiftState); err != nil {
		return nil, err
	}
	// all but the last bit stay in the shift state; the last leaves it
	for i := 0; i < bits-1; i++ {
		s.tap.Clock(false)
	}
	if _, err := s.tap.GoTo(tap.StateRunTestIdle); err != nil {
		return nil, err
	}

	s.history = append(s.history, ShiftOp{
		Region: region,
		TMS:    append([]byte(nil), tms...),
		TDI:    append([]byte(nil), tdi...),
		Bits:   bits,
	})

	if s.OnShift != nil {
		return s.OnShift(region, tms, tdi, bits)
	}

	// Default: echo TDI to TDO to keep tests predictable.
	required := (bits + 7) / 8
	tdo := make([]byte, required)
	copy(tdo, tdi)
	return tdo, nil
}

func copyShift(op ShiftOp) ShiftOp {
	return ShiftOp{
		Region: op.Region,
		TMS:    append([]byte(nil), op.TMS...),
		TDI:    append([]byte(nil), op.TDI...),
		Bits:   op.Bits,
	}
}
