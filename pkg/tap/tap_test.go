package tap

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNextStateTable(t *testing.T) {
	type transition struct {
		start State
		tms   bool
		end   State
	}

	cases := []transition{
		{StateTestLogicReset, false, StateRunTestIdle},
		{StateTestLogicReset, true, StateTestLogicReset},
		{StateRunTestIdle, true, StateSelectDRScan},
		{StateSelectDRScan, false, StateCaptureDR},
		{StateShiftDR, true, StateExit1DR},
		{StateExit2DR, false, StateShiftDR},
		{StateSelectIRScan, true, StateTestLogicReset},
		{StateCaptureIR, false, StateShiftIR},
		{StatePauseIR, true, StateExit2IR},
		{StateExit2IR, true, StateUpdateIR},
		{State(42), false, StateTestLogicReset},
	}

	for _, tc := range cases {
		got := NextState(tc.start, tc.tms)
		if got != tc.end {
			t.Fatalf("NextState(%s, %v) = %s, want %s", tc.start, tc.tms, got, tc.end)
		}
	}
}

func TestStateMachineReset(t *testing.T) {
	m := NewStateMachine()
	if _, err := m.GoTo(StateShiftDR); err != nil {
		t.Fatalf("GoTo returned error: %v", err)
	}
	seq := m.Reset()

	if len(seq.TMS) != 5 || len(seq.States) != 6 {
		t.Fatalf("Reset sequence = %d bits / %d states", len(seq.TMS), len(seq.States))
	}
	if seq.States[0] != StateShiftDR || m.State() != StateTestLogicReset {
		t.Fatalf("reset went %s -> %s", seq.States[0], m.State())
	}
}

func TestGoToShiftIR(t *testing.T) {
	m := NewStateMachine()
	m.Clock(false) // Run-Test/Idle

	seq, err := m.GoTo(StateShiftIR)
	if err != nil {
		t.Fatalf("GoTo returned error: %v", err)
	}
	if diff := cmp.Diff([]bool{true, true, false, false}, seq.TMS); diff != "" {
		t.Fatalf("TMS mismatch (-want +got):\n%s", diff)
	}
	wantStates := []State{StateRunTestIdle, StateSelectDRScan, StateSelectIRScan, StateCaptureIR, StateShiftIR}
	if diff := cmp.Diff(wantStates, seq.States); diff != "" {
		t.Fatalf("states mismatch (-want +got):\n%s", diff)
	}
	if !m.Shifting() || m.Clocks() != 5 {
		t.Fatalf("state %s after %d clocks", m.State(), m.Clocks())
	}

	// Shift-IR to Run-Test/Idle exits through Update-IR
	seq, err = m.GoTo(StateRunTestIdle)
	if err != nil {
		t.Fatalf("GoTo RunTestIdle returned error: %v", err)
	}
	if diff := cmp.Diff([]bool{true, true, false}, seq.TMS); diff != "" {
		t.Fatalf("exit TMS mismatch (-want +got):\n%s", diff)
	}
	if m.Shifting() {
		t.Fatalf("still shifting in %s", m.State())
	}
}

func TestPathEveryStateReachable(t *testing.T) {
	for from := StateTestLogicReset; from <= StateUpdateIR; from++ {
		for to := StateTestLogicReset; to <= StateUpdateIR; to++ {
			seq, err := Path(from, to)
			if err != nil {
				t.Fatalf("Path(%s, %s) returned error: %v", from, to, err)
			}
			s := from
			for _, bit := range seq.TMS {
				s = NextState(s, bit)
			}
			if s != to {
				t.Fatalf("Path(%s, %s) ends in %s", from, to, s)
			}
			if len(seq.States) != len(seq.TMS)+1 {
				t.Fatalf("Path(%s, %s) has %d states for %d clocks", from, to, len(seq.States), len(seq.TMS))
			}
		}
	}
	if _, err := Path(StateRunTestIdle, State(16)); err == nil {
		t.Fatalf("expected error for invalid state")
	}
}

func TestStateString(t *testing.T) {
	if StateShiftIR.String() != "ShiftIR" || State(99).String() != "State(99)" {
		t.Fatalf("names: %s %s", StateShiftIR, State(99))
	}
}
