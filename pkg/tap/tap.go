// Package tap models the IEEE 1149.1 TAP controller. The probe simulator
// uses it to check that JTAG commands arrive in a legal order.
package tap

import "fmt"

// State is one of the 16 TAP controller states.
type State uint8

const (
	StateTestLogicReset State = iota
	StateRunTestIdle
	StateSelectDRScan
	StateCaptureDR
	StateShiftDR
	StateExit1DR
	StatePauseDR
	StateExit2DR
	StateUpdateDR
	StateSelectIRScan
	StateCaptureIR
	StateShiftIR
	StateExit1IR
	StatePauseIR
	StateExit2IR
	StateUpdateIR

	numStates
)

var stateNames = [numStates]string{
	"TestLogicReset", "RunTestIdle",
	"SelectDRScan", "CaptureDR", "ShiftDR", "Exit1DR", "PauseDR", "Exit2DR", "UpdateDR",
	"SelectIRScan", "CaptureIR", "ShiftIR", "Exit1IR", "PauseIR", "Exit2IR", "UpdateIR",
}

func (s State) String() string {
	if s < numStates {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// next[s][tms] is the state after one TCK.
var next = [numStates][2]State{
	StateTestLogicReset: {StateRunTestIdle, StateTestLogicReset},
	StateRunTestIdle:    {StateRunTestIdle, StateSelectDRScan},
	StateSelectDRScan:   {StateCaptureDR, StateSelectIRScan},
	StateCaptureDR:      {StateShiftDR, StateExit1DR},
	StateShiftDR:        {StateShiftDR, StateExit1DR},
	StateExit1DR:        {StatePauseDR, StateUpdateDR},
	StatePauseDR:        {StatePauseDR, StateExit2DR},
	StateExit2DR:        {StateShiftDR, StateUpdateDR},
	StateUpdateDR:       {StateRunTestIdle, StateSelectDRScan},
	StateSelectIRScan:   {StateCaptureIR, StateTestLogicReset},
	StateCaptureIR:      {StateShiftIR, StateExit1IR},
	StateShiftIR:        {StateShiftIR, StateExit1IR},
	StateExit1IR:        {StatePauseIR, StateUpdateIR},
	StatePauseIR:        {StatePauseIR, StateExit2IR},
	StateExit2IR:        {StateShiftIR, StateUpdateIR},
	StateUpdateIR:       {StateRunTestIdle, StateSelectDRScan},
}

// NextState returns the state after clocking TCK once with tms. Out of range
// states go to Test-Logic-Reset.
func NextState(s State, tms bool) State {
	if s >= numStates {
		return StateTestLogicReset
	}
	if tms {
		return next[s][1]
	}
	return next[s][0]
}

// Sequence is a TMS pattern and the states it passes through, starting with
// the state it was applied in.
type Sequence struct {
	TMS    []bool
	States []State
}

// StateMachine tracks the TAP state of one target. It performs no I/O.
type StateMachine struct {
	state  State
	clocks int
}

// NewStateMachine returns a machine in Test-Logic-Reset, the power-on state.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateTestLogicReset}
}

// State reports the current state.
func (m *StateMachine) State() State {
	return m.state
}

// Clocks reports the TCK cycles applied so far.
func (m *StateMachine) Clocks() int {
	return m.clocks
}

// Shifting reports whether the machine is in Shift-IR or Shift-DR.
func (m *StateMachine) Shifting() bool {
	return m.state == StateShiftIR || m.state == StateShiftDR
}

// Clock applies one TCK with tms and returns the new state.
func (m *StateMachine) Clock(tms bool) State {
	m.state = NextState(m.state, tms)
	m.clocks++
	return m.state
}

// Reset clocks five TMS=1 cycles, which reaches Test-Logic-Reset from any
// state.
func (m *StateMachine) Reset() Sequence {
	seq := Sequence{TMS: make([]bool, 5), States: []State{m.state}}
	for i := range seq.TMS {
		seq.TMS[i] = true
		seq.States = append(seq.States, m.Clock(true))
	}
	return seq
}

// GoTo moves to target along the shortest path and returns the pattern used.
func (m *StateMachine) GoTo(target State) (Sequence, error) {
	seq, err := Path(m.state, target)
	if err != nil {
		return Sequence{}, err
	}
	for _, bit := range seq.TMS {
		m.Clock(bit)
	}
	return seq, nil
}

// Path finds the shortest TMS pattern from one state to another.
func Path(from, to State) (Sequence, error) {
	if from >= numStates || to >= numStates {
		return Sequence{}, fmt.Errorf("tap: no path from %s to %s", from, to)
	}
	if from == to {
		return Sequence{States: []State{from}}, nil
	}

	// breadth first over the 16 states; prev records how each was reached
	type edge struct {
		from State
		tms  bool
	}
	var prev [numStates]*edge
	var seen [numStates]bool
	seen[from] = true
	queue := []State{from}
	for len(queue) > 0 && !seen[to] {
		s := queue[0]
		queue = queue[1:]
		for _, tms := range []bool{false, true} {
			n := NextState(s, tms)
			if seen[n] {
				continue
			}
			seen[n] = true
			prev[n] = &edge{from: s, tms: tms}
			queue = append(queue, n)
		}
	}

	var seq Sequence
	for s := to; s != from; s = prev[s].from {
		seq.TMS = append([]bool{prev[s].tms}, seq.TMS...)
		seq.States = append([]State{s}, seq.States...)
	}
	seq.States = append([]State{from}, seq.States...)
	return seq, nil
}
