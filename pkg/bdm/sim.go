package bdm

import (
	"encoding/binary"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceDSC/pkg/header"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/memmap"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/once"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/tap"
)

// Flash error codes reported by the simulated flash routine.
const (
	simFlashErrParams = 2
	simFlashErrVerify = 5
	simFlashErrBlank  = 6
)

// SimRange is an inclusive word range.
type SimRange struct {
	Start uint32
	End   uint32
}

func (r SimRange) contains(addr uint32) bool {
	return addr >= r.Start && addr <= r.End
}

// SimConfig describes the simulated DSC behind the simulated probe.
type SimConfig struct {
	MasterID uint32
	CoreID   uint32
	Secured  bool

	// Flash lists the program-space ranges that behave as flash.
	Flash []SimRange
	// RoutineLoad is the program address where the flash routine metadata
	// is expected once uploaded.
	RoutineLoad uint32
	// BusKHz is the bus frequency reported by the timing loop.
	BusKHz uint32

	// DebugDelay is the number of debug requests answered before the core
	// enters debug mode.
	DebugDelay int
	// CoreLost, when positive, makes debug request number CoreLost and
	// every later one capture without the core signature.
	CoreLost int
	// RoutineDelay is the number of status polls that still see the core
	// executing after the routine starts.
	RoutineDelay int
	// Hang keeps the routine from ever running.
	Hang bool
	// DropCompletion runs the routine without setting the completion bit.
	DropCompletion bool

	ExternalPower bool
	PowerFault    bool
	// PowerSettle is the number of status reads that still report the old
	// supply level after a change.
	PowerSettle int

	// ReadHook may alter bytes returned by memory reads.
	ReadHook func(access memmap.Access, addr uint32, b byte) byte
}

type memKey struct {
	space memmap.Access
	addr  uint32 // byte address
}

// SimTransport is an in-memory probe and DSC target speaking the probe frame
// protocol. It is used by tests and by the CLI simulator adapter.
type SimTransport struct {
	cfg SimConfig

	mem map[memKey]byte

	target      TargetType
	vdd         Vdd
	reportedVdd Vdd
	settle      int

	pc       uint32
	status   once.Status
	running  int
	requests int

	coreEnabled bool
	tap         *tap.StateMachine
	masterIR    uint64
	coreIR      uint64

	pending []byte
	frames  [][]byte
	closed  bool
}

// NewSimTransport creates a simulator with the target powered off.
func NewSimTransport(cfg SimConfig) *SimTransport {
	return &SimTransport{
		cfg:      cfg,
		mem:      make(map[memKey]byte),
		target:   TargetOff,
		status:   once.Executing,
		masterIR: once.TLMIDCode,
		tap:      tap.NewStateMachine(),
	}
}

// TAPState returns the TAP controller state the simulated target is in.
func (s *SimTransport) TAPState() tap.State {
	return s.tap.State()
}

// Frames returns copies of every command frame written so far.
func (s *SimTransport) Frames() [][]byte {
	out := make([][]byte, len(s.frames))
	for i, f := range s.frames {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// Vdd reports the supply level currently driven.
func (s *SimTransport) Vdd() Vdd {
	return s.vdd
}

// Closed reports whether Close has been called.
func (s *SimTransport) Closed() bool {
	return s.closed
}

// Config gives tests access to the simulated target behaviour.
func (s *SimTransport) Config() *SimConfig {
	return &s.cfg
}

// Poke stores bytes directly, bypassing flash protection.
func (s *SimTransport) Poke(space memmap.Access, addr uint32, data []byte) {
	base := byteAddr(space, addr)
	for i, b := range data {
		s.mem[memKey{space.Space(), base + uint32(i)}] = b
	}
}

// Peek reads bytes directly.
func (s *SimTransport) Peek(space memmap.Access, addr uint32, n int) []byte {
	base := byteAddr(space, addr)
	out := make([]byte, n)
	for i := range out {
		out[i] = s.load(space.Space(), base+uint32(i))
	}
	return out
}

func byteAddr(access memmap.Access, addr uint32) uint32 {
	if access.Size() >= 2 {
		return addr * 2
	}
	return addr
}

func (s *SimTransport) isFlash(space memmap.Access, byteAddr uint32) bool {
	if space != memmap.SpaceProgram {
		return false
	}
	word := byteAddr / 2
	for _, r := range s.cfg.Flash {
		if r.contains(word) {
			return true
		}
	}
	return false
}

func (s *SimTransport) load(space memmap.Access, addr uint32) byte {
	if b, ok := s.mem[memKey{space, addr}]; ok {
		return b
	}
	if s.isFlash(space, addr) {
		return 0xFF
	}
	return 0x00
}

func (s *SimTransport) powered() bool {
	return s.vdd != VddOff || s.cfg.ExternalPower
}

// Write executes one command frame and queues its response.
func (s *SimTransport) Write(frame []byte) error {
	if s.closed {
		return ErrClosed
	}
	s.frames = append(s.frames, append([]byte(nil), frame...))
	cmd, params, err := DecodeFrame(frame)
	if err != nil {
		s.pending = []byte{byte(RCIllegalParams)}
		return nil
	}
	data, st := s.dispatch(cmd, params)
	s.pending = append([]byte{byte(st)}, data...)
	return nil
}

// Read returns the response to the last command.
func (s *SimTransport) Read(n int) ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}
	resp := s.pending
	s.pending = nil
	return CheckResponse(resp, n)
}

// ControlTransfer answers version queries.
func (s *SimTransport) ControlTransfer(req ControlRequest) ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if req.Request != CmdGetVer {
		return CheckResponse([]byte{byte(RCIllegalCommand)}, 0)
	}
	return CheckResponse([]byte{byte(RCOK), 0x4C, 0x0A, 0x4C, 0x0A}, req.Length-1)
}

// Close marks the transport closed.
func (s *SimTransport) Close() error {
	s.closed = true
	return nil
}

func (s *SimTransport) dispatch(cmd byte, p []byte) ([]byte, Status) {
	switch cmd {
	case CmdSetTarget:
		if len(p) < 1 {
			return nil, RCIllegalParams
		}
		if TargetType(p[0]) != TargetMC56F80xx && TargetType(p[0]) != TargetOff {
			return nil, RCUnknownTarget
		}
		s.target = TargetType(p[0])
		return nil, RCOK

	case CmdGetCapabilities:
		return []byte{0x00, 0x9F}, RCOK

	case CmdSetVdd:
		if len(p) < 1 || p[0] > byte(Vdd5V) {
			return nil, RCIllegalParams
		}
		s.setVdd(Vdd(p[0]))
		return nil, RCOK

	case CmdGetBDMStatus:
		word := NewStatusWord(s.powerSense(), s.currentStatus() == once.DebugMode)
		out := make([]byte, 2)
		binary.BigEndian.PutUint16(out, uint16(word))
		return out, RCOK

	case CmdSetSpeed:
		return nil, RCOK
	}

	if !s.powered() {
		return nil, RCVddNotPresent
	}

	switch cmd {
	case CmdTargetReset:
		s.resetCore()
		return nil, RCOK

	case CmdJTAGGotoReset:
		s.tap.Reset()
		s.coreEnabled = false
		s.masterIR = once.TLMIDCode
		return nil, RCOK

	case CmdJTAGGotoShift:
		if len(p) < 1 {
			return nil, RCIllegalParams
		}
		want := tap.StateShiftDR
		switch p[0] {
		case ShiftDR:
		case ShiftIR:
			want = tap.StateShiftIR
		default:
			return nil, RCIllegalParams
		}
		if _, err := s.tap.GoTo(want); err != nil {
			return nil, RCFail
		}
		return nil, RCOK

	case CmdJTAGReadWrite:
		if len(p) < 2 {
			return nil, RCIllegalParams
		}
		bits := int(p[1])
		if bits == 0 || len(p)-2 < (bits+7)/8 {
			return nil, RCIllegalParams
		}
		if p[0] != ExitIdle && p[0] != ExitShift {
			return nil, RCIllegalParams
		}
		if !s.tap.Shifting() {
			return nil, RCJTAGIllegalSequence
		}
		out := s.shift(p[2:], bits)
		if p[0] == ExitIdle {
			if _, err := s.tap.GoTo(tap.StateRunTestIdle); err != nil {
				return nil, RCFail
			}
		}
		return out, RCOK

	case CmdTargetHalt:
		s.running = 0
		s.status = once.DebugMode
		return nil, RCOK

	case CmdTargetGo:
		return nil, s.goTarget()

	case CmdWriteReg:
		if len(p) < 6 {
			return nil, RCIllegalParams
		}
		if s.currentStatus() != once.DebugMode {
			return nil, RCTargetBusy
		}
		if binary.BigEndian.Uint16(p) == RegPC {
			s.pc = binary.BigEndian.Uint32(p[2:])
		}
		return nil, RCOK

	case CmdReadReg:
		if len(p) < 2 {
			return nil, RCIllegalParams
		}
		out := make([]byte, 4)
		if binary.BigEndian.Uint16(p) == RegPC {
			binary.BigEndian.PutUint32(out, s.pc)
		}
		return out, RCOK

	case CmdReadMem:
		if len(p) < 6 {
			return nil, RCIllegalParams
		}
		if s.currentStatus() != once.DebugMode {
			return nil, RCTargetBusy
		}
		access := memmap.Access(p[0])
		count := int(p[1])
		addr := binary.BigEndian.Uint32(p[2:])
		out := s.Peek(access, addr, count)
		if s.cfg.ReadHook != nil {
			for i := range out {
				out[i] = s.cfg.ReadHook(access, addr, out[i])
			}
		}
		return out, RCOK

	case CmdWriteMem:
		if len(p) < 6 {
			return nil, RCIllegalParams
		}
		if s.currentStatus() != once.DebugMode {
			return nil, RCTargetBusy
		}
		access := memmap.Access(p[0])
		count := int(p[1])
		addr := binary.BigEndian.Uint32(p[2:])
		if len(p)-6 < count {
			return nil, RCIllegalParams
		}
		base := byteAddr(access, addr)
		for i := 0; i < count; i++ {
			a := base + uint32(i)
			// flash is only changed by the flash routine
			if s.isFlash(access.Space(), a) {
				continue
			}
			s.mem[memKey{access.Space(), a}] = p[6+i]
		}
		return nil, RCOK
	}

	return nil, RCIllegalCommand
}

func (s *SimTransport) setVdd(level Vdd) {
	if level == s.vdd {
		return
	}
	if s.vdd != VddOff && level == VddOff && !s.cfg.ExternalPower {
		s.powerCycle()
	}
	s.reportedVdd = s.vdd
	s.vdd = level
	s.settle = s.cfg.PowerSettle
}

// powerCycle drops RAM contents and core state; flash survives.
func (s *SimTransport) powerCycle() {
	for k := range s.mem {
		if !s.isFlash(k.space, k.addr) {
			delete(s.mem, k)
		}
	}
	// power-on reset puts the TAP in Test-Logic-Reset
	s.tap = tap.NewStateMachine()
	s.resetCore()
}

func (s *SimTransport) resetCore() {
	s.status = once.Executing
	s.running = 0
	s.requests = 0
	s.coreEnabled = false
	s.masterIR = once.TLMIDCode
}

func (s *SimTransport) powerSense() PowerSense {
	if s.cfg.PowerFault {
		return PowerError
	}
	level := s.vdd
	if s.settle > 0 {
		s.settle--
		level = s.reportedVdd
	}
	switch {
	case level != VddOff:
		return PowerInternal
	case s.cfg.ExternalPower:
		return PowerExternal
	}
	return PowerNone
}

func (s *SimTransport) currentStatus() once.Status {
	if s.running > 0 {
		return once.Executing
	}
	return s.status
}

func (s *SimTransport) shift(tdi []byte, bits int) []byte {
	value := jtag.UnpackBits(tdi, bits)
	if s.tap.State() == tap.StateShiftIR {
		if !s.coreEnabled {
			s.masterIR = value
			return jtag.PackBits(0x01, bits)
		}
		s.coreIR = value
		return jtag.PackBits(uint64(s.coreInstruction(value)), bits)
	}

	if !s.coreEnabled {
		switch s.masterIR {
		case once.TLMIDCode:
			return jtag.PackBits(uint64(s.cfg.MasterID), bits)
		case once.TLMSelect:
			if value == once.TLMSelectCore {
				s.coreEnabled = true
			}
		}
		return make([]byte, (bits+7)/8)
	}
	if s.coreIR == once.CoreIDCode && !s.cfg.Secured {
		return jtag.PackBits(uint64(s.cfg.CoreID), bits)
	}
	return make([]byte, (bits+7)/8)
}

// coreInstruction returns the IR capture for instr and applies its effect.
func (s *SimTransport) coreInstruction(instr uint64) byte {
	if s.cfg.Secured {
		return 0x00
	}
	if instr == once.CoreBypass && s.running > 0 {
		s.running--
		return once.EncodeStatus(once.Executing)
	}
	capture := once.EncodeStatus(s.currentStatus())
	if instr == once.CoreDebugRequest && s.status != once.DebugMode {
		s.requests++
		if s.cfg.CoreLost > 0 && s.requests >= s.cfg.CoreLost {
			return 0x00
		}
		if s.requests > s.cfg.DebugDelay {
			s.running = 0
			s.status = once.DebugMode
		}
	}
	return capture
}

func (s *SimTransport) goTarget() Status {
	if s.currentStatus() != once.DebugMode {
		return RCTargetBusy
	}
	s.status = once.Executing

	var md header.Routine
	if err := md.UnmarshalBinary(s.Peek(memmap.ProgramWord, s.cfg.RoutineLoad, header.RoutineLen)); err != nil {
		return RCOK
	}
	if md.EntryAddress != s.pc || md.LoadAddress != s.cfg.RoutineLoad {
		log.Debugf("bdm: sim running user code at 0x%06X", s.pc)
		return RCOK
	}
	if s.cfg.Hang {
		return RCOK
	}

	s.runRoutine(md)
	s.status = once.DebugMode
	s.running = s.cfg.RoutineDelay
	return RCOK
}

func (s *SimTransport) runRoutine(md header.Routine) {
	op := binary.LittleEndian.Uint16(s.Peek(memmap.DataWord, md.HeaderAddress, 2))
	if op&header.DoTimingLoop != 0 {
		var h header.Timing
		_ = h.UnmarshalBinary(s.Peek(memmap.DataWord, md.HeaderAddress, header.TimingLen))
		h.Count = s.timingCount(md)
		h.ErrorCode = 0
		if !s.cfg.DropCompletion {
			h.FlashOperation |= header.IsComplete
		}
		b, _ := h.MarshalBinary()
		s.Poke(memmap.DataWord, md.HeaderAddress, b)
		return
	}

	var h header.Task
	_ = h.UnmarshalBinary(s.Peek(memmap.DataWord, md.HeaderAddress, header.TaskLen))
	h.ErrorCode = s.flashTask(&h)
	if !s.cfg.DropCompletion {
		h.FlashOperation |= header.IsComplete
	}
	b, _ := h.MarshalBinary()
	s.Poke(memmap.DataWord, md.HeaderAddress, b)
}

func (s *SimTransport) timingCount(md header.Routine) uint32 {
	if md.CalibFrequency == 0 || s.cfg.BusKHz <= 20 {
		return 0
	}
	return uint32(math.Round(float64(s.cfg.BusKHz-20) * float64(md.CalibFactor) / float64(md.CalibFrequency)))
}

func (s *SimTransport) flashRange(addr uint32) (SimRange, bool) {
	for _, r := range s.cfg.Flash {
		if r.contains(addr) {
			return r, true
		}
	}
	return SimRange{}, false
}

func (s *SimTransport) flashTask(h *header.Task) uint16 {
	words := uint32(h.DataSize)
	if h.FlashOperation&(header.DoEraseRange|header.DoBlankCheckRange|header.DoProgramRange|header.DoVerifyRange) != 0 {
		r, ok := s.flashRange(h.Address)
		if !ok || words == 0 || !r.contains(h.Address+words-1) {
			return simFlashErrParams
		}
	}

	if h.FlashOperation&header.DoEraseBlock != 0 {
		r, ok := s.flashRange(h.Address)
		if !ok {
			return simFlashErrParams
		}
		s.erase(r.Start, r.End-r.Start+1)
	}
	if h.FlashOperation&header.DoEraseRange != 0 {
		s.erase(h.Address, words)
	}
	if h.FlashOperation&header.DoBlankCheckRange != 0 {
		for _, b := range s.Peek(memmap.ProgramWord, h.Address, int(words)*2) {
			if b != 0xFF {
				return simFlashErrBlank
			}
		}
	}
	if h.FlashOperation&header.DoProgramRange != 0 {
		src := s.Peek(memmap.DataWord, h.DataAddress, int(words)*2)
		cur := s.Peek(memmap.ProgramWord, h.Address, len(src))
		for i := range src {
			cur[i] &= src[i]
		}
		s.Poke(memmap.ProgramWord, h.Address, cur)
	}
	if h.FlashOperation&header.DoVerifyRange != 0 {
		src := s.Peek(memmap.DataWord, h.DataAddress, int(words)*2)
		cur := s.Peek(memmap.ProgramWord, h.Address, len(src))
		for i := range src {
			if src[i] != cur[i] {
				return simFlashErrVerify
			}
		}
	}
	return 0
}

func (s *SimTransport) erase(addr, words uint32) {
	base := addr * 2
	for i := uint32(0); i < words*2; i++ {
		delete(s.mem, memKey{memmap.SpaceProgram, base + i})
	}
}

var _ Transport = (*SimTransport)(nil)
