package bdm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/OpenTraceLab/OpenTraceDSC/pkg/memmap"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/once"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/tap"
)

func newSimProbe(t *testing.T, cfg SimConfig) (*Probe, *SimTransport) {
	t.Helper()
	sim := NewSimTransport(cfg)
	p, err := NewProbe(sim)
	if err != nil {
		t.Fatalf("NewProbe returned error: %v", err)
	}
	return p, sim
}

// haltedProbe powers the simulated target and puts the core in debug mode.
func haltedProbe(t *testing.T, cfg SimConfig) (*Probe, *SimTransport) {
	t.Helper()
	p, sim := newSimProbe(t, cfg)
	if err := p.SetVdd(Vdd3V3); err != nil {
		t.Fatalf("SetVdd returned error: %v", err)
	}
	if err := p.Halt(); err != nil {
		t.Fatalf("Halt returned error: %v", err)
	}
	return p, sim
}

func TestFrameCodec(t *testing.T) {
	frame := EncodeFrame(CmdSetVdd, byte(Vdd5V))
	if diff := cmp.Diff([]byte{3, CmdSetVdd, 2}, frame); diff != "" {
		t.Fatalf("EncodeFrame mismatch (-want +got):\n%s", diff)
	}
	cmd, params, err := DecodeFrame(frame)
	if err != nil || cmd != CmdSetVdd || !bytes.Equal(params, []byte{2}) {
		t.Fatalf("DecodeFrame = %d %v %v", cmd, params, err)
	}
	if _, _, err := DecodeFrame([]byte{5, 1}); err == nil {
		t.Fatalf("expected length byte mismatch error")
	}
}

func TestCheckResponse(t *testing.T) {
	if _, err := CheckResponse(nil, 0); !errors.Is(err, ErrShortResponse) {
		t.Fatalf("empty response error = %v", err)
	}
	_, err := CheckResponse([]byte{byte(RCVddNotPresent)}, 0)
	var st Status
	if !errors.As(err, &st) || st != RCVddNotPresent {
		t.Fatalf("status error = %v, want RCVddNotPresent", err)
	}
	if _, err := CheckResponse([]byte{0, 1}, 2); !errors.Is(err, ErrShortResponse) {
		t.Fatalf("truncated payload error = %v", err)
	}
	data, err := CheckResponse([]byte{0, 0xAA, 0xBB, 0xCC}, 2)
	if err != nil || !bytes.Equal(data, []byte{0xAA, 0xBB}) {
		t.Fatalf("CheckResponse = %X, %v", data, err)
	}
}

func TestStatusText(t *testing.T) {
	if got := RCTargetBusy.Error(); got != "bdm: target is busy (not in debug mode) (rc=29)" {
		t.Fatalf("unexpected text %q", got)
	}
	if got := Status(99).Error(); got != "bdm: unknown return code 99" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestStatusWord(t *testing.T) {
	w := NewStatusWord(PowerInternal, true)
	if w.Power() != PowerInternal || !w.Halted() || w.ResetAsserted() {
		t.Fatalf("status word 0x%04X decoded as %s halted=%v reset=%v", uint16(w), w.Power(), w.Halted(), w.ResetAsserted())
	}
	if NewStatusWord(PowerError, false).Power() != PowerError {
		t.Fatalf("power error not preserved")
	}
}

func TestParseVdd(t *testing.T) {
	cases := map[string]Vdd{"off": VddOff, "3.3": Vdd3V3, "3V3": Vdd3V3, "5": Vdd5V}
	for in, want := range cases {
		got, err := ParseVdd(in)
		if err != nil || got != want {
			t.Fatalf("ParseVdd(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParseVdd("12"); err == nil {
		t.Fatalf("expected error for 12")
	}
}

func TestProbeVersionAndInfo(t *testing.T) {
	p, _ := newSimProbe(t, SimConfig{})
	if p.Version().BDMHardware != 0x0A {
		t.Fatalf("version = %+v", p.Version())
	}
	info, err := p.Info()
	if err != nil {
		t.Fatalf("Info returned error: %v", err)
	}
	if !info.SupportsSRST || info.MaxFrequency == 0 {
		t.Fatalf("unexpected info %+v", info)
	}
	if err := p.SetSpeed(1); err == nil {
		t.Fatalf("expected out of range speed error")
	}
	if err := p.SetSpeed(1_000_000); err != nil {
		t.Fatalf("SetSpeed returned error: %v", err)
	}
}

func TestMemoryNeedsPower(t *testing.T) {
	p, _ := newSimProbe(t, SimConfig{})
	_, err := p.ReadMemory(memmap.DataWord, 0, 2)
	if !errors.Is(err, RCVddNotPresent) {
		t.Fatalf("read without power error = %v, want RCVddNotPresent", err)
	}
}

func TestMemoryNeedsDebugMode(t *testing.T) {
	p, _ := newSimProbe(t, SimConfig{})
	if err := p.SetVdd(Vdd3V3); err != nil {
		t.Fatalf("SetVdd returned error: %v", err)
	}
	err := p.WriteMemory(memmap.DataWord, 0, []byte{1, 2})
	if !errors.Is(err, RCTargetBusy) {
		t.Fatalf("write while running error = %v, want RCTargetBusy", err)
	}
}

func TestMemoryChunking(t *testing.T) {
	p, sim := haltedProbe(t, SimConfig{})
	data := make([]byte, 150)
	for i := range data {
		data[i] = byte(i)
	}
	before := len(sim.Frames())
	if err := p.WriteMemory(memmap.DataWord, 0x100, data); err != nil {
		t.Fatalf("WriteMemory returned error: %v", err)
	}
	if got := len(sim.Frames()) - before; got != 3 {
		t.Fatalf("expected 3 write frames, got %d", got)
	}
	got, err := p.ReadMemory(memmap.DataWord, 0x100, len(data))
	if err != nil {
		t.Fatalf("ReadMemory returned error: %v", err)
	}
	if diff := cmp.Diff(data, got); diff != "" {
		t.Fatalf("memory mismatch (-want +got):\n%s", diff)
	}
	// word 0x101 holds bytes 2 and 3
	if b := sim.Peek(memmap.DataWord, 0x101, 2); !bytes.Equal(b, []byte{2, 3}) {
		t.Fatalf("word addressing broken: %X", b)
	}
}

func TestByteAccessUsesByteAddresses(t *testing.T) {
	p, sim := haltedProbe(t, SimConfig{})
	if err := p.WriteMemory(memmap.DataByte, 0x201, []byte{0xA5}); err != nil {
		t.Fatalf("WriteMemory returned error: %v", err)
	}
	if b := sim.Peek(memmap.DataWord, 0x100, 2); !bytes.Equal(b, []byte{0x00, 0xA5}) {
		t.Fatalf("byte write landed wrong: %X", b)
	}
}

func TestFlashIgnoresDirectWrites(t *testing.T) {
	p, _ := haltedProbe(t, SimConfig{Flash: []SimRange{{Start: 0, End: 0x7FFF}}})
	if err := p.WriteMemory(memmap.ProgramWord, 0x10, []byte{0, 0}); err != nil {
		t.Fatalf("WriteMemory returned error: %v", err)
	}
	got, err := p.ReadMemory(memmap.ProgramWord, 0x10, 2)
	if err != nil {
		t.Fatalf("ReadMemory returned error: %v", err)
	}
	if !bytes.Equal(got, []byte{0xFF, 0xFF}) {
		t.Fatalf("flash changed by direct write: %X", got)
	}
}

func TestPowerCycleClearsRAM(t *testing.T) {
	p, sim := haltedProbe(t, SimConfig{})
	if err := p.WriteMemory(memmap.DataWord, 0, []byte{1, 2}); err != nil {
		t.Fatalf("WriteMemory returned error: %v", err)
	}
	if err := p.SetVdd(VddOff); err != nil {
		t.Fatalf("SetVdd returned error: %v", err)
	}
	if !bytes.Equal(sim.Peek(memmap.DataWord, 0, 2), []byte{0, 0}) {
		t.Fatalf("RAM survived power off")
	}
	st, err := p.Status()
	if err != nil || st.Power() != PowerNone {
		t.Fatalf("status after power off = %s, %v", st.Power(), err)
	}
}

func TestPowerSettle(t *testing.T) {
	p, _ := newSimProbe(t, SimConfig{PowerSettle: 1})
	if err := p.SetVdd(Vdd3V3); err != nil {
		t.Fatalf("SetVdd returned error: %v", err)
	}
	st, _ := p.Status()
	if st.Power() != PowerNone {
		t.Fatalf("first status = %s, want stale none", st.Power())
	}
	st, _ = p.Status()
	if st.Power() != PowerInternal {
		t.Fatalf("second status = %s, want internal", st.Power())
	}
}

func TestProbeRunsONCESequences(t *testing.T) {
	p, sim := newSimProbe(t, SimConfig{MasterID: 0x1C02601D, CoreID: 0x02211004, DebugDelay: 1})
	if err := p.SetVdd(Vdd3V3); err != nil {
		t.Fatalf("SetVdd returned error: %v", err)
	}
	master, err := once.ReadMasterID(p)
	if err != nil || master != 0x1C02601D {
		t.Fatalf("ReadMasterID = 0x%08X, %v", master, err)
	}
	if err := once.EnableCoreTAP(p); err != nil {
		t.Fatalf("EnableCoreTAP returned error: %v", err)
	}
	core, err := once.ReadCoreID(p)
	if err != nil || core != 0x02211004 {
		t.Fatalf("ReadCoreID = 0x%08X, %v", core, err)
	}

	want := []once.Status{once.Executing, once.Executing, once.DebugMode}
	for i, w := range want {
		st, err := once.DebugRequest(p)
		if err != nil || st != w {
			t.Fatalf("debug request %d = %s, %v; want %s", i, st, err, w)
		}
	}

	// every shift is a GOTOSHIFT followed by a READ_WRITE
	var shifts int
	for _, f := range sim.Frames() {
		if f[1] == CmdJTAGReadWrite {
			shifts++
		}
	}
	if shifts != 9 {
		t.Fatalf("expected 9 JTAG shifts, got %d", shifts)
	}
}

func TestSimTracksTAPState(t *testing.T) {
	p, sim := newSimProbe(t, SimConfig{MasterID: 0x1C02601D})
	if err := p.SetVdd(Vdd3V3); err != nil {
		t.Fatalf("SetVdd returned error: %v", err)
	}
	if sim.TAPState() != tap.StateTestLogicReset {
		t.Fatalf("TAP state after power up = %s", sim.TAPState())
	}

	// a data shift without GOTOSHIFT is out of sequence
	_, err := p.exec(CmdJTAGReadWrite, 1, ExitIdle, 8, 0x00)
	var st Status
	if !errors.As(err, &st) || st != RCJTAGIllegalSequence {
		t.Fatalf("unsequenced shift error = %v", err)
	}

	if _, err := once.ReadMasterID(p); err != nil {
		t.Fatalf("ReadMasterID returned error: %v", err)
	}
	if sim.TAPState() != tap.StateRunTestIdle {
		t.Fatalf("TAP state after shift = %s, want RunTestIdle", sim.TAPState())
	}

	if _, err := p.exec(CmdJTAGGotoShift, 0, ShiftDR); err != nil {
		t.Fatalf("GOTOSHIFT returned error: %v", err)
	}
	if _, err := p.exec(CmdJTAGReadWrite, 1, ExitShift, 8, 0x00); err != nil {
		t.Fatalf("shift returned error: %v", err)
	}
	if sim.TAPState() != tap.StateShiftDR {
		t.Fatalf("TAP state after ExitShift = %s, want ShiftDR", sim.TAPState())
	}

	if err := p.ResetTAP(false); err != nil {
		t.Fatalf("ResetTAP returned error: %v", err)
	}
	if sim.TAPState() != tap.StateTestLogicReset {
		t.Fatalf("TAP state after reset = %s", sim.TAPState())
	}
}

func TestSecuredCoreHidesID(t *testing.T) {
	p, _ := newSimProbe(t, SimConfig{MasterID: 0x1C02601D, CoreID: 0x02211004, Secured: true})
	_ = p.SetVdd(Vdd3V3)
	if _, err := once.ReadMasterID(p); err != nil {
		t.Fatalf("ReadMasterID returned error: %v", err)
	}
	_ = once.EnableCoreTAP(p)
	core, err := once.ReadCoreID(p)
	if err != nil || core != 0 {
		t.Fatalf("secured core ID = 0x%08X, %v; want 0", core, err)
	}
}

func TestRegistersAndClose(t *testing.T) {
	p, sim := haltedProbe(t, SimConfig{})
	if err := p.WritePC(0x8040); err != nil {
		t.Fatalf("WritePC returned error: %v", err)
	}
	pc, err := p.ReadReg(RegPC)
	if err != nil || pc != 0x8040 {
		t.Fatalf("ReadReg(PC) = 0x%X, %v", pc, err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if !sim.Closed() {
		t.Fatalf("transport not closed")
	}
	if _, err := p.Capabilities(); !errors.Is(err, ErrClosed) {
		t.Fatalf("command after close error = %v", err)
	}
}
