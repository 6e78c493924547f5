package dsc

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/OpenTraceLab/OpenTraceDSC/pkg/bdm"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/memmap"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/once"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/routine"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/srec"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/targetdb"
)

type harness struct {
	target *Target
	sim    *bdm.SimTransport
	slept  []time.Duration
}

func (h *harness) sleeps(d time.Duration) int {
	n := 0
	for _, s := range h.slept {
		if s == d {
			n++
		}
	}
	return n
}

func simConfigFor(t *testing.T, desc *targetdb.Target) bdm.SimConfig {
	t.Helper()
	cfg, err := SimConfig(desc)
	if err != nil {
		t.Fatalf("SimConfig returned error: %v", err)
	}
	return cfg
}

func newHarness(t *testing.T, name string, mutate func(*bdm.SimConfig), opts ...Option) *harness {
	t.Helper()
	db, err := targetdb.Default()
	if err != nil {
		t.Fatalf("Default returned error: %v", err)
	}
	desc, err := db.Lookup(name)
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	cfg := simConfigFor(t, desc)
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{sim: bdm.NewSimTransport(cfg)}
	p, err := bdm.NewProbe(h.sim)
	if err != nil {
		t.Fatalf("NewProbe returned error: %v", err)
	}
	opts = append([]Option{WithSleep(func(d time.Duration) { h.slept = append(h.slept, d) })}, opts...)
	h.target, err = New(p, desc, opts...)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return h
}

func TestConnect(t *testing.T) {
	h := newHarness(t, "MC56F8006", nil)
	if err := h.target.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	tgt := h.target
	if tgt.State() != StateConnected || tgt.Security() != Unsecured {
		t.Fatalf("state %s security %s", tgt.State(), tgt.Security())
	}
	if tgt.ONCEStatus() != once.DebugMode || tgt.PowerStatus() != PowerOn {
		t.Fatalf("once %s power %s", tgt.ONCEStatus(), tgt.PowerStatus())
	}
	master, core := tgt.IDs()
	if master != 0x01C0601D || core != 0x02211004 {
		t.Fatalf("IDs = 0x%08X 0x%08X", master, core)
	}
	if h.sim.Vdd() != bdm.Vdd3V3 {
		t.Fatalf("Vdd = %s", h.sim.Vdd())
	}
	if tgt.Family() != "mc56f80xx" {
		t.Fatalf("family = %s", tgt.Family())
	}
}

func TestConnectWithPowerLevel(t *testing.T) {
	h := newHarness(t, "MC56F8006", nil, WithPower(bdm.Vdd5V))
	if err := h.target.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if h.sim.Vdd() != bdm.Vdd5V {
		t.Fatalf("Vdd = %s, want 5V", h.sim.Vdd())
	}
}

func TestPowerSettleRetry(t *testing.T) {
	h := newHarness(t, "MC56F8006", func(c *bdm.SimConfig) { c.PowerSettle = 1 })
	if err := h.target.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	// one supply settle delay plus one debug request poll
	if n := h.sleeps(50 * time.Millisecond); n != 2 {
		t.Fatalf("expected two 50ms delays, got %d", n)
	}

	// calling Power again at the same level sends nothing
	before := len(h.sim.Frames())
	if err := h.target.Power(bdm.Vdd3V3); err != nil {
		t.Fatalf("Power returned error: %v", err)
	}
	frames := h.sim.Frames()[before:]
	if len(frames) != 1 || frames[0][1] != bdm.CmdGetBDMStatus {
		t.Fatalf("idempotent Power sent %d frame(s)", len(frames))
	}
}

func TestPowerStateErrors(t *testing.T) {
	h := newHarness(t, "MC56F8006", func(c *bdm.SimConfig) { c.PowerSettle = 2 })
	if err := h.target.Connect(); !errors.Is(err, ErrPowerState) {
		t.Fatalf("slow supply error = %v, want ErrPowerState", err)
	}
	if h.target.State() != StateErrored {
		t.Fatalf("state = %s, want error", h.target.State())
	}

	h = newHarness(t, "MC56F8006", func(c *bdm.SimConfig) { c.PowerFault = true })
	if err := h.target.Connect(); !errors.Is(err, ErrPowerState) {
		t.Fatalf("supply fault error = %v, want ErrPowerState", err)
	}
}

func TestExternalPowerStaysOn(t *testing.T) {
	h := newHarness(t, "MC56F8006", func(c *bdm.SimConfig) { c.ExternalPower = true })
	if err := h.target.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if h.sim.Vdd() != bdm.VddOff {
		t.Fatalf("probe drove Vdd %s on an externally powered target", h.sim.Vdd())
	}
	if err := h.target.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}

func TestDebugRequestRetries(t *testing.T) {
	h := newHarness(t, "MC56F8006", func(c *bdm.SimConfig) { c.DebugDelay = 3 })
	if err := h.target.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if n := h.sleeps(50 * time.Millisecond); n != 4 {
		t.Fatalf("expected 4 poll delays, got %d", n)
	}

	h = newHarness(t, "MC56F8006", func(c *bdm.SimConfig) { c.DebugDelay = 20 })
	if err := h.target.Connect(); !errors.Is(err, ErrTargetNotConnected) {
		t.Fatalf("stuck core error = %v", err)
	}
	if n := h.sleeps(50 * time.Millisecond); n != 10 {
		t.Fatalf("expected 10 poll delays, got %d", n)
	}
}

func TestDebugRequestUnknownModeFailsFast(t *testing.T) {
	cases := []struct {
		name   string
		lost   int
		sleeps int
	}{
		{"first request", 1, 0},
		{"third request", 3, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, "MC56F8006", func(c *bdm.SimConfig) {
				c.DebugDelay = 5
				c.CoreLost = tc.lost
			})
			err := h.target.Connect()
			if !errors.Is(err, ErrTargetNotConnected) || !strings.Contains(err.Error(), "not responding") {
				t.Fatalf("Connect error = %v", err)
			}
			if n := h.sleeps(50 * time.Millisecond); n != tc.sleeps {
				t.Fatalf("expected %d poll delays, got %d", tc.sleeps, n)
			}
			if h.target.ONCEStatus() != once.UnknownMode {
				t.Fatalf("ONCE status = %s, want unknown", h.target.ONCEStatus())
			}
		})
	}
}

func TestUnknownSecurityProceeds(t *testing.T) {
	h := newHarness(t, "MC56F8006", func(c *bdm.SimConfig) { c.CoreID = 0x0BADC0DE })
	if err := h.target.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if h.target.Security() != SecurityUnknown || h.target.State() != StateConnected {
		t.Fatalf("security %s state %s", h.target.Security(), h.target.State())
	}
}

func TestConnectWithoutJTAGID(t *testing.T) {
	h := newHarness(t, "MC56F8006", func(c *bdm.SimConfig) { c.MasterID = 0 })
	if err := h.target.Connect(); !errors.Is(err, ErrTargetNotConnected) {
		t.Fatalf("Connect error = %v, want ErrTargetNotConnected", err)
	}
	if h.target.State() != StateErrored {
		t.Fatalf("state = %s", h.target.State())
	}
}

func TestConnectAcceptsNewerRevision(t *testing.T) {
	h := newHarness(t, "MC56F8006", func(c *bdm.SimConfig) { c.MasterID = 0x11C0601D })
	if err := h.target.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if master, _ := h.target.IDs(); master != 0x11C0601D {
		t.Fatalf("master ID = 0x%08X", master)
	}
}

func TestClassifyCoreID(t *testing.T) {
	cases := []struct {
		core, expected uint32
		want           SecurityStatus
	}{
		{0x02211004, 0x02211004, Unsecured},
		{0, 0x02211004, Secured},
		{0x12345678, 0x02211004, SecurityUnknown},
	}
	for _, tc := range cases {
		for _, f := range []Family{mc56f80xx{}, mc56f82xx{}} {
			if got := f.IsUnsecure(tc.core, tc.expected); got != tc.want {
				t.Fatalf("%s.IsUnsecure(0x%X, 0x%X) = %s, want %s", f.Name(), tc.core, tc.expected, got, tc.want)
			}
		}
	}
	if _, err := familyFor("hcs08"); !errors.Is(err, ErrUnknownFamily) {
		t.Fatalf("unknown family error = %v", err)
	}
}

func TestSecuredTargetRefusesWithoutTraffic(t *testing.T) {
	h := newHarness(t, "MC56F8006", func(c *bdm.SimConfig) { c.Secured = true })
	if err := h.target.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if h.target.State() != StateSecured || h.target.Security() != Secured {
		t.Fatalf("state %s security %s", h.target.State(), h.target.Security())
	}

	before := len(h.sim.Frames())
	block := []srec.DataBlock{{Start: 0x100, Data: []byte{1, 2}}}
	ops := map[string]func() error{
		"read":  func() error { _, err := h.target.ReadMemory(memmap.DataWord, 0, 2); return err },
		"write": func() error { return h.target.WriteMemory(memmap.DataWord, 0, []byte{0, 0}) },
		"program": func() error {
			return h.target.Program(block)
		},
		"erase":       func() error { return h.target.Erase(0, 0x100) },
		"mass erase":  h.target.MassErase,
		"blank check": func() error { _, err := h.target.BlankCheck(); return err },
		"verify":      func() error { return h.target.Verify(block) },
		"ram test":    h.target.RAMTest,
		"speed":       func() error { _, err := h.target.MeasureSpeed(); return err },
		"read flash":  func() error { _, err := h.target.ReadFlash(); return err },
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, ErrTargetSecured) {
			t.Fatalf("%s on secured target error = %v", name, err)
		}
	}
	if after := len(h.sim.Frames()); after != before {
		t.Fatalf("secured target saw %d probe command(s)", after-before)
	}
}

func TestProgramVerifyMassErase80xx(t *testing.T) {
	var progress []routine.Progress
	h := newHarness(t, "MC56F8006", nil, WithProgress(func(p routine.Progress) { progress = append(progress, p) }))
	tgt := h.target

	blank, err := tgt.BlankCheck()
	if err != nil || !blank {
		t.Fatalf("fresh flash blank = %v, %v", blank, err)
	}

	first := bytes.Repeat([]byte{0x12, 0x34}, 600)
	second := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	blocks := []srec.DataBlock{{Start: 0x0000, Data: first}, {Start: 0x1000, Data: second}}
	if err := tgt.Program(blocks); err != nil {
		t.Fatalf("Program returned error: %v", err)
	}
	if tgt.Frequency() != 32000 {
		t.Fatalf("frequency = %d, want measured 32000", tgt.Frequency())
	}
	if n := h.sleeps(time.Second); n != 1 {
		t.Fatalf("expected one timing loop, got %d", n)
	}
	want := []routine.Progress{
		{Phase: "program", Done: 992, Total: 1204},
		{Phase: "program", Done: 1200, Total: 1204},
		{Phase: "program", Done: 1204, Total: 1204},
	}
	if diff := cmp.Diff(want, progress); diff != "" {
		t.Fatalf("progress mismatch (-want +got):\n%s", diff)
	}
	if err := tgt.Verify(blocks); err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if len(tgt.Buffer()) != 2 {
		t.Fatalf("buffer holds %d blocks", len(tgt.Buffer()))
	}

	bad := []srec.DataBlock{{Start: 0x1000, Data: []byte{0xDE, 0xAD, 0xBE, 0xEE}}}
	err = tgt.Verify(bad)
	if !errors.Is(err, ErrVerify) || !strings.Contains(err.Error(), "P:0x001001") {
		t.Fatalf("verify mismatch error = %v", err)
	}

	if err := tgt.MassErase(); err != nil {
		t.Fatalf("MassErase returned error: %v", err)
	}
	got, err := tgt.ReadMemory(memmap.ProgramWord, 0x1FF7, 4)
	if err != nil {
		t.Fatalf("ReadMemory returned error: %v", err)
	}
	if !bytes.Equal(got, []byte{0xE7, 0x0A, 0xE7, 0x0A}) {
		t.Fatalf("security bytes after mass erase = % X", got)
	}
	if got := h.sim.Peek(memmap.ProgramWord, 0x1000, 4); !bytes.Equal(got, []byte{0xFF, 0xFF, 0xFF, 0xFF}) {
		t.Fatalf("flash not erased: % X", got)
	}
}

func TestProgramAndErase82xx(t *testing.T) {
	h := newHarness(t, "MC56F82748", nil)
	tgt := h.target
	data := bytes.Repeat([]byte{0xA5, 0x5A}, 32)
	if err := tgt.Program([]srec.DataBlock{{Start: 0x7000, Data: data}}); err != nil {
		t.Fatalf("Program returned error: %v", err)
	}
	if tgt.Frequency() != 0 {
		t.Fatalf("82xx should not measure bus speed")
	}
	if got := h.sim.Peek(memmap.ProgramWord, 0x7000, len(data)); !bytes.Equal(got, data) {
		t.Fatalf("flash contents differ")
	}
	if blank, _ := tgt.BlankCheck(); blank {
		t.Fatalf("programmed flash reported blank")
	}
	if err := tgt.Erase(0x7000, 32); err != nil {
		t.Fatalf("Erase returned error: %v", err)
	}
	if blank, _ := tgt.BlankCheck(); !blank {
		t.Fatalf("flash not blank after Erase")
	}
	if err := tgt.Program([]srec.DataBlock{{Start: 0x10, Data: data}}); err != nil {
		t.Fatalf("Program returned error: %v", err)
	}
	if err := tgt.MassErase(); err != nil {
		t.Fatalf("MassErase returned error: %v", err)
	}
	if blank, _ := tgt.BlankCheck(); !blank {
		t.Fatalf("flash not blank after MassErase")
	}
}

func TestRAMTest(t *testing.T) {
	h := newHarness(t, "MC56F8006", nil)
	if err := h.target.RAMTest(); err != nil {
		t.Fatalf("RAMTest returned error: %v", err)
	}
	if got := h.sim.Peek(memmap.DataWord, 0x20*9, len(ramTestPattern)); !bytes.Equal(got, ramTestPattern) {
		t.Fatalf("pattern missing at last address: % X", got)
	}

	h = newHarness(t, "MC56F8006", func(c *bdm.SimConfig) {
		c.ReadHook = func(access memmap.Access, addr uint32, b byte) byte {
			if access == memmap.DataWord && addr == 0x40 {
				return b ^ 0x01
			}
			return b
		}
	})
	err := h.target.RAMTest()
	if !errors.Is(err, ErrRAMTestFault) || !strings.Contains(err.Error(), "X:0x000040") {
		t.Fatalf("faulty RAM error = %v", err)
	}
	// the test stops at the first fault
	for _, addr := range []uint32{0x60, 0x20 * 9} {
		if got := h.sim.Peek(memmap.DataWord, addr, len(ramTestPattern)); !bytes.Equal(got, make([]byte, len(ramTestPattern))) {
			t.Fatalf("X:0x%X written after the fault: % X", addr, got)
		}
	}
}

func TestRAMTestGuards82xxFlashWork(t *testing.T) {
	h := newHarness(t, "MC56F82748", func(c *bdm.SimConfig) {
		c.ReadHook = func(access memmap.Access, addr uint32, b byte) byte {
			if access == memmap.DataWord && addr == 0 {
				return 0
			}
			return b
		}
	})
	err := h.target.Erase(0, 0x200)
	if !errors.Is(err, ErrRAMTestFault) {
		t.Fatalf("erase with bad RAM error = %v", err)
	}
}

func TestAddressChecks(t *testing.T) {
	h := newHarness(t, "MC56F8006", nil)
	tgt := h.target
	err := tgt.Program([]srec.DataBlock{{Start: 0x1FFF, Data: []byte{1, 2, 3, 4}}})
	if !errors.Is(err, ErrOutsideFlash) {
		t.Fatalf("program past flash end error = %v", err)
	}
	if err := tgt.Erase(0x8000, 4); !errors.Is(err, ErrOutsideFlash) {
		t.Fatalf("erase of RAM error = %v", err)
	}
	if err := tgt.WriteMemory(memmap.ProgramWord, 0x10, []byte{0, 0}); err == nil {
		t.Fatalf("expected error writing flash directly")
	}
	if err := tgt.WriteMemory(memmap.DataWord, 0x300, []byte{0xCA, 0xFE}); err != nil {
		t.Fatalf("WriteMemory returned error: %v", err)
	}
	got, err := tgt.ReadMemory(memmap.DataWord, 0x300, 2)
	if err != nil || !bytes.Equal(got, []byte{0xCA, 0xFE}) {
		t.Fatalf("ReadMemory = % X, %v", got, err)
	}
}

func TestReconnectAfterPowerOff(t *testing.T) {
	h := newHarness(t, "MC56F8006", nil)
	if err := h.target.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if err := h.target.Power(bdm.VddOff); err != nil {
		t.Fatalf("Power returned error: %v", err)
	}
	if _, err := h.target.ReadMemory(memmap.DataWord, 0, 2); err != nil {
		t.Fatalf("ReadMemory after power off returned error: %v", err)
	}
	if h.target.PowerStatus() != PowerOn || h.target.State() != StateConnected {
		t.Fatalf("did not reconnect: power %s state %s", h.target.PowerStatus(), h.target.State())
	}
}

func TestReadFlash(t *testing.T) {
	h := newHarness(t, "MC56F8002", nil)
	h.sim.Poke(memmap.ProgramWord, 0x0800, []byte{0x11, 0x22})
	blocks, err := h.target.ReadFlash()
	if err != nil {
		t.Fatalf("ReadFlash returned error: %v", err)
	}
	if len(blocks) != 1 || len(blocks[0].Data) != 0x1000*2 {
		t.Fatalf("unexpected flash dump layout")
	}
	if !bytes.Equal(blocks[0].Data[0x1000:0x1002], []byte{0x11, 0x22}) {
		t.Fatalf("flash dump missing programmed word")
	}
}

func TestCloseForcesPowerOff(t *testing.T) {
	h := newHarness(t, "MC56F8006", nil)
	if err := h.target.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if err := h.target.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if h.sim.Vdd() != bdm.VddOff || !h.sim.Closed() {
		t.Fatalf("Close left Vdd %s closed=%v", h.sim.Vdd(), h.sim.Closed())
	}
	if h.target.State() != StateNotConnected {
		t.Fatalf("state after Close = %s", h.target.State())
	}
}

type shortReads struct {
	Probe
}

func (s shortReads) ReadMemory(access memmap.Access, addr uint32, n int) ([]byte, error) {
	b, err := s.Probe.ReadMemory(access, addr, n)
	if err != nil || len(b) == 0 {
		return b, err
	}
	return b[:len(b)-1], nil
}

func TestVerifyOddLength(t *testing.T) {
	h := newHarness(t, "MC56F8006", nil)
	tgt := h.target
	odd := []srec.DataBlock{{Start: 0x1100, Data: []byte{0x01, 0x02, 0x03}}}
	if err := tgt.Program(odd); err != nil {
		t.Fatalf("Program returned error: %v", err)
	}
	if got := h.sim.Peek(memmap.ProgramWord, 0x1100, 4); !bytes.Equal(got, []byte{0x01, 0x02, 0x03, 0xFF}) {
		t.Fatalf("padded word = % X", got)
	}
	if err := tgt.Verify(odd); err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}

	if err := tgt.Program([]srec.DataBlock{{Start: 0x1200, Data: []byte{0x01, 0x02, 0x03, 0x04}}}); err != nil {
		t.Fatalf("Program returned error: %v", err)
	}
	err := tgt.Verify([]srec.DataBlock{{Start: 0x1200, Data: []byte{0x01, 0x02, 0x03}}})
	if !errors.Is(err, ErrVerify) || !strings.Contains(err.Error(), "P:0x001201") {
		t.Fatalf("trailing byte mismatch error = %v", err)
	}
}

func TestVerifyShortRead(t *testing.T) {
	h := newHarness(t, "MC56F8006", nil)
	tgt := h.target
	blocks := []srec.DataBlock{{Start: 0x1000, Data: []byte{0xDE, 0xAD, 0xBE, 0xEF}}}
	if err := tgt.Program(blocks); err != nil {
		t.Fatalf("Program returned error: %v", err)
	}
	tgt.probe = shortReads{tgt.probe}
	err := tgt.Verify(blocks)
	if !errors.Is(err, ErrVerify) || !strings.Contains(err.Error(), "read 3 bytes, want 4") {
		t.Fatalf("short read error = %v", err)
	}
}

// hardwareLink hides the simulator so the target behaves as on real silicon.
type hardwareLink struct {
	Probe
}

func newHardwareTarget(t *testing.T, name string, edit func(*targetdb.Target), opts ...Option) (*Target, *bdm.SimTransport) {
	t.Helper()
	db, err := targetdb.Default()
	if err != nil {
		t.Fatalf("Default returned error: %v", err)
	}
	found, err := db.Lookup(name)
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	desc := *found
	if edit != nil {
		edit(&desc)
	}
	sim := bdm.NewSimTransport(simConfigFor(t, &desc))
	p, err := bdm.NewProbe(sim)
	if err != nil {
		t.Fatalf("NewProbe returned error: %v", err)
	}
	opts = append([]Option{WithSleep(func(time.Duration) {})}, opts...)
	tgt, err := New(hardwareLink{p}, &desc, opts...)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return tgt, sim
}

func writeRoutine(t *testing.T, family string) string {
	t.Helper()
	b, err := routine.ForFamily(family)
	if err != nil {
		t.Fatalf("ForFamily returned error: %v", err)
	}
	path := filepath.Join(t.TempDir(), family+".s19")
	if err := os.WriteFile(path, []byte(srec.ToRecordText(b.Image, b.LoadAddress)), 0o644); err != nil {
		t.Fatalf("write routine: %v", err)
	}
	return path
}

func TestBundledRoutineRefusedOnHardware(t *testing.T) {
	tgt, sim := newHardwareTarget(t, "MC56F8006", nil)
	if !tgt.Routine().SimulatorOnly {
		t.Fatalf("bundled routine not marked simulator only")
	}
	if err := tgt.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	err := tgt.Program([]srec.DataBlock{{Start: 0x1000, Data: []byte{0xDE, 0xAD}}})
	if !errors.Is(err, routine.ErrSimulatorOnly) {
		t.Fatalf("Program error = %v, want ErrSimulatorOnly", err)
	}
	if got := sim.Peek(memmap.ProgramWord, 0x8000, 4); !bytes.Equal(got, make([]byte, 4)) {
		t.Fatalf("bundled routine uploaded: % X", got)
	}
}

func TestRoutineFromFile(t *testing.T) {
	path := writeRoutine(t, "mc56f80xx")
	cases := []struct {
		name string
		edit func(*targetdb.Target)
		opts []Option
	}{
		{"option", nil, []Option{WithRoutine(path)}},
		{"database", func(d *targetdb.Target) { d.FlashRoutine = path }, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tgt, sim := newHardwareTarget(t, "MC56F8006", tc.edit, tc.opts...)
			if tgt.Routine().SimulatorOnly {
				t.Fatalf("routine from %s marked simulator only", path)
			}
			data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
			if err := tgt.Program([]srec.DataBlock{{Start: 0x1000, Data: data}}); err != nil {
				t.Fatalf("Program returned error: %v", err)
			}
			if got := sim.Peek(memmap.ProgramWord, 0x1000, 4); !bytes.Equal(got, data) {
				t.Fatalf("flash = % X", got)
			}
		})
	}

	_, err := New(nil, &targetdb.Target{Name: "X", Family: "mc56f80xx", FlashRoutine: filepath.Join(t.TempDir(), "none.s19")})
	if err == nil {
		t.Fatalf("expected error for missing routine file")
	}
}
