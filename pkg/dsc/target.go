package dsc

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceDSC/pkg/bdm"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/memmap"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/once"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/routine"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/srec"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/targetdb"
)

// Probe is the debug probe a Target drives. *bdm.Probe implements it.
type Probe interface {
	jtag.Adapter
	SetTarget(bdm.TargetType) error
	SetVdd(bdm.Vdd) error
	Status() (bdm.StatusWord, error)
	ReadMemory(access memmap.Access, addr uint32, n int) ([]byte, error)
	WriteMemory(access memmap.Access, addr uint32, data []byte) error
	WritePC(addr uint32) error
	Go() error
	Halt() error
	Close() error
}

// Option configures a Target.
type Option func(*Target)

// WithPower selects the supply level used when connecting.
func WithPower(level bdm.Vdd) Option {
	return func(t *Target) { t.level = level }
}

// WithSleep replaces time.Sleep for settle and poll delays.
func WithSleep(fn func(time.Duration)) Option {
	return func(t *Target) { t.sleepFn = fn }
}

// WithProgress installs a callback for programming progress.
func WithProgress(fn func(routine.Progress)) Option {
	return func(t *Target) { t.progress = fn }
}

// WithRoutine loads the flash routine from an S19 file instead of the
// database entry or the bundled image.
func WithRoutine(path string) Option {
	return func(t *Target) { t.routinePath = path }
}

// Target is one DSC behind a probe.
type Target struct {
	Name string

	desc        *targetdb.Target
	family      Family
	memory      memmap.Map
	dataRAM     memmap.Segment
	probe       Probe
	engine      *routine.Engine
	routinePath string

	buffer []srec.DataBlock

	level    bdm.Vdd
	state    State
	security SecurityStatus
	once     once.Status
	power    PowerStatus
	masterID uint32
	coreID   uint32

	sleepFn  func(time.Duration)
	progress func(routine.Progress)
}

// routineTarget gives the flash routine engine raw access to the probe.
type routineTarget struct {
	Probe
}

func (r routineTarget) ReadStatus() (once.Status, error) {
	return once.ReadStatus(r.Probe)
}

func (r routineTarget) Simulated() bool {
	s, ok := r.Probe.(interface{ Simulated() bool })
	return ok && s.Simulated()
}

// New binds a probe to a database entry. Nothing is sent to the probe until
// Connect or the first operation.
func New(p Probe, desc *targetdb.Target, opts ...Option) (*Target, error) {
	fam, err := familyFor(desc.Family)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", desc.Name, err)
	}
	mm, err := desc.MemoryMap()
	if err != nil {
		return nil, err
	}
	t := &Target{
		Name:        desc.Name,
		desc:        desc,
		family:      fam,
		memory:      mm,
		probe:       p,
		level:       bdm.Vdd3V3,
		sleepFn:     time.Sleep,
		routinePath: desc.FlashRoutine,
	}
	for _, o := range opts {
		o(t)
	}

	var base *routine.Base
	if t.routinePath != "" {
		base, err = routine.LoadFile(fam.Name(), t.routinePath)
	} else {
		base, err = routine.ForFamily(fam.Name())
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", desc.Name, err)
	}

	ram, ok := mm.Find(base.HeaderAddress, memmap.SpaceData)
	if !ok || ram.Kind != memmap.Ram {
		return nil, fmt.Errorf("%s: %w for routine header at X:0x%06X", desc.Name, ErrNoDataRAM, base.HeaderAddress)
	}
	t.dataRAM = ram
	t.engine, err = routine.NewEngine(routineTarget{p}, base, ram, desc.FlashController, desc.SectorSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", desc.Name, err)
	}
	t.engine.Sleep = t.sleep
	return t, nil
}

func (t *Target) sleep(d time.Duration) {
	if t.sleepFn != nil {
		t.sleepFn(d)
	}
}

// State returns the connection state.
func (t *Target) State() State { return t.state }

// Security returns the last security classification.
func (t *Target) Security() SecurityStatus { return t.security }

// ONCEStatus returns the last core status seen.
func (t *Target) ONCEStatus() once.Status { return t.once }

// PowerStatus returns the last supply state seen.
func (t *Target) PowerStatus() PowerStatus { return t.power }

// IDs returns the master and core JTAG IDs read by the last Connect.
func (t *Target) IDs() (master, core uint32) { return t.masterID, t.coreID }

// MemoryMap returns the target's segments.
func (t *Target) MemoryMap() memmap.Map { return t.memory }

// Family returns the family name.
func (t *Target) Family() string { return t.family.Name() }

// Routine returns the flash routine the target runs.
func (t *Target) Routine() *routine.Base { return t.engine.Base() }

// ConnectionImage returns the image path configured for this target.
func (t *Target) ConnectionImage() string { return t.desc.ConnectionImage }

// Frequency returns the bus frequency in kHz used for flash timing, zero
// until measured.
func (t *Target) Frequency() uint16 { return t.engine.Frequency() }

// Buffer returns the blocks last programmed or read from flash.
func (t *Target) Buffer() []srec.DataBlock { return t.buffer }

func (t *Target) flashSegments() []memmap.Segment {
	return t.memory.OfKind(memmap.FlashProgram)
}

// ReadMemory reads n bytes at addr.
func (t *Target) ReadMemory(access memmap.Access, addr uint32, n int) ([]byte, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	return t.probe.ReadMemory(access, addr, n)
}

// WriteMemory writes RAM or peripheral registers. Flash must be written
// with Program.
func (t *Target) WriteMemory(access memmap.Access, addr uint32, data []byte) error {
	if err := t.ready(); err != nil {
		return err
	}
	if seg, ok := t.memory.Find(addr, access); ok && seg.Kind == memmap.FlashProgram {
		return fmt.Errorf("dsc: %s is flash, use program", seg.Name)
	}
	return t.probe.WriteMemory(access, addr, data)
}

func (t *Target) checkFlash(blocks []srec.DataBlock) (int, error) {
	total := 0
	for _, b := range blocks {
		words := uint32((len(b.Data) + 1) / 2)
		if !t.memory.ContainsRange(memmap.FlashProgram, b.Start, words, memmap.SpaceProgram) {
			return 0, fmt.Errorf("%w: P:0x%06X-0x%06X", ErrOutsideFlash, b.Start, b.Start+words-1)
		}
		total += len(b.Data)
	}
	return total, nil
}

// Program writes blocks of program-space words into flash. The flash must
// be blank where the blocks land.
func (t *Target) Program(blocks []srec.DataBlock) error {
	if err := t.ready(); err != nil {
		return err
	}
	total, err := t.checkFlash(blocks)
	if err != nil {
		return err
	}
	if err := t.family.InitForWriteErase(t); err != nil {
		return err
	}

	done := 0
	for _, b := range blocks {
		var report func(routine.Progress)
		if t.progress != nil {
			offset := done
			report = func(p routine.Progress) {
				t.progress(routine.Progress{Phase: p.Phase, Done: offset + p.Done, Total: total})
			}
		}
		log.Infof("dsc: programming %d bytes at P:0x%06X", len(b.Data), b.Start)
		if err := t.engine.WriteProgramMemory(b.Data, b.Start, report); err != nil {
			return err
		}
		done += len(b.Data)
	}
	t.buffer = blocks
	return nil
}

// Erase erases the flash sectors covering words from addr.
func (t *Target) Erase(addr, words uint32) error {
	if err := t.ready(); err != nil {
		return err
	}
	if !t.memory.ContainsRange(memmap.FlashProgram, addr, words, memmap.SpaceProgram) {
		return fmt.Errorf("%w: P:0x%06X+%d", ErrOutsideFlash, addr, words)
	}
	if err := t.family.InitForWriteErase(t); err != nil {
		return err
	}
	return t.engine.EraseRange(addr, words)
}

// MassErase erases all program flash the way the family requires.
func (t *Target) MassErase() error {
	if err := t.ready(); err != nil {
		return err
	}
	return t.family.MassErase(t)
}

// BlankCheck reports whether every program flash segment is erased.
func (t *Target) BlankCheck() (bool, error) {
	if err := t.ready(); err != nil {
		return false, err
	}
	for _, seg := range t.flashSegments() {
		blank, err := t.engine.BlankCheckRange(seg.Start, seg.Words())
		if err != nil {
			return false, err
		}
		if !blank {
			log.Infof("dsc: %s is not blank", seg.Name)
			return false, nil
		}
	}
	return true, nil
}

// Verify reads flash back and compares it with blocks.
func (t *Target) Verify(blocks []srec.DataBlock) error {
	if err := t.ready(); err != nil {
		return err
	}
	if _, err := t.checkFlash(blocks); err != nil {
		return err
	}
	for _, b := range blocks {
		want := b.Data
		if len(want)%2 != 0 {
			// programmed with the trailing byte padded to a full word
			want = append(append([]byte(nil), want...), 0xFF)
		}
		got, err := t.probe.ReadMemory(memmap.ProgramWord, b.Start, len(want))
		if err != nil {
			return err
		}
		if len(got) != len(want) {
			return fmt.Errorf("%w at P:0x%06X: read %d bytes, want %d",
				ErrVerify, b.Start, len(got), len(want))
		}
		if bytes.Equal(got, want) {
			continue
		}
		for i := range got {
			if got[i] != want[i] {
				return fmt.Errorf("%w at P:0x%06X: read 0x%02X, want 0x%02X",
					ErrVerify, b.Start+uint32(i/2), got[i], want[i])
			}
		}
	}
	return nil
}

// ReadFlash reads every program flash segment.
func (t *Target) ReadFlash() ([]srec.DataBlock, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	var out []srec.DataBlock
	for _, seg := range t.flashSegments() {
		data, err := t.probe.ReadMemory(seg.Access, seg.Start, seg.Bytes())
		if err != nil {
			return nil, fmt.Errorf("dsc: read %s: %w", seg.Name, err)
		}
		out = append(out, srec.DataBlock{Start: seg.Start, Data: data})
	}
	t.buffer = out
	return out, nil
}

// MeasureSpeed runs the flash routine timing loop.
func (t *Target) MeasureSpeed() (uint16, error) {
	if err := t.ready(); err != nil {
		return 0, err
	}
	return t.engine.MeasureSpeed()
}

var ramTestPattern = []byte{0x55, 0xAA, 0x00, 0xFF, 0x5A, 0xA5, 0x01, 0x80, 0x33, 0xCC}

const (
	ramTestCount  = 10
	ramTestStride = 0x20
)

// RAMTest writes a fixed pattern through data RAM and reads it back.
func (t *Target) RAMTest() error {
	if err := t.ready(); err != nil {
		return err
	}
	return t.ramTest()
}

func (t *Target) ramTest() error {
	addr := t.dataRAM.Start
	for i := 0; i < ramTestCount; i++ {
		if err := t.probe.WriteMemory(memmap.DataWord, addr, ramTestPattern); err != nil {
			return fmt.Errorf("dsc: RAM test write X:0x%06X: %w", addr, err)
		}
		got, err := t.probe.ReadMemory(memmap.DataWord, addr, len(ramTestPattern))
		if err != nil {
			return fmt.Errorf("dsc: RAM test read X:0x%06X: %w", addr, err)
		}
		if !bytes.Equal(got, ramTestPattern) {
			return fmt.Errorf("%w at X:0x%06X: read % X", ErrRAMTestFault, addr, got)
		}
		addr += ramTestStride
	}
	log.Debugf("dsc: RAM test passed")
	return nil
}

// Close switches the target supply off and releases the probe.
func (t *Target) Close() error {
	var errs []error
	if err := t.Power(bdm.VddOff); err != nil {
		errs = append(errs, err)
	}
	if err := t.probe.Close(); err != nil {
		errs = append(errs, err)
	}
	t.state = StateNotConnected
	t.security = SecurityUnknown
	return errors.Join(errs...)
}
