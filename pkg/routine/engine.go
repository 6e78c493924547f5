package routine

import (
	"errors"
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceDSC/pkg/header"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/memmap"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/once"
)

const (
	pollInterval   = 20 * time.Millisecond
	pollAttempts   = 30
	timingSettle   = 1000 * time.Millisecond
	eraseSettle    = 100 * time.Millisecond
	writeAlignment = 16
	maxTaskWords   = 0xFFFF
)

// Target is what the engine needs from a connected, halted DSC.
type Target interface {
	ReadMemory(access memmap.Access, addr uint32, n int) ([]byte, error)
	WriteMemory(access memmap.Access, addr uint32, data []byte) error
	WritePC(addr uint32) error
	Go() error
	Halt() error
	ReadStatus() (once.Status, error)
}

// simulated is implemented by targets that can tell whether they are backed
// by the simulator.
type simulated interface {
	Simulated() bool
}

// Progress reports how far a multi-block operation has come.
type Progress struct {
	Phase string
	Done  int
	Total int
}

// Percent returns Done as a percentage of Total.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 100
	}
	return p.Done * 100 / p.Total
}

// Engine stages flash routine tasks in target RAM, runs them and collects
// the result.
type Engine struct {
	base   *Base
	target Target
	ram    memmap.Segment

	controller  uint32
	sectorSize  uint16
	frequency   uint16
	dataAddress uint32
	maxWrite    int

	// Task and Timing hold the last header read back from the target.
	Task   header.Task
	Timing header.Timing

	// Sleep is used for settle delays and status polling.
	Sleep func(time.Duration)
}

// NewEngine binds a routine to a target. ram is the data-space RAM segment
// holding the routine's task header; the write buffer follows the header up
// to the end of the segment.
func NewEngine(t Target, base *Base, ram memmap.Segment, controller uint32, sectorSize uint16) (*Engine, error) {
	if !ram.Contains(base.HeaderAddress, memmap.SpaceData) {
		return nil, fmt.Errorf("%w: header at X:0x%06X, RAM %s", ErrNoRAM, base.HeaderAddress, ram)
	}
	dataAddress := base.HeaderAddress + header.TaskLen/2
	if dataAddress > ram.End {
		return nil, fmt.Errorf("%w: no room for data after header at X:0x%06X", ErrNoRAM, base.HeaderAddress)
	}
	maxWrite := int(ram.End-dataAddress+1) * 2
	maxWrite -= maxWrite % writeAlignment
	if maxWrite == 0 {
		return nil, fmt.Errorf("%w: data buffer smaller than %d bytes", ErrNoRAM, writeAlignment)
	}
	return &Engine{
		base:        base,
		target:      t,
		ram:         ram,
		controller:  controller,
		sectorSize:  sectorSize,
		dataAddress: dataAddress,
		maxWrite:    maxWrite,
		Sleep:       time.Sleep,
	}, nil
}

// Base returns the routine the engine runs.
func (e *Engine) Base() *Base { return e.base }

// MaxWriteSize is the largest payload, in bytes, one WriteBlock can carry.
func (e *Engine) MaxWriteSize() int { return e.maxWrite }

// DataAddress is the data-space word address of the write buffer.
func (e *Engine) DataAddress() uint32 { return e.dataAddress }

// Frequency returns the bus frequency in kHz passed to the flash routine.
func (e *Engine) Frequency() uint16 { return e.frequency }

func (e *Engine) require(caps uint32, op string) error {
	if !e.base.Supports(caps) {
		return fmt.Errorf("%w: %s (%s)", ErrUnsupported, op, e.base.Family)
	}
	return nil
}

func (e *Engine) newTask(op uint16, addr, words uint32) header.Task {
	return header.Task{
		FlashOperation: header.DoInitFlash | op,
		Controller:     e.controller,
		Frequency:      e.frequency,
		SectorSize:     e.sectorSize,
		Address:        addr,
		DataSize:       uint16(words),
		DataAddress:    e.dataAddress,
	}
}

// execute uploads the routine, the header and an optional payload, starts
// the routine and returns the header as left by it.
func (e *Engine) execute(hdr, payload []byte, settle time.Duration, poll bool) ([]byte, error) {
	if e.base.SimulatorOnly {
		if s, ok := e.target.(simulated); !ok || !s.Simulated() {
			return nil, fmt.Errorf("%w: load a %s routine built for the device", ErrSimulatorOnly, e.base.Family)
		}
	}
	if err := e.target.WriteMemory(memmap.ProgramWord, e.base.LoadAddress, e.base.Image); err != nil {
		return nil, fmt.Errorf("routine: upload: %w", err)
	}
	if err := e.target.WriteMemory(memmap.DataWord, e.base.HeaderAddress, hdr); err != nil {
		return nil, fmt.Errorf("routine: write header: %w", err)
	}
	if len(payload) > 0 {
		if err := e.target.WriteMemory(memmap.DataWord, e.dataAddress, payload); err != nil {
			return nil, fmt.Errorf("routine: write data: %w", err)
		}
	}
	if err := e.target.WritePC(e.base.EntryAddress); err != nil {
		return nil, fmt.Errorf("routine: set PC: %w", err)
	}
	if err := e.target.Go(); err != nil {
		return nil, fmt.Errorf("routine: start: %w", err)
	}

	if settle > 0 {
		e.Sleep(settle)
	}
	if poll {
		e.waitForDebug()
	}

	if err := e.target.Halt(); err != nil {
		return nil, fmt.Errorf("routine: halt: %w", err)
	}
	resp, err := e.target.ReadMemory(memmap.DataWord, e.base.HeaderAddress, len(hdr))
	if err != nil {
		return nil, fmt.Errorf("routine: read header: %w", err)
	}
	return resp, nil
}

// waitForDebug polls until the routine stops in debug mode. A routine that
// never stops is halted anyway; the header then tells whether it finished.
func (e *Engine) waitForDebug() {
	for i := 0; i < pollAttempts; i++ {
		st, err := e.target.ReadStatus()
		if err == nil && st == once.DebugMode {
			return
		}
		e.Sleep(pollInterval)
	}
	log.Warnf("routine: target did not return to debug mode after %v", pollInterval*pollAttempts)
}

func (e *Engine) runTask(name string, task header.Task, payload []byte, settle time.Duration) error {
	hdr, err := task.MarshalBinary()
	if err != nil {
		return err
	}
	log.Debugf("routine: %s addr=0x%06X words=%d op=%s", name, task.Address, task.DataSize,
		header.OperationString(task.FlashOperation))

	resp, err := e.execute(hdr, payload, settle, true)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := e.Task.UnmarshalBinary(resp); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if !e.Task.Complete() {
		return fmt.Errorf("%s: %w", name, ErrNotComplete)
	}
	if e.Task.ErrorCode != FlashOK {
		return &FlashError{Op: name, Code: e.Task.ErrorCode}
	}
	return nil
}

// MeasureSpeed runs the routine's timing loop and derives the bus frequency
// in kHz from the loop count.
func (e *Engine) MeasureSpeed() (uint16, error) {
	if err := e.require(header.CapTimingLoop, "timing loop"); err != nil {
		return 0, err
	}
	if e.base.CalibFactor == 0 {
		return 0, fmt.Errorf("%w: routine %s has no timing calibration", ErrUnsupported, e.base.Family)
	}
	req := header.Timing{FlashOperation: header.DoTimingLoop}
	hdr, err := req.MarshalBinary()
	if err != nil {
		return 0, err
	}
	resp, err := e.execute(hdr, nil, timingSettle, false)
	if err != nil {
		return 0, fmt.Errorf("timing loop: %w", err)
	}
	if err := e.Timing.UnmarshalBinary(resp); err != nil {
		return 0, fmt.Errorf("timing loop: %w", err)
	}

	h := e.Timing
	switch {
	case h.FlashOperation&header.IsComplete == 0:
		return 0, fmt.Errorf("timing loop: %w", ErrNotComplete)
	case h.FlashOperation&^header.IsComplete != header.DoTimingLoop:
		return 0, fmt.Errorf("%w: 0x%04X", ErrTimingTag, h.FlashOperation)
	case h.ErrorCode != FlashOK:
		return 0, &FlashError{Op: "timing loop", Code: h.ErrorCode}
	case h.Count == 0:
		return 0, ErrTimingCount
	}

	cf := float64(e.base.CalibFrequency)
	cfac := float64(e.base.CalibFactor)
	khz := math.Round(40 * (0.5 + float64(h.Count)*cf/(40*cfac)))
	e.frequency = uint16(khz)
	log.Infof("routine: bus frequency %d kHz (count %d)", e.frequency, h.Count)
	return e.frequency, nil
}

// WriteBlock programs and verifies one block that fits in the RAM buffer.
// addr is a program-space word address.
func (e *Engine) WriteBlock(data []byte, addr uint32) error {
	if err := e.require(header.CapBlankCheckRange|header.CapProgramRange|header.CapVerifyRange, "program"); err != nil {
		return err
	}
	if len(data)%2 != 0 {
		return fmt.Errorf("%w: %d bytes", ErrOddAlignment, len(data))
	}
	if len(data) > e.maxWrite {
		return fmt.Errorf("routine: block of %d bytes exceeds buffer of %d", len(data), e.maxWrite)
	}
	op := uint16(header.DoBlankCheckRange | header.DoProgramRange | header.DoVerifyRange)
	task := e.newTask(op, addr, uint32(len(data)/2))
	return e.runTask("program", task, data, 0)
}

// WriteProgramMemory programs data of any length starting at addr, one
// buffer-sized block at a time. An odd trailing byte is padded with 0xFF.
func (e *Engine) WriteProgramMemory(data []byte, addr uint32, progress func(Progress)) error {
	if len(data)%2 != 0 {
		data = append(append([]byte(nil), data...), 0xFF)
	}
	for off := 0; off < len(data); {
		n := len(data) - off
		if n > e.maxWrite {
			n = e.maxWrite
		}
		if err := e.WriteBlock(data[off:off+n], addr); err != nil {
			return fmt.Errorf("at P:0x%06X: %w", addr, err)
		}
		off += n
		addr += uint32(n / 2)
		if progress != nil {
			progress(Progress{Phase: "program", Done: off, Total: len(data)})
		}
	}
	return nil
}

// forRange splits a word range into task-sized pieces.
func forRange(addr, words uint32, fn func(addr, words uint32) error) error {
	for words > 0 {
		n := words
		if n > maxTaskWords {
			n = maxTaskWords
		}
		if err := fn(addr, n); err != nil {
			return err
		}
		addr += n
		words -= n
	}
	return nil
}

// BlankCheckRange reports whether words program words from addr are erased.
func (e *Engine) BlankCheckRange(addr, words uint32) (bool, error) {
	if err := e.require(header.CapBlankCheckRange, "blank check"); err != nil {
		return false, err
	}
	blank := true
	err := forRange(addr, words, func(a, n uint32) error {
		err := e.runTask("blank check", e.newTask(header.DoBlankCheckRange, a, n), nil, 0)
		var fe *FlashError
		if errors.As(err, &fe) && fe.Code == FlashErrNotBlank {
			blank = false
			return nil
		}
		return err
	})
	if err != nil {
		return false, err
	}
	return blank, nil
}

// EraseBlock erases the flash block containing addr.
func (e *Engine) EraseBlock(addr uint32) error {
	if err := e.require(header.CapEraseBlock, "erase block"); err != nil {
		return err
	}
	return e.runTask("erase block", e.newTask(header.DoEraseBlock, addr, 0), nil, eraseSettle)
}

// EraseRange erases the sectors covering words program words from addr.
func (e *Engine) EraseRange(addr, words uint32) error {
	if err := e.require(header.CapEraseRange, "erase range"); err != nil {
		return err
	}
	return forRange(addr, words, func(a, n uint32) error {
		return e.runTask("erase range", e.newTask(header.DoEraseRange, a, n), nil, eraseSettle)
	})
}
