package bdm

import (
	"encoding/binary"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceDSC/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/memmap"
)

// maxMemChunk keeps one memory command and its response inside a 64-byte
// packet.
const maxMemChunk = 56

// Probe speaks the BDM command protocol over a Transport. It implements
// jtag.Adapter so the DSC JTAG sequences can run through it.
type Probe struct {
	transport Transport

	version Version
	info    jtag.AdapterInfo
	speedHz int

	mu sync.Mutex // one command in flight
}

// NewProbe queries the probe version and returns a ready Probe.
func NewProbe(t Transport) (*Probe, error) {
	p := &Probe{transport: t}
	if err := p.queryInfo(); err != nil {
		return nil, fmt.Errorf("bdm: query probe info: %w", err)
	}
	return p, nil
}

// Simulated reports whether the probe talks to a SimTransport.
func (p *Probe) Simulated() bool {
	_, ok := p.transport.(*SimTransport)
	return ok
}

func (p *Probe) queryInfo() error {
	resp, err := p.transport.ControlTransfer(ControlRequest{
		RequestType: RequestTypeVendorIn,
		Request:     CmdGetVer,
		Length:      5,
	})
	if err != nil {
		return err
	}
	p.version = Version{
		BDMSoftware: resp[0],
		BDMHardware: resp[1],
		ICPSoftware: resp[2],
		ICPHardware: resp[3],
	}
	p.info = jtag.AdapterInfo{
		Name:         "USBDM BDM/JTAG",
		Vendor:       "USBDM",
		Model:        fmt.Sprintf("HW 0x%02X", p.version.BDMHardware),
		Firmware:     p.version.String(),
		MinFrequency: 100_000,
		MaxFrequency: 12_000_000,
		SupportsSRST: true,
		SupportsTRST: false,
	}
	log.Debugf("bdm: %s", p.version)
	return nil
}

// Version returns the probe identification read at construction.
func (p *Probe) Version() Version {
	return p.version
}

// Close releases the transport.
func (p *Probe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transport.Close()
}

func (p *Probe) exec(cmd byte, n int, params ...byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.execLocked(cmd, n, params...)
}

func (p *Probe) execLocked(cmd byte, n int, params ...byte) ([]byte, error) {
	if err := p.transport.Write(EncodeFrame(cmd, params...)); err != nil {
		return nil, fmt.Errorf("%s: %w", CommandName(cmd), err)
	}
	resp, err := p.transport.Read(n)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", CommandName(cmd), err)
	}
	return resp, nil
}

// Capabilities returns the probe capability bitmask.
func (p *Probe) Capabilities() (uint16, error) {
	resp, err := p.exec(CmdGetCapabilities, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(resp), nil
}

// SetTarget selects the probe's target personality.
func (p *Probe) SetTarget(t TargetType) error {
	_, err := p.exec(CmdSetTarget, 0, byte(t))
	return err
}

// SetVdd drives the target supply.
func (p *Probe) SetVdd(level Vdd) error {
	log.Debugf("bdm: set Vdd %s", level)
	_, err := p.exec(CmdSetVdd, 0, byte(level))
	return err
}

// Status reads the probe status word.
func (p *Probe) Status() (StatusWord, error) {
	resp, err := p.exec(CmdGetBDMStatus, 2)
	if err != nil {
		return 0, err
	}
	return StatusWord(binary.BigEndian.Uint16(resp)), nil
}

// TargetReset pulses the target reset line.
func (p *Probe) TargetReset(mode byte) error {
	_, err := p.exec(CmdTargetReset, 0, mode)
	return err
}

// Go resumes target execution from the current PC.
func (p *Probe) Go() error {
	_, err := p.exec(CmdTargetGo, 0)
	return err
}

// Halt stops the target and enters debug mode.
func (p *Probe) Halt() error {
	_, err := p.exec(CmdTargetHalt, 0)
	return err
}

// WriteReg writes a core register.
func (p *Probe) WriteReg(reg uint16, value uint32) error {
	params := make([]byte, 6)
	binary.BigEndian.PutUint16(params, reg)
	binary.BigEndian.PutUint32(params[2:], value)
	_, err := p.exec(CmdWriteReg, 0, params...)
	return err
}

// ReadReg reads a core register.
func (p *Probe) ReadReg(reg uint16) (uint32, error) {
	params := make([]byte, 2)
	binary.BigEndian.PutUint16(params, reg)
	resp, err := p.exec(CmdReadReg, 4, params...)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(resp), nil
}

// WritePC sets the program counter.
func (p *Probe) WritePC(addr uint32) error {
	return p.WriteReg(RegPC, addr)
}

// chunkSize rounds maxMemChunk down to a whole number of access units.
func chunkSize(access memmap.Access) int {
	size := access.Size()
	if size <= 0 {
		size = 1
	}
	return maxMemChunk / size * size
}

// addrStep converts a byte count into an address increment. Word and long
// accesses use 16-bit word addresses, byte accesses byte addresses.
func addrStep(access memmap.Access, n int) uint32 {
	if access.Size() >= 2 {
		return uint32(n / 2)
	}
	return uint32(n)
}

// ReadMemory reads n bytes starting at word address addr.
func (p *Probe) ReadMemory(access memmap.Access, addr uint32, n int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]byte, 0, n)
	chunk := chunkSize(access)
	for len(out) < n {
		count := n - len(out)
		if count > chunk {
			count = chunk
		}
		resp, err := p.execLocked(CmdReadMem, count, memoryParams(byte(access), addr, count)...)
		if err != nil {
			return nil, fmt.Errorf("read %s 0x%06X: %w", access, addr, err)
		}
		out = append(out, resp...)
		addr += addrStep(access, count)
	}
	return out, nil
}

// WriteMemory writes data starting at word address addr.
func (p *Probe) WriteMemory(access memmap.Access, addr uint32, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	chunk := chunkSize(access)
	for off := 0; off < len(data); off += chunk {
		end := off + chunk
		if end > len(data) {
			end = len(data)
		}
		params := append(memoryParams(byte(access), addr, end-off), data[off:end]...)
		if _, err := p.execLocked(CmdWriteMem, 0, params...); err != nil {
			return fmt.Errorf("write %s 0x%06X: %w", access, addr, err)
		}
		addr += addrStep(access, end-off)
	}
	return nil
}

// Info implements jtag.Adapter.
func (p *Probe) Info() (jtag.AdapterInfo, error) {
	return p.info, nil
}

// ResetTAP implements jtag.Adapter. A hard reset also pulses the target
// reset line.
func (p *Probe) ResetTAP(hard bool) error {
	if hard {
		if err := p.TargetReset(ResetHardware); err != nil {
			return err
		}
	}
	_, err := p.exec(CmdJTAGGotoReset, 0)
	return err
}

// ShiftIR implements jtag.Adapter. The probe navigates the TAP itself, so
// tms is ignored; the shift ends in Run-Test/Idle.
func (p *Probe) ShiftIR(tms, tdi []byte, bits int) ([]byte, error) {
	return p.shift(ShiftIR, tms, tdi, bits)
}

// ShiftDR implements jtag.Adapter.
func (p *Probe) ShiftDR(tms, tdi []byte, bits int) ([]byte, error) {
	return p.shift(ShiftDR, tms, tdi, bits)
}

func (p *Probe) shift(region byte, tms, tdi []byte, bits int) ([]byte, error) {
	required, err := jtag.ValidateShiftBuffers(tms, tdi, bits)
	if err != nil {
		return nil, err
	}
	if bits > 255 {
		return nil, fmt.Errorf("bdm: shift of %d bits exceeds 255", bits)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.execLocked(CmdJTAGGotoShift, 0, region); err != nil {
		return nil, err
	}
	data := make([]byte, required)
	copy(data, tdi)
	params := append([]byte{ExitIdle, byte(bits)}, data...)
	return p.execLocked(CmdJTAGReadWrite, required, params...)
}

// SetSpeed implements jtag.Adapter.
func (p *Probe) SetSpeed(hz int) error {
	if hz < p.info.MinFrequency || hz > p.info.MaxFrequency {
		return fmt.Errorf("bdm: frequency %d Hz out of range [%d, %d]",
			hz, p.info.MinFrequency, p.info.MaxFrequency)
	}
	khz := uint16(hz / 1000)
	if _, err := p.exec(CmdSetSpeed, 0, byte(khz>>8), byte(khz)); err != nil {
		return err
	}
	p.speedHz = hz
	return nil
}

var _ jtag.Adapter = (*Probe)(nil)
