package bdm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
	log "github.com/sirupsen/logrus"
)

const (
	// USBDM-class probe identifiers
	VendorIDFreescale = 0x16D0
	ProductIDUSBDM    = 0x0567

	// Default packet size for full-speed bulk endpoints
	DefaultPacketSize = 64
	DefaultTimeout    = 5 * time.Second
)

type knownUSBDevice struct {
	VendorID    uint16
	ProductID   uint16
	Description string
}

var knownProbes = []knownUSBDevice{
	{VendorID: VendorIDFreescale, ProductID: ProductIDUSBDM, Description: "USBDM BDM/JTAG"},
	{VendorID: 0x15A2, ProductID: 0x0021, Description: "OSBDM"},
	{VendorID: 0x2504, ProductID: 0x0300, Description: "TBDML/OSBDM"},
}

// ProbeInfo describes a detected probe.
type ProbeInfo struct {
	VendorID     uint16
	ProductID    uint16
	SerialNumber string
	Description  string
	Bus          int
	Address      int
}

// Label returns a user-friendly description for the probe.
func (p ProbeInfo) Label() string {
	if p.SerialNumber != "" {
		return fmt.Sprintf("%s (%04X:%04X, serial %s)", p.Description, p.VendorID, p.ProductID, p.SerialNumber)
	}
	return fmt.Sprintf("%s (%04X:%04X)", p.Description, p.VendorID, p.ProductID)
}

func classify(desc *gousb.DeviceDesc) (knownUSBDevice, bool) {
	for _, known := range knownProbes {
		if uint16(desc.Vendor) == known.VendorID && uint16(desc.Product) == known.ProductID {
			return known, true
		}
	}
	return knownUSBDevice{}, false
}

// DiscoverProbes enumerates connected BDM probes.
func DiscoverProbes(ctx context.Context) ([]ProbeInfo, error) {
	usb := gousb.NewContext()
	defer usb.Close()

	devs, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		_, ok := classify(desc)
		return ok
	})
	defer func() {
		for _, d := range devs {
			d.Close()
		}
	}()
	if err != nil && !errors.Is(err, gousb.ErrorAccess) {
		return nil, fmt.Errorf("bdm: enumerate devices: %w", err)
	}

	var results []ProbeInfo
	for _, dev := range devs {
		known, _ := classify(dev.Desc)
		serial, _ := dev.SerialNumber()
		results = append(results, ProbeInfo{
			VendorID:     known.VendorID,
			ProductID:    known.ProductID,
			SerialNumber: serial,
			Description:  known.Description,
			Bus:          dev.Desc.Bus,
			Address:      dev.Desc.Address,
		})
	}
	return results, nil
}

// USBTransport handles USB communication with the probe.
type USBTransport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint

	packetSize int
	timeout    time.Duration
}

// OpenUSB opens the first known probe, or the one with the given serial
// number when serial is not empty.
func OpenUSB(serial string) (*USBTransport, error) {
	ctx := gousb.NewContext()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		_, ok := classify(desc)
		return ok
	})
	if err != nil && len(devs) == 0 {
		ctx.Close()
		return nil, mapUSBError("open", err)
	}

	var dev *gousb.Device
	for _, d := range devs {
		if dev != nil {
			d.Close()
			continue
		}
		if serial != "" {
			sn, _ := d.SerialNumber()
			if sn != serial {
				log.Debugf("bdm: skipping probe with serial %q", sn)
				d.Close()
				continue
			}
		}
		dev = d
	}
	if dev == nil {
		ctx.Close()
		if serial != "" {
			return nil, fmt.Errorf("%w (serial %q)", ErrDeviceNotFound, serial)
		}
		return nil, ErrDeviceNotFound
	}

	// Not supported on every platform
	if err := dev.SetAutoDetach(true); err != nil {
		log.Debugf("bdm: auto-detach: %v", err)
	}

	t := &USBTransport{
		ctx:        ctx,
		dev:        dev,
		packetSize: DefaultPacketSize,
		timeout:    DefaultTimeout,
	}
	if err := t.claimInterface(); err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}
	log.Infof("bdm: opened probe %04X:%04X", uint16(dev.Desc.Vendor), uint16(dev.Desc.Product))
	return t, nil
}

// claimInterface claims interface 0 and discovers its bulk endpoints
func (t *USBTransport) claimInterface() error {
	cfg, err := t.dev.Config(1)
	if err != nil {
		return mapUSBError("get config", err)
	}
	t.cfg = cfg

	intf, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		return mapUSBError("claim interface 0", err)
	}
	t.intf = intf

	if err := t.findEndpoints(); err != nil {
		intf.Close()
		cfg.Close()
		return err
	}
	return nil
}

// findEndpoints discovers the bulk IN and OUT endpoints
func (t *USBTransport) findEndpoints() error {
	var outAddr, inAddr int
	for _, ep := range t.intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch ep.Direction {
		case gousb.EndpointDirectionOut:
			if outAddr == 0 {
				outAddr = ep.Number
			}
		case gousb.EndpointDirectionIn:
			if inAddr == 0 {
				inAddr = ep.Number
				t.packetSize = ep.MaxPacketSize
			}
		}
	}
	if outAddr == 0 {
		return fmt.Errorf("bdm: bulk OUT endpoint not found")
	}
	if inAddr == 0 {
		return fmt.Errorf("bdm: bulk IN endpoint not found")
	}

	epOut, err := t.intf.OutEndpoint(outAddr)
	if err != nil {
		return mapUSBError("open OUT endpoint", err)
	}
	t.epOut = epOut

	epIn, err := t.intf.InEndpoint(inAddr)
	if err != nil {
		return mapUSBError("open IN endpoint", err)
	}
	t.epIn = epIn
	return nil
}

// Write sends a command frame to the probe.
func (t *USBTransport) Write(frame []byte) error {
	if t.epOut == nil {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	log.Tracef("bdm: -> % X", frame)
	if _, err := t.epOut.WriteContext(ctx, frame); err != nil {
		return mapUSBError("write", err)
	}
	return nil
}

// Read receives a response frame and checks its status byte.
func (t *USBTransport) Read(n int) ([]byte, error) {
	if t.epIn == nil {
		return nil, ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	size := n + 1
	if size < t.packetSize {
		size = t.packetSize
	}
	buf := make([]byte, size)
	k, err := t.epIn.ReadContext(ctx, buf)
	if err != nil {
		return nil, mapUSBError("read", err)
	}
	log.Tracef("bdm: <- % X", buf[:k])
	return CheckResponse(buf[:k], n)
}

// ControlTransfer issues a vendor request on the default control pipe.
func (t *USBTransport) ControlTransfer(req ControlRequest) ([]byte, error) {
	if t.dev == nil {
		return nil, ErrClosed
	}
	buf := make([]byte, req.Length)
	k, err := t.dev.Control(req.RequestType, req.Request, req.Value, req.Index, buf)
	if err != nil {
		return nil, mapUSBError("control transfer", err)
	}
	return CheckResponse(buf[:k], req.Length-1)
}

// Close releases USB resources.
func (t *USBTransport) Close() error {
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
		t.epIn = nil
		t.epOut = nil
	}
	if t.cfg != nil {
		t.cfg.Close()
		t.cfg = nil
	}
	if t.dev != nil {
		t.dev.Close()
		t.dev = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
	return nil
}

func mapUSBError(op string, err error) error {
	switch {
	case errors.Is(err, gousb.ErrorNoDevice), errors.Is(err, gousb.ErrorNotFound):
		return fmt.Errorf("bdm: USB %s: %w: %v", op, ErrDeviceRemoved, err)
	case errors.Is(err, gousb.ErrorBusy):
		return fmt.Errorf("bdm: USB %s: %w: %v", op, ErrDeviceBusy, err)
	}
	return fmt.Errorf("bdm: USB %s: %w", op, err)
}
