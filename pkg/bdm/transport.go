package bdm

// ControlRequest describes a vendor control transfer.
type ControlRequest struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      int
}

// Vendor IN request, as used for version and capability queries.
const RequestTypeVendorIn = 0xC0

// Transport is the byte-oriented link to the probe. Exactly one command is
// in flight at a time: every Write is followed by a Read.
type Transport interface {
	// Write sends one command frame.
	Write(frame []byte) error
	// Read receives one response frame, checks its status byte and returns
	// the n payload bytes.
	Read(n int) ([]byte, error)
	// ControlTransfer issues a vendor control request and returns its
	// status-checked payload.
	ControlTransfer(req ControlRequest) ([]byte, error)
	Close() error
}
