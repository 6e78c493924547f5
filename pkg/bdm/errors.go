package bdm

import (
	"errors"
	"fmt"
)

// Status is the return code carried in the first byte of every probe
// response. Non-OK values are returned as errors.
type Status uint8

const (
	RCOK                   Status = 0
	RCIllegalParams        Status = 1
	RCFail                 Status = 2
	RCBusy                 Status = 3
	RCIllegalCommand       Status = 4
	RCNoConnection         Status = 5
	RCOverrun              Status = 6
	RCCFIllegalCommand     Status = 7
	RCDeviceOpenFailed     Status = 8
	RCUSBDeviceBusy        Status = 9
	RCUSBDeviceRemoved     Status = 10
	RCUSBRetryOK           Status = 11
	RCUnexpectedReset      Status = 12
	RCCFNotReady           Status = 13
	RCUnknownTarget        Status = 14
	RCNoTXRoutine          Status = 15
	RCNoRXRoutine          Status = 16
	RCCFBusError           Status = 17
	RCResetTimeoutRise     Status = 18
	RCResetTimeoutFall     Status = 19
	RCBkgdTimeout          Status = 20
	RCSyncTimeout          Status = 21
	RCUnknownSpeed         Status = 22
	RCWrongProgrammingMode Status = 23
	RCVppOff               Status = 24
	RCVddNotRemoved        Status = 25
	RCVddNotPresent        Status = 26
	RCVddWrongMode         Status = 27
	RCCFDataInvalid        Status = 28
	RCTargetBusy           Status = 29
	RCJTAGIllegalSequence  Status = 30
	RCTargetWrongType      Status = 31
	RCSecured              Status = 32
	RCWrongBDMRevision     Status = 33
	RCUSBError             Status = 34
)

var statusText = map[Status]string{
	RCOK:                   "no error",
	RCIllegalParams:        "illegal parameters to command",
	RCFail:                 "general fail",
	RCBusy:                 "busy with last command, try again",
	RCIllegalCommand:       "illegal (unknown) command",
	RCNoConnection:         "no connection to target",
	RCOverrun:              "new command before previous command completed",
	RCCFIllegalCommand:     "BDM interface did not recognize the command",
	RCDeviceOpenFailed:     "BDM open failed, other USB application using the probe",
	RCUSBDeviceBusy:        "USB device busy",
	RCUSBDeviceRemoved:     "USB device removed",
	RCUSBRetryOK:           "USB retry OK",
	RCUnexpectedReset:      "target reset was detected",
	RCCFNotReady:           "BDM not ready",
	RCUnknownTarget:        "target unknown or not supported by this probe",
	RCNoTXRoutine:          "no TX routine available at measured BDM communication speed",
	RCNoRXRoutine:          "no RX routine available at measured BDM communication speed",
	RCCFBusError:           "BDM interface bus error",
	RCResetTimeoutRise:     "RESET signal failed to rise",
	RCResetTimeoutFall:     "RESET signal failed to fall",
	RCBkgdTimeout:          "BKGD signal failed to rise/fall",
	RCSyncTimeout:          "no response to SYNC sequence",
	RCUnknownSpeed:         "communication speed is not known or cannot be determined",
	RCWrongProgrammingMode: "attempted operation in wrong programming mode",
	RCVppOff:               "flash programming voltage is not enabled",
	RCVddNotRemoved:        "target Vdd failed to fall",
	RCVddNotPresent:        "target Vdd not present",
	RCVddWrongMode:         "target Vdd is not in the expected mode",
	RCCFDataInvalid:        "BDM interface data invalid",
	RCTargetBusy:           "target is busy (not in debug mode)",
	RCJTAGIllegalSequence:  "illegal JTAG sequence",
	RCTargetWrongType:      "target type does not match probe setting",
	RCSecured:              "target is secured",
	RCWrongBDMRevision:     "probe firmware revision is not supported",
	RCUSBError:             "USB transfer error",
}

func (s Status) Error() string {
	if text, ok := statusText[s]; ok {
		return fmt.Sprintf("bdm: %s (rc=%d)", text, uint8(s))
	}
	return fmt.Sprintf("bdm: unknown return code %d", uint8(s))
}

// Transport level failures.
var (
	ErrDeviceNotFound = errors.New("bdm: probe not found")
	ErrDeviceBusy     = errors.New("bdm: probe busy")
	ErrDeviceRemoved  = errors.New("bdm: probe removed")
	ErrShortResponse  = errors.New("bdm: short response")
	ErrClosed         = errors.New("bdm: transport closed")
)

// CheckResponse validates the status byte of a response frame and returns
// the n payload bytes that follow it.
func CheckResponse(resp []byte, n int) ([]byte, error) {
	if len(resp) == 0 {
		return nil, ErrShortResponse
	}
	if st := Status(resp[0] & 0x7F); st != RCOK {
		return nil, st
	}
	if len(resp)-1 < n {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrShortResponse, n, len(resp)-1)
	}
	return resp[1 : 1+n], nil
}
