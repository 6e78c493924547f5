package routine

import (
	"errors"
	"fmt"
)

var (
	ErrNotComplete   = errors.New("routine: flash operation did not complete")
	ErrTimingTag     = errors.New("routine: timing header returned wrong operation")
	ErrTimingCount   = errors.New("routine: timing loop returned zero count")
	ErrUnsupported   = errors.New("routine: operation not supported by flash routine")
	ErrNoRAM         = errors.New("routine: header does not fit in target RAM")
	ErrOddAlignment  = errors.New("routine: data must be a whole number of words")
	ErrSimulatorOnly = errors.New("routine: bundled flash routine only runs on the simulator")
)

// Flash routine return codes.
const (
	FlashOK          = 0
	FlashErrLocked   = 1
	FlashErrParams   = 2
	FlashErrAccess   = 3
	FlashErrTimeout  = 4
	FlashErrVerify   = 5
	FlashErrNotBlank = 6
	FlashErrErase    = 7
	FlashErrProgram  = 8
	FlashErrSecurity = 9
	FlashErrUnknown  = 10
)

var flashErrText = map[uint16]string{
	FlashErrLocked:   "flash is locked",
	FlashErrParams:   "illegal parameters",
	FlashErrAccess:   "flash controller access error",
	FlashErrTimeout:  "flash controller timeout",
	FlashErrVerify:   "verify failed",
	FlashErrNotBlank: "flash not blank",
	FlashErrErase:    "erase failed",
	FlashErrProgram:  "program failed",
	FlashErrSecurity: "security bytes not valid",
	FlashErrUnknown:  "unknown operation",
}

// FlashError is a non-zero return code from the flash routine.
type FlashError struct {
	Op   string
	Code uint16
}

func (e *FlashError) Error() string {
	text, ok := flashErrText[e.Code]
	if !ok {
		text = "unrecognised error"
	}
	return fmt.Sprintf("routine: %s: %s (code %d)", e.Op, text, e.Code)
}
