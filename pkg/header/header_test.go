package header

import (
	"bytes"
	"errors"
	"testing"
)

func TestTaskRoundTrip(t *testing.T) {
	cases := []Task{
		{},
		{
			FlashOperation: DoInitFlash | DoProgramRange | DoVerifyRange,
			ErrorCode:      0xBEEF,
			Controller:     0x00F400,
			Frequency:      32000,
			SectorSize:     512,
			Address:        0x1234_5678,
			DataSize:       256,
			Pad:            0xAA55,
			DataAddress:    0x8800,
		},
		{
			FlashOperation: 0xFFFF, ErrorCode: 0xFFFF, Controller: 0xFFFFFFFF,
			Frequency: 0xFFFF, SectorSize: 0xFFFF, Address: 0xFFFFFFFF,
			DataSize: 0xFFFF, Pad: 0xFFFF, DataAddress: 0xFFFFFFFF,
		},
	}
	for i, h := range cases {
		b, err := h.MarshalBinary()
		if err != nil {
			t.Fatalf("case %d: MarshalBinary returned error: %v", i, err)
		}
		if uint32(len(b)) != h.Len() || len(b) != 24 {
			t.Fatalf("case %d: encoded %d bytes, Len() = %d", i, len(b), h.Len())
		}
		var got Task
		if err := got.UnmarshalBinary(b); err != nil {
			t.Fatalf("case %d: UnmarshalBinary returned error: %v", i, err)
		}
		if got != h {
			t.Fatalf("case %d: round trip = %+v, want %+v", i, got, h)
		}
	}
}

func TestTaskLayout(t *testing.T) {
	h := Task{
		FlashOperation: 0x0102,
		ErrorCode:      0x0304,
		Controller:     0x05060708,
		Frequency:      0x090A,
		SectorSize:     0x0B0C,
		Address:        0x0D0E0F10,
		DataSize:       0x1112,
		Pad:            0x1314,
		DataAddress:    0x15161718,
	}
	b, _ := h.MarshalBinary()
	want := []byte{
		0x02, 0x01, 0x04, 0x03, 0x08, 0x07, 0x06, 0x05,
		0x0A, 0x09, 0x0C, 0x0B, 0x10, 0x0F, 0x0E, 0x0D,
		0x12, 0x11, 0x14, 0x13, 0x18, 0x17, 0x16, 0x15,
	}
	if !bytes.Equal(b, want) {
		t.Fatalf("layout = % X\nwant     % X", b, want)
	}
}

func TestTimingRoundTrip(t *testing.T) {
	h := Timing{FlashOperation: DoTimingLoop | IsComplete, ErrorCode: 0, Controller: 0xDEADBEEF, Count: 123456}
	b, err := h.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary returned error: %v", err)
	}
	if uint32(len(b)) != h.Len() || len(b) != 12 {
		t.Fatalf("encoded %d bytes, Len() = %d", len(b), h.Len())
	}
	var got Timing
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary returned error: %v", err)
	}
	if got != h {
		t.Fatalf("round trip = %+v, want %+v", got, h)
	}
}

func TestUnmarshalLength(t *testing.T) {
	var task Task
	if err := task.UnmarshalBinary(make([]byte, 23)); !errors.Is(err, ErrHeaderLength) {
		t.Fatalf("Task error = %v, want ErrHeaderLength", err)
	}
	var timing Timing
	if err := timing.UnmarshalBinary(make([]byte, 24)); !errors.Is(err, ErrHeaderLength) {
		t.Fatalf("Timing error = %v, want ErrHeaderLength", err)
	}
	if err := timing.UnmarshalBinary(nil); !errors.Is(err, ErrHeaderLength) {
		t.Fatalf("Timing(nil) error = %v, want ErrHeaderLength", err)
	}
}

func TestOperationString(t *testing.T) {
	if got := OperationString(DoInitFlash | DoProgramRange | IsComplete); got != "init|program|complete" {
		t.Fatalf("OperationString = %q", got)
	}
	if got := OperationString(0); got != "none" {
		t.Fatalf("OperationString(0) = %q", got)
	}
}

func TestRoutineDecode(t *testing.T) {
	want := Routine{
		LoadAddress:    0x8000,
		EntryAddress:   0x800C,
		Capabilities:   CapEraseBlock | CapProgramRange | CapTimingLoop,
		CalibFrequency: 8000,
		CalibFactor:    2000,
		HeaderAddress:  0x0200,
	}
	b, err := want.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary returned error: %v", err)
	}
	// routine code follows the record and is ignored
	b = append(b, 0xE7, 0x0A, 0x00, 0x00)

	var got Routine
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary returned error: %v", err)
	}
	if got != want {
		t.Fatalf("routine mismatch: got %+v want %+v", got, want)
	}
	if !bytes.Equal(b[:4], []byte{0x00, 0x80, 0x00, 0x00}) {
		t.Fatalf("load address not little-endian: % X", b[:4])
	}
	if err := got.UnmarshalBinary(b[:RoutineLen-1]); !errors.Is(err, ErrHeaderLength) {
		t.Fatalf("short routine error = %v", err)
	}
}
