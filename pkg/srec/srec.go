package srec

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrNoInputData is returned for empty input and for operations on a
	// result without data blocks.
	ErrNoInputData = errors.New("srec: no input data")
	// ErrChecksum reports a record whose trailing checksum does not match.
	ErrChecksum = errors.New("srec: checksum mismatch")
	// ErrIllegalLine reports a record that cannot be decoded.
	ErrIllegalLine = errors.New("srec: illegal record line")
	// ErrDataOverlap reports two blocks claiming the same addresses.
	ErrDataOverlap = errors.New("srec: overlapping data blocks")
	// ErrNotValidated is returned by ToBin on a result that has not passed
	// SortAndCheck.
	ErrNotValidated = errors.New("srec: data not validated")
)

// DataBlock is a contiguous run of bytes starting at Start, expressed in
// target words.
type DataBlock struct {
	Start uint32
	Data  []byte
}

// Words reports how many target words the block covers.
func (b DataBlock) Words(wordSize int) uint32 {
	if wordSize <= 0 {
		wordSize = 1
	}
	return uint32(len(b.Data) / wordSize)
}

// End returns the first word address after the block.
func (b DataBlock) End(wordSize int) uint32 {
	return b.Start + b.Words(wordSize)
}

// ParsedData is the result of parsing an S-record file.
type ParsedData struct {
	Valid    bool
	WordSize int
	Blocks   []DataBlock
}

type dataLine struct {
	addr    uint32
	payload []byte
}

// Parse converts S-record text into sorted, non-overlapping data blocks.
//
// Characters outside the hex/S alphabet are ignored. A line that does not
// start with an S marker loses only its first character and is otherwise
// decoded as usual.
func Parse(input []byte) (*ParsedData, error) {
	if len(input) == 0 {
		return nil, ErrNoInputData
	}

	var lines []dataLine
	for n, raw := range splitLines(input) {
		line := filterRecordChars(raw)
		if len(line) == 0 {
			continue
		}
		line = stripMarker(line, n+1)
		if len(line) == 0 {
			continue
		}

		addr, payload, isData, err := decodeRecord(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+1, err)
		}
		if !isData {
			continue
		}
		lines = append(lines, dataLine{addr: addr, payload: payload})
	}

	if len(lines) == 0 {
		return nil, ErrNoInputData
	}

	pd := &ParsedData{WordSize: inferWordSize(lines)}
	pd.Blocks = foldLines(lines, pd.WordSize)
	if err := pd.SortAndCheck(); err != nil {
		return nil, err
	}
	pd.Valid = true
	log.Debugf("srec: parsed %d line(s) into %d block(s), word size %d", len(lines), len(pd.Blocks), pd.WordSize)
	return pd, nil
}

func splitLines(input []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, c := range input {
		if c == '\r' || c == '\n' {
			if i > start {
				lines = append(lines, input[start:i])
			}
			start = i + 1
		}
	}
	if start < len(input) {
		lines = append(lines, input[start:])
	}
	return lines
}

func filterRecordChars(line []byte) []byte {
	out := make([]byte, 0, len(line))
	for _, c := range line {
		if isHexDigit(c) || c == 'S' || c == 's' {
			out = append(out, c)
		}
	}
	return out
}

// stripMarker removes the record marker. Lines without one only lose their
// first character.
func stripMarker(line []byte, lineNo int) []byte {
	if line[0] != 'S' && line[0] != 's' {
		log.Warnf("srec: line %d has no record marker, skipping first character", lineNo)
	}
	return line[1:]
}

func decodeRecord(line []byte) (addr uint32, payload []byte, isData bool, err error) {
	recType := line[0]
	body, err := decodeHex(line[1:])
	if err != nil {
		return 0, nil, false, err
	}
	if len(body) < 2 {
		return 0, nil, false, ErrIllegalLine
	}
	if int(body[0]) != len(body)-1 {
		return 0, nil, false, fmt.Errorf("%w: length byte %d, have %d bytes", ErrIllegalLine, body[0], len(body)-1)
	}
	want := body[len(body)-1]
	if got := checksum(body[:len(body)-1]); got != want {
		return 0, nil, false, fmt.Errorf("%w: got %02X want %02X", ErrChecksum, got, want)
	}

	var addrLen int
	switch recType {
	case '1':
		addrLen = 2
	case '2':
		addrLen = 3
	case '3':
		addrLen = 4
	default:
		return 0, nil, false, nil
	}

	fields := body[1 : len(body)-1]
	if len(fields) < addrLen {
		return 0, nil, false, fmt.Errorf("%w: record too short for address", ErrIllegalLine)
	}
	for _, b := range fields[:addrLen] {
		addr = addr<<8 | uint32(b)
	}
	payload = append([]byte(nil), fields[addrLen:]...)
	return addr, payload, true, nil
}

func decodeHex(digits []byte) ([]byte, error) {
	if len(digits)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of hex digits", ErrIllegalLine)
	}
	out := make([]byte, len(digits)/2)
	for i := range out {
		hi, ok1 := hexValue(digits[2*i])
		lo, ok2 := hexValue(digits[2*i+1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: unexpected record marker inside line", ErrIllegalLine)
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func isHexDigit(c byte) bool {
	_, ok := hexValue(c)
	return ok
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// checksum returns the one's complement of the truncated sum of b.
func checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return ^sum
}

// inferWordSize derives the bytes per target address from the first pair of
// consecutive data lines where the second continues the first. Images with
// no such pair are taken to be DSC word addressed.
func inferWordSize(lines []dataLine) int {
	for i := 1; i < len(lines); i++ {
		prev, next := lines[i-1], lines[i]
		if next.addr <= prev.addr {
			continue
		}
		delta := int(next.addr - prev.addr)
		if len(prev.payload) < delta || len(prev.payload)%delta != 0 {
			continue
		}
		return len(prev.payload) / delta
	}
	return defaultWordSize
}

func foldLines(lines []dataLine, wordSize int) []DataBlock {
	var blocks []DataBlock
	var expected uint32
	for i, l := range lines {
		if i == 0 || l.addr != expected {
			blocks = append(blocks, DataBlock{Start: l.addr})
		}
		cur := &blocks[len(blocks)-1]
		cur.Data = append(cur.Data, l.payload...)
		expected = l.addr + uint32(len(l.payload)/wordSize)
	}
	return blocks
}

// SortAndCheck orders the blocks by start address and verifies that no two
// blocks overlap.
func (p *ParsedData) SortAndCheck() error {
	if len(p.Blocks) == 0 {
		return ErrNoInputData
	}
	if p.WordSize <= 0 {
		p.WordSize = 1
	}

	for i := 1; i < len(p.Blocks); i++ {
		b := p.Blocks[i]
		j := i - 1
		for j >= 0 && p.Blocks[j].Start > b.Start {
			p.Blocks[j+1] = p.Blocks[j]
			j--
		}
		p.Blocks[j+1] = b
	}

	for i := 0; i+1 < len(p.Blocks); i++ {
		cur, next := p.Blocks[i], p.Blocks[i+1]
		if cur.End(p.WordSize) > next.Start {
			return fmt.Errorf("%w: block at 0x%X ends at 0x%X, next starts at 0x%X",
				ErrDataOverlap, cur.Start, cur.End(p.WordSize), next.Start)
		}
	}
	return nil
}

// ToBin flattens the blocks into one buffer starting at address 0. Gaps are
// filled with 0xFF.
func (p *ParsedData) ToBin() ([]byte, error) {
	if len(p.Blocks) == 0 {
		return nil, ErrNoInputData
	}
	if !p.Valid {
		return nil, ErrNotValidated
	}

	last := p.Blocks[len(p.Blocks)-1]
	size := int(last.Start)*p.WordSize + len(last.Data)
	out := make([]byte, size)
	for i := range out {
		out[i] = 0xFF
	}
	for _, b := range p.Blocks {
		copy(out[int(b.Start)*p.WordSize:], b.Data)
	}
	return out, nil
}

// Size returns the number of payload bytes across all blocks.
func (p *ParsedData) Size() int {
	n := 0
	for _, b := range p.Blocks {
		n += len(b.Data)
	}
	return n
}
