package srec

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const (
	// headerRecord leads every generated file.
	headerRecord = "S0030000FC"

	// recordChunk is the payload size of each emitted S3 record.
	recordChunk = 32

	// defaultWordSize is the addressing unit of records when none is
	// given; the DSC program space is addressed in 16-bit words.
	defaultWordSize = 2
)

// WriteRecords emits data as S3 records starting at word address start.
func WriteRecords(w io.Writer, start uint32, data []byte) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(headerRecord + "\r\n"); err != nil {
		return err
	}
	if err := writeData(bw, start, data, defaultWordSize); err != nil {
		return err
	}
	return bw.Flush()
}

// writeData emits the S3 records of one block, advancing the address by
// one per wordSize bytes.
func writeData(w io.StringWriter, start uint32, data []byte, wordSize int) error {
	addr := start
	for off := 0; off < len(data); off += recordChunk {
		end := off + recordChunk
		if end > len(data) {
			end = len(data)
		}
		if _, err := w.WriteString(formatS3(addr, data[off:end]) + "\r\n"); err != nil {
			return err
		}
		addr += uint32((end - off) / wordSize)
	}
	return nil
}

// ToRecordText is WriteRecords into a string.
func ToRecordText(data []byte, start uint32) string {
	var sb strings.Builder
	// strings.Builder never fails
	_ = WriteRecords(&sb, start, data)
	return sb.String()
}

func formatS3(addr uint32, payload []byte) string {
	body := make([]byte, 0, 1+4+len(payload))
	body = append(body, byte(4+len(payload)+1))
	body = append(body, byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr))
	body = append(body, payload...)

	var sb strings.Builder
	sb.Grow(2 + 2*(len(body)+1))
	sb.WriteString("S3")
	for _, b := range body {
		fmt.Fprintf(&sb, "%02X", b)
	}
	fmt.Fprintf(&sb, "%02X", checksum(body))
	return sb.String()
}

// WriteParsed emits every block of p as S3 records, addressed in units of
// p.WordSize bytes.
func WriteParsed(w io.Writer, p *ParsedData) error {
	if len(p.Blocks) == 0 {
		return ErrNoInputData
	}
	wordSize := p.WordSize
	if wordSize <= 0 {
		wordSize = defaultWordSize
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(headerRecord + "\r\n"); err != nil {
		return err
	}
	for _, b := range p.Blocks {
		if err := writeData(bw, b.Start, b.Data, wordSize); err != nil {
			return err
		}
	}
	return bw.Flush()
}
