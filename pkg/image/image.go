// Package image reads and writes flash images as S-records, Intel HEX or raw
// binary. Blocks always carry program-space word addresses.
package image

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcinbor85/gohex"
	log "github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceDSC/pkg/srec"
)

// Bytes per program-space word.
const wordSize = 2

var (
	ErrUnknownFormat = errors.New("image: unknown file format")
	ErrAlignment     = errors.New("image: segment not word aligned")
	ErrEmpty         = errors.New("image: no data")
)

// Format names an image file format.
type Format uint8

const (
	FormatAuto Format = iota
	FormatSRec
	FormatIntelHex
	FormatBinary
)

func (f Format) String() string {
	switch f {
	case FormatAuto:
		return "auto"
	case FormatSRec:
		return "srec"
	case FormatIntelHex:
		return "ihex"
	case FormatBinary:
		return "bin"
	}
	return fmt.Sprintf("Format(%d)", uint8(f))
}

// ParseFormat converts a format name as accepted on the command line.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "srec", "s19", "s-record", "motorola":
		return FormatSRec, nil
	case "ihex", "hex", "intel":
		return FormatIntelHex, nil
	case "bin", "binary", "raw":
		return FormatBinary, nil
	}
	return FormatAuto, fmt.Errorf("%w %q", ErrUnknownFormat, s)
}

// FormatFromPath picks a format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".s19", ".s28", ".s37", ".srec", ".mot", ".s":
		return FormatSRec, nil
	case ".hex", ".ihex", ".ihx":
		return FormatIntelHex, nil
	case ".bin", ".raw":
		return FormatBinary, nil
	}
	return FormatAuto, fmt.Errorf("%w: cannot tell from %q", ErrUnknownFormat, filepath.Base(path))
}

func resolve(path string, f Format) (Format, error) {
	if f != FormatAuto {
		return f, nil
	}
	return FormatFromPath(path)
}

// Read decodes an image. base is the load address for binary images and is
// ignored otherwise.
func Read(r io.Reader, f Format, base uint32) ([]srec.DataBlock, error) {
	switch f {
	case FormatSRec:
		return readSRec(r)
	case FormatIntelHex:
		return readIntelHex(r)
	case FormatBinary:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("image: %w", err)
		}
		if len(data) == 0 {
			return nil, ErrEmpty
		}
		return []srec.DataBlock{{Start: base, Data: data}}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, f)
}

// S-record files may address bytes or words; blocks are rebased to DSC
// program words.
func readSRec(r io.Reader) ([]srec.DataBlock, error) {
	text, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	pd, err := srec.Parse(text)
	if err != nil {
		return nil, err
	}
	if pd.WordSize == wordSize {
		return pd.Blocks, nil
	}
	log.Debugf("image: s-records addressed in %d byte units, converting to words", pd.WordSize)
	blocks := make([]srec.DataBlock, 0, len(pd.Blocks))
	for _, b := range pd.Blocks {
		blocks = append(blocks, srec.DataBlock{Start: b.Start * uint32(pd.WordSize), Data: b.Data})
	}
	return toWords(blocks)
}

// Intel HEX files address bytes; DSC program memory is word addressed.
func readIntelHex(r io.Reader) ([]srec.DataBlock, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, fmt.Errorf("image: intel hex: %w", err)
	}
	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, ErrEmpty
	}
	blocks := make([]srec.DataBlock, 0, len(segments))
	for _, seg := range segments {
		blocks = append(blocks, srec.DataBlock{Start: seg.Address, Data: seg.Data})
	}
	return toWords(blocks)
}

// toWords converts byte-addressed blocks to word addresses.
func toWords(blocks []srec.DataBlock) ([]srec.DataBlock, error) {
	for i, b := range blocks {
		if b.Start%wordSize != 0 {
			return nil, fmt.Errorf("%w: byte address 0x%08X", ErrAlignment, b.Start)
		}
		blocks[i].Start = b.Start / wordSize
	}
	pd := &srec.ParsedData{WordSize: wordSize, Blocks: blocks}
	if err := pd.SortAndCheck(); err != nil {
		return nil, err
	}
	return pd.Blocks, nil
}

// Load reads an image file. FormatAuto picks the format from the extension.
func Load(path string, f Format, base uint32) ([]srec.DataBlock, error) {
	f, err := resolve(path, f)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	defer file.Close()

	blocks, err := Read(file, f, base)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Debugf("image: %s (%s) holds %d block(s)", path, f, len(blocks))
	return blocks, nil
}

// Write encodes blocks. Binary output starts at the first block; gaps are
// filled with 0xFF.
func Write(w io.Writer, f Format, blocks []srec.DataBlock) error {
	if len(blocks) == 0 {
		return ErrEmpty
	}
	pd := &srec.ParsedData{WordSize: wordSize, Blocks: append([]srec.DataBlock(nil), blocks...)}
	if err := pd.SortAndCheck(); err != nil {
		return err
	}
	pd.Valid = true

	switch f {
	case FormatSRec:
		return srec.WriteParsed(w, pd)

	case FormatIntelHex:
		mem := gohex.NewMemory()
		for _, b := range pd.Blocks {
			if err := mem.AddBinary(b.Start*wordSize, b.Data); err != nil {
				return fmt.Errorf("image: intel hex: %w", err)
			}
		}
		return mem.DumpIntelHex(w, 16)

	case FormatBinary:
		origin := pd.Blocks[0].Start
		for i := range pd.Blocks {
			pd.Blocks[i].Start -= origin
		}
		data, err := pd.ToBin()
		if err != nil {
			return err
		}
		_, err = io.Copy(w, bytes.NewReader(data))
		return err
	}
	return fmt.Errorf("%w: %s", ErrUnknownFormat, f)
}

// Save writes an image file. FormatAuto picks the format from the extension.
func Save(path string, f Format, blocks []srec.DataBlock) error {
	f, err := resolve(path, f)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := Write(&buf, f, blocks); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("image: %w", err)
	}
	log.Debugf("image: wrote %d bytes to %s (%s)", buf.Len(), path, f)
	return nil
}
