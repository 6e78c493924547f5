// Package routine holds the flash programming routines that are uploaded to
// target RAM and the engine that stages, runs and polls them.
package routine

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceDSC/pkg/header"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/srec"
)

var (
	ErrRoutineFragmented  = errors.New("routine: image is empty or not contiguous")
	ErrRoutineLoadAddress = errors.New("routine: load address does not match image start")
	ErrUnknownFamily      = errors.New("routine: no flash routine for family")
)

//go:embed images/*.s19
var images embed.FS

// Base is an immutable flash routine: the code image uploaded to program
// RAM and the metadata record at its start.
type Base struct {
	Family string
	Image  []byte
	header.Routine

	// SimulatorOnly marks the bundled images. Their metadata drives the
	// simulator; the code is not a flash routine for real silicon.
	SimulatorOnly bool
}

// Supports reports whether the routine implements every capability in caps.
func (b *Base) Supports(caps uint32) bool {
	return b.Capabilities&caps == caps
}

// Words returns the image size in program words.
func (b *Base) Words() uint32 {
	return uint32((len(b.Image) + 1) / 2)
}

// NewBase parses an S19 routine image. The image must be one contiguous
// block whose metadata record names the block start as load address.
func NewBase(family string, s19 []byte) (*Base, error) {
	pd, err := srec.Parse(s19)
	if err != nil {
		if errors.Is(err, srec.ErrNoInputData) {
			return nil, fmt.Errorf("%w: %s", ErrRoutineFragmented, family)
		}
		return nil, fmt.Errorf("routine %s: %w", family, err)
	}
	if len(pd.Blocks) != 1 {
		return nil, fmt.Errorf("%w: %s has %d blocks", ErrRoutineFragmented, family, len(pd.Blocks))
	}
	block := pd.Blocks[0]

	b := &Base{Family: family, Image: block.Data}
	if err := b.Routine.UnmarshalBinary(block.Data); err != nil {
		return nil, fmt.Errorf("routine %s: %w", family, err)
	}
	if b.LoadAddress != block.Start {
		return nil, fmt.Errorf("%w: %s declares 0x%06X, image starts at 0x%06X",
			ErrRoutineLoadAddress, family, b.LoadAddress, block.Start)
	}
	return b, nil
}

// LoadFile reads a routine S19 built for real devices of family.
func LoadFile(family, path string) (*Base, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("routine %s: %w", family, err)
	}
	b, err := NewBase(family, data)
	if err != nil {
		return nil, err
	}
	log.Debugf("routine: %s from %s loads at P:0x%06X, %d words", family, path, b.LoadAddress, b.Words())
	return b, nil
}

var (
	tableOnce sync.Once
	table     map[string]*Base
	tableErr  error
)

func loadTable() {
	table = make(map[string]*Base)
	entries, err := images.ReadDir("images")
	if err != nil {
		tableErr = err
		return
	}
	for _, e := range entries {
		family := strings.TrimSuffix(e.Name(), ".s19")
		data, err := images.ReadFile("images/" + e.Name())
		if err != nil {
			tableErr = err
			return
		}
		b, err := NewBase(family, data)
		if err != nil {
			tableErr = err
			return
		}
		b.SimulatorOnly = true
		log.Debugf("routine: %s loads at P:0x%06X, %d words", family, b.LoadAddress, b.Words())
		table[family] = b
	}
}

// ForFamily returns the embedded routine for a target family. Embedded
// routines run only against the simulator.
func ForFamily(family string) (*Base, error) {
	tableOnce.Do(loadTable)
	if tableErr != nil {
		return nil, tableErr
	}
	b, ok := table[strings.ToLower(family)]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownFamily, family)
	}
	return b, nil
}

// Families lists the families with an embedded routine.
func Families() []string {
	tableOnce.Do(loadTable)
	out := make([]string, 0, len(table))
	for f := range table {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
