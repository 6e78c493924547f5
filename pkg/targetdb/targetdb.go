// Package targetdb loads the description of supported DSC targets: JTAG
// identification, security bytes, flash controller and memory map.
package targetdb

import (
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/OpenTraceLab/OpenTraceDSC/pkg/memmap"
)

var (
	ErrUnknownTarget = errors.New("targetdb: unknown target")
	ErrOddHex        = errors.New("targetdb: hex string has odd length")
)

//go:embed targets.yaml
var defaultTargets []byte

// HexBytes is a byte string written in YAML as hex digits.
type HexBytes []byte

// UnmarshalYAML implements yaml.Unmarshaler.
func (h *HexBytes) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	b, err := DecodeHex(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*h = b
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (h HexBytes) MarshalYAML() (interface{}, error) {
	return strings.ToUpper(hex.EncodeToString(h)), nil
}

// DecodeHex converts a string of hex digit pairs into bytes. Whitespace is
// ignored; an odd number of digits is an error.
func DecodeHex(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("%w: %q", ErrOddHex, s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("targetdb: %w", err)
	}
	return b, nil
}

// Region is one memory map entry as written in the database.
type Region struct {
	Kind   string `yaml:"kind"`
	Name   string `yaml:"name"`
	Start  uint32 `yaml:"start"`
	End    uint32 `yaml:"end"`
	Access string `yaml:"access"`
}

// Target describes one device.
type Target struct {
	Name            string   `yaml:"name"`
	Family          string   `yaml:"family"`
	JTAGID          uint32   `yaml:"jtag_id"`
	CoreID          uint32   `yaml:"core_id"`
	FlashController uint32   `yaml:"flash_controller"`
	SectorSize      uint16   `yaml:"sector_size"`
	SecurityAddress uint32   `yaml:"security_address"`
	SecurityBytes   HexBytes `yaml:"security_bytes"`
	ConnectionImage string   `yaml:"connection_image"`
	// FlashRoutine is an S19 flash routine built for the device. Relative
	// paths are resolved against the database file.
	FlashRoutine    string   `yaml:"flash_routine"`
	Memory          []Region `yaml:"memory"`
}

// MemoryMap converts the memory list into a validated memmap.Map.
func (t *Target) MemoryMap() (memmap.Map, error) {
	m := make(memmap.Map, 0, len(t.Memory))
	for _, r := range t.Memory {
		kind, err := memmap.ParseKind(r.Kind)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.Name, err)
		}
		access, err := memmap.ParseAccess(r.Access)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.Name, err)
		}
		m = append(m, memmap.Segment{Kind: kind, Name: r.Name, Start: r.Start, End: r.End, Access: access})
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", t.Name, err)
	}
	return m, nil
}

// Database is a set of targets keyed by upper-case name.
type Database struct {
	targets map[string]*Target
}

type document struct {
	Targets []*Target `yaml:"targets"`
}

// Load parses a YAML database.
func Load(r io.Reader) (*Database, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &Database{targets: map[string]*Target{}}, nil
		}
		return nil, fmt.Errorf("targetdb: %w", err)
	}

	db := &Database{targets: make(map[string]*Target, len(doc.Targets))}
	for i, t := range doc.Targets {
		if t.Name == "" {
			return nil, fmt.Errorf("targetdb: entry %d has no name", i)
		}
		if _, err := t.MemoryMap(); err != nil {
			return nil, fmt.Errorf("targetdb: %w", err)
		}
		key := strings.ToUpper(t.Name)
		if _, dup := db.targets[key]; dup {
			return nil, fmt.Errorf("targetdb: duplicate target %s", t.Name)
		}
		db.targets[key] = t
	}
	log.Debugf("targetdb: loaded %d target(s)", len(db.targets))
	return db, nil
}

// LoadFile loads a database from disk.
func LoadFile(path string) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("targetdb: %w", err)
	}
	defer f.Close()
	db, err := Load(f)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	for _, t := range db.targets {
		if t.FlashRoutine != "" && !filepath.IsAbs(t.FlashRoutine) {
			t.FlashRoutine = filepath.Join(dir, t.FlashRoutine)
		}
	}
	return db, nil
}

// Default returns the database built into the binary.
func Default() (*Database, error) {
	return Load(strings.NewReader(string(defaultTargets)))
}

// Lookup finds a target by name, ignoring case.
func (db *Database) Lookup(name string) (*Target, error) {
	t, ok := db.targets[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownTarget, name)
	}
	return t, nil
}

// Names returns the target names in sorted order.
func (db *Database) Names() []string {
	out := make([]string, 0, len(db.targets))
	for _, t := range db.targets {
		out = append(out, t.Name)
	}
	sort.Strings(out)
	return out
}
