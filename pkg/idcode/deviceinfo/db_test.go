package deviceinfo

import (
	"testing"

	"github.com/OpenTraceLab/OpenTraceDSC/pkg/targetdb"
)

func TestLookupKnownPart(t *testing.T) {
	info := Lookup(0x01C0601D)
	if !info.Known || info.Name != "MC56F8006" || info.Family != "mc56f80xx" {
		t.Fatalf("Lookup = %+v", info)
	}
	if info.Manufacturer.Abbreviation != "Freescale" || info.IDCode.PartNumber != 0x1C06 {
		t.Fatalf("decoded fields = %+v / %+v", info.Manufacturer, info.IDCode)
	}
}

func TestLookupUnknownPart(t *testing.T) {
	info := Lookup(0x0BADC0DF)
	if info.Known || info.Name != "Unknown device" {
		t.Fatalf("Lookup = %+v", info)
	}
}

// Every entry in the bundled target database should decode to itself.
func TestLookupMatchesTargetDatabase(t *testing.T) {
	db, err := targetdb.Default()
	if err != nil {
		t.Fatalf("Default returned error: %v", err)
	}
	for _, name := range db.Names() {
		desc, err := db.Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%s) returned error: %v", name, err)
		}
		info := Lookup(desc.JTAGID)
		if !info.Known || info.Name != desc.Name || info.Family != desc.Family {
			t.Fatalf("%s: device info %q (%s)", desc.Name, info.Name, info.Family)
		}
	}
}
