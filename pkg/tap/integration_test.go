package tap_test

import (
	"testing"

	"github.com/OpenTraceLab/OpenTraceDSC/pkg/bdm"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/once"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/tap"
)

// The probe simulator follows the probe's JTAG commands through the TAP
// state machine. A full ONCE connect must leave it idle.
func TestONCEConnectLeavesTAPIdle(t *testing.T) {
	sim := bdm.NewSimTransport(bdm.SimConfig{MasterID: 0x01C0601D, CoreID: 0x02211004})
	p, err := bdm.NewProbe(sim)
	if err != nil {
		t.Fatalf("NewProbe returned error: %v", err)
	}
	if err := p.SetVdd(bdm.Vdd3V3); err != nil {
		t.Fatalf("SetVdd returned error: %v", err)
	}

	if _, err := once.ReadMasterID(p); err != nil {
		t.Fatalf("ReadMasterID returned error: %v", err)
	}
	if err := once.EnableCoreTAP(p); err != nil {
		t.Fatalf("EnableCoreTAP returned error: %v", err)
	}
	if _, err := once.ReadCoreID(p); err != nil {
		t.Fatalf("ReadCoreID returned error: %v", err)
	}
	if got := sim.TAPState(); got != tap.StateRunTestIdle {
		t.Fatalf("TAP state = %s, want %s", got, tap.StateRunTestIdle)
	}
}
