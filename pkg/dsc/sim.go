package dsc

import (
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/bdm"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/memmap"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/routine"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/targetdb"
)

// SimBusKHz is the bus clock the simulator reports to the timing routine.
const SimBusKHz = 32000

// SimConfig builds a probe simulator that answers like the device described
// by desc: its JTAG IDs, its program flash and its family's flash routine.
func SimConfig(desc *targetdb.Target) (bdm.SimConfig, error) {
	mm, err := desc.MemoryMap()
	if err != nil {
		return bdm.SimConfig{}, err
	}
	fam, err := familyFor(desc.Family)
	if err != nil {
		return bdm.SimConfig{}, err
	}
	base, err := routine.ForFamily(fam.Name())
	if err != nil {
		return bdm.SimConfig{}, err
	}
	cfg := bdm.SimConfig{
		MasterID:    desc.JTAGID,
		CoreID:      desc.CoreID,
		RoutineLoad: base.LoadAddress,
		BusKHz:      SimBusKHz,
	}
	for _, seg := range mm.OfKind(memmap.FlashProgram) {
		cfg.Flash = append(cfg.Flash, bdm.SimRange{Start: seg.Start, End: seg.End})
	}
	return cfg, nil
}
