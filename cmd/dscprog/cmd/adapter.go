package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/OpenTraceDSC/pkg/bdm"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/dsc"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/routine"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/targetdb"
)

func loadDatabase() (*targetdb.Database, error) {
	if targetsFile != "" {
		return targetdb.LoadFile(targetsFile)
	}
	return targetdb.Default()
}

// createProbe opens the probe named by the adapter flags. The simulator is
// configured to look like desc.
func createProbe(kind, serial string, desc *targetdb.Target) (*bdm.Probe, error) {
	var tr bdm.Transport
	switch strings.ToLower(kind) {
	case "usbdm", "usb", "":
		usb, err := bdm.OpenUSB(serial)
		if err != nil {
			return nil, err
		}
		tr = usb
	case "simulator", "sim":
		cfg, err := dsc.SimConfig(desc)
		if err != nil {
			return nil, err
		}
		cfg.Secured = simSecured
		tr = bdm.NewSimTransport(cfg)
	default:
		return nil, fmt.Errorf("unknown adapter type %q (want usbdm or simulator)", kind)
	}

	probe, err := bdm.NewProbe(tr)
	if err != nil {
		tr.Close()
		return nil, err
	}
	if verbose {
		v := probe.Version()
		fmt.Printf("Using %s probe: %s\n", kind, v)
	}
	return probe, nil
}

// openTarget resolves --target, opens the probe and binds the two. The
// caller must Close the target.
func openTarget() (*dsc.Target, error) {
	if targetName == "" {
		return nil, fmt.Errorf("--target is required")
	}
	db, err := loadDatabase()
	if err != nil {
		return nil, err
	}
	desc, err := db.Lookup(targetName)
	if err != nil {
		return nil, err
	}
	level, err := bdm.ParseVdd(powerLevel)
	if err != nil {
		return nil, err
	}

	probe, err := createProbe(adapterType, adapterSerial, desc)
	if err != nil {
		return nil, err
	}
	opts := []dsc.Option{dsc.WithPower(level), dsc.WithProgress(printProgress)}
	if routineFile != "" {
		opts = append(opts, dsc.WithRoutine(routineFile))
	}
	t, err := dsc.New(probe, desc, opts...)
	if err != nil {
		probe.Close()
		return nil, err
	}
	return t, nil
}

// withTarget runs fn on a connected target and always powers it down
// afterwards.
func withTarget(fn func(t *dsc.Target) error) (err error) {
	t, err := openTarget()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := t.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := t.Connect(); err != nil {
		return err
	}
	return fn(t)
}

var lastPercent = -1

func printProgress(p routine.Progress) {
	pct := p.Percent()
	if pct == lastPercent {
		return
	}
	lastPercent = pct
	fmt.Printf("\r%s: %3d%% (%d/%d bytes)", p.Phase, pct, p.Done, p.Total)
	if p.Done >= p.Total {
		fmt.Println()
		lastPercent = -1
	}
}

// parseNumber accepts decimal or 0x-prefixed hex.
func parseNumber(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return uint32(v), nil
}
