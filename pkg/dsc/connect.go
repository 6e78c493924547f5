package dsc

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceDSC/pkg/bdm"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/idcode"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/once"
)

const (
	powerSettle      = 50 * time.Millisecond
	debugPollDelay   = 50 * time.Millisecond
	debugPollRetries = 10
)

func (t *Target) readPower() (PowerStatus, bdm.PowerSense, error) {
	st, err := t.probe.Status()
	if err != nil {
		return PowerOff, bdm.PowerNone, fmt.Errorf("dsc: read power status: %w", err)
	}
	switch sense := st.Power(); sense {
	case bdm.PowerInternal, bdm.PowerExternal:
		return PowerOn, sense, nil
	case bdm.PowerError:
		return PowerOff, sense, fmt.Errorf("%w: probe reports supply fault", ErrPowerState)
	default:
		return PowerOff, sense, nil
	}
}

// Power drives the target supply to level. It does nothing when the supply
// is already in the requested state, and allows one settle delay for the
// probe to see the change.
func (t *Target) Power(level bdm.Vdd) error {
	want := PowerOn
	if level == bdm.VddOff {
		want = PowerOff
	}

	cur, sense, err := t.readPower()
	if err != nil {
		return err
	}
	if cur == want {
		t.power = cur
		return nil
	}
	if want == PowerOff && sense == bdm.PowerExternal {
		log.Warnf("dsc: target is externally powered, cannot switch it off")
		t.power = PowerOn
		return nil
	}

	if err := t.probe.SetVdd(level); err != nil {
		return fmt.Errorf("dsc: set Vdd %s: %w", level, err)
	}
	for attempt := 0; ; attempt++ {
		cur, _, err = t.readPower()
		if err != nil {
			return err
		}
		if cur == want {
			break
		}
		if attempt == 1 {
			return fmt.Errorf("%w: wanted %s, probe reports %s", ErrPowerState, want, cur)
		}
		t.sleep(powerSettle)
	}

	t.power = cur
	if cur == PowerOff {
		t.once = once.UnknownMode
	}
	log.Infof("dsc: target power %s", cur)
	return nil
}

// Connect power-cycles the target, identifies it and puts the core in debug
// mode. A secured target ends the connect in StateSecured without error.
func (t *Target) Connect() error {
	t.state = StateConnecting
	if err := t.connect(); err != nil {
		t.state = StateErrored
		return err
	}
	return nil
}

func (t *Target) connect() error {
	if err := t.probe.SetTarget(bdm.TargetMC56F80xx); err != nil {
		return fmt.Errorf("dsc: select target type: %w", err)
	}
	if err := t.Power(bdm.VddOff); err != nil {
		return err
	}
	if err := t.Power(t.level); err != nil {
		return err
	}
	t.once = once.UnknownMode

	master, err := once.ReadMasterID(t.probe)
	if err != nil {
		return err
	}
	t.masterID = master
	if !idcode.Valid(master) {
		return fmt.Errorf("%w: no JTAG ID (read 0x%08X)", ErrTargetNotConnected, master)
	}
	if id := idcode.ParseIDCode(master); !id.SamePart(idcode.ParseIDCode(t.desc.JTAGID)) {
		log.Warnf("dsc: JTAG ID %s does not match %s (0x%08X)", id, t.Name, t.desc.JTAGID)
	} else if master != t.desc.JTAGID {
		log.Infof("dsc: %s silicon revision %d", t.Name, id.Version)
	}
	if err := once.EnableCoreTAP(t.probe); err != nil {
		return err
	}
	core, err := once.ReadCoreID(t.probe)
	if err != nil {
		return err
	}
	t.coreID = core

	t.security = t.family.IsUnsecure(core, t.desc.CoreID)
	switch t.security {
	case Secured:
		log.Warnf("dsc: %s is secured (core ID 0x%08X)", t.Name, core)
		t.state = StateSecured
		return nil
	case SecurityUnknown:
		log.Warnf("dsc: core ID 0x%08X does not match 0x%08X, security unknown", core, t.desc.CoreID)
	}

	if err := t.enterDebug(); err != nil {
		return err
	}
	st, err := once.Enable(t.probe)
	if err != nil {
		return err
	}
	t.once = st
	if st != once.DebugMode {
		return fmt.Errorf("%w: ONCE status %s after enable", ErrTargetNotConnected, st)
	}
	t.state = StateConnected
	log.Infof("dsc: connected to %s (JTAG 0x%08X, core 0x%08X)", t.Name, master, core)
	return nil
}

func (t *Target) enterDebug() error {
	for i := 0; i < debugPollRetries; i++ {
		st, err := once.DebugRequest(t.probe)
		if err != nil {
			return err
		}
		t.once = st
		switch st {
		case once.DebugMode:
			return nil
		case once.UnknownMode:
			return fmt.Errorf("%w: core TAP not responding", ErrTargetNotConnected)
		}
		log.Debugf("dsc: debug request %d, core %s", i+1, st)
		t.sleep(debugPollDelay)
	}
	return fmt.Errorf("%w: core did not enter debug mode", ErrTargetNotConnected)
}

// ready gates every operation that touches the target. Secured targets are
// refused before any probe traffic.
func (t *Target) ready() error {
	if t.security == Secured {
		return ErrTargetSecured
	}
	if t.power == PowerOn && t.once == once.DebugMode && t.state == StateConnected {
		return nil
	}
	if err := t.Connect(); err != nil {
		return err
	}
	if t.security == Secured {
		return ErrTargetSecured
	}
	return nil
}
