package devices

import (
	"fmt"

	"github.com/james-see/virtualkemper/pkg/kemper"
	"go.uber.org/zap"
)

// NRPN addresses of the Profiler parameters
const (
	RigNamePage = 0x00
	RigName     = 0x01 // text
	AmpName     = 0x10 // text
	CabName     = 0x20 // text
	MorphState  = 0x0B

	RigVolumePage = 0x04
	RigVolume     = 0x01

	TunerStatePage = 0x7F
	TunerState     = 0x7E
	TunerNotePage  = 0x7D
	TunerNote      = 0x54
	TunerDevPage   = 0x7C
	TunerDeviance  = 0x0F

	SlotOnOff = 0x03 // effect on/off, low byte of every slot address
)

// Control changes handled by the Profiler
const (
	CCBankPreselect = 47
	CCRigSelect1    = 50 // CC 50..54 select rig 1..5 of the current bank
	RigsPerBank     = 5
)

// EffectSlots maps slot names to the high NRPN byte of their address
var EffectSlots = []struct {
	Name string
	Page byte
}{
	{"A", 50},
	{"B", 51},
	{"C", 52},
	{"D", 53},
	{"X", 56},
	{"MOD", 58},
	{"DLY", 60},
	{"REV", 61},
}

// Profiler implements Profile for the Kemper Profiler
type Profiler struct {
	productType uint8
	name        string
	id          string
}

// NewProfiler creates the Profiler profile
func NewProfiler() *Profiler {
	return &Profiler{productType: ProfilerProductType, name: "Kemper Profiler", id: "profiler"}
}

// NewPlayer creates the Profiler Player profile. It shares the Profiler
// parameter catalog and differs in product type.
func NewPlayer() *Profiler {
	return &Profiler{productType: PlayerProductType, name: "Kemper Profiler Player", id: "player"}
}

// Name returns the device name
func (p *Profiler) Name() string {
	return p.name
}

// ID returns the catalog id
func (p *Profiler) ID() string {
	return p.id
}

// ProductType returns the product type byte used in the SysEx envelope
func (p *Profiler) ProductType() uint8 {
	return p.productType
}

// Install registers the Profiler parameters on d. Rig selection by program
// change or rig select CC updates the rig name.
func (p *Profiler) Install(d *kemper.Device) error {
	if d.ProductType() != p.productType {
		return fmt.Errorf("product type 0x%02X does not match %s (0x%02X)", d.ProductType(), p.name, p.productType)
	}

	params := []kemper.ParameterOptions{
		nrpnParam("Rig Name", kemper.TextValue("Clean"), RigNamePage, RigName, SetRigInfo),
		nrpnParam("Amp Name", kemper.TextValue("Virtual Amp"), RigNamePage, AmpName, SetRigInfo),
		nrpnParam("Cab Name", kemper.TextValue("Virtual Cab"), RigNamePage, CabName, SetRigInfo),
		nrpnParam("Rig Volume", kemper.NumericValue(8192), RigVolumePage, RigVolume, SetRigInfo),
		nrpnParam("Morph State", kemper.NumericValue(0), RigNamePage, MorphState, SetRigInfo),
	}

	for _, slot := range EffectSlots {
		params = append(params, nrpnParam("Effect "+slot.Name, kemper.NumericValue(0), slot.Page, SlotOnOff, SetEffects))
	}

	tuner := []kemper.ParameterOptions{
		nrpnParam("Tuner State", kemper.NumericValue(TunerOff), TunerStatePage, TunerState, SetTuner),
		nrpnParam("Tuner Note", kemper.NumericValue(0), TunerNotePage, TunerNote, SetTuner),
		nrpnParam("Tuner Deviance", kemper.NumericValue(8192), TunerDevPage, TunerDeviance, SetTuner),
	}
	for i := range tuner {
		tuner[i].NoBuffer = true
	}
	params = append(params, tuner...)

	if err := install(d, params); err != nil {
		return err
	}

	rigName, err := d.Parameter(kemper.NRPN(RigNamePage, RigName))
	if err != nil {
		return err
	}
	selectRig := func(n int) {
		if err := rigName.SetValue(kemper.TextValue(fmt.Sprintf("Rig %d", n+1))); err != nil {
			d.Logger().Error("rig name", zap.Error(err))
		}
	}

	bank, err := d.AddParameter(kemper.ParameterOptions{
		Name:    "Bank Preselect",
		Value:   kemper.NumericValue(0),
		Receive: []kemper.Key{kemper.CC(CCBankPreselect)},
	})
	if err != nil {
		return err
	}

	for i := 0; i < RigsPerBank; i++ {
		slot := i
		if _, err := d.AddParameter(kemper.ParameterOptions{
			Name:     fmt.Sprintf("Rig Select %d", slot+1),
			Value:    kemper.NumericValue(0),
			Receive:  []kemper.Key{kemper.CC(uint8(CCRigSelect1 + slot))},
			NoBuffer: true,
			Callback: func(*kemper.Parameter, kemper.Value) {
				selectRig(bank.Value().Int()*RigsPerBank + slot)
			},
		}); err != nil {
			return err
		}
	}

	_, err = d.AddParameter(kemper.ParameterOptions{
		Name:     "Program",
		Value:    kemper.NumericValue(0),
		Receive:  []kemper.Key{kemper.PCKey{}},
		Send:     kemper.PCKey{},
		Callback: func(_ *kemper.Parameter, v kemper.Value) { selectRig(v.Int()) },
	})
	return err
}
