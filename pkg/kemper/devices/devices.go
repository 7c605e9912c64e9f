// Package devices provides the built-in virtual device catalogs
package devices

import (
	"fmt"
	"sort"
	"strings"

	"github.com/james-see/virtualkemper/pkg/kemper"
)

// Kemper product types (byte 4 of the SysEx envelope)
const (
	ProfilerProductType = 0x00 // Profiler (head, rack, stage)
	PlayerProductType   = 0x02 // Profiler Player
)

// Parameter sets selected by the handshake
const (
	SetRigInfo = 1 // rig, amp and cab names, volume, morph
	SetEffects = 2 // effect slot states
	SetTuner   = 3 // tuner state, note and deviance
)

// Tuner states as sent on NRPN 127/126
const (
	TunerOn  = 1
	TunerOff = 3
)

// Profile describes a virtual device model and knows how to populate a
// device with its parameters
type Profile interface {
	Name() string
	ID() string
	ProductType() uint8
	Install(d *kemper.Device) error
}

// New creates a device for the profile and installs its parameters
func New(p Profile, opts ...kemper.Option) (*kemper.Device, error) {
	d := kemper.New(p.ProductType(), opts...)
	if err := p.Install(d); err != nil {
		return nil, fmt.Errorf("install %s: %w", p.ID(), err)
	}
	return d, nil
}

// All returns every built-in profile ordered by id
func All() []Profile {
	out := []Profile{NewProfiler(), NewPlayer()}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Lookup returns the built-in profile with the given id (case insensitive)
func Lookup(id string) (Profile, error) {
	for _, p := range All() {
		if strings.EqualFold(p.ID(), id) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unknown device %q", id)
}

// IDs returns the ids of all built-in profiles
func IDs() []string {
	var ids []string
	for _, p := range All() {
		ids = append(ids, p.ID())
	}
	return ids
}

func install(d *kemper.Device, params []kemper.ParameterOptions) error {
	for _, opts := range params {
		if _, err := d.AddParameter(opts); err != nil {
			return err
		}
	}
	return nil
}

// nrpnParam is a parameter received and sent on the same NRPN address
func nrpnParam(name string, v kemper.Value, hi, lo byte, sets ...int) kemper.ParameterOptions {
	key := kemper.NRPN(hi, lo)
	return kemper.ParameterOptions{
		Name:          name,
		Value:         v,
		Receive:       []kemper.Key{key},
		Send:          key,
		ParameterSets: sets,
	}
}
