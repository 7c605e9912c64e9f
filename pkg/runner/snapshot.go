package runner

import (
	"time"

	"github.com/james-see/virtualkemper/pkg/kemper"
)

// ParameterState is the exported view of one parameter
type ParameterState struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
	Value       any    `json:"value"`
	Sets        []int  `json:"sets,omitempty"`
	NoBuffer    bool   `json:"no_buffer,omitempty"`
}

// Snapshot is the exported view of the device
type Snapshot struct {
	ProductType    uint8            `json:"product_type"`
	State          string           `json:"state"`
	ActiveSet      *int             `json:"active_set"`
	KeepAliveStep  int              `json:"keepalive_step"`
	Lease          time.Duration    `json:"lease_ns"`
	LeaseRemaining time.Duration    `json:"lease_remaining_ns"`
	Flags          byte             `json:"flags"`
	Parameters     []ParameterState `json:"parameters"`
}

// Snapshot returns the current device state
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := r.device
	p := d.Protocol()
	lease, remaining := p.Lease()

	s := Snapshot{
		ProductType:    d.ProductType(),
		State:          p.State().String(),
		KeepAliveStep:  int(p.KeepAliveStep()),
		Lease:          lease,
		LeaseRemaining: remaining,
		Flags:          byte(p.Flags()),
	}
	if set, ok := p.ActiveParameterSet(); ok {
		s.ActiveSet = &set
	}

	for _, param := range d.Parameters() {
		s.Parameters = append(s.Parameters, parameterState(param))
	}
	return s
}

func parameterState(p *kemper.Parameter) ParameterState {
	st := ParameterState{
		Name:        p.Name(),
		DisplayName: p.DisplayName(),
		Type:        p.ValueType().String(),
		Value:       p.Value().Any(),
		Sets:        p.ParameterSets(),
		NoBuffer:    p.NoBuffer(),
	}
	if k := p.Key(); k != nil {
		st.Key = k.ID()
	}
	return st
}
