package kemper

import "sort"

// Registry owns the parameters of a device, indexed by key identity and
// grouped by parameter set. Insertion order is preserved everywhere.
type Registry struct {
	params []*Parameter
	byKey  map[string]*Parameter
	sets   map[int][]*Parameter
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byKey: make(map[string]*Parameter),
		sets:  make(map[int][]*Parameter),
	}
}

// Add registers p. The first parameter registered for a key wins lookups.
func (r *Registry) Add(p *Parameter) {
	r.params = append(r.params, p)

	keys := p.ReceiveKeys()
	if p.send != nil {
		keys = append(keys, p.send)
	}
	for _, k := range keys {
		if _, exists := r.byKey[k.ID()]; !exists {
			r.byKey[k.ID()] = p
		}
	}

	for _, id := range p.sets {
		r.sets[id] = append(r.sets[id], p)
	}
}

// Get returns the parameter registered for key
func (r *Registry) Get(key Key) (*Parameter, bool) {
	if key == nil {
		return nil, false
	}
	return r.GetByID(key.ID())
}

// GetByID returns the parameter registered for a key identity
func (r *Registry) GetByID(id string) (*Parameter, bool) {
	p, ok := r.byKey[id]
	return p, ok
}

// Set returns the parameters of parameter set id in insertion order
func (r *Registry) Set(id int) []*Parameter {
	return append([]*Parameter(nil), r.sets[id]...)
}

// SetIDs returns the ids of all non-empty parameter sets
func (r *Registry) SetIDs() []int {
	ids := make([]int, 0, len(r.sets))
	for id := range r.sets {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// All returns every parameter in registration order
func (r *Registry) All() []*Parameter {
	return append([]*Parameter(nil), r.params...)
}

func (r *Registry) Len() int {
	return len(r.params)
}

// Dispatch offers msg to every parameter in order and stops at the first
// match, so a message never changes more than one parameter.
func (r *Registry) Dispatch(msg []byte, simulate bool) (Event, *Parameter, error) {
	for _, p := range r.params {
		ev, ok, err := p.Parse(msg, simulate)
		if err != nil {
			return Event{}, p, err
		}
		if ok {
			return ev, p, nil
		}
	}
	return Event{}, nil, nil
}
