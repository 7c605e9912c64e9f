package config

import (
	"fmt"

	"github.com/james-see/virtualkemper/pkg/kemper"
	"github.com/james-see/virtualkemper/pkg/kemper/devices"
)

// OpenDevice builds a device from the definition file at path, or from the
// built-in device id when path is empty
func OpenDevice(path, id string, opts ...kemper.Option) (*kemper.Device, error) {
	if path == "" {
		profile, err := devices.Lookup(id)
		if err != nil {
			return nil, err
		}
		return devices.New(profile, opts...)
	}

	def, err := Load(path)
	if err != nil {
		return nil, err
	}
	return def.NewDevice(opts...)
}

// NewDevice builds a device from the definition: the referenced built-in
// catalog first, then the listed parameters
func (d *Definition) NewDevice(opts ...kemper.Option) (*kemper.Device, error) {
	var dev *kemper.Device
	if d.Device != "" {
		profile, err := devices.Lookup(d.Device)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
		}
		if d.ProductType != nil && uint8(*d.ProductType) != profile.ProductType() {
			return nil, fmt.Errorf("%w: product_type %d does not match device %s", ErrInvalidDefinition, *d.ProductType, profile.ID())
		}
		if dev, err = devices.New(profile, opts...); err != nil {
			return nil, err
		}
	} else {
		if d.ProductType == nil {
			return nil, fmt.Errorf("%w: product_type or device is required", ErrInvalidDefinition)
		}
		dev = kemper.New(uint8(*d.ProductType), opts...)
	}

	if err := d.Install(dev); err != nil {
		return nil, err
	}
	return dev, nil
}

// Install adds the listed parameters to dev
func (d *Definition) Install(dev *kemper.Device) error {
	for i, p := range d.Parameters {
		opts, err := p.options()
		if err != nil {
			return fmt.Errorf("parameter[%d] %q: %w", i, p.Name, err)
		}
		if _, err := dev.AddParameter(opts); err != nil {
			return fmt.Errorf("parameter[%d] %q: %w", i, p.Name, err)
		}
	}
	return nil
}

func (p ParameterDefinition) options() (kemper.ParameterOptions, error) {
	value, err := p.value()
	if err != nil {
		return kemper.ParameterOptions{}, err
	}

	opts := kemper.ParameterOptions{
		Name:          p.Name,
		Value:         value,
		ParameterSets: p.Sets,
		NoBuffer:      p.NoBuffer,
	}

	for i, spec := range p.Receive {
		key, err := spec.Key()
		if err != nil {
			return opts, fmt.Errorf("receive[%d]: %w", i, err)
		}
		opts.Receive = append(opts.Receive, key)
	}
	if p.Send != nil {
		if opts.Send, err = p.Send.Key(); err != nil {
			return opts, fmt.Errorf("send: %w", err)
		}
	}
	if len(opts.Receive) == 0 && opts.Send == nil {
		return opts, fmt.Errorf("%w: no receive or send key", ErrInvalidDefinition)
	}

	codes := []struct {
		name string
		in   int
		out  *byte
	}{
		{"request_function", p.RequestFunction, &opts.RequestFunctionCode},
		{"set_function", p.SetFunction, &opts.SetFunctionCode},
		{"return_function", p.ReturnFunction, &opts.ReturnFunctionCode},
	}
	for _, c := range codes {
		if c.in < 0 || c.in > 127 {
			return opts, fmt.Errorf("%w: %s %d out of range", ErrInvalidDefinition, c.name, c.in)
		}
		*c.out = byte(c.in)
	}

	return opts, nil
}

// value converts the decoded initial value to the declared type. YAML
// yields int, TOML int64.
func (p ParameterDefinition) value() (kemper.Value, error) {
	switch p.Type {
	case "", "numeric":
		switch v := p.Value.(type) {
		case nil:
			return kemper.NumericValue(0), nil
		case int:
			return kemper.NumericValue(v), nil
		case int64:
			return kemper.NumericValue(int(v)), nil
		case float64:
			if v != float64(int(v)) {
				return kemper.Value{}, fmt.Errorf("%w: numeric value %v is not an integer", ErrInvalidDefinition, v)
			}
			return kemper.NumericValue(int(v)), nil
		default:
			return kemper.Value{}, fmt.Errorf("%w: %T value for numeric parameter", ErrInvalidDefinition, p.Value)
		}
	case "text":
		switch v := p.Value.(type) {
		case nil:
			return kemper.TextValue(""), nil
		case string:
			return kemper.TextValue(v), nil
		default:
			return kemper.Value{}, fmt.Errorf("%w: %T value for text parameter", ErrInvalidDefinition, p.Value)
		}
	default:
		return kemper.Value{}, fmt.Errorf("%w: unknown type %q", ErrInvalidDefinition, p.Type)
	}
}

// Key returns the key the spec selects
func (k KeySpec) Key() (kemper.Key, error) {
	set := 0
	if k.NRPN != nil {
		set++
	}
	if k.CC != nil {
		set++
	}
	if k.PC {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("%w: exactly one of nrpn, cc, pc is required", ErrInvalidDefinition)
	}

	switch {
	case k.NRPN != nil:
		if len(k.NRPN) != 2 || !dataByte(k.NRPN[0]) || !dataByte(k.NRPN[1]) {
			return nil, fmt.Errorf("%w: nrpn needs two bytes 0..127, got %v", ErrInvalidDefinition, k.NRPN)
		}
		return kemper.NRPN(byte(k.NRPN[0]), byte(k.NRPN[1])), nil
	case k.CC != nil:
		if !dataByte(*k.CC) {
			return nil, fmt.Errorf("%w: cc %d out of range", ErrInvalidDefinition, *k.CC)
		}
		return kemper.CC(uint8(*k.CC)), nil
	default:
		return kemper.PCKey{}, nil
	}
}

func dataByte(n int) bool {
	return n >= 0 && n <= 127
}
