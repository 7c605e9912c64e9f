// Package config loads virtual device definitions from YAML or TOML files
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidDefinition = errors.New("config: invalid definition")
	ErrUnsupportedFormat = errors.New("config: unsupported format")
)

// Format represents a definition file format
type Format string

const (
	FormatYAML    Format = "yaml"
	FormatTOML    Format = "toml"
	FormatUnknown Format = "unknown"
)

// DetectFormat detects the format of a file based on its extension
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatUnknown
	}
}

// Definition describes a virtual device: an optional built-in catalog to
// start from and additional parameters
type Definition struct {
	Name        string                `yaml:"name" toml:"name" json:"name"`
	Device      string                `yaml:"device,omitempty" toml:"device,omitempty" json:"device,omitempty"`
	ProductType *int                  `yaml:"product_type,omitempty" toml:"product_type,omitempty" json:"product_type,omitempty"`
	Parameters  []ParameterDefinition `yaml:"parameters" toml:"parameters" json:"parameters"`
}

// ParameterDefinition describes one parameter
type ParameterDefinition struct {
	Name     string    `yaml:"name" toml:"name" json:"name"`
	Type     string    `yaml:"type" toml:"type" json:"type"` // numeric | text
	Value    any       `yaml:"value,omitempty" toml:"value,omitempty" json:"value,omitempty"`
	Receive  []KeySpec `yaml:"receive,omitempty" toml:"receive,omitempty" json:"receive,omitempty"`
	Send     *KeySpec  `yaml:"send,omitempty" toml:"send,omitempty" json:"send,omitempty"`
	Sets     []int     `yaml:"sets,omitempty" toml:"sets,omitempty" json:"sets,omitempty"`
	NoBuffer bool      `yaml:"no_buffer,omitempty" toml:"no_buffer,omitempty" json:"no_buffer,omitempty"`

	RequestFunction int `yaml:"request_function,omitempty" toml:"request_function,omitempty" json:"request_function,omitempty"`
	SetFunction     int `yaml:"set_function,omitempty" toml:"set_function,omitempty" json:"set_function,omitempty"`
	ReturnFunction  int `yaml:"return_function,omitempty" toml:"return_function,omitempty" json:"return_function,omitempty"`
}

// KeySpec selects exactly one key variant
type KeySpec struct {
	NRPN []int `yaml:"nrpn,omitempty" toml:"nrpn,omitempty" json:"nrpn,omitempty"`
	CC   *int  `yaml:"cc,omitempty" toml:"cc,omitempty" json:"cc,omitempty"`
	PC   bool  `yaml:"pc,omitempty" toml:"pc,omitempty" json:"pc,omitempty"`
}

// Load reads and validates a definition file. The format is chosen by
// file extension.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file: %w", err)
	}
	def, err := Parse(data, DetectFormat(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// Parse decodes and validates a definition
func Parse(data []byte, format Format) (*Definition, error) {
	var def Definition
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("failed to parse toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the definition without building a device
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.Device) == "" && d.ProductType == nil {
		return fmt.Errorf("%w: product_type or device is required", ErrInvalidDefinition)
	}
	if d.ProductType != nil && (*d.ProductType < 0 || *d.ProductType > 127) {
		return fmt.Errorf("%w: product_type %d out of range", ErrInvalidDefinition, *d.ProductType)
	}
	for i, p := range d.Parameters {
		if _, err := p.options(); err != nil {
			return fmt.Errorf("parameter[%d] %q: %w", i, p.Name, err)
		}
	}
	return nil
}
