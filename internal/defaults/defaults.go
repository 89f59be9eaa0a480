// internal/defaults/defaults.go
//
// Read-only shipped defaults (`config.defaults.yaml`).
//
// Context
// -------
// The defaults file feeds two layers of a resolution:
//
//	defaults:                # layer 1, every service
//	  LOG_LEVEL: info
//	services:                # layer 1, one service (wins over `defaults`)
//	  chronicle:
//	    LLM_MODEL: gpt-4o-mini
//	capabilities:            # layer 4, per declared capability
//	  vector_store:
//	    env:
//	      VECTOR_STORE_PROVIDER: qdrant
//
// The file is loaded once at startup.  Values keep their literal form.
package defaults

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ushadow-io/ushadow/internal/value"
)

// ErrInvalidDefaults is returned for a defaults file that does not match
// the expected shape.
var ErrInvalidDefaults = errors.New("defaults: invalid defaults file")

// Defaults is immutable after Load.
type Defaults struct {
	global       value.Map
	services     map[string]value.Map
	capabilities map[string]value.Map
}

type file struct {
	Defaults     yaml.Node            `yaml:"defaults"`
	Services     map[string]yaml.Node `yaml:"services"`
	Capabilities map[string]struct {
		Env yaml.Node `yaml:"env"`
	} `yaml:"capabilities"`
}

// Empty returns defaults with no values.
func Empty() *Defaults {
	return &Defaults{
		global:       value.Map{},
		services:     map[string]value.Map{},
		capabilities: map[string]value.Map{},
	}
}

// Load reads path.  A missing file yields Empty.
func Load(path string) (*Defaults, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefaults, err)
	}
	return Parse(data)
}

// Parse decodes defaults YAML.
func Parse(data []byte) (*Defaults, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefaults, err)
	}

	d := Empty()
	var err error
	if d.global, err = mapOf(&f.Defaults); err != nil {
		return nil, fmt.Errorf("%w: defaults: %v", ErrInvalidDefaults, err)
	}
	for id, n := range f.Services {
		if d.services[id], err = mapOf(&n); err != nil {
			return nil, fmt.Errorf("%w: services.%s: %v", ErrInvalidDefaults, id, err)
		}
	}
	for name, c := range f.Capabilities {
		if d.capabilities[name], err = mapOf(&c.Env); err != nil {
			return nil, fmt.Errorf("%w: capabilities.%s.env: %v", ErrInvalidDefaults, name, err)
		}
	}
	return d, nil
}

// For returns the defaults layer for serviceID: global defaults overlaid
// by the service's own block.
func (d *Defaults) For(serviceID string) value.Map {
	out := d.global.Clone()
	for k, v := range d.services[serviceID] {
		out[k] = v
	}
	return out
}

// Capability returns the env defaults of one capability.
func (d *Defaults) Capability(name string) value.Map {
	return d.capabilities[name].Clone()
}

// Services returns service ids that have their own defaults block.
func (d *Defaults) Services() []string {
	out := make([]string, 0, len(d.services))
	for id := range d.services {
		out = append(out, id)
	}
	return out
}

// mapOf treats an unset node as empty.
func mapOf(n *yaml.Node) (value.Map, error) {
	if n.Kind == 0 {
		return value.Map{}, nil
	}
	return value.MapFromNode(n)
}
