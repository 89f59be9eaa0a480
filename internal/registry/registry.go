// internal/registry/registry.go
//
// Infrastructure registry: service type → URL scheme + env var names.
//
// Context
// -------
// The registry is a table, not a function.  It is derived once at startup
// from a compose-style infrastructure file where each compose service may
// carry an `x-infra` block:
//
//	services:
//	  mongo:
//	    image: mongo:8
//	    x-infra:
//	      scheme: mongodb
//	      env: [MONGO_URL, MONGODB_URL]
//
// Adding a new infrastructure type is a data change.  Lookups for a type
// absent from the table fall back to one synthesized rule: scheme `http`
// and env var `<TYPE>_URL`.
//
// Notes
// -----
//   - Type order follows the file, so scans and generated layers are
//     deterministic.
//   - Several compose services may declare the same `type`; their env names
//     are merged in order, duplicates dropped.
package registry

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FallbackScheme is used for service types the table does not know.
const FallbackScheme = "http"

// ErrInvalidDefinition is returned for unreadable or inconsistent files.
var ErrInvalidDefinition = errors.New("registry: invalid infrastructure definition")

// Entry is one row of the table.
type Entry struct {
	ServiceType string   `validate:"required"`
	Scheme      string   `validate:"required,excludesall=:/ "`
	EnvVarNames []string `validate:"dive,required"`
	Synthesized bool     // true for the fallback rule
}

// Registry is immutable after construction and safe for concurrent reads.
type Registry struct {
	order   []string
	entries map[string]Entry
}

var v = validator.New()

// New builds a registry from entries, merging duplicates by service type.
func New(entries ...Entry) (*Registry, error) {
	r := &Registry{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if err := v.Struct(e); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDefinition, e.ServiceType, err)
		}
		prev, seen := r.entries[e.ServiceType]
		if !seen {
			r.order = append(r.order, e.ServiceType)
			r.entries[e.ServiceType] = Entry{
				ServiceType: e.ServiceType,
				Scheme:      e.Scheme,
				EnvVarNames: dedupe(nil, e.EnvVarNames),
			}
			continue
		}
		if prev.Scheme != e.Scheme {
			return nil, fmt.Errorf("%w: type %q declared with schemes %q and %q",
				ErrInvalidDefinition, e.ServiceType, prev.Scheme, e.Scheme)
		}
		prev.EnvVarNames = dedupe(prev.EnvVarNames, e.EnvVarNames)
		r.entries[e.ServiceType] = prev
	}
	return r, nil
}

//
// Lookups
//

// Lookup returns the entry for serviceType, or the synthesized fallback.
func (r *Registry) Lookup(serviceType string) Entry {
	if e, ok := r.entries[serviceType]; ok {
		return e
	}
	return Entry{
		ServiceType: serviceType,
		Scheme:      FallbackScheme,
		EnvVarNames: []string{fallbackEnvVar(serviceType)},
		Synthesized: true,
	}
}

// Known reports whether serviceType has a table row.
func (r *Registry) Known(serviceType string) bool {
	_, ok := r.entries[serviceType]
	return ok
}

// BuildURL joins the type's scheme and a raw host:port endpoint.
func (r *Registry) BuildURL(serviceType, endpoint string) string {
	return r.Lookup(serviceType).Scheme + "://" + endpoint
}

// EnvVarsFor returns every env var name that receives the type's URL.
func (r *Registry) EnvVarsFor(serviceType string) []string {
	names := r.Lookup(serviceType).EnvVarNames
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// Types returns the known service types in declaration order.
func (r *Registry) Types() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

//
// Loading
//

type composeFile struct {
	Services yaml.Node `yaml:"services"`
}

type composeService struct {
	Infra *struct {
		Type   string   `yaml:"type"`
		Scheme string   `yaml:"scheme"`
		Env    []string `yaml:"env"`
	} `yaml:"x-infra"`
}

// Load reads a compose-style infrastructure definition file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return Parse(data)
}

// Parse builds a registry from compose YAML.  Services without an
// `x-infra` block are ignored; they are not infrastructure.
func Parse(data []byte) (*Registry, error) {
	var f composeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	if f.Services.Kind != yaml.MappingNode {
		return New()
	}

	var entries []Entry
	for i := 0; i+1 < len(f.Services.Content); i += 2 {
		name := f.Services.Content[i].Value
		var svc composeService
		if err := f.Services.Content[i+1].Decode(&svc); err != nil {
			return nil, fmt.Errorf("%w: service %q: %v", ErrInvalidDefinition, name, err)
		}
		if svc.Infra == nil {
			continue
		}
		typ := svc.Infra.Type
		if typ == "" {
			typ = name
		}
		env := svc.Infra.Env
		if len(env) == 0 {
			env = []string{fallbackEnvVar(typ)}
		}
		entries = append(entries, Entry{
			ServiceType: typ,
			Scheme:      svc.Infra.Scheme,
			EnvVarNames: env,
		})
	}
	return New(entries...)
}

//
// helpers
//

func fallbackEnvVar(serviceType string) string {
	r := strings.NewReplacer("-", "_", ".", "_")
	return strings.ToUpper(r.Replace(serviceType)) + "_URL"
}

func dedupe(dst, add []string) []string {
	seen := make(map[string]struct{}, len(dst)+len(add))
	for _, n := range dst {
		seen[n] = struct{}{}
	}
	for _, n := range add {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		dst = append(dst, n)
	}
	return dst
}
