// internal/catalog/catalog.go
//
// Service catalog: which services exist, what they consume, and what their
// compose definitions bake in.
//
// Context
// -------
// Every compose file under the services directory contributes its
// `services:` entries.  For each one the catalog derives:
//
//   • Compose layer: `environment` values with interpolation defaults
//     applied (`${MONGO_URL:-mongodb://mongo:27017}` → the default).
//   • Env declarations: interpolated keys are consumed.  A reference with a
//     default makes the key optional; one without (`${OPENAI_API_KEY}`,
//     `${X:?missing}`) makes it required and contributes no value.  Bare
//     list entries (`- REDIS_URL`) are required passthroughs.
//   • `x-ushadow` extension: `env.required`, `env.optional`, and
//     `capabilities` extend what the compose file implies.
//
// Literal environment values are baked in and are not declarations; the
// infrastructure layer never injects over a key the service did not ask for.
//
// Notes
// -----
//   • Map-form YAML numbers stay numbers (`WORKERS: 4`), with their literal.
//   • A service id defined in two files is an error.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ushadow-io/ushadow/internal/value"
)

// ErrInvalidCompose is returned for unreadable or inconsistent compose files.
var ErrInvalidCompose = errors.New("catalog: invalid compose file")

// Declaration holds the env var names a service consumes.
type Declaration struct {
	Required map[string]struct{}
	Optional map[string]struct{}
}

// Declares reports whether name is required or optional.
func (d Declaration) Declares(name string) bool {
	if _, ok := d.Required[name]; ok {
		return true
	}
	_, ok := d.Optional[name]
	return ok
}

// Names returns every declared name, sorted.
func (d Declaration) Names() []string {
	out := make([]string, 0, len(d.Required)+len(d.Optional))
	for n := range d.Required {
		out = append(out, n)
	}
	for n := range d.Optional {
		if _, dup := d.Required[n]; !dup {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// Service is one compose service as the resolver sees it.
type Service struct {
	ID           string
	Image        string
	File         string
	Env          value.Map // compose layer
	Declared     Declaration
	Capabilities []string
}

// Catalog is immutable after Load.
type Catalog struct {
	services map[string]*Service
}

// New builds a catalog from already-parsed services.
func New(svcs ...*Service) (*Catalog, error) {
	c := &Catalog{services: make(map[string]*Service, len(svcs))}
	for _, s := range svcs {
		if prev, dup := c.services[s.ID]; dup {
			return nil, fmt.Errorf("%w: service %q defined in %s and %s",
				ErrInvalidCompose, s.ID, prev.File, s.File)
		}
		c.services[s.ID] = s
	}
	return c, nil
}

// Get returns the service named id.
func (c *Catalog) Get(id string) (*Service, bool) {
	s, ok := c.services[id]
	return s, ok
}

// IDs returns every service id, sorted.
func (c *Catalog) IDs() []string {
	out := make([]string, 0, len(c.services))
	for id := range c.services {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

//
// Loading
//

// Load parses every *.yml / *.yaml file in dir.  A missing dir is an empty
// catalog.
func Load(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		zap.S().Warnw("services dir missing, catalog empty", "dir", dir)
		return New()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCompose, err)
	}

	var all []*Service
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yml" && ext != ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCompose, err)
		}
		svcs, err := ParseFile(path, data)
		if err != nil {
			return nil, err
		}
		all = append(all, svcs...)
	}

	c, err := New(all...)
	if err != nil {
		return nil, err
	}
	zap.S().Infow("service catalog loaded", "dir", dir, "services", len(c.services))
	return c, nil
}

type composeFile struct {
	Services yaml.Node `yaml:"services"`
}

type composeService struct {
	Image       string    `yaml:"image"`
	Environment yaml.Node `yaml:"environment"`
	Ushadow     struct {
		Env struct {
			Required []string `yaml:"required"`
			Optional []string `yaml:"optional"`
		} `yaml:"env"`
		Capabilities []string `yaml:"capabilities"`
	} `yaml:"x-ushadow"`
}

// ParseFile parses one compose document.  name is used in errors only.
func ParseFile(name string, data []byte) ([]*Service, error) {
	var f composeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCompose, name, err)
	}
	if f.Services.Kind != yaml.MappingNode {
		return nil, nil
	}

	var out []*Service
	for i := 0; i+1 < len(f.Services.Content); i += 2 {
		id := f.Services.Content[i].Value
		var cs composeService
		if err := f.Services.Content[i+1].Decode(&cs); err != nil {
			return nil, fmt.Errorf("%w: %s: service %q: %v", ErrInvalidCompose, name, id, err)
		}
		svc := &Service{
			ID:    id,
			Image: cs.Image,
			File:  name,
			Env:   value.Map{},
			Declared: Declaration{
				Required: map[string]struct{}{},
				Optional: map[string]struct{}{},
			},
			Capabilities: cs.Ushadow.Capabilities,
		}
		if err := svc.readEnvironment(&cs.Environment); err != nil {
			return nil, fmt.Errorf("%w: %s: service %q: %v", ErrInvalidCompose, name, id, err)
		}
		for _, n := range cs.Ushadow.Env.Required {
			svc.Declared.Required[n] = struct{}{}
		}
		for _, n := range cs.Ushadow.Env.Optional {
			if _, req := svc.Declared.Required[n]; !req {
				svc.Declared.Optional[n] = struct{}{}
			}
		}
		out = append(out, svc)
	}
	return out, nil
}

// readEnvironment accepts both compose forms: a mapping, or a list of
// KEY=value / KEY strings.
func (s *Service) readEnvironment(n *yaml.Node) error {
	switch n.Kind {
	case 0:
		return nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			v, err := value.FromNode(n.Content[i+1])
			if err != nil {
				return fmt.Errorf("environment.%s: %w", key, err)
			}
			s.addEnv(key, v, true)
		}
		return nil
	case yaml.SequenceNode:
		for _, item := range n.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("environment entry at line %d is not a string", item.Line)
			}
			key, raw, hasValue := strings.Cut(item.Value, "=")
			s.addEnv(key, value.Str(raw), hasValue)
		}
		return nil
	default:
		return fmt.Errorf("environment at line %d is neither a map nor a list", n.Line)
	}
}

func (s *Service) addEnv(key string, v value.Value, hasValue bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	if !hasValue || v.IsNull() {
		// `- KEY` or `KEY:` passes the host variable through.
		s.Declared.Required[key] = struct{}{}
		return
	}
	if v.Kind() != value.String {
		s.Env[key] = v
		return
	}

	in := interpolate(v.Raw())
	switch {
	case !in.hasRefs:
		s.Env[key] = value.Str(in.value)
	case in.required:
		s.Declared.Required[key] = struct{}{}
	default:
		s.Env[key] = value.Str(in.value)
		s.Declared.Optional[key] = struct{}{}
	}
}
