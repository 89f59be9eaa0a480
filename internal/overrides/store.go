// internal/overrides/store.go
//
// OverrideStore: the only runtime-writable configuration layer.
//
// Context
// -------
// User overrides live in `config.overrides.yaml`:
//
//	service_preferences:
//	  chronicle:
//	    LLM_MODEL: gpt-4o
//	    TEMPERATURE: 0.123456789
//
// The file is the single source of truth.  Get re-reads it on every call, so
// there is no in-memory copy that could go stale after a write.  Update
// merges a partial map into one service's section at the key level and
// rewrites the file atomically (temp file, fsync, rename, dir fsync) before
// returning.
//
// Locking
// -------
//   - One mutex per service id serializes read-merge-write of that section,
//     so two partial updates to the same service cannot lose each other's keys.
//   - A short file lock covers only the splice-and-replace step, because the
//     file holds every service's section.  Updates to different services do
//     not wait on each other's merge, only on the rename.
//
// Notes
// -----
//   - The document is edited as a yaml.v3 node tree.  Other services'
//     sections, unrelated top-level keys, and comments survive rewrites.
//   - Number literals are written back exactly as supplied.
//   - A malformed file is reported by NewStore; callers treat it as fatal.
package overrides

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ushadow-io/ushadow/internal/metrics"
	"github.com/ushadow-io/ushadow/internal/value"
)

// SectionKey is the top-level key that holds per-service overrides.
const SectionKey = "service_preferences"

// ErrMalformedOverrides is returned when the override file cannot be parsed
// into service_preferences.<id>.<key> scalars.
var ErrMalformedOverrides = errors.New("overrides: malformed override file")

// Store is safe for concurrent use.
type Store struct {
	path string

	fileMu  sync.RWMutex
	section sync.Map // service id → *sync.Mutex
}

// NewStore opens path and validates its content.  A missing file is an
// empty store; it is created on first Update.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	doc, err := s.readDoc()
	if err != nil {
		return nil, err
	}
	ids, err := serviceIDs(doc)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, err := value.MapFromNode(lookup(rootMapping(doc), SectionKey, id)); err != nil {
			return nil, fmt.Errorf("%w: %s: service %q: %v", ErrMalformedOverrides, path, id, err)
		}
	}
	zap.S().Infow("override store opened", "file", path, "services", len(ids))
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

//
// Reads
//

// Get returns a copy of serviceID's overrides, or an empty map.
func (s *Store) Get(serviceID string) (value.Map, error) {
	s.fileMu.RLock()
	defer s.fileMu.RUnlock()

	doc, err := s.readDoc()
	if err != nil {
		return nil, err
	}
	m, err := value.MapFromNode(lookup(rootMapping(doc), SectionKey, serviceID))
	if err != nil {
		return nil, fmt.Errorf("%w: service %q: %v", ErrMalformedOverrides, serviceID, err)
	}
	return m, nil
}

// Services lists the ids that have an override section, sorted.
func (s *Store) Services() ([]string, error) {
	s.fileMu.RLock()
	defer s.fileMu.RUnlock()

	doc, err := s.readDoc()
	if err != nil {
		return nil, err
	}
	ids, err := serviceIDs(doc)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

//
// Writes
//

// Update merges partial into serviceID's section.  Keys absent from partial
// keep their stored value.  The write is durable when Update returns nil.
func (s *Store) Update(serviceID string, partial value.Map) error {
	if serviceID == "" {
		return errors.New("overrides: empty service id")
	}
	if len(partial) == 0 {
		return nil
	}

	mu := s.lockFor(serviceID)
	mu.Lock()
	defer mu.Unlock()

	current, err := s.Get(serviceID)
	if err != nil {
		return err
	}
	for k, v := range partial {
		current[k] = v
	}

	if err := s.writeSection(serviceID, current); err != nil {
		metrics.OverrideWriteErrorsTotal.Inc()
		zap.S().Errorw("override write failed", "service", serviceID, "file", s.path, "err", err)
		return err
	}
	metrics.OverrideWritesTotal.Inc()
	zap.S().Infow("overrides updated", "service", serviceID, "keys", partial.Keys())
	return nil
}

func (s *Store) lockFor(serviceID string) *sync.Mutex {
	mu, _ := s.section.LoadOrStore(serviceID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// writeSection replaces one service's section and rewrites the file.
func (s *Store) writeSection(serviceID string, vals value.Map) error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	doc, err := s.readDoc()
	if err != nil {
		return err
	}
	prefs := ensureMapping(rootMapping(doc), SectionKey)
	setKey(prefs, serviceID, value.MapNode(vals))

	data, err := encode(doc)
	if err != nil {
		return err
	}
	return writeAtomic(s.path, data)
}

//
// Document helpers
//

func (s *Store) readDoc() (*yaml.Node, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return emptyDoc(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("overrides: read %s: %w", s.path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedOverrides, s.path, err)
	}
	if len(doc.Content) == 0 {
		return emptyDoc(), nil
	}
	if doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: %s: top level is not a mapping", ErrMalformedOverrides, s.path)
	}
	return &doc, nil
}

func emptyDoc() *yaml.Node {
	return &yaml.Node{
		Kind:    yaml.DocumentNode,
		Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
	}
}

func rootMapping(doc *yaml.Node) *yaml.Node { return doc.Content[0] }

// lookup walks mapping keys; nil when any step is missing.
func lookup(n *yaml.Node, path ...string) *yaml.Node {
	for _, key := range path {
		if n == nil || n.Kind != yaml.MappingNode {
			return nil
		}
		var next *yaml.Node
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value == key {
				next = n.Content[i+1]
			}
		}
		n = next
	}
	return n
}

func ensureMapping(parent *yaml.Node, key string) *yaml.Node {
	if n := lookup(parent, key); n != nil && n.Kind == yaml.MappingNode {
		n.Style &^= yaml.FlowStyle // `{}` placeholders grow into block mappings
		return n
	}
	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	setKey(parent, key, m)
	return m
}

func setKey(parent *yaml.Node, key string, val *yaml.Node) {
	for i := 0; i+1 < len(parent.Content); i += 2 {
		if parent.Content[i].Value == key {
			parent.Content[i+1] = val
			return
		}
	}
	parent.Content = append(parent.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, val)
}

func serviceIDs(doc *yaml.Node) ([]string, error) {
	prefs := lookup(rootMapping(doc), SectionKey)
	if prefs == nil || (prefs.Kind == yaml.ScalarNode && prefs.ShortTag() == "!!null") {
		return nil, nil
	}
	if prefs.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: %s is not a mapping", ErrMalformedOverrides, SectionKey)
	}
	ids := make([]string, 0, len(prefs.Content)/2)
	for i := 0; i+1 < len(prefs.Content); i += 2 {
		ids = append(ids, prefs.Content[i].Value)
	}
	return ids, nil
}
