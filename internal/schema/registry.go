package schema

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed guides/*.yaml
var embedded embed.FS

// Registry maps guide codes to their loaded schemas.
// It is populated once and read concurrently afterwards.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*Schema)}
}

// Register adds a schema. Registering the same guide twice is an error.
func (r *Registry) Register(s *Schema) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemas[s.Guide()]; exists {
		return fmt.Errorf("%w: guide already registered: %s", ErrSchemaInvalid, s.Guide())
	}
	r.schemas[s.Guide()] = s
	return nil
}

// Get returns the schema for a guide.
func (r *Registry) Get(guide string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.schemas[strings.ToUpper(guide)]
	return s, ok
}

// Guides returns the registered guide codes, sorted.
func (r *Registry) Guides() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.schemas))
	for g := range r.schemas {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Parse decodes one YAML schema source.
func Parse(data []byte) (*Schema, error) {
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrSchemaInvalid, err)
	}
	return Build(def)
}

// Load reads every *.yaml file at the root of fsys into a new registry.
func Load(fsys fs.FS) (*Registry, error) {
	matches, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no schema sources found", ErrSchemaInvalid)
	}
	sort.Strings(matches)

	reg := NewRegistry()
	for _, name := range matches {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrSchemaInvalid, name, err)
		}
		s, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path.Base(name), err)
		}
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// LoadDir loads schema sources from a directory on disk.
func LoadDir(dir string) (*Registry, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrSchemaInvalid, dir)
	}
	return Load(os.DirFS(dir))
}

// Embedded loads the schemas compiled into the binary.
func Embedded() (*Registry, error) {
	sub, err := fs.Sub(embedded, "guides")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}
	return Load(sub)
}
