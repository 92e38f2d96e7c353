// Package templates maintains the registry of infrastructure template
// manifests and resolves working directories for the stack runner.
package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/forgeplane/forgeplane/pkg/provision"
	"github.com/forgeplane/forgeplane/pkg/telemetry"
)

// ParameterSpec documents one template parameter.
type ParameterSpec struct {
	// Name is the parameter key.
	Name string `yaml:"name" json:"name"`

	// Description explains the parameter to the caller.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Required marks parameters without a usable default.
	Required bool `yaml:"required,omitempty" json:"required,omitempty"`

	// Default is the value used when the request omits the parameter.
	Default string `yaml:"default,omitempty" json:"default,omitempty"`

	// Secret marks parameters persisted as engine secrets.
	Secret bool `yaml:"secret,omitempty" json:"secret,omitempty"`
}

// Manifest describes one provisionable template.
type Manifest struct {
	// Name is the template identifier used in requests.
	Name string `yaml:"name" json:"name"`

	// Description explains what the template provisions.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Parameters documents the accepted parameters.
	Parameters []ParameterSpec `yaml:"parameters,omitempty" json:"parameters,omitempty"`
}

// Registry scans and serves template manifests, and resolves template and
// platform identifiers to working directories.
type Registry struct {
	root      string
	mu        sync.RWMutex
	manifests map[string]*Manifest
	schema    *schemaValidator
	log       *telemetry.Logger
}

// NewRegistry builds a registry over the programs root and performs the
// initial scan.
func NewRegistry(root string, logger *telemetry.Logger) (*Registry, error) {
	schema, err := newSchemaValidator()
	if err != nil {
		return nil, err
	}
	r := &Registry{
		root:      root,
		manifests: make(map[string]*Manifest),
		schema:    schema,
		log:       logger.NewComponentLogger("templates"),
	}
	if err := r.Scan(); err != nil {
		return nil, err
	}
	return r, nil
}

// templatesDir is where template programs live under the root.
func (r *Registry) templatesDir() string {
	return filepath.Join(r.root, "templates")
}

// platformsDir is where platform programs live under the root.
func (r *Registry) platformsDir() string {
	return filepath.Join(r.root, "platforms")
}

// Scan reloads every template.yaml under the templates directory. Manifests
// that fail schema validation are skipped with a warning, never fatal.
func (r *Registry) Scan() error {
	pattern := filepath.Join(r.templatesDir(), "*", "template.yaml")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("scanning templates: %w", err)
	}

	manifests := make(map[string]*Manifest, len(paths))
	for _, path := range paths {
		manifest, err := r.loadManifest(path)
		if err != nil {
			r.log.WithField("path", path).WithError(err).Warn("skipping invalid template manifest")
			continue
		}
		manifests[manifest.Name] = manifest
	}

	r.mu.Lock()
	r.manifests = manifests
	r.mu.Unlock()
	r.log.WithField("count", len(manifests)).Debug("template registry scanned")
	return nil
}

func (r *Registry) loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	manifest := &Manifest{}
	if err := yaml.Unmarshal(data, manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if err := r.schema.validate(manifest); err != nil {
		return nil, err
	}
	// The manifest's name must match its directory so request identifiers
	// resolve to the right working directory.
	dir := filepath.Base(filepath.Dir(path))
	if manifest.Name != dir {
		return nil, fmt.Errorf("manifest name %q does not match directory %q", manifest.Name, dir)
	}
	return manifest, nil
}

// List returns all manifests ordered by name.
func (r *Registry) List() []*Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Manifest, 0, len(r.manifests))
	for _, manifest := range r.manifests {
		out = append(out, manifest)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns the manifest for a template name.
func (r *Registry) Get(name string) (*Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	manifest, ok := r.manifests[name]
	return manifest, ok
}

// Locate resolves a template or platform identifier to its working
// directory. Unknown identifiers fail before any subprocess or network
// call.
func (r *Registry) Locate(identifier string) (string, error) {
	r.mu.RLock()
	_, known := r.manifests[identifier]
	r.mu.RUnlock()
	if known {
		return filepath.Join(r.templatesDir(), identifier), nil
	}

	platformDir := filepath.Join(r.platformsDir(), identifier)
	if info, err := os.Stat(platformDir); err == nil && info.IsDir() {
		return platformDir, nil
	}

	return "", provision.NewNotFoundError(fmt.Sprintf("unknown template or platform %q", identifier))
}
