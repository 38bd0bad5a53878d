package yaml

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BDNK1/plugrun/runtime"
	goyaml "gopkg.in/yaml.v3"
)

// Manifest declares the plugs of one provider outside Go code.
// Implementation names the provider whose methods back the plugs; it
// defaults to Provider.
type Manifest struct {
	Provider       string                `yaml:"provider" validate:"required,plug_id"`
	Implementation string                `yaml:"implementation,omitempty" validate:"omitempty,plug_id"`
	Plugs          []runtime.Declaration `yaml:"plugs" validate:"required,min=1"`
}

// ImplementationID returns the identifier of the backing provider.
func (m Manifest) ImplementationID() string {
	if m.Implementation != "" {
		return m.Implementation
	}
	return m.Provider
}

// ManifestLoader loads plug manifests from YAML files.
type ManifestLoader struct{}

func NewManifestLoader() *ManifestLoader {
	return &ManifestLoader{}
}

func (l *ManifestLoader) Extensions() []string {
	return []string{"*.yaml", "*.yml"}
}

func (l *ManifestLoader) Load(filePath string) (Manifest, error) {
	yamlFile, err := os.ReadFile(filePath)
	if err != nil {
		return Manifest{}, fmt.Errorf("error reading YAML file: %w", err)
	}

	m, err := Parse(yamlFile)
	if err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", filePath, err)
	}
	return m, nil
}

// LoadDir loads every manifest in dir, ordered by file name.
func (l *ManifestLoader) LoadDir(dir string) ([]Manifest, error) {
	var files []string
	for _, ext := range l.Extensions() {
		matches, err := filepath.Glob(filepath.Join(dir, ext))
		if err != nil {
			return nil, fmt.Errorf("error reading directory: %w", err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	manifests := make([]Manifest, 0, len(files))
	for _, file := range files {
		m, err := l.Load(file)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

// Parse decodes and validates a manifest document.
func Parse(data []byte) (Manifest, error) {
	var m Manifest
	if err := goyaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("error unmarshalling YAML: %w", err)
	}

	if err := runtime.ValidateStruct(m); err != nil {
		return Manifest{}, fmt.Errorf("invalid manifest: %w", err)
	}
	return m, nil
}

// ManifestProvider publishes a manifest's declarations while the plug
// methods are resolved on impl.
type ManifestProvider struct {
	manifest Manifest
	impl     any
}

// Bind pairs a manifest with the value implementing its methods.
func Bind(m Manifest, impl any) *ManifestProvider {
	return &ManifestProvider{manifest: m, impl: impl}
}

func (p *ManifestProvider) Identifier() string {
	return p.manifest.Provider
}

func (p *ManifestProvider) Plugs() []runtime.Declaration {
	return append([]runtime.Declaration(nil), p.manifest.Plugs...)
}

func (p *ManifestProvider) Delegate() any {
	return p.impl
}

func (p *ManifestProvider) Initialize(ctx context.Context) error {
	if init, ok := p.impl.(runtime.Initializer); ok {
		return init.Initialize(ctx)
	}
	return nil
}

func (p *ManifestProvider) Shutdown(ctx context.Context) error {
	if s, ok := p.impl.(runtime.Shutdowner); ok {
		return s.Shutdown(ctx)
	}
	return nil
}
