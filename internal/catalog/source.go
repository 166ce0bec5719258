package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed countries.yaml
var defaultCatalog []byte

// Source defines where raw country records come from.
type Source interface {
	Load() (*Document, error)
	Name() string
}

// Document is a parsed catalog file before normalization. RiskScale is the
// top of the scale the file was authored on; zero means "detect".
type Document struct {
	RiskScale float64      `yaml:"risk_scale"`
	Countries []RawCountry `yaml:"countries"`
}

// RawCountry accepts both the snake_case keys of the default catalog and
// the camelCase keys used by older exports.
type RawCountry struct {
	ISO        string   `yaml:"iso"`
	ISO2       string   `yaml:"iso2"`
	Name       string   `yaml:"name"`
	Region     string   `yaml:"region"`
	Risk       float64  `yaml:"risk"`
	Growth     float64  `yaml:"growth"`
	BaseReturn *float64 `yaml:"base_return"`
	BaseRetAlt *float64 `yaml:"baseReturn"`
	Exprop     *float64 `yaml:"expropriation_prob"`
	ExpropAlt  *float64 `yaml:"expropriationProb"`
}

// Parse decodes a YAML or JSON catalog. Both a document with a countries
// list and a bare list of countries are accepted.
func Parse(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	doc := &Document{}
	if len(root.Content) == 0 {
		return doc, nil
	}
	node := root.Content[0]
	switch node.Kind {
	case yaml.SequenceNode:
		if err := node.Decode(&doc.Countries); err != nil {
			return nil, fmt.Errorf("decode countries: %w", err)
		}
	case yaml.MappingNode:
		if err := node.Decode(doc); err != nil {
			return nil, fmt.Errorf("decode catalog: %w", err)
		}
	default:
		return nil, fmt.Errorf("parse catalog: unexpected top-level yaml kind %d", node.Kind)
	}
	return doc, nil
}

// FileSource reads a catalog from disk.
type FileSource struct {
	Path string
}

func (f *FileSource) Name() string { return "file:" + f.Path }

func (f *FileSource) Load() (*Document, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// EmbeddedSource serves the catalog compiled into the binary.
type EmbeddedSource struct{}

func (EmbeddedSource) Name() string { return "embedded" }

func (EmbeddedSource) Load() (*Document, error) { return Parse(defaultCatalog) }

// MockSource returns a fixed document for tests and development.
type MockSource struct {
	Doc *Document
	Err error
}

func (m *MockSource) Name() string { return "mock" }

func (m *MockSource) Load() (*Document, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Doc == nil {
		return &Document{}, nil
	}
	return m.Doc, nil
}
