// Package labelfile loads operator-declared label templates from a YAML file,
// as an alternative to the forum's flair template list.
package labelfile

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/badge"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.LabelTemplateSource = (*Source)(nil)

type fileTemplate struct {
	ID      string `yaml:"id"`
	Text    string `yaml:"text"`
	ModOnly bool   `yaml:"mod_only"`
}

type document struct {
	Templates []fileTemplate `yaml:"templates"`
}

// Source serves label templates parsed once from a YAML document.
type Source struct {
	templates []model.LabelTemplate
}

// Load reads and validates the YAML file at path.
func Load(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read label file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document of the form:
//
//	templates:
//	  - id: 2b6e...
//	    text: "Trades: 0-9"
//	  - id: 9c1a...
//	    text: "Moderator | Trades: 0-99"
//	    mod_only: true
func Parse(data []byte) (*Source, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode label file: %w", err)
	}

	seen := make(map[string]bool, len(doc.Templates))
	out := make([]model.LabelTemplate, 0, len(doc.Templates))
	for i, ft := range doc.Templates {
		if ft.ID == "" {
			return nil, fmt.Errorf("label template %d: id is required", i)
		}
		if seen[ft.ID] {
			return nil, fmt.Errorf("label template %q declared twice", ft.ID)
		}
		seen[ft.ID] = true

		t, ok := badge.ParseTemplate(ft.ID, ft.Text, ft.ModOnly)
		if !ok {
			return nil, fmt.Errorf("label template %q: text %q has no \"Trades: min-max\" range", ft.ID, ft.Text)
		}
		out = append(out, t)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Min < out[j].Min })
	return &Source{templates: out}, nil
}

// ListLabelTemplates returns a copy of the declared templates ordered by range start.
func (s *Source) ListLabelTemplates(_ context.Context) ([]model.LabelTemplate, error) {
	out := make([]model.LabelTemplate, len(s.templates))
	copy(out, s.templates)
	return out, nil
}
