package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// IndexTemplate is an immutable index specification instantiated identically
// on every leaf the provisioner creates. Structural symmetry across leaves is
// the point: every partition supports the same access paths.
type IndexTemplate struct {
	Name      string   `yaml:"name"`
	Columns   []string `yaml:"columns"`
	Predicate string   `yaml:"predicate"` // optional partial-index filter
}

// Validate checks the template before any storage call.
func (t IndexTemplate) Validate() error {
	if t.Name == "" {
		return &ConfigurationError{Reason: "index template with empty name"}
	}
	if len(t.Columns) == 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("index template %q has no columns", t.Name)}
	}
	for _, c := range t.Columns {
		if strings.TrimSpace(c) == "" {
			return &ConfigurationError{Reason: fmt.Sprintf("index template %q has an empty column", t.Name)}
		}
	}
	return nil
}

// IndexName returns the deterministic name of this template instantiated on
// a leaf, e.g. idx_viewing_events_2024_02_p0_user_ts.
func (t IndexTemplate) IndexName(leafName string) string {
	return fmt.Sprintf("idx_%s_%s", leafName, t.Name)
}

// DefaultIndexTemplates is the index set for the viewing-events workload:
// user activity lookups, time scans, content popularity (start events only)
// and per-country time scans.
func DefaultIndexTemplates() []IndexTemplate {
	return []IndexTemplate{
		{Name: "user", Columns: []string{"user_id"}},
		{Name: "ts", Columns: []string{"event_timestamp"}},
		{Name: "content_start", Columns: []string{"content_id"}, Predicate: "event_type = 'start'"},
		{Name: "country_ts", Columns: []string{"country_code", "event_timestamp"}},
	}
}

// LoadIndexTemplates reads *.yaml files from dir, one template per file.
// A missing directory yields the built-in defaults — zero on-disk templates
// is a valid deployment, an empty template is not.
func LoadIndexTemplates(dir string) ([]IndexTemplate, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return DefaultIndexTemplates(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("index template dir: %w", err)
	}
	if !info.IsDir() {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("index template path %q is not a directory", dir)}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read index template dir: %w", err)
	}

	var templates []IndexTemplate
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read index template %s: %w", path, err)
		}

		var tmpl IndexTemplate
		if err := yaml.Unmarshal(raw, &tmpl); err != nil {
			return nil, fmt.Errorf("parse index template %s: %w", path, err)
		}
		if err := tmpl.Validate(); err != nil {
			return nil, fmt.Errorf("index template %s: %w", path, err)
		}
		if prev, ok := seen[tmpl.Name]; ok {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("duplicate index template %q in %s and %s", tmpl.Name, prev, path)}
		}
		seen[tmpl.Name] = path
		templates = append(templates, tmpl)
	}

	if len(templates) == 0 {
		return DefaultIndexTemplates(), nil
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].Name < templates[j].Name })
	return templates, nil
}
