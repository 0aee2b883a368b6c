// Package gapaudit compares a migrated contact store against the source
// records it was loaded from and reports fields that lost data in
// transit. It reads both systems and writes neither.
package gapaudit

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/tansy/pkg/models"
)

// Importance ranks how much a lost field matters in the audit summary.
type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceMedium Importance = "medium"
	ImportanceLow    Importance = "low"
)

// FieldRow maps one source expression to one target attribute.
// SourceField is a JMESPath expression evaluated against the raw source
// record; TargetField names a contact or detail attribute.
type FieldRow struct {
	SourceField string     `yaml:"source_field"`
	TargetField string     `yaml:"target_field"`
	DisplayName string     `yaml:"display_name"`
	Importance  Importance `yaml:"importance"`
}

// JoinSpec tells the analyzer where to find the join values in a source
// record. Both are JMESPath expressions; at least one must be set.
type JoinSpec struct {
	Email string `yaml:"email"`
	Name  string `yaml:"name"`
}

// FieldTable is the configured audit table: the join expressions plus
// the field rows checked for every matched pair, in declaration order.
// Loaded once at startup and shared read-only after that.
type FieldTable struct {
	Join   JoinSpec   `yaml:"join"`
	Fields []FieldRow `yaml:"fields"`
}

// LoadFieldTable reads and validates the audit table from a YAML file.
func LoadFieldTable(path string) (*FieldTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gap field table %s: %w", path, err)
	}

	var table FieldTable
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("failed to parse gap field table %s: %w", path, err)
	}

	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gap field table %s: %w", path, err)
	}

	return &table, nil
}

// Validate rejects missing join expressions, unparsable source
// expressions, unknown target attributes and unranked rows.
func (t *FieldTable) Validate() error {
	ev := NewEvaluator()

	if t.Join.Email == "" && t.Join.Name == "" {
		return fmt.Errorf("join must set email or name")
	}
	if t.Join.Email != "" {
		if err := ev.Validate(t.Join.Email); err != nil {
			return fmt.Errorf("invalid join email expression %q: %v", t.Join.Email, err)
		}
	}
	if t.Join.Name != "" {
		if err := ev.Validate(t.Join.Name); err != nil {
			return fmt.Errorf("invalid join name expression %q: %v", t.Join.Name, err)
		}
	}

	if len(t.Fields) == 0 {
		return fmt.Errorf("fields section is empty")
	}

	known := make(map[string]bool)
	for _, name := range models.ContactFields {
		known[name] = true
	}
	for _, kind := range []models.Kind{models.KindPerson, models.KindOrganization} {
		for _, name := range models.DetailFieldsFor(kind) {
			known[name] = true
		}
	}

	for i, row := range t.Fields {
		if row.SourceField == "" {
			return fmt.Errorf("field %d: source_field is empty", i)
		}
		if err := ev.Validate(row.SourceField); err != nil {
			return fmt.Errorf("field %d: invalid source expression %q: %v", i, row.SourceField, err)
		}
		if !known[row.TargetField] {
			return fmt.Errorf("field %d: unknown target field %q", i, row.TargetField)
		}
		if row.DisplayName == "" {
			return fmt.Errorf("field %d: display_name is empty", i)
		}
		switch row.Importance {
		case ImportanceHigh, ImportanceMedium, ImportanceLow:
		default:
			return fmt.Errorf("field %d: importance %q is not high, medium or low", i, row.Importance)
		}
	}

	return nil
}
