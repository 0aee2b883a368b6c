package merging

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/tansy/pkg/models"
)

// FieldRule states how one attribute behaves when records merge. At most
// one flag may be set; a rule with neither flag set leaves the attribute
// untouched.
type FieldRule struct {
	BlankFill   bool `yaml:"blank_fill" json:"blank_fill,omitempty"`
	Concatenate bool `yaml:"concatenate" json:"concatenate,omitempty"`
}

// FieldSpec is the explicit merge behavior table. Every attribute a merge
// may touch appears here by name; nothing is discovered from the records
// themselves. Loaded once at startup and shared read-only after that.
type FieldSpec struct {
	Contact map[string]FieldRule                 `yaml:"contact"`
	Detail  map[models.Kind]map[string]FieldRule `yaml:"detail"`
}

// Detail attributes that are not free text. Concatenation is rejected on
// these at load time.
var nonTextDetailFields = map[string]bool{
	"birthday":          true,
	"congregation_size": true,
}

// LoadFieldSpec reads and validates the merge behavior table from a YAML
// file.
func LoadFieldSpec(path string) (*FieldSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read field spec %s: %w", path, err)
	}

	var spec FieldSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse field spec %s: %w", path, err)
	}

	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid field spec %s: %w", path, err)
	}

	return &spec, nil
}

// DefaultFieldSpec returns the built-in table: blank-fill every scalar,
// concatenate notes.
func DefaultFieldSpec() *FieldSpec {
	spec := &FieldSpec{
		Contact: make(map[string]FieldRule),
		Detail: map[models.Kind]map[string]FieldRule{
			models.KindPerson:       make(map[string]FieldRule),
			models.KindOrganization: make(map[string]FieldRule),
		},
	}

	for _, name := range models.ContactFields {
		if name == "notes" {
			spec.Contact[name] = FieldRule{Concatenate: true}
			continue
		}
		spec.Contact[name] = FieldRule{BlankFill: true}
	}

	for _, kind := range []models.Kind{models.KindPerson, models.KindOrganization} {
		for _, name := range models.DetailFieldsFor(kind) {
			spec.Detail[kind][name] = FieldRule{BlankFill: true}
		}
	}

	return spec
}

// Validate rejects unknown attribute names, rules with both flags set,
// and concatenation on non-text attributes.
func (s *FieldSpec) Validate() error {
	if len(s.Contact) == 0 {
		return fmt.Errorf("contact section is empty")
	}

	known := make(map[string]bool, len(models.ContactFields))
	for _, name := range models.ContactFields {
		known[name] = true
	}
	for name, rule := range s.Contact {
		if !known[name] {
			return fmt.Errorf("unknown contact field %q", name)
		}
		if rule.BlankFill && rule.Concatenate {
			return fmt.Errorf("contact field %q sets both blank_fill and concatenate", name)
		}
	}

	for kind, rules := range s.Detail {
		if kind != models.KindPerson && kind != models.KindOrganization {
			return fmt.Errorf("unknown detail kind %q", kind)
		}
		knownDetail := make(map[string]bool)
		for _, name := range models.DetailFieldsFor(kind) {
			knownDetail[name] = true
		}
		for name, rule := range rules {
			if !knownDetail[name] {
				return fmt.Errorf("unknown %s detail field %q", kind, name)
			}
			if rule.BlankFill && rule.Concatenate {
				return fmt.Errorf("%s detail field %q sets both blank_fill and concatenate", kind, name)
			}
			if rule.Concatenate && nonTextDetailFields[name] {
				return fmt.Errorf("%s detail field %q cannot concatenate", kind, name)
			}
		}
	}

	return nil
}

// ContactRule returns the rule for a base entity attribute. Attributes
// without a rule are left untouched.
func (s *FieldSpec) ContactRule(name string) FieldRule {
	return s.Contact[name]
}

// DetailRule returns the rule for a kind-specific attribute.
func (s *FieldSpec) DetailRule(kind models.Kind, name string) FieldRule {
	rules, ok := s.Detail[kind]
	if !ok {
		return FieldRule{}
	}
	return rules[name]
}
