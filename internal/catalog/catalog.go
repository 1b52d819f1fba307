package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FieldType is the semantic type of a field, driving cleaning rules and the
// column type used in the store.
type FieldType string

const (
	IntegerIdentifier FieldType = "integer_identifier"
	MonetaryAmount    FieldType = "monetary_amount"
	DecimalMeasure    FieldType = "decimal_measure"
	Date              FieldType = "date"
	BooleanFlag       FieldType = "boolean_flag"
	FreeText          FieldType = "free_text"
	BoundedText       FieldType = "bounded_text"
)

// AllFieldTypes lists every known semantic type.
var AllFieldTypes = []FieldType{
	IntegerIdentifier,
	MonetaryAmount,
	DecimalMeasure,
	Date,
	BooleanFlag,
	FreeText,
	BoundedText,
}

// Field is one typed field of an entity.
type Field struct {
	Name string    `yaml:"name"`
	Type FieldType `yaml:"type"`

	// MaxLength bounds bounded_text fields. Zero means unbounded.
	MaxLength int `yaml:"max_length,omitempty"`

	// Accumulative marks monetary/decimal fields that are summed downstream.
	// Empty or unparseable inputs clean to zero instead of null so that
	// aggregation over the relation stays well defined.
	Accumulative bool `yaml:"accumulative,omitempty"`

	// Required marks non-key fields that may not be null after cleaning.
	Required bool `yaml:"required,omitempty"`
}

// Entity is the declarative descriptor of one synchronized relation.
type Entity struct {
	Name       string   `yaml:"name"`
	Fields     []Field  `yaml:"fields"`
	PrimaryKey []string `yaml:"primary_key"`
}

// Field returns the declared field with the given name, or nil.
func (e *Entity) Field(name string) *Field {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// IsKey reports whether the named field is part of the primary key.
func (e *Entity) IsKey(name string) bool {
	for _, k := range e.PrimaryKey {
		if k == name {
			return true
		}
	}
	return false
}

// NonKeyFields returns the names of all fields outside the primary key,
// in declaration order.
func (e *Entity) NonKeyFields() []string {
	var out []string
	for _, f := range e.Fields {
		if !e.IsKey(f.Name) {
			out = append(out, f.Name)
		}
	}
	return out
}

// FieldNames returns all field names in declaration order.
func (e *Entity) FieldNames() []string {
	out := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		out[i] = f.Name
	}
	return out
}

// Validate checks the structural invariants of a single entity: a non-empty
// name, at least one field, no duplicate fields, and a primary key whose
// every member is a declared field.
func (e *Entity) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("entity has no name")
	}
	if len(e.Fields) == 0 {
		return fmt.Errorf("entity %s: no fields declared", e.Name)
	}
	seen := make(map[string]bool, len(e.Fields))
	for _, f := range e.Fields {
		if f.Name == "" {
			return fmt.Errorf("entity %s: field with empty name", e.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("entity %s: duplicate field %q", e.Name, f.Name)
		}
		seen[f.Name] = true
		if !validFieldType(f.Type) {
			return fmt.Errorf("entity %s: field %q has unknown type %q", e.Name, f.Name, f.Type)
		}
	}
	if len(e.PrimaryKey) == 0 {
		return fmt.Errorf("entity %s: no primary key declared", e.Name)
	}
	for _, k := range e.PrimaryKey {
		if !seen[k] {
			return fmt.Errorf("entity %s: primary key field %q is not a declared field", e.Name, k)
		}
	}
	return nil
}

// Catalog is the full declared entity set for one store.
type Catalog struct {
	Entities []Entity `yaml:"entities"`
}

// Entity returns the entity with the given name, or nil.
func (c *Catalog) Entity(name string) *Entity {
	for i := range c.Entities {
		if c.Entities[i].Name == name {
			return &c.Entities[i]
		}
	}
	return nil
}

// Names returns all entity names in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.Entities))
	for i := range c.Entities {
		out[i] = c.Entities[i].Name
	}
	return out
}

// Validate checks every entity and rejects duplicate entity names.
func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Entities))
	for i := range c.Entities {
		e := &c.Entities[i]
		if err := e.Validate(); err != nil {
			return err
		}
		if seen[e.Name] {
			return fmt.Errorf("duplicate entity %q", e.Name)
		}
		seen[e.Name] = true
	}
	return nil
}

// Load reads and validates a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	c := &Catalog{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return c, nil
}

// Save writes the catalog as YAML.
func (c *Catalog) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling catalog: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func validFieldType(t FieldType) bool {
	for _, known := range AllFieldTypes {
		if t == known {
			return true
		}
	}
	return false
}
