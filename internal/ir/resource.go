package ir

import (
	"fmt"
	"regexp"
	"slices"
)

// FieldType names the kind of value a resource field holds.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldInt    FieldType = "int"
	FieldBool   FieldType = "bool"
	FieldArray  FieldType = "array"
	FieldObject FieldType = "object"
)

// ValidFieldTypes defines allowed field types. Floats are deliberately absent.
var ValidFieldTypes = map[FieldType]bool{
	FieldString: true,
	FieldInt:    true,
	FieldBool:   true,
	FieldArray:  true,
	FieldObject: true,
}

// Matches reports whether v is an acceptable value for this field type.
// Null matches every type; required-ness is checked separately.
func (t FieldType) Matches(v Value) bool {
	kind := KindOf(v)
	return kind == "null" || kind == string(t)
}

// ResourceSpec represents a compiled resource definition.
type ResourceSpec struct {
	Name        string      `json:"name"`
	Fields      []FieldSpec `json:"fields"`                // Sorted by name
	Interested  []string    `json:"interested,omitempty"`  // Fields naming interested users
	Permissions []string    `json:"permissions,omitempty"` // Empty means the configured default
	PageSize    int         `json:"page_size,omitempty"`   // Zero means the configured default
	ReadOnly    bool        `json:"read_only,omitempty"`
}

// FieldSpec represents one declared attribute of a resource.
type FieldSpec struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required,omitempty"`
	ReadOnly bool      `json:"read_only,omitempty"`
	Validate string    `json:"validate,omitempty"` // validator/v10 tag, e.g. "max=200"
}

var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidIdent reports whether s is usable as a resource or field name.
// Resource names appear in group names and field names in SQL json paths,
// so both are restricted to lower snake case.
func ValidIdent(s string) bool {
	return identPattern.MatchString(s)
}

// Field returns the named field spec.
func (r *ResourceSpec) Field(name string) (FieldSpec, bool) {
	i := slices.IndexFunc(r.Fields, func(f FieldSpec) bool { return f.Name == name })
	if i < 0 {
		return FieldSpec{}, false
	}
	return r.Fields[i], true
}

// FieldNames returns declared field names in sorted order.
func (r *ResourceSpec) FieldNames() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	slices.Sort(names)
	return names
}

// Validate checks structural rules that do not depend on the source format.
func (r *ResourceSpec) Validate() error {
	if !ValidIdent(r.Name) {
		return fmt.Errorf("resource name %q: must match %s", r.Name, identPattern)
	}
	if len(r.Fields) == 0 {
		return fmt.Errorf("resource %q: at least one field is required", r.Name)
	}
	seen := make(map[string]bool, len(r.Fields))
	for _, f := range r.Fields {
		if !ValidIdent(f.Name) {
			return fmt.Errorf("resource %q: field name %q: must match %s", r.Name, f.Name, identPattern)
		}
		if f.Name == "id" {
			return fmt.Errorf("resource %q: field name \"id\" is reserved", r.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("resource %q: duplicate field %q", r.Name, f.Name)
		}
		seen[f.Name] = true
		if !ValidFieldTypes[f.Type] {
			return fmt.Errorf("resource %q: field %q: invalid type %q", r.Name, f.Name, f.Type)
		}
	}
	for _, name := range r.Interested {
		f, ok := r.Field(name)
		if !ok {
			return fmt.Errorf("resource %q: interested field %q is not declared", r.Name, name)
		}
		if f.Type != FieldString && f.Type != FieldArray {
			return fmt.Errorf("resource %q: interested field %q must be string or array, got %s", r.Name, name, f.Type)
		}
	}
	if r.PageSize < 0 {
		return fmt.Errorf("resource %q: page_size must be positive, got %d", r.Name, r.PageSize)
	}
	return nil
}
