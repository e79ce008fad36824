// Package compiler turns CUE resource definitions into ir.ResourceSpec.
package compiler

import (
	"fmt"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/bindery/internal/ir"
)

// CompileResource parses a CUE value into a ResourceSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the resource struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`resource: todo: { fields: { title: {type: "string"} } }`)
//	spec, err := CompileResource(v.LookupPath(cue.ParsePath("resource.todo")))
//
// A field is either a struct with a "type" key and optional required,
// read_only and validate keys, or a bare CUE type (`owner: string`).
func CompileResource(v cue.Value) (*ir.ResourceSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.ResourceSpec{}

	// Resource name from struct label (the path selector)
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	fields, err := parseFields(v)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, &CompileError{
			Field:   "fields",
			Message: "at least one field is required",
			Pos:     v.Pos(),
		}
	}
	spec.Fields = fields

	if spec.Interested, err = stringList(v, "interested"); err != nil {
		return nil, err
	}
	if spec.Permissions, err = stringList(v, "permissions"); err != nil {
		return nil, err
	}

	if pv := v.LookupPath(cue.ParsePath("page_size")); pv.Exists() {
		n, err := pv.Int64()
		if err != nil {
			return nil, &CompileError{Field: "page_size", Message: "must be an integer", Pos: pv.Pos()}
		}
		spec.PageSize = int(n)
	}

	if rv := v.LookupPath(cue.ParsePath("read_only")); rv.Exists() {
		ro, err := rv.Bool()
		if err != nil {
			return nil, &CompileError{Field: "read_only", Message: "must be a bool", Pos: rv.Pos()}
		}
		spec.ReadOnly = ro
	}

	return spec, nil
}

// parseFields extracts field definitions, sorted by name.
func parseFields(v cue.Value) ([]ir.FieldSpec, error) {
	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, nil
	}

	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var fields []ir.FieldSpec
	for iter.Next() {
		f, err := parseField(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}

	slices.SortFunc(fields, func(a, b ir.FieldSpec) int {
		return strings.Compare(a.Name, b.Name)
	})
	return fields, nil
}

func parseField(name string, v cue.Value) (ir.FieldSpec, error) {
	field := ir.FieldSpec{Name: name}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if v.IncompleteKind() != cue.StructKind || !typeVal.Exists() {
		t, err := extractTypeName(v)
		if err != nil {
			return field, err
		}
		field.Type = ir.FieldType(t)
		return field, nil
	}

	t, err := typeVal.String()
	if err != nil {
		return field, &CompileError{
			Field:   fmt.Sprintf("fields.%s.type", name),
			Message: "type must be a string",
			Pos:     typeVal.Pos(),
		}
	}
	switch t {
	case "float", "number":
		return field, &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("field %s: float types are forbidden - use int instead", name),
			Pos:     typeVal.Pos(),
		}
	}
	field.Type = ir.FieldType(t)

	if field.Required, err = optionalBool(v, "required"); err != nil {
		return field, err
	}
	if field.ReadOnly, err = optionalBool(v, "read_only"); err != nil {
		return field, err
	}
	if rv := v.LookupPath(cue.ParsePath("validate")); rv.Exists() {
		rule, err := rv.String()
		if err != nil {
			return field, &CompileError{
				Field:   fmt.Sprintf("fields.%s.validate", name),
				Message: "validate must be a string",
				Pos:     rv.Pos(),
			}
		}
		field.Validate = rule
	}

	return field, nil
}

func optionalBool(v cue.Value, key string) (bool, error) {
	bv := v.LookupPath(cue.ParsePath(key))
	if !bv.Exists() {
		return false, nil
	}
	b, err := bv.Bool()
	if err != nil {
		return false, &CompileError{Field: key, Message: "must be a bool", Pos: bv.Pos()}
	}
	return b, nil
}

func stringList(v cue.Value, key string) ([]string, error) {
	lv := v.LookupPath(cue.ParsePath(key))
	if !lv.Exists() {
		return nil, nil
	}
	iter, err := lv.List()
	if err != nil {
		return nil, &CompileError{Field: key, Message: "must be a list of strings", Pos: lv.Pos()}
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{Field: key, Message: "must be a list of strings", Pos: iter.Value().Pos()}
		}
		out = append(out, s)
	}
	return out, nil
}

// extractTypeName converts a bare CUE type to a field type name.
// Floats are forbidden.
func extractTypeName(v cue.Value) (string, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return "string", nil
	case cue.IntKind:
		return "int", nil
	case cue.BoolKind:
		return "bool", nil
	case cue.ListKind:
		return "array", nil
	case cue.StructKind:
		return "object", nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
