package compiler

import (
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/bindery/internal/binding"
	"github.com/roach88/bindery/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// ResourceSpec errors (E101-E119)
	ErrInvalidResourceName = "E101" // resource name is not lower snake case
	ErrNoFields            = "E102" // at least one field required
	ErrInvalidFieldName    = "E103" // field name invalid or reserved
	ErrInvalidFieldType    = "E104" // invalid type string
	ErrDuplicateName       = "E105" // duplicate field name
	ErrFloatTypeForbidden  = "E106" // float types not allowed
	ErrInterestedUnknown   = "E107" // interested field not declared
	ErrInterestedType      = "E108" // interested field is not string or array
	ErrUnknownPermission   = "E109" // permission name not recognized
	ErrInvalidRule         = "E110" // validate rule does not parse
	ErrInvalidPageSize     = "E111" // page_size is negative
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a compiled resource against schema rules.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case *ir.ResourceSpec:
		return validateResourceSpec(spec)
	case ir.ResourceSpec:
		return validateResourceSpec(&spec)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

func validateResourceSpec(spec *ir.ResourceSpec) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		})
	}

	// E101: name appears in group names and stream names
	if !ir.ValidIdent(spec.Name) {
		add("name", ErrInvalidResourceName, "resource name %q must be lower snake case", spec.Name)
	}

	// E102: at least one field required
	if len(spec.Fields) == 0 {
		add("fields", ErrNoFields, "at least one field is required")
	}

	seen := make(map[string]bool, len(spec.Fields))
	for i, f := range spec.Fields {
		path := fmt.Sprintf("fields[%d]", i)

		// E103: field names become SQL json paths
		switch {
		case f.Name == "id":
			add(path+".name", ErrInvalidFieldName, "field name \"id\" is reserved")
		case !ir.ValidIdent(f.Name):
			add(path+".name", ErrInvalidFieldName, "field name %q must be lower snake case", f.Name)
		}

		// E105: duplicate field name
		if seen[f.Name] {
			add(path+".name", ErrDuplicateName, "duplicate field name: %q", f.Name)
		}
		seen[f.Name] = true

		// E104/E106: type
		errs = append(errs, validateFieldType(string(f.Type), path+".type", f.Name)...)

		// E110: validate rule
		if f.Validate != "" && ir.ValidFieldTypes[f.Type] {
			if err := checkRule(f.Type, f.Validate); err != nil {
				add(path+".validate", ErrInvalidRule, "field %q: %v", f.Name, err)
			}
		}
	}

	// E107/E108: interested fields
	for i, name := range spec.Interested {
		path := fmt.Sprintf("interested[%d]", i)
		f, ok := spec.Field(name)
		if !ok {
			add(path, ErrInterestedUnknown, "interested field %q is not declared", name)
			continue
		}
		if f.Type != ir.FieldString && f.Type != ir.FieldArray {
			add(path, ErrInterestedType, "interested field %q must be string or array, got %s", name, f.Type)
		}
	}

	// E109: permission names
	for i, name := range spec.Permissions {
		if !slices.Contains(binding.PermissionNames(), name) {
			add(fmt.Sprintf("permissions[%d]", i), ErrUnknownPermission,
				"unknown permission %q, must be one of %v", name, binding.PermissionNames())
		}
	}

	// E111: page size
	if spec.PageSize < 0 {
		add("page_size", ErrInvalidPageSize, "page_size must be positive, got %d", spec.PageSize)
	}

	return errs
}

// validateFieldType validates a type string, returning errors for invalid types and floats.
func validateFieldType(fieldType, fieldPath, fieldName string) []ValidationError {
	// E106: float forbidden
	if isFloatType(fieldType) {
		return []ValidationError{{
			Field:   fieldPath,
			Message: fmt.Sprintf("float type forbidden for field %q, use int instead", fieldName),
			Code:    ErrFloatTypeForbidden,
		}}
	}

	// E104: check for valid type
	if !ir.ValidFieldTypes[ir.FieldType(fieldType)] {
		return []ValidationError{{
			Field:   fieldPath,
			Message: fmt.Sprintf("invalid type %q for field %q", fieldType, fieldName),
			Code:    ErrInvalidFieldType,
		}}
	}
	return nil
}

func isFloatType(t string) bool {
	return t == "float" || t == "float64" || t == "float32" || t == "number"
}

var ruleValidator = validator.New()

// ruleSamples are zero values of each field type used to exercise a rule.
var ruleSamples = map[ir.FieldType]any{
	ir.FieldString: "",
	ir.FieldInt:    int64(0),
	ir.FieldBool:   false,
	ir.FieldArray:  []any{},
	ir.FieldObject: map[string]any{},
}

// checkRule reports whether rule is a usable validator tag for values of
// type t. The validator panics on unknown tags and on rules that do not
// apply to the value's kind.
func checkRule(t ir.FieldType, rule string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid validate rule %q: %v", rule, r)
		}
	}()
	// A failed validation is fine; only a panic means the rule is unusable.
	_ = ruleValidator.Var(ruleSamples[t], rule)
	return nil
}
