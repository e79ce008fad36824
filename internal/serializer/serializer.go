// Package serializer converts between wire payloads and entity attributes
// for one resource type.
package serializer

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/bindery/internal/ir"
)

// Error messages returned to clients. They follow Django REST framework
// wording, which existing clients match on.
const (
	MsgRequired = "This field is required."
	MsgNull     = "This field may not be null."
	MsgBlank    = "This field may not be blank."
)

// ValidationError carries per-field error messages.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	slices.Sort(names)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + ": " + strings.Join(e.Fields[n], " ")
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Detail renders the errors as a wire object {field: [messages...]}.
func (e *ValidationError) Detail() ir.Object {
	out := make(ir.Object, len(e.Fields))
	for field, msgs := range e.Fields {
		arr := make(ir.Array, len(msgs))
		for i, m := range msgs {
			arr[i] = ir.String(m)
		}
		out[field] = arr
	}
	return out
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Serializer maps entities of one resource to and from wire payloads.
type Serializer struct {
	spec     *ir.ResourceSpec
	validate *validator.Validate
}

// New creates a serializer for spec. The validator is shared by callers
// that build many serializers.
func New(spec *ir.ResourceSpec, validate *validator.Validate) *Serializer {
	if validate == nil {
		validate = validator.New()
	}
	return &Serializer{spec: spec, validate: validate}
}

// ToWire renders the declared fields of e plus its id. Undeclared stored
// attributes are not exposed; missing declared fields render as null.
func (s *Serializer) ToWire(e ir.Entity) (ir.Object, error) {
	out := make(ir.Object, len(s.spec.Fields)+1)
	for _, f := range s.spec.Fields {
		out[f.Name] = e.Attr(f.Name)
	}
	if e.HasID() {
		out["id"] = ir.String(e.ID)
	}
	return out, nil
}

// FromWire validates a client payload merged over existing attributes and
// returns the attributes to persist. existing is nil for creates.
//
// Undeclared keys, "id", and read-only fields in data are ignored.
func (s *Serializer) FromWire(data, existing ir.Object) (ir.Object, error) {
	merged := make(ir.Object, len(s.spec.Fields))
	for _, f := range s.spec.Fields {
		if v, ok := existing[f.Name]; ok {
			merged[f.Name] = v
		}
		if f.ReadOnly {
			continue
		}
		if v, ok := data[f.Name]; ok {
			merged[f.Name] = v
		}
	}

	verr := &ValidationError{}
	for _, f := range s.spec.Fields {
		v, present := merged[f.Name]
		if !present || v == nil {
			v = ir.Null{}
		}

		if _, isNull := v.(ir.Null); isNull {
			switch {
			case f.Required && !present:
				verr.add(f.Name, MsgRequired)
			case f.Required:
				verr.add(f.Name, MsgNull)
			}
			merged[f.Name] = ir.Null{}
			continue
		}

		if !f.Type.Matches(v) {
			verr.add(f.Name, typeMessage(f.Type, v))
			continue
		}
		if f.Required && f.Type == ir.FieldString && v == ir.String("") {
			verr.add(f.Name, MsgBlank)
			continue
		}
		if f.Validate != "" {
			if err := s.validate.Var(ir.ToAny(v), f.Validate); err != nil {
				for _, msg := range ruleMessages(err) {
					verr.add(f.Name, msg)
				}
			}
		}
	}

	if len(verr.Fields) > 0 {
		return nil, verr
	}
	return merged, nil
}

func typeMessage(t ir.FieldType, v ir.Value) string {
	switch t {
	case ir.FieldString:
		return "Not a valid string."
	case ir.FieldInt:
		return "A valid integer is required."
	case ir.FieldBool:
		return "Must be a valid boolean."
	case ir.FieldArray:
		return fmt.Sprintf("Expected a list of items but got type %q.", ir.KindOf(v))
	case ir.FieldObject:
		return fmt.Sprintf("Expected a dictionary of items but got type %q.", ir.KindOf(v))
	default:
		return "Invalid value."
	}
}

// ruleMessages renders validator failures for a single value.
func ruleMessages(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, ruleMessage(fe))
	}
	return msgs
}

func ruleMessage(fe validator.FieldError) string {
	_, isString := fe.Value().(string)
	switch fe.Tag() {
	case "max", "lte":
		if isString {
			return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
		}
		return fmt.Sprintf("Ensure this value is less than or equal to %s.", fe.Param())
	case "min", "gte":
		if isString {
			return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
		}
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
	case "oneof":
		return fmt.Sprintf("%q is not a valid choice.", fmt.Sprint(fe.Value()))
	case "email":
		return "Enter a valid email address."
	case "url":
		return "Enter a valid URL."
	default:
		return fmt.Sprintf("Failed the %q rule.", fe.Tag())
	}
}
