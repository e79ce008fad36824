package store

import (
	"fmt"

	"github.com/roach88/bindery/internal/ir"
)

// marshalAttrs converts an attribute object to canonical JSON TEXT.
func marshalAttrs(attrs ir.Object) (string, error) {
	if attrs == nil {
		attrs = ir.Object{}
	}
	data, err := ir.MarshalCanonical(attrs)
	if err != nil {
		return "", fmt.Errorf("marshal attrs: %w", err)
	}
	return string(data), nil
}

// unmarshalAttrs parses canonical JSON TEXT back to an object.
// Uses ir.Object.UnmarshalJSON, which keeps large integers exact.
func unmarshalAttrs(data string) (ir.Object, error) {
	if data == "" || data == "{}" {
		return ir.Object{}, nil
	}
	var attrs ir.Object
	if err := attrs.UnmarshalJSON([]byte(data)); err != nil {
		return nil, fmt.Errorf("unmarshal attrs: %w", err)
	}
	if attrs == nil {
		attrs = ir.Object{}
	}
	return attrs, nil
}
