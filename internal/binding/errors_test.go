package binding

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/bindery/internal/filter"
	"github.com/roach88/bindery/internal/ir"
	"github.com/roach88/bindery/internal/paginate"
	"github.com/roach88/bindery/internal/serializer"
	"github.com/roach88/bindery/internal/store"
)

func TestAPIErrorNormalizesDetail(t *testing.T) {
	tests := []struct {
		name   string
		detail ir.Value
		want   []ir.Value
	}{
		{"string", ir.String("action required"), []ir.Value{ir.String("action required")}},
		{"object", ir.Object{"title": ir.Array{ir.String("bad")}}, []ir.Value{ir.Object{"title": ir.Array{ir.String("bad")}}}},
		{"list", ir.Array{ir.String("a"), ir.String("b")}, []ir.Value{ir.String("a"), ir.String("b")}},
		{"nil", nil, []ir.Value{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &APIError{Status: 400, Detail: tt.detail}
			assert.Equal(t, tt.want, e.Errors())
		})
	}
}

func TestAsAPIError(t *testing.T) {
	ve := &serializer.ValidationError{Fields: map[string][]string{"title": {"bad"}}}

	tests := []struct {
		name     string
		err      error
		status   int
		expected bool
	}{
		{"api error", fmt.Errorf("wrapped: %w", PermissionDenied()), 401, true},
		{"validation", fmt.Errorf("create: %w", ve), 400, true},
		{"not found", fmt.Errorf("get: %w", store.ErrNotFound), 404, true},
		{"invalid page", fmt.Errorf("page 9: %w", paginate.ErrInvalidPage), 404, true},
		{"invalid filter", fmt.Errorf("%w: bad", filter.ErrInvalidFilter), 400, true},
		{"unexpected", errors.New("disk on fire"), 500, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ae, expected := asAPIError(tt.err)
			assert.Equal(t, tt.status, ae.Status)
			assert.Equal(t, tt.expected, expected)
		})
	}
}

func TestAPIErrorMessage(t *testing.T) {
	assert.Equal(t, `api error 401: "Permission Denied"`, PermissionDenied().Error())
	assert.True(t, IsStatus(fmt.Errorf("x: %w", NotFound()), 404))
	assert.False(t, IsStatus(errors.New("x"), 404))
}
