// Package filter provides AIP-160 filter expression parsing and SQL
// translation for the list action.
package filter

import (
	"errors"
	"fmt"
	"strings"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	"github.com/roach88/bindery/internal/ir"
	"github.com/roach88/bindery/internal/store"
)

// ErrInvalidFilter wraps every parse or translation failure.
var ErrInvalidFilter = errors.New("invalid filter")

// Compiler translates filter strings for one resource type.
type Compiler struct {
	decls   *filtering.Declarations
	columns map[string]string
}

// NewCompiler declares one identifier per scalar field of spec, plus "id".
// Array and object fields cannot be filtered on.
func NewCompiler(spec *ir.ResourceSpec) (*Compiler, error) {
	opts := []filtering.DeclarationOption{
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent("id", filtering.TypeString),
	}
	columns := map[string]string{"id": "id"}

	for _, f := range spec.Fields {
		var t *expr.Type
		switch f.Type {
		case ir.FieldString:
			t = filtering.TypeString
		case ir.FieldInt:
			t = filtering.TypeInt
		case ir.FieldBool:
			t = filtering.TypeBool
		default:
			continue
		}
		if !ir.ValidIdent(f.Name) {
			return nil, fmt.Errorf("field %q: not a valid identifier", f.Name)
		}
		opts = append(opts, filtering.DeclareIdent(f.Name, t))
		columns[f.Name] = fmt.Sprintf("json_extract(attrs, '$.%s')", f.Name)
	}

	decls, err := filtering.NewDeclarations(opts...)
	if err != nil {
		return nil, fmt.Errorf("create declarations: %w", err)
	}
	return &Compiler{decls: decls, columns: columns}, nil
}

// Compile parses an AIP-160 filter expression and returns a store condition.
// Returns the zero condition for an empty filter string.
func (c *Compiler) Compile(filterStr string) (store.Condition, error) {
	if strings.TrimSpace(filterStr) == "" {
		return store.Condition{}, nil
	}

	filter, err := filtering.ParseFilterString(filterStr, c.decls)
	if err != nil {
		return store.Condition{}, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}

	cond, err := c.translateExpr(filter.CheckedExpr.GetExpr())
	if err != nil {
		return store.Condition{}, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return cond, nil
}

func (c *Compiler) translateExpr(e *expr.Expr) (store.Condition, error) {
	if e == nil {
		return store.Condition{}, nil
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_CallExpr:
		return c.translateCall(kind.CallExpr)
	case *expr.Expr_IdentExpr:
		// A bare boolean field, e.g. "done".
		column, ok := c.columns[kind.IdentExpr.Name]
		if !ok {
			return store.Condition{}, fmt.Errorf("unknown field: %s", kind.IdentExpr.Name)
		}
		return store.Where(column + " = 1"), nil
	default:
		return store.Condition{}, fmt.Errorf("unsupported expression type: %T", kind)
	}
}

func (c *Compiler) translateCall(call *expr.Expr_Call) (store.Condition, error) {
	switch call.Function {
	case "_&&_", "AND":
		return c.translateJunction(call.Args, "AND")
	case "_||_", "OR":
		return c.translateJunction(call.Args, "OR")
	case "_!_", "NOT":
		if len(call.Args) != 1 {
			return store.Condition{}, fmt.Errorf("NOT requires 1 argument")
		}
		inner, err := c.translateExpr(call.Args[0])
		if err != nil {
			return store.Condition{}, err
		}
		return store.Where("NOT ("+inner.SQL+")", inner.Args...), nil
	case "_==_", "=":
		return c.translateComparison(call.Args, "=")
	case "_!=_", "!=":
		return c.translateComparison(call.Args, "!=")
	case "_<_", "<":
		return c.translateComparison(call.Args, "<")
	case "_<=_", "<=":
		return c.translateComparison(call.Args, "<=")
	case "_>_", ">":
		return c.translateComparison(call.Args, ">")
	case "_>=_", ">=":
		return c.translateComparison(call.Args, ">=")
	default:
		return store.Condition{}, fmt.Errorf("unsupported function: %s", call.Function)
	}
}

func (c *Compiler) translateJunction(args []*expr.Expr, op string) (store.Condition, error) {
	if len(args) != 2 {
		return store.Condition{}, fmt.Errorf("%s requires 2 arguments", op)
	}

	left, err := c.translateExpr(args[0])
	if err != nil {
		return store.Condition{}, err
	}
	right, err := c.translateExpr(args[1])
	if err != nil {
		return store.Condition{}, err
	}

	params := append(append([]any{}, left.Args...), right.Args...)
	return store.Where(fmt.Sprintf("(%s %s %s)", left.SQL, op, right.SQL), params...), nil
}

func (c *Compiler) translateComparison(args []*expr.Expr, op string) (store.Condition, error) {
	if len(args) != 2 {
		return store.Condition{}, fmt.Errorf("comparison requires 2 arguments")
	}

	field, err := extractFieldName(args[0])
	if err != nil {
		return store.Condition{}, err
	}
	column, ok := c.columns[field]
	if !ok {
		return store.Condition{}, fmt.Errorf("unknown field: %s", field)
	}

	value, err := extractValue(args[1])
	if err != nil {
		return store.Condition{}, err
	}

	return store.Where(fmt.Sprintf("%s %s ?", column, op), value), nil
}

func extractFieldName(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_IdentExpr:
		return kind.IdentExpr.Name, nil
	default:
		return "", fmt.Errorf("expected identifier, got %T", kind)
	}
}

func extractValue(e *expr.Expr) (any, error) {
	if e == nil {
		return nil, fmt.Errorf("nil expression")
	}

	kind, ok := e.ExprKind.(*expr.Expr_ConstExpr)
	if !ok {
		return nil, fmt.Errorf("expected constant, got %T", e.ExprKind)
	}

	switch c := kind.ConstExpr.ConstantKind.(type) {
	case *expr.Constant_StringValue:
		return c.StringValue, nil
	case *expr.Constant_Int64Value:
		return c.Int64Value, nil
	case *expr.Constant_BoolValue:
		return c.BoolValue, nil
	default:
		// Attributes never hold floats, so a double literal can match nothing.
		return nil, fmt.Errorf("unsupported constant type: %T", c)
	}
}
