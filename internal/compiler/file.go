package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/bindery/internal/ir"
)

// CompileFile compiles every resource declared in one CUE file.
func CompileFile(path string) ([]*ir.ResourceSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	v := cuecontext.New().CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileAll(v)
}

// CompileAll compiles each entry of the top-level resource struct, in
// declaration order. It stops at the first error.
func CompileAll(v cue.Value) ([]*ir.ResourceSpec, error) {
	resources := v.LookupPath(cue.ParsePath("resource"))
	if !resources.Exists() {
		return nil, &CompileError{Field: "resource", Message: "no resources declared", Pos: v.Pos()}
	}
	iter, err := resources.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var specs []*ir.ResourceSpec
	for iter.Next() {
		spec, err := CompileResource(iter.Value())
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
