// Package compiler turns untrusted candidate documents into validated
// DesignSpecs.
//
// The gate runs three stages in order:
//
//  1. Structural validation against the versioned CUE schema
//  2. Semantic validation (uniqueness, references, primary keys, route
//     collisions, scope naming)
//  3. Normalization of documents that produced no errors
//
// A structural failure stops the pipeline; semantic rules only ever see
// documents that decode into ir.DesignSpec.
package compiler

import (
	"sync"

	"github.com/roach88/specforge/internal/ir"
)

// Result is the outcome of one gate run. Normalized and Spec are set only
// when OK is true. Diagnostics carry warnings even on success.
type Result struct {
	OK          bool            `json:"ok"`
	Diagnostics []ir.Diagnostic `json:"diagnostics"`
	Normalized  ir.IRValue      `json:"normalized,omitempty"`
	Spec        *ir.DesignSpec  `json:"-"`
}

// Gate composes the validators for one schema version.
type Gate struct {
	structural *StructuralValidator
}

// NewGate builds a gate for the given schema version.
func NewGate(version string) (*Gate, error) {
	sv, err := NewStructuralValidator(version)
	if err != nil {
		return nil, err
	}
	return &Gate{structural: sv}, nil
}

// Version returns the schema version enforced by the gate.
func (g *Gate) Version() string {
	return g.structural.Version()
}

// Compile normalizes doc and validates the normalized form, so a
// successful Result carries exactly the document that was checked.
// Structural diagnostics use the same pointers as doc because
// normalization only trims strings and reorders object keys.
func (g *Gate) Compile(doc ir.IRValue) Result {
	normalized := Normalize(doc)
	if diags := g.structural.Validate(normalized); len(diags) > 0 {
		return Result{OK: false, Diagnostics: diags}
	}

	spec, err := ir.DecodeDesignSpec(normalized)
	if err != nil {
		return Result{OK: false, Diagnostics: []ir.Diagnostic{schemaDiagnostic("", err.Error())}}
	}

	diags := ValidateSemantics(spec)
	if diags == nil {
		diags = []ir.Diagnostic{}
	}
	if ir.HasErrors(diags) {
		return Result{OK: false, Diagnostics: diags}
	}
	return Result{OK: true, Diagnostics: diags, Normalized: normalized, Spec: spec}
}

var (
	v1Once sync.Once
	v1Gate *Gate
	v1Err  error
)

// CompileValidateV1 runs the designspec/v1 gate on doc.
func CompileValidateV1(doc ir.IRValue) (Result, error) {
	v1Once.Do(func() {
		v1Gate, v1Err = NewGate(SchemaVersionV1)
	})
	if v1Err != nil {
		return Result{}, v1Err
	}
	return v1Gate.Compile(doc), nil
}
