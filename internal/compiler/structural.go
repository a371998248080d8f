package compiler

import (
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/roach88/specforge/internal/ir"
	"github.com/roach88/specforge/internal/patch"
	"github.com/roach88/specforge/internal/specerr"
)

// SchemaVersionV1 identifies the first DesignSpec schema.
const SchemaVersionV1 = "designspec/v1"

//go:embed schema/*.cue
var schemaFS embed.FS

var schemaFiles = map[string]string{
	SchemaVersionV1: "schema/designspec_v1.cue",
}

// StructuralValidator checks candidate documents against a CUE schema.
// It is safe for concurrent use; CUE evaluation is serialized internally.
type StructuralValidator struct {
	version string

	mu  sync.Mutex
	ctx *cue.Context
	def cue.Value
}

// NewStructuralValidator compiles the embedded schema for version.
// An unknown version fails with INVALID_INPUT.
func NewStructuralValidator(version string) (*StructuralValidator, error) {
	file, ok := schemaFiles[version]
	if !ok {
		return nil, specerr.Newf(specerr.InvalidInput, "unknown schema version %q", version)
	}
	src, err := schemaFS.ReadFile(file)
	if err != nil {
		return nil, specerr.Wrap(specerr.IOError, err, "read schema "+file)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileBytes(src, cue.Filename(file))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", file, err)
	}
	def := schema.LookupPath(cue.ParsePath("#DesignSpec"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("schema %s: %w", file, err)
	}

	return &StructuralValidator{version: version, ctx: ctx, def: def}, nil
}

// Version returns the schema version this validator enforces.
func (sv *StructuralValidator) Version() string {
	return sv.version
}

// Validate returns one SCHEMA_VIOLATION diagnostic per structural error,
// sorted by path. An empty result means doc conforms to the schema.
func (sv *StructuralValidator) Validate(doc ir.IRValue) []ir.Diagnostic {
	data, err := ir.MarshalIRValue(doc)
	if err != nil {
		return []ir.Diagnostic{schemaDiagnostic("", "document is not encodable as JSON: "+err.Error())}
	}
	expr, err := cuejson.Extract("candidate.json", data)
	if err != nil {
		return []ir.Diagnostic{schemaDiagnostic("", "document is not valid JSON: "+err.Error())}
	}

	sv.mu.Lock()
	defer sv.mu.Unlock()

	candidate := sv.ctx.BuildExpr(expr)
	if err := candidate.Err(); err != nil {
		return cueDiagnostics(err)
	}
	if err := sv.def.Unify(candidate).Validate(cue.Concrete(true)); err != nil {
		return cueDiagnostics(err)
	}
	return nil
}

func cueDiagnostics(err error) []ir.Diagnostic {
	seen := make(map[string]bool)
	var diags []ir.Diagnostic
	for _, e := range errors.Errors(err) {
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		path := cuePathToPointer(e.Path())

		key := path + "\x00" + msg
		if seen[key] {
			continue
		}
		seen[key] = true
		diags = append(diags, schemaDiagnostic(path, msg))
	}
	if len(diags) == 0 {
		diags = append(diags, schemaDiagnostic("", err.Error()))
	}

	sort.SliceStable(diags, func(i, j int) bool {
		if diags[i].Path != diags[j].Path {
			return diags[i].Path < diags[j].Path
		}
		return diags[i].Message < diags[j].Message
	})
	return diags
}

// cuePathToPointer drops definition selectors (#DesignSpec) and turns the
// remaining CUE selectors into a JSON Pointer.
func cuePathToPointer(selectors []string) string {
	p := make(patch.Pointer, 0, len(selectors))
	for _, sel := range selectors {
		if strings.HasPrefix(sel, "#") {
			continue
		}
		if strings.HasPrefix(sel, `"`) {
			if unquoted, err := strconv.Unquote(sel); err == nil {
				sel = unquoted
			}
		}
		p = append(p, sel)
	}
	return p.String()
}

func schemaDiagnostic(path, msg string) ir.Diagnostic {
	return ir.Diagnostic{
		Code:    ir.CodeSchemaViolation,
		Level:   ir.LevelError,
		Path:    path,
		Message: msg,
	}
}
