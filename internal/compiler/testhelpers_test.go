package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/specforge/internal/ir"
	"github.com/roach88/specforge/internal/patch"
)

func loadValidSpec(t *testing.T) ir.IRValue {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "valid_spec.json"))
	require.NoError(t, err)
	doc, err := ir.ParseValue(data)
	require.NoError(t, err)
	return doc
}

// withPatch applies a JSON patch to the valid fixture.
func withPatch(t *testing.T, patchJSON string) ir.IRValue {
	t.Helper()
	ops, err := ir.ParseValue([]byte(patchJSON))
	require.NoError(t, err)
	doc, err := patch.ApplyJSON(loadValidSpec(t), ops)
	require.NoError(t, err)
	return doc
}

func codes(diags []ir.Diagnostic) []ir.DiagnosticCode {
	out := make([]ir.DiagnosticCode, len(diags))
	for i, d := range diags {
		out[i] = d.Code
	}
	return out
}
