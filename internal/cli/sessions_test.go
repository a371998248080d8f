package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/specforge/internal/ir"
)

func TestSessionFlow(t *testing.T) {
	h := newHarness(t, readDoc(t, "testdata/valid_spec.json"))

	out := h.runOK("init", "a", "billing", "backend")
	assert.True(t, strings.HasPrefix(out, "s-0001  questions  crud-backend  open: "), out)
	assert.Contains(t, out, "projectName")

	out = h.runOK(append([]string{"answer", "s-0001"}, answerFlags...)...)
	assert.Equal(t, "s-0001  questions  crud-backend  open: jwksUri, publicReads, port\n", out)

	out = h.runOK("finalize", "s-0001")
	assert.Contains(t, out, "✓ s-0001 compiled")
	assert.Contains(t, out, "final")

	outDir := filepath.Join(t.TempDir(), "artifacts")
	_, err := h.run("export", "s-0001", "--out", outDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	out = h.runOK("approve", "s-0001", "--by", "alice")
	assert.Equal(t, "✓ s-0001 approved by alice\n", out)

	out = h.runOK("export", "s-0001", "--out", outDir)
	paths := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, paths, 5)
	for _, p := range paths {
		assert.FileExists(t, p)
	}
	spec, err := os.ReadFile(filepath.Join(outDir, "spec.json"))
	require.NoError(t, err)
	assert.Contains(t, string(spec), `"billing-platform"`)

	out = h.runOK("--format", "json", "show", "s-0001", "--select", "$.approval.approvedBy")
	var resp struct {
		Status string   `json:"status"`
		Data   []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"alice"}, resp.Data)

	out = h.runOK("list")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "SESSION"))
	assert.Contains(t, lines[1], "s-0001")
	assert.Contains(t, lines[1], "approved")
}

func TestFinalizeAutoApprove(t *testing.T) {
	h := newHarness(t, readDoc(t, "testdata/valid_spec.json"))
	h.runOK("init", "billing")
	h.runOK(append([]string{"answer", "s-0001"}, answerFlags...)...)

	metricsFile := filepath.Join(t.TempDir(), "specforge.prom")
	out := h.runOK("finalize", "s-0001", "--auto-approve", "--metrics-file", metricsFile)
	assert.Contains(t, out, "approved")

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `specforge_finalize_outcomes_total{outcome="succeeded"} 1`)
}

func TestFinalizeRepairsWithPatch(t *testing.T) {
	h := newHarness(t, readDoc(t, "testdata/missing_pk.json"))
	h.adapter.repair = readDoc(t, "testdata/mark_pk.json")
	h.runOK("init", "shop")
	h.runOK(append([]string{"answer", "s-0001"}, answerFlags...)...)

	out := h.runOK("--format", "json", "finalize", "s-0001")
	var resp struct {
		Data struct {
			Status  string `json:"status"`
			History []struct {
				Step string `json:"step"`
			} `json:"history"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, string(ir.StatusFinal), resp.Data.Status)
	var sawRepair bool
	for _, step := range resp.Data.History {
		if strings.HasPrefix(step.Step, "repair") {
			sawRepair = true
		}
	}
	assert.True(t, sawRepair, "history should record the repair")
}

func TestFinalizeFailurePrintsDiagnostics(t *testing.T) {
	h := newHarness(t, readDoc(t, "testdata/missing_pk.json"))
	h.runOK("init", "shop")
	h.runOK(append([]string{"answer", "s-0001"}, answerFlags...)...)

	out, err := h.run("finalize", "s-0001", "--max-repair-loops", "0")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "[error]")
	assert.Contains(t, out, "Error [VALIDATION_FAILED]")

	// The failed session keeps its diagnostics.
	out = h.runOK("--format", "json", "show", "s-0001", "--select", "$.diagnostics[*].level")
	assert.Contains(t, out, `"error"`)
}

func TestAnswerInvalidValue(t *testing.T) {
	h := newHarness(t, readDoc(t, "testdata/valid_spec.json"))
	h.runOK("init", "shop")

	out, err := h.run("answer", "s-0001", "--set", "database=oracle")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "ANSWER_VALIDATION_FAILED")
}

func TestAnswerMalformedSet(t *testing.T) {
	h := newHarness(t, readDoc(t, "testdata/valid_spec.json"))

	_, err := h.run("answer", "s-0001", "--set", "novalue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestShowUnknownSession(t *testing.T) {
	h := newHarness(t, readDoc(t, "testdata/valid_spec.json"))

	out, err := h.run("--format", "json", "show", "s-9999")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, `"code":"SESSION_NOT_FOUND"`)
}

func TestShowBadSelector(t *testing.T) {
	h := newHarness(t, readDoc(t, "testdata/valid_spec.json"))
	h.runOK("init", "shop")

	_, err := h.run("show", "s-0001", "--select", "$[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestApproveBeforeFinalize(t *testing.T) {
	h := newHarness(t, readDoc(t, "testdata/valid_spec.json"))
	h.runOK("init", "shop")

	_, err := h.run("approve", "s-0001", "--by", "alice")
	require.Error(t, err)
}

func TestParseSets(t *testing.T) {
	tests := []struct {
		name string
		sets []string
		want ir.IRObject
	}{
		{"string", []string{"projectName=shop"}, ir.IRObject{"projectName": ir.IRString("shop")}},
		{"int", []string{"port=8080"}, ir.IRObject{"port": ir.IRInt(8080)}},
		{"bool", []string{"publicReads=true"}, ir.IRObject{"publicReads": ir.IRBool(true)}},
		{"list", []string{`domains=["a","b"]`}, ir.IRObject{"domains": ir.IRArray{ir.IRString("a"), ir.IRString("b")}}},
		{"null clears", []string{"port=null"}, ir.IRObject{"port": ir.IRNull{}}},
		{"url stays a string", []string{"authIssuer=https://a.example/"}, ir.IRObject{"authIssuer": ir.IRString("https://a.example/")}},
		{"equals in value", []string{"projectName=a=b"}, ir.IRObject{"projectName": ir.IRString("a=b")}},
		{"last wins", []string{"port=1", "port=2"}, ir.IRObject{"port": ir.IRInt(2)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSets(tt.sets)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSetsRejectsMissingKey(t *testing.T) {
	for _, kv := range []string{"novalue", "=x", " =x"} {
		_, err := parseSets([]string{kv})
		assert.Error(t, err, kv)
	}
}
