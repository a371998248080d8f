package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/specforge/internal/ir"
	"github.com/roach88/specforge/internal/pack"
	"github.com/roach88/specforge/internal/render"
	"github.com/roach88/specforge/internal/session"
	"github.com/roach88/specforge/internal/specerr"
	"github.com/roach88/specforge/internal/store"
	"github.com/roach88/specforge/internal/testutil"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readDoc(t *testing.T, path string) ir.IRValue {
	t.Helper()
	doc, err := readDocument(path)
	require.NoError(t, err)
	return doc
}

// scriptedAdapter polishes to a fixed document and repairs with a fixed
// patch, if one is set.
type scriptedAdapter struct {
	polished ir.IRValue
	repair   ir.IRValue
}

func (a *scriptedAdapter) DraftFromPrompt(_ context.Context, req session.DraftRequest) (ir.IRValue, error) {
	return ir.IRObject{"name": ir.IRString(req.Prompt)}, nil
}

func (a *scriptedAdapter) PolishToDesignSpec(context.Context, session.PolishRequest) (ir.IRValue, error) {
	return ir.Clone(a.polished), nil
}

func (a *scriptedAdapter) RepairWithJSONPatch(context.Context, session.RepairRequest) (ir.IRValue, error) {
	if a.repair == nil {
		return nil, specerr.New(specerr.LLMInvalidJSON, "no repair scripted")
	}
	return ir.Clone(a.repair), nil
}

// harness runs root commands against one file store with deterministic
// ids and timestamps.
type harness struct {
	t       *testing.T
	config  string
	adapter *scriptedAdapter
	store   *store.FileStore
	clock   *testutil.StepClock
	ids     *testutil.SequenceIDs
}

func newHarness(t *testing.T, polished ir.IRValue) *harness {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewFileStore(filepath.Join(dir, "sessions"))
	require.NoError(t, err)
	return &harness{
		t:       t,
		config:  filepath.Join(dir, "config.yaml"),
		adapter: &scriptedAdapter{polished: polished},
		store:   st,
		clock:   testutil.NewStepClock(),
		ids:     testutil.NewSequenceIDs("s"),
	}
}

func (h *harness) factory(env Env) (*session.Orchestrator, io.Closer, error) {
	orch, err := session.New(session.Deps{
		Packs:        pack.NewLoader(""),
		Questions:    pack.NewEngine(),
		Adapter:      h.adapter,
		Confirmation: render.New(),
		UML:          render.New(),
		Store:        h.store,
	},
		session.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		session.WithRecorder(env.Recorder),
		session.WithClock(h.clock),
		session.WithIDGenerator(h.ids),
	)
	if err != nil {
		return nil, nil, err
	}
	return orch, nopCloser{}, nil
}

// run executes one command line and returns stdout.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	cmd := NewRootCommandWithFactory(h.factory)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", h.config}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// runOK fails the test if the command errors.
func (h *harness) runOK(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "output: %s", out)
	return out
}

var answerFlags = []string{
	"--set", "projectName=shop",
	"--set", "authIssuer=https://auth.example.com/",
	"--set", "authAudience=shop-api",
	"--set", "database=sqlite",
	"--set", `domains=["shop"]`,
}
