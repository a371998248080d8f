package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/specforge/internal/ir"
	"github.com/roach88/specforge/internal/pack"
	"github.com/roach88/specforge/internal/patch"
	"github.com/roach88/specforge/internal/specerr"
	"github.com/roach88/specforge/internal/store"
	"github.com/roach88/specforge/internal/testutil"
)

const validSpecJSON = `{
  "name": "shop",
  "crossCutting": {"auth": {"jwt": {
    "issuer": "https://auth.example.com/",
    "audience": "shop-api",
    "jwksUri": "https://auth.example.com/.well-known/jwks.json"
  }}},
  "domains": [{
    "name": "Shop",
    "key": "shop",
    "entities": [{
      "name": "Item",
      "primaryKey": "id",
      "fields": [
        {"name": "id", "type": "uuid", "primary": true},
        {"name": "title", "type": "string", "required": true}
      ]
    }],
    "services": [{
      "name": "ItemService",
      "route": "items",
      "entity": "Item",
      "crud": ["create", "findAll", "findOne"],
      "operations": []
    }]
  }]
}`

// unmarkedPKPatch breaks the valid spec by dropping primary:true from id.
const unmarkedPKPatch = `[{"op": "remove", "path": "/domains/0/entities/0/fields/0/primary"}]`

// markPKPatch repairs unmarkedPKPatch.
const markPKPatch = `[{"op": "add", "path": "/domains/0/entities/0/fields/0/primary", "value": true}]`

func mustParse(t *testing.T, s string) ir.IRValue {
	t.Helper()
	v, err := ir.ParseValue([]byte(s))
	require.NoError(t, err)
	return v
}

func validSpec(t *testing.T) ir.IRValue {
	return mustParse(t, validSpecJSON)
}

func brokenSpec(t *testing.T) ir.IRValue {
	t.Helper()
	doc, err := patch.ApplyJSON(validSpec(t), mustParse(t, unmarkedPKPatch))
	require.NoError(t, err)
	return doc
}

// fakeAdapter returns scripted documents. Repair is called with the
// 1-based attempt number and may inspect the current candidate.
type fakeAdapter struct {
	mu          sync.Mutex
	draft       ir.IRValue
	polished    ir.IRValue
	polishErr   error
	repair      func(req RepairRequest) (ir.IRValue, error)
	repairCalls int
}

func (a *fakeAdapter) DraftFromPrompt(_ context.Context, req DraftRequest) (ir.IRValue, error) {
	if a.draft == nil {
		return ir.IRObject{"name": ir.IRString(req.TemplateID)}, nil
	}
	return a.draft, nil
}

func (a *fakeAdapter) PolishToDesignSpec(_ context.Context, _ PolishRequest) (ir.IRValue, error) {
	if a.polishErr != nil {
		return nil, a.polishErr
	}
	return ir.Clone(a.polished), nil
}

func (a *fakeAdapter) RepairWithJSONPatch(_ context.Context, req RepairRequest) (ir.IRValue, error) {
	a.mu.Lock()
	a.repairCalls++
	a.mu.Unlock()
	if a.repair == nil {
		return nil, specerr.New(specerr.LLMInvalidJSON, "no repair scripted")
	}
	return a.repair(req)
}

type fakeRenderer struct{}

func (fakeRenderer) RenderConfirmation(s *ir.SpecSession, spec *ir.DesignSpec) (string, error) {
	return fmt.Sprintf("# %s\nstatus: %s\n", spec.Name, s.Status), nil
}

func (fakeRenderer) RenderUML(spec *ir.DesignSpec) (string, error) {
	return "@startuml\n' " + spec.Name + "\n@enduml\n", nil
}

type countingRecorder struct {
	mu       sync.Mutex
	attempts []bool
	repairs  int
	outcomes []string
}

func (r *countingRecorder) ValidationAttempt(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, ok)
}

func (r *countingRecorder) RepairIteration() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.repairs++
}

func (r *countingRecorder) FinalizeOutcome(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

type fixture struct {
	orch     *Orchestrator
	adapter  *fakeAdapter
	store    *store.FileStore
	recorder *countingRecorder
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, polished ir.IRValue, opts ...Option) *fixture {
	t.Helper()
	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "sessions"))
	require.NoError(t, err)

	f := &fixture{
		adapter:  &fakeAdapter{polished: polished},
		store:    st,
		recorder: &countingRecorder{},
	}
	base := []Option{
		WithLogger(discardLogger()),
		WithRecorder(f.recorder),
		WithClock(testutil.NewStepClock()),
		WithIDGenerator(testutil.NewSequenceIDs("s")),
	}
	f.orch, err = New(Deps{
		Packs:        pack.NewLoader(""),
		Questions:    pack.NewEngine(),
		Adapter:      f.adapter,
		Confirmation: fakeRenderer{},
		UML:          fakeRenderer{},
		Store:        st,
	}, append(base, opts...)...)
	require.NoError(t, err)
	return f
}

func completeAnswers() ir.IRObject {
	return ir.IRObject{
		"projectName":  ir.IRString("shop"),
		"authIssuer":   ir.IRString("https://auth.example.com/"),
		"authAudience": ir.IRString("shop-api"),
		"database":     ir.IRString("sqlite"),
		"domains":      ir.IRArray{ir.IRString("shop")},
	}
}

// answeredSession creates a session with every required question answered.
func (f *fixture) answeredSession(t *testing.T) *ir.SpecSession {
	t.Helper()
	ctx := context.Background()
	s, err := f.orch.Init(ctx, pack.DefaultTemplateID, "a small shop backend")
	require.NoError(t, err)
	s, err = f.orch.Answer(ctx, s.SessionID, completeAnswers())
	require.NoError(t, err)
	return s
}

func steps(s *ir.SpecSession) []string {
	out := make([]string, len(s.History))
	for i, h := range s.History {
		out[i] = h.Step
	}
	return out
}
