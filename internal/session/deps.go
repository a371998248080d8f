package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/specforge/internal/ir"
	"github.com/roach88/specforge/internal/pack"
)

// PackLoader resolves a template id to its question pack.
type PackLoader interface {
	Load(templateID string) (*pack.Pack, error)
}

// QuestionEngine validates and merges answers for a pack.
// Implemented by pack.Engine.
type QuestionEngine interface {
	ValidateAndApply(s *ir.SpecSession, p *pack.Pack, set ir.IRObject) (*ir.SpecSession, error)
	IsComplete(s *ir.SpecSession, p *pack.Pack) bool
	OpenQuestions(s *ir.SpecSession, p *pack.Pack) []string
}

// DraftRequest asks for an initial document from a prompt.
type DraftRequest struct {
	TemplateID string
	Prompt     string
	Pack       *pack.Pack
}

// PolishRequest asks for a candidate DesignSpec from a draft and answers.
type PolishRequest struct {
	TemplateID string
	Prompt     string
	Pack       *pack.Pack
	Draft      ir.IRValue
	Answers    ir.IRObject
}

// RepairRequest asks for a JSON patch fixing the diagnostics of Candidate.
// Attempt is 1-based.
type RepairRequest struct {
	Candidate   ir.IRValue
	Diagnostics []ir.Diagnostic
	Attempt     int
}

// Adapter drafts, polishes and repairs documents. Every method returns
// parsed JSON; unusable model output fails with LLM_INVALID_JSON.
// RepairWithJSONPatch returns a patch document ([{op, path, value?}, ...]).
type Adapter interface {
	DraftFromPrompt(ctx context.Context, req DraftRequest) (ir.IRValue, error)
	PolishToDesignSpec(ctx context.Context, req PolishRequest) (ir.IRValue, error)
	RepairWithJSONPatch(ctx context.Context, req RepairRequest) (ir.IRValue, error)
}

// ConfirmationRenderer renders the human-readable confirmation artifact.
type ConfirmationRenderer interface {
	RenderConfirmation(s *ir.SpecSession, spec *ir.DesignSpec) (string, error)
}

// UMLRenderer renders a diagram text form of a spec.
type UMLRenderer interface {
	RenderUML(spec *ir.DesignSpec) (string, error)
}

// Store persists sessions. Create fails if the id exists, Get and Put fail
// with SESSION_NOT_FOUND for unknown ids. Every write is atomic.
type Store interface {
	Create(ctx context.Context, s *ir.SpecSession) error
	Get(ctx context.Context, id string) (*ir.SpecSession, error)
	Put(ctx context.Context, s *ir.SpecSession) error
	List(ctx context.Context) ([]ir.SessionSummary, error)
}

// Recorder observes repair loop progress. Implemented by metrics.Recorder.
type Recorder interface {
	ValidationAttempt(ok bool)
	RepairIteration()
	FinalizeOutcome(outcome string)
}

// Finalize outcomes reported to the Recorder.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeExhausted = "exhausted"
	OutcomeStalled   = "stalled"
	OutcomeFailed    = "failed"
)

type nopRecorder struct{}

func (nopRecorder) ValidationAttempt(bool) {}
func (nopRecorder) RepairIteration()       {}
func (nopRecorder) FinalizeOutcome(string) {}

// IDGenerator produces session ids.
// Implemented by UUIDv7Generator (production) and testutil generators.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session ids.
// It is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
// Panics if the system random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Clock supplies wall time for timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
