// Package session drives a SpecSession from intent to an approved,
// exported DesignSpec.
//
// State machine:
//
//	questions -> polish -> validate <-> repair -> final | approved
//	final -> approved (Approve)
//
// Every public operation loads the session, works on a copy, records one
// or more hash-stamped history entries, and replaces the stored session
// wholesale. Operations run sequentially; the only suspension points are
// the Adapter calls.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/specforge/internal/compiler"
	"github.com/roach88/specforge/internal/ir"
	"github.com/roach88/specforge/internal/specerr"
)

// Deps are the collaborators an Orchestrator cannot run without.
type Deps struct {
	Packs        PackLoader
	Questions    QuestionEngine
	Adapter      Adapter
	Confirmation ConfirmationRenderer
	UML          UMLRenderer
	Store        Store
}

// Orchestrator implements the session lifecycle operations.
type Orchestrator struct {
	packs     PackLoader
	questions QuestionEngine
	adapter   Adapter
	confirm   ConfirmationRenderer
	uml       UMLRenderer
	store     Store

	gate    func(ir.IRValue) compiler.Result
	logger  *slog.Logger
	metrics Recorder
	clock   Clock
	ids     IDGenerator
	locks   *sessionLocks
}

// New builds an Orchestrator. Every field of deps is required.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	var missing []string
	if deps.Packs == nil {
		missing = append(missing, "Packs")
	}
	if deps.Questions == nil {
		missing = append(missing, "Questions")
	}
	if deps.Adapter == nil {
		missing = append(missing, "Adapter")
	}
	if deps.Confirmation == nil {
		missing = append(missing, "Confirmation")
	}
	if deps.UML == nil {
		missing = append(missing, "UML")
	}
	if deps.Store == nil {
		missing = append(missing, "Store")
	}
	if len(missing) > 0 {
		return nil, specerr.Newf(specerr.InvalidInput, "orchestrator: missing dependencies %s", strings.Join(missing, ", "))
	}

	gate, err := compiler.NewGate(compiler.SchemaVersionV1)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		packs:     deps.Packs,
		questions: deps.Questions,
		adapter:   deps.Adapter,
		confirm:   deps.Confirmation,
		uml:       deps.UML,
		store:     deps.Store,
		gate:      gate.Compile,
		logger:    slog.Default(),
		metrics:   nopRecorder{},
		clock:     systemClock{},
		ids:       UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// lock serializes work on id when WithSessionLocks is set.
func (o *Orchestrator) lock(id string) func() {
	if o.locks == nil {
		return func() {}
	}
	return o.locks.lock(id)
}

// Init creates a session in state questions from a template and prompt.
func (o *Orchestrator) Init(ctx context.Context, templateID, prompt string) (*ir.SpecSession, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, specerr.New(specerr.InvalidInput, "prompt must not be empty")
	}
	p, err := o.packs.Load(templateID)
	if err != nil {
		return nil, err
	}

	draft, err := o.adapter.DraftFromPrompt(ctx, DraftRequest{TemplateID: templateID, Prompt: prompt, Pack: p})
	if err != nil {
		return nil, err
	}

	now := o.clock.Now()
	s := &ir.SpecSession{
		Version:     ir.SessionVersion,
		SessionID:   o.ids.Generate(),
		TemplateID:  templateID,
		Status:      ir.StatusDraft,
		UserPrompt:  prompt,
		Answers:     ir.IRObject{},
		DraftSpec:   draft,
		Diagnostics: []ir.Diagnostic{},
		History:     []ir.StepHistory{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.record(s, "init", ir.IRObject{"templateId": ir.IRString(templateID), "prompt": ir.IRString(prompt)}, draft); err != nil {
		return nil, err
	}
	s.OpenQuestions = o.questions.OpenQuestions(s, p)
	s.Status = ir.StatusQuestions

	if err := o.store.Create(ctx, s); err != nil {
		return nil, err
	}
	o.logger.Info("session created",
		"session_id", s.SessionID,
		"template_id", templateID,
		"open_questions", len(s.OpenQuestions))
	return s, nil
}

// Show returns the stored session.
func (o *Orchestrator) Show(ctx context.Context, id string) (*ir.SpecSession, error) {
	return o.store.Get(ctx, id)
}

// List returns summaries of every stored session.
func (o *Orchestrator) List(ctx context.Context) ([]ir.SessionSummary, error) {
	return o.store.List(ctx)
}

// Answer validates and merges set into the session's answers and drops any
// previously compiled spec, so the session must be finalized again.
// Approved sessions are terminal and reject new answers.
func (o *Orchestrator) Answer(ctx context.Context, id string, set ir.IRObject) (*ir.SpecSession, error) {
	if len(set) == 0 {
		return nil, specerr.New(specerr.InvalidInput, "no answers given")
	}
	defer o.lock(id)()

	current, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == ir.StatusApproved {
		return nil, specerr.Newf(specerr.InvalidInput, "session %s is approved and can no longer be answered", id)
	}
	p, err := o.packs.Load(current.TemplateID)
	if err != nil {
		return nil, err
	}

	s, err := o.questions.ValidateAndApply(current, p, set)
	if err != nil {
		return nil, err
	}
	// A spec compiled from earlier answers no longer applies.
	s.Status = ir.StatusQuestions
	s.FinalSpec = nil
	s.Confirmation = ""
	s.Diagnostics = []ir.Diagnostic{}
	s.OpenQuestions = o.questions.OpenQuestions(s, p)
	if err := o.record(s, "answer", set, s.Answers); err != nil {
		return nil, err
	}
	if err := o.put(ctx, s); err != nil {
		return nil, err
	}

	o.logger.Info("answers applied",
		"session_id", id,
		"keys", set.SortedKeys(),
		"open_questions", len(s.OpenQuestions))
	return s, nil
}

// Approve stamps approval on a session that has a final spec.
// Approving an approved session returns it unchanged.
func (o *Orchestrator) Approve(ctx context.Context, id, approver string) (*ir.SpecSession, error) {
	approver = strings.TrimSpace(approver)
	if approver == "" {
		return nil, specerr.New(specerr.InvalidInput, "approver must not be empty")
	}
	defer o.lock(id)()

	current, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.FinalSpec == nil {
		return nil, specerr.Newf(specerr.InvalidInput, "session %s has no final spec; finalize it first", id)
	}
	if current.Approval.Approved {
		return current, nil
	}

	s := current.Clone()
	o.stampApproval(s, approver)
	if err := o.record(s, "approve", s.FinalSpec, s.Approval); err != nil {
		return nil, err
	}
	if err := o.put(ctx, s); err != nil {
		return nil, err
	}
	o.logger.Info("session approved", "session_id", id, "approved_by", approver)
	return s, nil
}

func (o *Orchestrator) stampApproval(s *ir.SpecSession, approver string) {
	at := o.clock.Now()
	s.Approval = ir.Approval{Approved: true, ApprovedAt: &at, ApprovedBy: approver}
	s.Status = ir.StatusApproved
}

// record appends a history entry hashing input and output canonically.
func (o *Orchestrator) record(s *ir.SpecSession, step string, input, output any) error {
	in, err := ir.Hash(input)
	if err != nil {
		return specerr.Wrap(specerr.InvalidInput, err, fmt.Sprintf("hash %s input", step))
	}
	out, err := ir.Hash(output)
	if err != nil {
		return specerr.Wrap(specerr.InvalidInput, err, fmt.Sprintf("hash %s output", step))
	}

	var seq int64 = 1
	if n := len(s.History); n > 0 {
		seq = s.History[n-1].Seq + 1
	}
	s.History = append(s.History, ir.StepHistory{
		Seq:        seq,
		Step:       step,
		At:         o.clock.Now(),
		InputHash:  in,
		OutputHash: out,
	})
	return nil
}

func (o *Orchestrator) put(ctx context.Context, s *ir.SpecSession) error {
	s.UpdatedAt = o.clock.Now()
	return o.store.Put(ctx, s)
}
