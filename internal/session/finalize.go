package session

import (
	"context"
	"fmt"

	"github.com/roach88/specforge/internal/ir"
	"github.com/roach88/specforge/internal/patch"
	"github.com/roach88/specforge/internal/specerr"
)

// DefaultMaxRepairLoops bounds the repair loop when no option is given.
const DefaultMaxRepairLoops = 3

// DefaultApprover is stamped by auto-approval when no approver is set.
const DefaultApprover = "auto"

// FinalizeOptions control the repair loop. The zero value allows no
// repairs; use DefaultFinalizeOptions for the standard budget.
type FinalizeOptions struct {
	MaxRepairLoops int
	AutoApprove    bool
	Approver       string
}

// DefaultFinalizeOptions returns three repair loops without auto-approval.
func DefaultFinalizeOptions() FinalizeOptions {
	return FinalizeOptions{MaxRepairLoops: DefaultMaxRepairLoops}
}

// Finalize polishes the draft into a candidate and runs the
// validate/repair loop until the candidate compiles, the budget of
// MaxRepairLoops repairs is spent, or two consecutive attempts produce
// the same diagnostic signature.
//
// On success the session is final (or approved with AutoApprove). On
// failure the session is persisted in state final with its diagnostics
// and returned together with a VALIDATION_FAILED error. Adapter errors
// and patch failures abort without persisting.
func (o *Orchestrator) Finalize(ctx context.Context, id string, opts FinalizeOptions) (*ir.SpecSession, error) {
	if opts.MaxRepairLoops < 0 {
		return nil, specerr.Newf(specerr.InvalidInput, "maxRepairLoops must be >= 0, got %d", opts.MaxRepairLoops)
	}
	defer o.lock(id)()

	current, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == ir.StatusApproved {
		return nil, specerr.Newf(specerr.InvalidInput, "session %s is already approved", id)
	}
	p, err := o.packs.Load(current.TemplateID)
	if err != nil {
		return nil, err
	}
	if !o.questions.IsComplete(current, p) {
		return nil, specerr.Newf(specerr.AnswerValidationFailed,
			"required answers are missing (open questions: %v)", o.questions.OpenQuestions(current, p))
	}

	s := current.Clone()
	s.Status = ir.StatusPolish
	candidate, err := o.adapter.PolishToDesignSpec(ctx, PolishRequest{
		TemplateID: s.TemplateID,
		Prompt:     s.UserPrompt,
		Pack:       p,
		Draft:      s.DraftSpec,
		Answers:    s.Answers,
	})
	if err != nil {
		o.metrics.FinalizeOutcome(OutcomeFailed)
		return nil, err
	}
	polishInput := ir.IRObject{"draft": docOrNull(s.DraftSpec), "answers": s.Answers}
	if err := o.record(s, "polish", polishInput, candidate); err != nil {
		return nil, err
	}
	s.CandidateSpec = candidate
	s.FinalSpec = nil
	s.Confirmation = ""

	log := o.logger.With("session_id", id)
	outcome := OutcomeExhausted
	prevSig := ""

	for i := 0; i <= opts.MaxRepairLoops; i++ {
		s.Status = ir.StatusValidate
		res := o.gate(candidate)
		s.Diagnostics = res.Diagnostics
		o.metrics.ValidationAttempt(res.OK)
		log.Debug("validation attempt",
			"attempt", i,
			"ok", res.OK,
			"diagnostics", len(res.Diagnostics))

		if res.OK {
			if err := o.record(s, "validate_OK", candidate, res.Normalized); err != nil {
				return nil, err
			}
			return o.succeed(ctx, s, res.Normalized, res.Spec, opts)
		}
		if err := o.record(s, fmt.Sprintf("validate_FAIL_%d", i), candidate, res.Diagnostics); err != nil {
			return nil, err
		}

		if i == opts.MaxRepairLoops {
			log.Warn("repair budget exhausted", "attempts", i+1)
			break
		}

		// Convergence compares diagnostics only; a changed document with
		// identical findings still counts as no progress.
		sig, err := ir.DiagnosticSignature(res.Diagnostics)
		if err != nil {
			return nil, specerr.Wrap(specerr.InvalidInput, err, "diagnostic signature")
		}
		if prevSig != "" && sig == prevSig {
			log.Warn("repair stalled", "attempt", i, "signature", sig)
			outcome = OutcomeStalled
			break
		}
		prevSig = sig

		s.Status = ir.StatusRepair
		patchDoc, err := o.adapter.RepairWithJSONPatch(ctx, RepairRequest{
			Candidate:   candidate,
			Diagnostics: res.Diagnostics,
			Attempt:     i + 1,
		})
		if err != nil {
			o.metrics.FinalizeOutcome(OutcomeFailed)
			return nil, err
		}
		repairInput := ir.IRObject{"candidate": docOrNull(candidate), "diagnostics": diagnosticsValue(res.Diagnostics)}
		if err := o.record(s, fmt.Sprintf("repair_%d", i), repairInput, patchDoc); err != nil {
			return nil, err
		}

		ops, err := patch.DecodeOps(patchDoc)
		var patched ir.IRValue
		if err == nil {
			patched, err = patch.Apply(candidate, ops)
		}
		if err != nil {
			o.metrics.FinalizeOutcome(OutcomeFailed)
			log.Error("repair patch rejected", "attempt", i, "error", err)
			return nil, specerr.Wrap(specerr.InvalidInput, err, fmt.Sprintf("apply repair patch %d", i))
		}
		if err := o.record(s, fmt.Sprintf("patch_%d", i), patchDoc, patched); err != nil {
			return nil, err
		}
		log.Info("repair patch applied", "attempt", i, "ops", len(ops))

		candidate = patched
		s.CandidateSpec = patched
		o.metrics.RepairIteration()
	}

	s.Status = ir.StatusFinal
	if err := o.put(ctx, s); err != nil {
		return nil, err
	}
	o.metrics.FinalizeOutcome(outcome)

	errs, warns := ir.CountByLevel(s.Diagnostics)
	return s, specerr.Newf(specerr.ValidationFailed,
		"session %s did not compile (%s): %d errors, %d warnings", id, outcome, errs, warns)
}

func (o *Orchestrator) succeed(ctx context.Context, s *ir.SpecSession, normalized ir.IRValue, spec *ir.DesignSpec, opts FinalizeOptions) (*ir.SpecSession, error) {
	s.FinalSpec = normalized
	s.Status = ir.StatusFinal
	if opts.AutoApprove {
		approver := opts.Approver
		if approver == "" {
			approver = DefaultApprover
		}
		o.stampApproval(s, approver)
		if err := o.record(s, "approve", normalized, s.Approval); err != nil {
			return nil, err
		}
	}

	confirmation, err := o.confirm.RenderConfirmation(s, spec)
	if err != nil {
		return nil, err
	}
	s.Confirmation = confirmation

	if err := o.put(ctx, s); err != nil {
		return nil, err
	}
	o.metrics.FinalizeOutcome(OutcomeSucceeded)
	o.logger.Info("session finalized",
		"session_id", s.SessionID,
		"status", s.Status,
		"warnings", len(s.Diagnostics))
	return s, nil
}

func docOrNull(v ir.IRValue) ir.IRValue {
	if v == nil {
		return ir.IRNull{}
	}
	return v
}

func diagnosticsValue(diags []ir.Diagnostic) ir.IRValue {
	v, err := ir.FromAny(diags)
	if err != nil {
		return ir.IRNull{}
	}
	return v
}
