package ir

import (
	"encoding/json"
	"fmt"
	"time"
)

// SessionStatus is a SpecSession lifecycle state.
type SessionStatus string

const (
	StatusDraft     SessionStatus = "draft"
	StatusQuestions SessionStatus = "questions"
	StatusPolish    SessionStatus = "polish"
	StatusValidate  SessionStatus = "validate"
	StatusRepair    SessionStatus = "repair"
	StatusApproved  SessionStatus = "approved"
	StatusFinal     SessionStatus = "final"
)

// SpecSession is the orchestration record for one intent-to-spec run.
// Sessions are replaced wholesale on every mutation; use Clone before
// modifying a session obtained from a store.
type SpecSession struct {
	Version       string        `json:"version"`
	SessionID     string        `json:"sessionId"`
	TemplateID    string        `json:"templateId"`
	Status        SessionStatus `json:"status"`
	UserPrompt    string        `json:"userPrompt"`
	Answers       IRObject      `json:"answers"`
	OpenQuestions []string      `json:"openQuestions"`
	DraftSpec     IRValue       `json:"draftSpec,omitempty"`
	CandidateSpec IRValue       `json:"candidateSpec,omitempty"`
	Diagnostics   []Diagnostic  `json:"diagnostics"`
	FinalSpec     IRValue       `json:"finalSpec,omitempty"`
	Confirmation  string        `json:"confirmation,omitempty"`
	Approval      Approval      `json:"approval"`
	History       []StepHistory `json:"history"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Approval records who accepted the final spec.
type Approval struct {
	Approved   bool       `json:"approved"`
	ApprovedAt *time.Time `json:"approvedAt,omitempty"`
	ApprovedBy string     `json:"approvedBy,omitempty"`
}

// StepHistory is one append-only audit entry.
// Seq is the logical position (1-based); At is informational wall time.
type StepHistory struct {
	Seq        int64     `json:"seq"`
	Step       string    `json:"step"`
	At         time.Time `json:"at"`
	InputHash  string    `json:"inputHash"`
	OutputHash string    `json:"outputHash"`
}

// SessionSummary is the listing view of a session.
type SessionSummary struct {
	SessionID  string        `json:"sessionId"`
	TemplateID string        `json:"templateId"`
	Status     SessionStatus `json:"status"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// Summary returns the listing view of s.
func (s *SpecSession) Summary() SessionSummary {
	return SessionSummary{
		SessionID:  s.SessionID,
		TemplateID: s.TemplateID,
		Status:     s.Status,
		UpdatedAt:  s.UpdatedAt,
	}
}

// Clone returns a deep copy of s.
func (s *SpecSession) Clone() *SpecSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Answers = cloneObject(s.Answers)
	out.OpenQuestions = append([]string(nil), s.OpenQuestions...)
	out.DraftSpec = cloneDoc(s.DraftSpec)
	out.CandidateSpec = cloneDoc(s.CandidateSpec)
	out.FinalSpec = cloneDoc(s.FinalSpec)
	out.Diagnostics = append([]Diagnostic(nil), s.Diagnostics...)
	out.History = append([]StepHistory(nil), s.History...)
	if s.Approval.ApprovedAt != nil {
		at := *s.Approval.ApprovedAt
		out.Approval.ApprovedAt = &at
	}
	return &out
}

func cloneObject(obj IRObject) IRObject {
	if obj == nil {
		return nil
	}
	return Clone(obj).(IRObject)
}

func cloneDoc(v IRValue) IRValue {
	if v == nil {
		return nil
	}
	return Clone(v)
}

// UnmarshalJSON decodes document fields into IRValue trees.
func (s *SpecSession) UnmarshalJSON(data []byte) error {
	type sessionAlias SpecSession
	aux := struct {
		*sessionAlias
		DraftSpec     json.RawMessage `json:"draftSpec,omitempty"`
		CandidateSpec json.RawMessage `json:"candidateSpec,omitempty"`
		FinalSpec     json.RawMessage `json:"finalSpec,omitempty"`
	}{sessionAlias: (*sessionAlias)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if s.DraftSpec, err = decodeDoc(aux.DraftSpec); err != nil {
		return fmt.Errorf("draftSpec: %w", err)
	}
	if s.CandidateSpec, err = decodeDoc(aux.CandidateSpec); err != nil {
		return fmt.Errorf("candidateSpec: %w", err)
	}
	if s.FinalSpec, err = decodeDoc(aux.FinalSpec); err != nil {
		return fmt.Errorf("finalSpec: %w", err)
	}
	return nil
}

// decodeDoc maps an absent or null document to nil.
func decodeDoc(raw json.RawMessage) (IRValue, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return ParseValue(raw)
}
