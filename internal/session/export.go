package session

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/roach88/specforge/internal/ir"
	"github.com/roach88/specforge/internal/specerr"
	"github.com/roach88/specforge/internal/store"
)

// Export artifact file names.
const (
	SpecFile         = "spec.json"
	ConfirmationFile = "confirmation.md"
	UMLFile          = "uml.txt"
	SessionFile      = "session.json"
	DiagnosticsFile  = "diagnostics.json"
)

// Export writes the artifact set of an approved session into dir and
// returns the written paths in a fixed order. Each file is replaced
// atomically. The stored session is not modified.
func (o *Orchestrator) Export(ctx context.Context, id, dir string) ([]string, error) {
	s, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.Approval.Approved || s.FinalSpec == nil {
		return nil, specerr.Newf(specerr.ApprovalRequired, "session %s must be approved before export", id)
	}

	spec, err := ir.DecodeDesignSpec(s.FinalSpec)
	if err != nil {
		return nil, specerr.Wrap(specerr.InvalidInput, err, "final spec")
	}
	confirmation, err := o.confirm.RenderConfirmation(s, spec)
	if err != nil {
		return nil, err
	}
	uml, err := o.uml.RenderUML(spec)
	if err != nil {
		return nil, err
	}

	diags := s.Diagnostics
	if diags == nil {
		diags = []ir.Diagnostic{}
	}

	specJSON, err := encodeJSON(s.FinalSpec)
	if err != nil {
		return nil, err
	}
	sessionJSON, err := encodeJSON(s)
	if err != nil {
		return nil, err
	}
	diagsJSON, err := encodeJSON(diags)
	if err != nil {
		return nil, err
	}

	artifacts := []struct {
		name string
		data []byte
	}{
		{SpecFile, specJSON},
		{ConfirmationFile, []byte(confirmation)},
		{UMLFile, []byte(uml)},
		{SessionFile, sessionJSON},
		{DiagnosticsFile, diagsJSON},
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, specerr.Wrap(specerr.IOError, err, "create export directory")
	}
	paths := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		path := filepath.Join(dir, a.name)
		if err := store.WriteFileAtomic(path, a.data, 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}

	o.logger.Info("session exported", "session_id", id, "dir", dir)
	return paths, nil
}

// encodeJSON renders v as indented JSON without HTML escaping.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, specerr.Wrap(specerr.InvalidInput, err, "encode export")
	}
	return buf.Bytes(), nil
}
