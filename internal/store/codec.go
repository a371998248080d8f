package store

import (
	"encoding/json"
	"regexp"

	"github.com/roach88/specforge/internal/ir"
	"github.com/roach88/specforge/internal/specerr"
)

var sessionIDRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// ValidateID rejects ids that are unsafe as file names or keys.
func ValidateID(id string) error {
	if !sessionIDRe.MatchString(id) {
		return specerr.Newf(specerr.InvalidInput, "invalid session id %q", id)
	}
	return nil
}

func encodeSession(s *ir.SpecSession) ([]byte, error) {
	if s == nil {
		return nil, specerr.New(specerr.InvalidInput, "session is nil")
	}
	if err := ValidateID(s.SessionID); err != nil {
		return nil, err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, specerr.Wrap(specerr.InvalidInput, err, "encode session "+s.SessionID)
	}
	return data, nil
}

func decodeSession(id string, data []byte) (*ir.SpecSession, error) {
	var s ir.SpecSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, specerr.Wrap(specerr.IOError, err, "decode session "+id)
	}
	return &s, nil
}

func notFound(id string) error {
	return specerr.Newf(specerr.SessionNotFound, "session %s", id)
}

func alreadyExists(id string) error {
	return specerr.Newf(specerr.InvalidInput, "session %s already exists", id)
}
