package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hash returns the hex-encoded SHA-256 of the canonical JSON of v.
// Two structurally equal documents hash identically regardless of key order.
func Hash(v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// MustHash is like Hash but panics on error.
// Use only in tests or when the input is known to be encodable.
func MustHash(v any) string {
	h, err := Hash(v)
	if err != nil {
		panic(err)
	}
	return h
}

// DiagnosticSignature hashes the (level, code, path) triples of diags in order.
// Messages and suggestions are excluded so that rewording does not count
// as progress during repair.
func DiagnosticSignature(diags []Diagnostic) (string, error) {
	triples := make(IRArray, len(diags))
	for i, d := range diags {
		triples[i] = IRArray{IRString(d.Level), IRString(d.Code), IRString(d.Path)}
	}
	return Hash(triples)
}
