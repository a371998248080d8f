package compiler

import (
	"strings"

	"github.com/roach88/specforge/internal/ir"
)

// Normalize returns the canonical form of doc: every string value is
// trimmed and objects are rebuilt key by key in sorted order. Keys are kept
// verbatim. Normalize is idempotent and never mutates doc.
func Normalize(doc ir.IRValue) ir.IRValue {
	switch v := doc.(type) {
	case ir.IRString:
		return ir.IRString(strings.TrimSpace(string(v)))
	case ir.IRArray:
		out := make(ir.IRArray, len(v))
		for i, elem := range v {
			out[i] = Normalize(elem)
		}
		return out
	case ir.IRObject:
		out := make(ir.IRObject, len(v))
		for _, k := range v.SortedKeys() {
			out[k] = Normalize(v[k])
		}
		return out
	default:
		return doc
	}
}
