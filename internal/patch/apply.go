package patch

import (
	"fmt"
	"strconv"

	"github.com/roach88/specforge/internal/ir"
	"github.com/roach88/specforge/internal/specerr"
)

// Apply runs ops in order against a deep copy of doc and returns the result.
// The first failing op aborts the whole call with INVALID_INPUT; doc is
// never modified. Applying no ops returns an equal but distinct copy.
func Apply(doc ir.IRValue, ops []Op) (ir.IRValue, error) {
	out := ir.Clone(doc)
	for i, op := range ops {
		if op.Target().IsRoot() {
			return nil, specerr.Newf(specerr.InvalidInput,
				"patch[%d] %s: the document root cannot be targeted", i, op.Kind())
		}
		next, err := applyAt(out, op.Target(), op)
		if err != nil {
			return nil, specerr.Newf(specerr.InvalidInput,
				"patch[%d] %s %s: %s", i, op.Kind(), op.Target(), err)
		}
		out = next
	}
	return out, nil
}

// ApplyJSON decodes a patch document and applies it.
func ApplyJSON(doc, patchDoc ir.IRValue) (ir.IRValue, error) {
	ops, err := DecodeOps(patchDoc)
	if err != nil {
		return nil, err
	}
	return Apply(doc, ops)
}

// applyAt walks rest from node and applies op at the final token. It
// returns the (possibly reallocated) node so array growth propagates up.
func applyAt(node ir.IRValue, rest Pointer, op Op) (ir.IRValue, error) {
	tok := rest[0]
	if len(rest) == 1 {
		return applyLeaf(node, tok, op)
	}

	switch n := node.(type) {
	case ir.IRObject:
		child, ok := n[tok]
		if !ok {
			return nil, fmt.Errorf("path segment %q does not exist", tok)
		}
		updated, err := applyAt(child, rest[1:], op)
		if err != nil {
			return nil, err
		}
		n[tok] = updated
		return n, nil
	case ir.IRArray:
		idx, ok := arrayIndex(tok)
		if !ok || idx >= len(n) {
			return nil, fmt.Errorf("array index %q out of range (len %d)", tok, len(n))
		}
		updated, err := applyAt(n[idx], rest[1:], op)
		if err != nil {
			return nil, err
		}
		n[idx] = updated
		return n, nil
	default:
		return nil, fmt.Errorf("cannot traverse into %s at segment %q", ir.TypeName(node), tok)
	}
}

func applyLeaf(parent ir.IRValue, tok string, op Op) (ir.IRValue, error) {
	switch p := parent.(type) {
	case ir.IRObject:
		return applyObject(p, tok, op)
	case ir.IRArray:
		return applyArray(p, tok, op)
	default:
		return nil, fmt.Errorf("parent is %s, not a container", ir.TypeName(parent))
	}
}

func applyObject(obj ir.IRObject, key string, op Op) (ir.IRValue, error) {
	_, exists := obj[key]
	switch o := op.(type) {
	case Add:
		obj[key] = valueOrNull(o.Value)
	case Replace:
		if !exists {
			return nil, fmt.Errorf("key %q does not exist", key)
		}
		obj[key] = valueOrNull(o.Value)
	case Remove:
		if !exists {
			return nil, fmt.Errorf("key %q does not exist", key)
		}
		delete(obj, key)
	default:
		return nil, fmt.Errorf("unsupported op %T", op)
	}
	return obj, nil
}

func applyArray(arr ir.IRArray, tok string, op Op) (ir.IRValue, error) {
	switch o := op.(type) {
	case Add:
		if tok == "-" {
			return append(arr, valueOrNull(o.Value)), nil
		}
		idx, ok := arrayIndex(tok)
		if !ok || idx > len(arr) {
			return nil, indexError(tok, len(arr))
		}
		out := make(ir.IRArray, 0, len(arr)+1)
		out = append(out, arr[:idx]...)
		out = append(out, valueOrNull(o.Value))
		return append(out, arr[idx:]...), nil
	case Replace:
		idx, ok := arrayIndex(tok)
		if !ok || idx >= len(arr) {
			return nil, indexError(tok, len(arr))
		}
		arr[idx] = valueOrNull(o.Value)
		return arr, nil
	case Remove:
		idx, ok := arrayIndex(tok)
		if !ok || idx >= len(arr) {
			return nil, indexError(tok, len(arr))
		}
		out := make(ir.IRArray, 0, len(arr)-1)
		out = append(out, arr[:idx]...)
		return append(out, arr[idx+1:]...), nil
	default:
		return nil, fmt.Errorf("unsupported op %T", op)
	}
}

func indexError(tok string, length int) error {
	if _, err := strconv.Atoi(tok); err != nil {
		return fmt.Errorf("%q is not an array index", tok)
	}
	return fmt.Errorf("array index %s out of range (len %d)", tok, length)
}
