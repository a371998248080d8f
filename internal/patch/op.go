// Package patch applies RFC 6902 style add/remove/replace operations to
// ir documents. Application is all-or-nothing and never mutates its input.
package patch

import (
	"fmt"

	"github.com/roach88/specforge/internal/ir"
	"github.com/roach88/specforge/internal/specerr"
)

// OpKind names a patch operation.
type OpKind string

const (
	OpAdd     OpKind = "add"
	OpRemove  OpKind = "remove"
	OpReplace OpKind = "replace"
)

// Op is one patch operation. The set of implementations is closed:
// Add, Remove and Replace.
type Op interface {
	Kind() OpKind
	Target() Pointer
	isOp()
}

// Add inserts into an array or sets an object key, creating or overwriting it.
type Add struct {
	Path  Pointer
	Value ir.IRValue
}

// Remove deletes an existing array element or object key.
type Remove struct {
	Path Pointer
}

// Replace overwrites an existing array element or object key.
type Replace struct {
	Path  Pointer
	Value ir.IRValue
}

func (Add) Kind() OpKind     { return OpAdd }
func (Remove) Kind() OpKind  { return OpRemove }
func (Replace) Kind() OpKind { return OpReplace }

func (o Add) Target() Pointer     { return o.Path }
func (o Remove) Target() Pointer  { return o.Path }
func (o Replace) Target() Pointer { return o.Path }

func (Add) isOp()     {}
func (Remove) isOp()  {}
func (Replace) isOp() {}

// DecodeOps converts a JSON patch document ([{op, path, value?}, ...]) into
// typed ops. Unknown op names, missing fields and malformed pointers fail
// with INVALID_INPUT.
func DecodeOps(v ir.IRValue) ([]Op, error) {
	arr, ok := v.(ir.IRArray)
	if !ok {
		return nil, specerr.Newf(specerr.InvalidInput, "patch must be an array, got %s", ir.TypeName(v))
	}

	ops := make([]Op, 0, len(arr))
	for i, elem := range arr {
		op, err := decodeOp(elem)
		if err != nil {
			return nil, specerr.Wrap(specerr.InvalidInput, err, fmt.Sprintf("patch[%d]", i))
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func decodeOp(v ir.IRValue) (Op, error) {
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("operation must be an object, got %s", ir.TypeName(v))
	}

	name, ok := obj["op"].(ir.IRString)
	if !ok {
		return nil, fmt.Errorf("missing string field \"op\"")
	}
	rawPath, ok := obj["path"].(ir.IRString)
	if !ok {
		return nil, fmt.Errorf("missing string field \"path\"")
	}
	path, err := ParsePointer(string(rawPath))
	if err != nil {
		return nil, err
	}

	switch OpKind(name) {
	case OpAdd, OpReplace:
		value, present := obj["value"]
		if !present {
			return nil, fmt.Errorf("%s requires \"value\"", name)
		}
		if OpKind(name) == OpAdd {
			return Add{Path: path, Value: value}, nil
		}
		return Replace{Path: path, Value: value}, nil
	case OpRemove:
		return Remove{Path: path}, nil
	default:
		return nil, fmt.Errorf("unsupported op %q", name)
	}
}

// EncodeOps renders ops back into their JSON patch document form.
func EncodeOps(ops []Op) ir.IRArray {
	out := make(ir.IRArray, len(ops))
	for i, op := range ops {
		obj := ir.IRObject{
			"op":   ir.IRString(op.Kind()),
			"path": ir.IRString(op.Target().String()),
		}
		switch o := op.(type) {
		case Add:
			obj["value"] = valueOrNull(o.Value)
		case Replace:
			obj["value"] = valueOrNull(o.Value)
		}
		out[i] = obj
	}
	return out
}

func valueOrNull(v ir.IRValue) ir.IRValue {
	if v == nil {
		return ir.IRNull{}
	}
	return v
}
