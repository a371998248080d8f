package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/specforge/internal/ir"
)

// ValidateSemantics checks the cross-reference invariants of a
// structurally valid spec. It never fails; findings are returned as
// diagnostics in document order.
func ValidateSemantics(spec *ir.DesignSpec) []ir.Diagnostic {
	v := &semanticValidator{}
	domainKeys := make(map[string]int)

	for i, d := range spec.Domains {
		dp := fmt.Sprintf("/domains/%d", i)
		if first, dup := domainKeys[d.Key]; dup {
			v.errorf(ir.CodeDuplicateDomainKey, dp+"/key", "",
				"domain key %q is already used by /domains/%d", d.Key, first)
		} else {
			domainKeys[d.Key] = i
		}

		entities := v.checkEntities(dp, d)
		v.checkServices(dp, d, entities)
	}
	return v.diags
}

type semanticValidator struct {
	diags []ir.Diagnostic
}

func (v *semanticValidator) add(level ir.DiagnosticLevel, code ir.DiagnosticCode, path, suggestion, format string, args ...any) {
	v.diags = append(v.diags, ir.Diagnostic{
		Code:       code,
		Level:      level,
		Path:       path,
		Message:    fmt.Sprintf(format, args...),
		Suggestion: suggestion,
	})
}

func (v *semanticValidator) errorf(code ir.DiagnosticCode, path, suggestion, format string, args ...any) {
	v.add(ir.LevelError, code, path, suggestion, format, args...)
}

func (v *semanticValidator) warnf(code ir.DiagnosticCode, path, suggestion, format string, args ...any) {
	v.add(ir.LevelWarn, code, path, suggestion, format, args...)
}

// checkEntities validates entity and field rules and returns the set of
// entity names declared in the domain.
func (v *semanticValidator) checkEntities(dp string, d ir.Domain) map[string]bool {
	names := make(map[string]bool, len(d.Entities))

	for j, e := range d.Entities {
		ep := fmt.Sprintf("%s/entities/%d", dp, j)
		if names[e.Name] {
			v.errorf(ir.CodeDuplicateEntityName, ep+"/name", "",
				"entity %q is declared more than once in domain %q", e.Name, d.Key)
		}
		names[e.Name] = true

		fieldNames := make(map[string]bool, len(e.Fields))
		for k, f := range e.Fields {
			if fieldNames[f.Name] {
				v.errorf(ir.CodeDuplicateFieldName, fmt.Sprintf("%s/fields/%d/name", ep, k), "",
					"field %q is declared more than once in entity %q", f.Name, e.Name)
			}
			fieldNames[f.Name] = true
		}

		pk, pkIndex, found := e.FieldByName(e.PrimaryKey)
		switch {
		case !found:
			v.errorf(ir.CodePrimaryKeyFieldMissing, ep+"/primaryKey",
				fmt.Sprintf(`add a field {"name": %q, "type": "uuid", "primary": true} to %s/fields`, e.PrimaryKey, ep),
				"primary key %q of entity %q does not name a field", e.PrimaryKey, e.Name)
		case !pk.Primary:
			v.errorf(ir.CodePrimaryKeyNotMarked, fmt.Sprintf("%s/fields/%d/primary", ep, pkIndex),
				"set \"primary\": true on the field",
				"primary key field %q of entity %q is not marked primary", pk.Name, e.Name)
		}

		for k, f := range e.Fields {
			if f.Primary && f.Name != e.PrimaryKey {
				v.errorf(ir.CodePrimaryKeyConflict, fmt.Sprintf("%s/fields/%d/primary", ep, k),
					fmt.Sprintf("remove \"primary\" or set primaryKey to %q", f.Name),
					"field %q is marked primary but entity %q has primaryKey %q", f.Name, e.Name, e.PrimaryKey)
			}
		}
	}
	return names
}

func (v *semanticValidator) checkServices(dp string, d ir.Domain, entities map[string]bool) {
	scopePrefix := d.Key + ":"

	for s, svc := range d.Services {
		sp := fmt.Sprintf("%s/services/%d", dp, s)
		if !entities[svc.Entity] {
			v.errorf(ir.CodeUnknownServiceEntity, sp+"/entity",
				fmt.Sprintf("reference one of the entities declared in %s/entities", dp),
				"service %q references unknown entity %q", svc.Name, svc.Entity)
		}

		for _, c := range DetectCollisions(svc.Route, svc.Crud, svc.Operations) {
			kind := "exactly"
			if !c.Exact {
				kind = "by pattern"
			}
			v.errorf(ir.CodeRouteCollision, fmt.Sprintf("%s/operations/%d", sp, c.OperationIndex),
				fmt.Sprintf("change the path or method of %q, or remove %q from crud", c.OperationName, c.Crud),
				"operation %q (%s %s) collides %s with CRUD %s (%s %s)",
				c.OperationName, c.Method, c.OperationPath, kind, c.Crud, c.Method, c.CrudPath)
		}

		for o, op := range svc.Operations {
			ap := fmt.Sprintf("%s/operations/%d/authz", sp, o)
			if op.Authz.IsPublic() {
				if !strings.EqualFold(op.Method, "GET") {
					v.warnf(ir.CodePublicWriteOperation, ap,
						"require scopes unless the operation must be anonymous",
						"public operation %q uses %s", op.Name, strings.ToUpper(op.Method))
				}
				continue
			}
			for k, scope := range op.Authz.ScopesAll {
				if !strings.HasPrefix(scope, scopePrefix) || len(scope) == len(scopePrefix) {
					v.errorf(ir.CodeScopePrefixMismatch, fmt.Sprintf("%s/scopesAll/%d", ap, k),
						fmt.Sprintf("use a scope like %q", scopePrefix+"read"),
						"scope %q of operation %q must start with %q", scope, op.Name, scopePrefix)
				}
			}
		}
	}
}
