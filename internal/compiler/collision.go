package compiler

import (
	"strings"

	"github.com/roach88/specforge/internal/ir"
)

// CrudRoute is the (method, path) pair implied by an enabled CRUD op.
type CrudRoute struct {
	Op     ir.CrudOp
	Method string
	Path   string
}

// Collision is a custom operation that shadows a CRUD route.
// Exact is false when the paths only match as patterns
// (e.g. /users/{userId} against /users/:id).
type Collision struct {
	OperationIndex int
	OperationName  string
	Method         string
	OperationPath  string
	Crud           ir.CrudOp
	CrudPath       string
	Exact          bool
}

// NormalizeRouteBase turns a service route into "/segment" form.
// Empty and slash-only routes map to "/".
func NormalizeRouteBase(route string) string {
	return normalizePath("/" + strings.Trim(route, "/"))
}

// CrudRoutes lists the routes implied by crud, in the order given.
// Unknown ops are skipped.
func CrudRoutes(routeBase string, crud []ir.CrudOp) []CrudRoute {
	base := NormalizeRouteBase(routeBase)
	byID := joinPath(base, "/:id")

	routes := make([]CrudRoute, 0, len(crud))
	for _, op := range crud {
		switch op {
		case ir.CrudCreate:
			routes = append(routes, CrudRoute{Op: op, Method: "POST", Path: base})
		case ir.CrudFindAll:
			routes = append(routes, CrudRoute{Op: op, Method: "GET", Path: base})
		case ir.CrudFindOne:
			routes = append(routes, CrudRoute{Op: op, Method: "GET", Path: byID})
		case ir.CrudUpdate:
			routes = append(routes, CrudRoute{Op: op, Method: "PATCH", Path: byID})
		case ir.CrudDelete:
			routes = append(routes, CrudRoute{Op: op, Method: "DELETE", Path: byID})
		}
	}
	return routes
}

// OperationPath returns the normalized full path of a custom operation.
func OperationPath(routeBase, opPath string) string {
	return joinPath(NormalizeRouteBase(routeBase), opPath)
}

// DetectCollisions reports every (operation, CRUD route) pair with the same
// method whose paths match exactly or as patterns. Parameter segments
// (":id", "{id}") match each other regardless of name.
func DetectCollisions(routeBase string, crud []ir.CrudOp, ops []ir.Operation) []Collision {
	routes := CrudRoutes(routeBase, crud)
	if len(routes) == 0 {
		return nil
	}

	var collisions []Collision
	for i, op := range ops {
		method := strings.ToUpper(op.Method)
		full := OperationPath(routeBase, op.Path)
		pattern := pathPattern(full)

		for _, r := range routes {
			if r.Method != method {
				continue
			}
			if full != r.Path && pattern != pathPattern(r.Path) {
				continue
			}
			collisions = append(collisions, Collision{
				OperationIndex: i,
				OperationName:  op.Name,
				Method:         method,
				OperationPath:  full,
				Crud:           r.Op,
				CrudPath:       r.Path,
				Exact:          full == r.Path,
			})
		}
	}
	return collisions
}

func joinPath(base, suffix string) string {
	if base == "/" {
		return normalizePath(suffix)
	}
	return normalizePath(base + suffix)
}

// normalizePath collapses repeated slashes and strips a trailing slash
// (except for the root).
func normalizePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// pathPattern replaces parameter segments with a single placeholder.
func pathPattern(p string) string {
	segs := strings.Split(p, "/")
	for i, seg := range segs {
		if isParamSegment(seg) {
			segs[i] = ":"
		}
	}
	return strings.Join(segs, "/")
}

func isParamSegment(seg string) bool {
	if len(seg) > 1 && seg[0] == ':' {
		return true
	}
	return len(seg) > 2 && seg[0] == '{' && seg[len(seg)-1] == '}'
}
