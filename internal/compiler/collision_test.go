package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/specforge/internal/ir"
)

func TestNormalizeRouteBase(t *testing.T) {
	tests := map[string]string{
		"users":       "/users",
		"/users":      "/users",
		"/users/":     "/users",
		"//users//":   "/users",
		"":            "/",
		"/":           "/",
		"v1//users":   "/v1/users",
		"admin/users": "/admin/users",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeRouteBase(in), "route %q", in)
	}
}

func TestCrudRoutes(t *testing.T) {
	routes := CrudRoutes("users", ir.CrudOps)
	assert.Equal(t, []CrudRoute{
		{Op: ir.CrudCreate, Method: "POST", Path: "/users"},
		{Op: ir.CrudFindAll, Method: "GET", Path: "/users"},
		{Op: ir.CrudFindOne, Method: "GET", Path: "/users/:id"},
		{Op: ir.CrudUpdate, Method: "PATCH", Path: "/users/:id"},
		{Op: ir.CrudDelete, Method: "DELETE", Path: "/users/:id"},
	}, routes)

	root := CrudRoutes("/", []ir.CrudOp{ir.CrudFindAll, ir.CrudFindOne})
	assert.Equal(t, "/", root[0].Path)
	assert.Equal(t, "/:id", root[1].Path)
}

func TestDetectCollisionsFindOne(t *testing.T) {
	ops := []ir.Operation{{Name: "getUser", Method: "GET", Path: "/:id", Authz: ir.Public()}}

	collisions := DetectCollisions("users", []ir.CrudOp{ir.CrudFindOne}, ops)
	require.Len(t, collisions, 1)

	c := collisions[0]
	assert.Equal(t, 0, c.OperationIndex)
	assert.Equal(t, ir.CrudFindOne, c.Crud)
	assert.Equal(t, "/users/:id", c.CrudPath)
	assert.Equal(t, "/users/:id", c.OperationPath)
	assert.True(t, c.Exact)
}

func TestDetectCollisions(t *testing.T) {
	tests := []struct {
		name  string
		route string
		crud  []ir.CrudOp
		op    ir.Operation
		want  []ir.CrudOp
		exact bool
	}{
		{
			name:  "list shadowed by trailing slash",
			route: "/users/",
			crud:  []ir.CrudOp{ir.CrudFindAll},
			op:    ir.Operation{Name: "list", Method: "GET", Path: "/"},
			want:  []ir.CrudOp{ir.CrudFindAll},
			exact: true,
		},
		{
			name:  "brace parameter matches by pattern",
			route: "users",
			crud:  []ir.CrudOp{ir.CrudUpdate},
			op:    ir.Operation{Name: "edit", Method: "PATCH", Path: "/{userId}"},
			want:  []ir.CrudOp{ir.CrudUpdate},
		},
		{
			name:  "renamed colon parameter matches by pattern",
			route: "users",
			crud:  []ir.CrudOp{ir.CrudDelete},
			op:    ir.Operation{Name: "drop", Method: "delete", Path: "/:userId"},
			want:  []ir.CrudOp{ir.CrudDelete},
		},
		{
			name:  "different method",
			route: "users",
			crud:  []ir.CrudOp{ir.CrudFindOne},
			op:    ir.Operation{Name: "replace", Method: "PUT", Path: "/:id"},
		},
		{
			name:  "literal segment is not a parameter",
			route: "users",
			crud:  []ir.CrudOp{ir.CrudFindOne},
			op:    ir.Operation{Name: "me", Method: "GET", Path: "/me"},
		},
		{
			name:  "crud disabled",
			route: "users",
			crud:  []ir.CrudOp{ir.CrudCreate},
			op:    ir.Operation{Name: "getUser", Method: "GET", Path: "/:id"},
		},
		{
			name:  "deeper path",
			route: "users",
			crud:  ir.CrudOps,
			op:    ir.Operation{Name: "activate", Method: "POST", Path: "/:id/activate"},
		},
		{
			name:  "create shadowed",
			route: "users",
			crud:  ir.CrudOps,
			op:    ir.Operation{Name: "register", Method: "POST", Path: "//"},
			want:  []ir.CrudOp{ir.CrudCreate},
			exact: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collisions := DetectCollisions(tt.route, tt.crud, []ir.Operation{tt.op})

			var got []ir.CrudOp
			for _, c := range collisions {
				got = append(got, c.Crud)
				assert.Equal(t, tt.exact, c.Exact)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectCollisionsReportsEveryOperation(t *testing.T) {
	ops := []ir.Operation{
		{Name: "ok", Method: "GET", Path: "/search"},
		{Name: "dupList", Method: "GET", Path: "/"},
		{Name: "dupGet", Method: "GET", Path: "/:id"},
	}

	collisions := DetectCollisions("items", ir.CrudOps, ops)
	require.Len(t, collisions, 2)
	assert.Equal(t, 1, collisions[0].OperationIndex)
	assert.Equal(t, ir.CrudFindAll, collisions[0].Crud)
	assert.Equal(t, 2, collisions[1].OperationIndex)
	assert.Equal(t, ir.CrudFindOne, collisions[1].Crud)
}
