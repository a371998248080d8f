package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DesignSpec is the compiled backend specification.
// Produce one with DecodeDesignSpec only after structural validation succeeded.
type DesignSpec struct {
	Name         string       `json:"name"`
	CrossCutting CrossCutting `json:"crossCutting"`
	Domains      []Domain     `json:"domains"`
}

// CrossCutting holds concerns shared by every domain.
type CrossCutting struct {
	Auth AuthConfig `json:"auth"`
}

// AuthConfig configures token verification for protected operations.
type AuthConfig struct {
	JWT JWTConfig `json:"jwt"`
}

// JWTConfig identifies the JWT issuer and key set.
type JWTConfig struct {
	Issuer   string `json:"issuer"`
	Audience string `json:"audience"`
	JWKSURI  string `json:"jwksUri"`
}

// Domain groups entities and the services exposing them.
// Key is unique across the document and prefixes every scope in the domain.
type Domain struct {
	Name     string    `json:"name"`
	Key      string    `json:"key"`
	Entities []Entity  `json:"entities"`
	Services []Service `json:"services"`
}

// Entity is a persisted record type.
type Entity struct {
	Name       string  `json:"name"`
	PrimaryKey string  `json:"primaryKey"`
	Fields     []Field `json:"fields"`
}

// Field is a typed entity attribute.
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Primary  bool   `json:"primary,omitempty"`
	Required bool   `json:"required,omitempty"`
	Unique   bool   `json:"unique,omitempty"`
}

// FieldByName returns the first field named name.
func (e Entity) FieldByName(name string) (Field, int, bool) {
	for i, f := range e.Fields {
		if f.Name == name {
			return f, i, true
		}
	}
	return Field{}, -1, false
}

// CrudOp is a generated CRUD operation.
type CrudOp string

const (
	CrudCreate  CrudOp = "create"
	CrudFindAll CrudOp = "findAll"
	CrudFindOne CrudOp = "findOne"
	CrudUpdate  CrudOp = "update"
	CrudDelete  CrudOp = "delete"
)

// CrudOps lists every CrudOp in route-table order.
var CrudOps = []CrudOp{CrudCreate, CrudFindAll, CrudFindOne, CrudUpdate, CrudDelete}

// Service exposes one entity under a route base.
type Service struct {
	Name       string      `json:"name"`
	Route      string      `json:"route"`
	Entity     string      `json:"entity"`
	Crud       []CrudOp    `json:"crud"`
	Operations []Operation `json:"operations"`
}

// Operation is a custom route appended to the service route.
type Operation struct {
	Name        string `json:"name"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	Authz       Authz  `json:"authz"`
	Description string `json:"description,omitempty"`
}

// Authz is either explicitly public ({required:false}) or protected by
// scopes that must all be present ({scopesAll:[...]}).
type Authz struct {
	Required  *bool    `json:"required,omitempty"`
	ScopesAll []string `json:"scopesAll,omitempty"`
}

// IsPublic reports whether the operation opted out of authorization.
func (a Authz) IsPublic() bool {
	return a.Required != nil && !*a.Required
}

// Public returns the explicitly public Authz.
func Public() Authz {
	f := false
	return Authz{Required: &f}
}

// Scopes returns a protected Authz requiring every scope.
func Scopes(scopes ...string) Authz {
	return Authz{ScopesAll: scopes}
}

// DecodeDesignSpec converts a structurally valid document into a DesignSpec.
// Unknown fields are rejected so that the typed model never silently drops data.
func DecodeDesignSpec(v IRValue) (*DesignSpec, error) {
	data, err := MarshalIRValue(v)
	if err != nil {
		return nil, fmt.Errorf("decode design spec: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var spec DesignSpec
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode design spec: %w", err)
	}
	return &spec, nil
}

// EncodeDesignSpec converts a DesignSpec into its document form.
func EncodeDesignSpec(spec *DesignSpec) (IRValue, error) {
	data, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("encode design spec: %w", err)
	}
	return ParseValue(data)
}
