// Package render produces the human-facing artifacts of a compiled spec:
// a Markdown confirmation summary and a PlantUML class diagram.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/roach88/specforge/internal/compiler"
	"github.com/roach88/specforge/internal/ir"
	"github.com/roach88/specforge/internal/session"
	"github.com/roach88/specforge/internal/specerr"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// Renderer renders confirmations and diagrams. The zero value is ready to use.
type Renderer struct{}

var (
	_ session.ConfirmationRenderer = Renderer{}
	_ session.UMLRenderer          = Renderer{}
)

// New returns a Renderer.
func New() Renderer {
	return Renderer{}
}

// RenderConfirmation summarizes spec together with the session's status,
// approval, answers and warnings.
func (Renderer) RenderConfirmation(s *ir.SpecSession, spec *ir.DesignSpec) (string, error) {
	if s == nil || spec == nil {
		return "", specerr.New(specerr.InvalidInput, "render confirmation: session and spec are required")
	}
	view, err := newConfirmationView(s, spec)
	if err != nil {
		return "", err
	}
	return execute("confirmation.md.tmpl", view)
}

// RenderUML draws one package per domain with its entities and services.
func (Renderer) RenderUML(spec *ir.DesignSpec) (string, error) {
	if spec == nil {
		return "", specerr.New(specerr.InvalidInput, "render uml: spec is required")
	}
	return execute("uml.puml.tmpl", newSpecView(spec))
}

func execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", specerr.Wrap(specerr.InvalidInput, err, "render "+name)
	}
	return buf.String(), nil
}

type specView struct {
	Name     string
	Issuer   string
	Audience string
	JWKSURI  string
	Domains  []domainView
}

type confirmationView struct {
	specView
	SessionID  string
	TemplateID string
	Status     ir.SessionStatus
	Approval   string
	Answers    []answerView
	Warnings   []ir.Diagnostic
}

type domainView struct {
	Name     string
	Key      string
	Entities []entityView
	Services []serviceView
	Routes   []routeView
}

type entityView struct {
	Name   string
	Fields []fieldView
}

type fieldView struct {
	Name    string
	Type    string
	Primary bool
	Flags   string
}

type serviceView struct {
	Name   string
	Entity string
	Routes []routeView
}

type routeView struct {
	Method  string
	Path    string
	Service string
	Handler string
	Access  string
}

type answerView struct {
	Key   string
	Value string
}

func newSpecView(spec *ir.DesignSpec) specView {
	v := specView{
		Name:     spec.Name,
		Issuer:   spec.CrossCutting.Auth.JWT.Issuer,
		Audience: spec.CrossCutting.Auth.JWT.Audience,
		JWKSURI:  spec.CrossCutting.Auth.JWT.JWKSURI,
	}
	for _, d := range spec.Domains {
		dv := domainView{Name: d.Name, Key: d.Key}
		for _, e := range d.Entities {
			dv.Entities = append(dv.Entities, newEntityView(e))
		}
		for _, svc := range d.Services {
			sv := newServiceView(svc)
			dv.Services = append(dv.Services, sv)
			dv.Routes = append(dv.Routes, sv.Routes...)
		}
		v.Domains = append(v.Domains, dv)
	}
	return v
}

func newEntityView(e ir.Entity) entityView {
	ev := entityView{Name: e.Name}
	for _, f := range e.Fields {
		var flags []string
		if f.Primary {
			flags = append(flags, "primary")
		}
		if f.Required {
			flags = append(flags, "required")
		}
		if f.Unique {
			flags = append(flags, "unique")
		}
		ev.Fields = append(ev.Fields, fieldView{
			Name:    f.Name,
			Type:    f.Type,
			Primary: f.Primary,
			Flags:   strings.Join(flags, ", "),
		})
	}
	return ev
}

// newServiceView lists CRUD routes first, then custom operations.
// CRUD routes always require a valid token.
func newServiceView(svc ir.Service) serviceView {
	sv := serviceView{Name: svc.Name, Entity: svc.Entity}
	for _, r := range compiler.CrudRoutes(svc.Route, svc.Crud) {
		sv.Routes = append(sv.Routes, routeView{
			Method:  r.Method,
			Path:    r.Path,
			Service: svc.Name,
			Handler: string(r.Op),
			Access:  "jwt",
		})
	}
	for _, op := range svc.Operations {
		sv.Routes = append(sv.Routes, routeView{
			Method:  strings.ToUpper(op.Method),
			Path:    compiler.OperationPath(svc.Route, op.Path),
			Service: svc.Name,
			Handler: op.Name,
			Access:  access(op.Authz),
		})
	}
	return sv
}

func access(a ir.Authz) string {
	if a.IsPublic() {
		return "public"
	}
	return "scopes: " + strings.Join(a.ScopesAll, ", ")
}

func newConfirmationView(s *ir.SpecSession, spec *ir.DesignSpec) (confirmationView, error) {
	v := confirmationView{
		specView:   newSpecView(spec),
		SessionID:  s.SessionID,
		TemplateID: s.TemplateID,
		Status:     s.Status,
		Approval:   approvalText(s.Approval),
	}
	for _, key := range s.Answers.SortedKeys() {
		value, err := ir.StableStringify(s.Answers[key])
		if err != nil {
			return confirmationView{}, specerr.Wrap(specerr.InvalidInput, err, "answer "+key)
		}
		v.Answers = append(v.Answers, answerView{Key: key, Value: value})
	}
	for _, d := range s.Diagnostics {
		if d.Level == ir.LevelWarn {
			v.Warnings = append(v.Warnings, d)
		}
	}
	return v, nil
}

func approvalText(a ir.Approval) string {
	if !a.Approved {
		return "pending"
	}
	if a.ApprovedAt == nil {
		return fmt.Sprintf("approved by %s", a.ApprovedBy)
	}
	return fmt.Sprintf("approved by %s at %s", a.ApprovedBy, a.ApprovedAt.UTC().Format(time.RFC3339))
}
