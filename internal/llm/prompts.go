package llm

import (
	"bytes"
	"embed"
	"encoding/json"
	"text/template"

	"github.com/roach88/specforge/internal/ir"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.New("prompts").
	Funcs(template.FuncMap{"json": indentJSON}).
	ParseFS(promptFS, "prompts/*.tmpl"))

// indentJSON renders a document for a prompt. Nil documents render as null.
func indentJSON(v any) (string, error) {
	if doc, ok := v.(ir.IRValue); ok && doc == nil {
		return "null", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
