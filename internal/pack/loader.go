package pack

import (
	"bytes"
	"embed"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/specforge/internal/specerr"
)

// DefaultTemplateID is the pack used when none is requested.
const DefaultTemplateID = "crud-backend"

//go:embed packs/*.yaml
var builtinPacks embed.FS

// Loader resolves template ids to packs. A pack in Dir shadows the
// embedded pack with the same id.
type Loader struct {
	Dir string
}

// NewLoader returns a loader that consults dir (may be empty) before the
// embedded packs.
func NewLoader(dir string) *Loader {
	return &Loader{Dir: dir}
}

// Load returns the validated pack for templateID.
// Unknown or malformed ids fail with INVALID_INPUT, read failures with IO_ERROR.
func (l *Loader) Load(templateID string) (*Pack, error) {
	if !ValidTemplateID(templateID) {
		return nil, specerr.Newf(specerr.InvalidInput, "invalid template id %q", templateID)
	}

	data, source, err := l.read(templateID)
	if err != nil {
		return nil, err
	}

	p, err := Parse(data)
	if err != nil {
		return nil, specerr.Wrap(specerr.InvalidInput, err, "pack "+source)
	}
	if p.ID != templateID {
		return nil, specerr.Newf(specerr.InvalidInput, "pack %s declares id %q, want %q", source, p.ID, templateID)
	}
	return p, nil
}

func (l *Loader) read(templateID string) ([]byte, string, error) {
	name := templateID + ".yaml"

	if l.Dir != "" {
		path := filepath.Join(l.Dir, name)
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			return data, path, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, "", specerr.Wrap(specerr.IOError, err, "read pack "+path)
		}
	}

	data, err := builtinPacks.ReadFile("packs/" + name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", specerr.Newf(specerr.InvalidInput, "unknown template %q", templateID)
		}
		return nil, "", specerr.Wrap(specerr.IOError, err, "read builtin pack "+name)
	}
	return data, "builtin:" + name, nil
}

// List returns every available template id, sorted.
func (l *Loader) List() ([]string, error) {
	ids := make(map[string]bool)

	entries, err := fs.ReadDir(builtinPacks, "packs")
	if err != nil {
		return nil, specerr.Wrap(specerr.IOError, err, "list builtin packs")
	}
	collectIDs(ids, entries)

	if l.Dir != "" {
		entries, err := os.ReadDir(l.Dir)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, specerr.Wrap(specerr.IOError, err, "list packs in "+l.Dir)
		}
		collectIDs(ids, entries)
	}

	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func collectIDs(ids map[string]bool, entries []fs.DirEntry) {
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := strings.CutSuffix(e.Name(), ".yaml")
		if ok && ValidTemplateID(id) {
			ids[id] = true
		}
	}
}

// Parse decodes and validates a YAML pack. Unknown keys are rejected.
func Parse(data []byte) (*Pack, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Pack
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
