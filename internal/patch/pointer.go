package patch

import (
	"strconv"
	"strings"

	"github.com/roach88/specforge/internal/specerr"
)

// Pointer is a parsed RFC 6901 JSON Pointer: the unescaped reference tokens.
// The empty Pointer addresses the document root.
type Pointer []string

// ParsePointer parses s. Every non-empty pointer must start with "/".
// "~1" decodes to "/" and "~0" to "~"; any other "~" sequence is rejected.
func ParsePointer(s string) (Pointer, error) {
	if s == "" {
		return Pointer{}, nil
	}
	if !strings.HasPrefix(s, "/") {
		return nil, specerr.Newf(specerr.InvalidInput, "json pointer %q must start with '/'", s)
	}
	raw := strings.Split(s[1:], "/")
	tokens := make(Pointer, len(raw))
	for i, tok := range raw {
		decoded, err := unescapeToken(tok)
		if err != nil {
			return nil, specerr.Newf(specerr.InvalidInput, "json pointer %q: %s", s, err.Message)
		}
		tokens[i] = decoded
	}
	return tokens, nil
}

// MustParsePointer is like ParsePointer but panics on error.
func MustParsePointer(s string) Pointer {
	p, err := ParsePointer(s)
	if err != nil {
		panic(err)
	}
	return p
}

func unescapeToken(tok string) (string, *specerr.Error) {
	if !strings.Contains(tok, "~") {
		return tok, nil
	}
	var b strings.Builder
	for i := 0; i < len(tok); i++ {
		if tok[i] != '~' {
			b.WriteByte(tok[i])
			continue
		}
		if i+1 >= len(tok) {
			return "", specerr.New(specerr.InvalidInput, "dangling '~' escape")
		}
		switch tok[i+1] {
		case '0':
			b.WriteByte('~')
		case '1':
			b.WriteByte('/')
		default:
			return "", specerr.Newf(specerr.InvalidInput, "invalid escape '~%c'", tok[i+1])
		}
		i++
	}
	return b.String(), nil
}

// String re-escapes the tokens into pointer syntax.
func (p Pointer) String() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	for _, tok := range p {
		b.WriteByte('/')
		tok = strings.ReplaceAll(tok, "~", "~0")
		b.WriteString(strings.ReplaceAll(tok, "/", "~1"))
	}
	return b.String()
}

// IsRoot reports whether p addresses the whole document.
func (p Pointer) IsRoot() bool {
	return len(p) == 0
}

// arrayIndex parses an RFC 6901 array index: decimal digits, no leading zeros.
func arrayIndex(tok string) (int, bool) {
	if tok == "" || (len(tok) > 1 && tok[0] == '0') {
		return 0, false
	}
	for i := 0; i < len(tok); i++ {
		if tok[i] < '0' || tok[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, false
	}
	return n, true
}
