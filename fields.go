package userjs

import (
	"net/http"
	"strings"
)

const (
	// LiteralPrefix marks a configured string as a literal value rather than a
	// path.
	LiteralPrefix = "str:"

	// FuncPrefix marks a configured string as the name of a function registered
	// with RegisterFieldFunc.
	FuncPrefix = "func:"
)

// Fields is the set of values rendered into the script.
type Fields map[string]any

// FieldFunc computes a field's value from the request.
type FieldFunc func(r *http.Request) (any, error)

// PostProcessor returns extra fields to merge into the output. A nil or empty
// result adds nothing.
type PostProcessor func(r *http.Request) (Fields, error)

// FieldKind identifies how a Field is resolved.
type FieldKind int

const (
	KindLiteral FieldKind = iota
	KindPath
	KindFunc
)

func (k FieldKind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindPath:
		return "path"
	case KindFunc:
		return "func"
	}
	return "unknown"
}

// Field is a rule for producing a single output value.
type Field struct {
	kind  FieldKind
	value any
	path  string
	fn    FieldFunc
}

// Literal returns a field that always renders v.
func Literal(v any) Field {
	return Field{kind: KindLiteral, value: v}
}

// Path returns a field resolved against the user with FieldValue. Segments
// are separated by a double underscore, e.g. `profile__settings__theme`.
func Path(p string) Field {
	return Field{kind: KindPath, path: p}
}

// Func returns a field computed by fn for each request.
func Func(fn FieldFunc) Field {
	return Field{kind: KindFunc, fn: fn}
}

// Kind reports how the field is resolved.
func (f Field) Kind() FieldKind {
	return f.kind
}

func (f Field) String() string {
	switch f.kind {
	case KindPath:
		return "path(" + f.path + ")"
	case KindFunc:
		return "func"
	}
	return "literal"
}

func (f Field) resolve(r *http.Request, u User) (any, error) {
	switch f.kind {
	case KindPath:
		return FieldValue(u, f.path), nil
	case KindFunc:
		return f.fn(r)
	}
	return f.value, nil
}

// ParseField converts a configured value into a Field. Strings prefixed with
// `str:` are literals of the remainder, `func:name` refers to a registered
// FieldFunc, other strings are paths, and everything else is a literal.
func ParseField(v any) (Field, error) {
	s, ok := v.(string)
	if !ok {
		return Literal(v), nil
	}
	switch {
	case strings.HasPrefix(s, LiteralPrefix):
		return Literal(strings.TrimPrefix(s, LiteralPrefix)), nil
	case strings.HasPrefix(s, FuncPrefix):
		name := strings.TrimPrefix(s, FuncPrefix)
		fn, ok := lookupFieldFunc(name)
		if !ok {
			return Field{}, configErrorf("no field func registered as %q", name)
		}
		return Func(fn), nil
	}
	return Path(s), nil
}
