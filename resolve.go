package userjs

import (
	"reflect"
	"strings"

	"github.com/iancoleman/strcase"
)

// PathSeparator splits the segments of a field path.
const PathSeparator = "__"

type absentValue struct{}

func (absentValue) MarshalJSON() ([]byte, error) { return []byte("null"), nil }
func (absentValue) String() string               { return "<absent>" }

// Absent is returned by FieldValue when a path can't be resolved. It encodes
// as null.
var Absent any = absentValue{}

// Attributer can be implemented by types that expose attributes dynamically.
// It is consulted before maps, fields and methods.
type Attributer interface {
	Attr(name string) (any, bool)
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// FieldValue walks path on obj and returns the value it points at, or Absent
// if a segment is missing. Each segment matches, in order, an Attributer
// attribute, a string map key, or an exported method or field named either
// exactly as written or in CamelCase (`email_verified` matches EmailVerified).
// Methods must take no arguments and are called when reached. A method that
// returns a non-nil error makes the path absent.
//
// If the final value is a function taking no arguments it is called and its
// result returned.
func FieldValue(obj any, path string) any {
	v := obj
	for _, seg := range strings.Split(path, PathSeparator) {
		next, ok := lookup(v, seg)
		if !ok {
			return Absent
		}
		v = next
	}

	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Func && rv.Type().NumIn() == 0 {
		if rv.IsNil() {
			return Absent
		}
		out, ok := call(rv)
		if !ok {
			return Absent
		}
		return out
	}
	return v
}

func lookup(v any, name string) (any, bool) {
	if v == nil || name == "" {
		return nil, false
	}
	if a, ok := v.(Attributer); ok {
		return a.Attr(name)
	}

	names := candidateNames(name)
	rv := reflect.ValueOf(v)

	// Methods are checked before dereferencing so pointer receivers are found.
	if out, found, ok := method(rv, names); found {
		return out, ok
	}

	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		mv := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !mv.IsValid() {
			return nil, false
		}
		return mv.Interface(), true

	case reflect.Struct:
		for _, n := range names {
			sf, ok := rv.Type().FieldByName(n)
			if !ok || !sf.IsExported() {
				continue
			}
			fv, err := rv.FieldByIndexErr(sf.Index)
			if err != nil {
				// Nil embedded pointer.
				return nil, false
			}
			return fv.Interface(), true
		}
		if rv.CanAddr() {
			if out, found, ok := method(rv.Addr(), names); found {
				return out, ok
			}
		}
	}
	return nil, false
}

// Calls the first method matching one of names. found is false when no such
// method exists, ok is false when it takes arguments or fails.
func method(rv reflect.Value, names []string) (out any, found, ok bool) {
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, false, false
	}
	for _, n := range names {
		m := rv.MethodByName(n)
		if !m.IsValid() {
			continue
		}
		if m.Type().NumIn() != 0 {
			return nil, true, false
		}
		out, ok := call(m)
		return out, true, ok
	}
	return nil, false, false
}

// Invokes a zero-argument function returning T or (T, error).
func call(fn reflect.Value) (any, bool) {
	t := fn.Type()
	switch t.NumOut() {
	case 1:
		return fn.Call(nil)[0].Interface(), true
	case 2:
		if !t.Out(1).Implements(errorType) {
			return nil, false
		}
		out := fn.Call(nil)
		if !out[1].IsNil() {
			return nil, false
		}
		return out[0].Interface(), true
	}
	return nil, false
}

func candidateNames(name string) []string {
	names := []string{name}
	if c := strcase.ToCamel(name); c != name {
		names = append(names, c)
	}
	// Common initialisms such as id and url.
	if u := strings.ToUpper(name); u != name && !strings.Contains(name, "_") {
		names = append(names, u)
	}
	return names
}
