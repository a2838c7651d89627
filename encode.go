package userjs

import (
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/dpup/userjs/errors"
	"google.golang.org/grpc/codes"
)

// ErrUnsupportedType is returned when a value can't be encoded. JSONHandlers
// return it, or an error wrapping it, to pass a value on to the next handler.
var ErrUnsupportedType = errors.NewC("userjs: unsupported type", codes.Internal)

// JSONHandler converts a value the encoder doesn't understand into one it
// does. The result may itself need converting.
type JSONHandler func(v any) (any, error)

// ISOFormatter is implemented by date and time types that know their ISO-8601
// representation.
type ISOFormatter interface {
	ISOFormat() string
}

// Nested values deeper than this fail to encode.
const maxEncodeDepth = 32

// Encoder serializes field sets to compact JSON. Map keys are sorted. Maps
// with integer, float, bool or encoding.TextMarshaler keys are encoded with
// their keys as strings. NaN and infinite floats encode as null.
//
// Values that aren't natively representable (structs, funcs, channels and the
// like) go through a default handler: time.Time encodes as RFC 3339 with
// nanoseconds, ISOFormatters as their ISO string, and anything else is offered
// to each of Handlers in turn.
type Encoder struct {
	Handlers []JSONHandler
}

// Encode returns the compact JSON encoding of v.
func (e *Encoder) Encode(v any) ([]byte, error) {
	n, err := e.normalize(v, 0)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(n)
	if err != nil {
		return nil, errors.WithCode(err, codes.Internal)
	}
	return b, nil
}

// Marshal encodes v with no extra handlers.
func Marshal(v any) ([]byte, error) {
	return (&Encoder{}).Encode(v)
}

// Reduces v to values encoding/json handles natively.
func (e *Encoder) normalize(v any, depth int) (any, error) {
	if depth > maxEncodeDepth {
		return nil, errors.Mark(ErrUnsupportedType, 0).Append("maximum nesting depth exceeded")
	}

	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, nil
	}

	switch x := v.(type) {
	case nil, absentValue:
		return nil, nil
	case bool, string, json.Number, json.RawMessage,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return x, nil
	case float32:
		return finite(x, float64(x)), nil
	case float64:
		return finite(x, x), nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	case ISOFormatter:
		return x.ISOFormat(), nil
	case json.Marshaler:
		return x, nil
	case Fields:
		return e.normalizeMap(map[string]any(x), depth)
	case map[string]any:
		return e.normalizeMap(x, depth)
	case []any:
		return e.normalizeSlice(reflect.ValueOf(x), depth)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		switch rv.Elem().Kind() {
		case reflect.Struct, reflect.Func, reflect.Chan, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
			// Handlers see the pointer first, so they can match on *T.
			out, ok, err := e.tryHandlers(v, depth)
			if ok || err != nil {
				return out, err
			}
		}
		return e.normalize(rv.Elem().Interface(), depth+1)
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), nil
	case reflect.Float32, reflect.Float64:
		return finite(rv.Float(), rv.Float()), nil
	case reflect.Map:
		if !stringableKey(rv.Type().Key()) {
			return e.handle(v, depth)
		}
		if rv.IsNil() {
			return nil, nil
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k, err := keyString(iter.Key())
			if err != nil {
				return nil, errors.Wrap(err, 0).WithCode(codes.Internal)
			}
			m[k] = iter.Value().Interface()
		}
		return e.normalizeMap(m, depth)
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			// Byte slices have no natural JSON form.
			return e.handle(v, depth)
		}
		if rv.IsNil() {
			return nil, nil
		}
		return e.normalizeSlice(rv, depth)
	case reflect.Array:
		return e.normalizeSlice(rv, depth)
	}
	return e.handle(v, depth)
}

func (e *Encoder) normalizeMap(m map[string]any, depth int) (any, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(m))
	for _, k := range keys {
		n, err := e.normalize(m[k], depth+1)
		if err != nil {
			return nil, errors.Wrap(err, 0).Append("at key " + k)
		}
		out[k] = n
	}
	return out, nil
}

func (e *Encoder) normalizeSlice(rv reflect.Value, depth int) (any, error) {
	out := make([]any, rv.Len())
	for i := range out {
		n, err := e.normalize(rv.Index(i).Interface(), depth+1)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// Offers v to each handler until one accepts it.
func (e *Encoder) handle(v any, depth int) (any, error) {
	out, ok, err := e.tryHandlers(v, depth)
	if ok || err != nil {
		return out, err
	}
	return nil, errors.Mark(ErrUnsupportedType, 0).Append(fmt.Sprintf("%T is not JSON serializable", v))
}

// ok is false when every handler rejected v.
func (e *Encoder) tryHandlers(v any, depth int) (out any, ok bool, err error) {
	for _, h := range e.Handlers {
		out, err := h(v)
		if errors.Is(err, ErrUnsupportedType) {
			continue
		}
		if err != nil {
			return nil, false, errors.WrapPrefix(err, "userjs: json handler failed", 0).WithCode(codes.Internal)
		}
		n, err := e.normalize(out, depth+1)
		return n, true, err
	}
	return nil, false, nil
}

var textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()

func stringableKey(t reflect.Type) bool {
	if t.Kind() == reflect.String || t.Implements(textMarshalerType) {
		return true
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func keyString(k reflect.Value) (string, error) {
	if k.Kind() == reflect.String {
		return k.String(), nil
	}
	if tm, ok := k.Interface().(encoding.TextMarshaler); ok {
		if k.Kind() == reflect.Pointer && k.IsNil() {
			return "", nil
		}
		b, err := tm.MarshalText()
		return string(b), err
	}
	switch k.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(k.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(k.Uint(), 10), nil
	case reflect.Float32:
		return strconv.FormatFloat(k.Float(), 'g', -1, 32), nil
	}
	return strconv.FormatFloat(k.Float(), 'g', -1, 64), nil
}

// JSON has no NaN or infinity.
func finite(v any, f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return v
}
