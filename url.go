package userjs

import (
	"fmt"
	"net/url"
	"reflect"

	"github.com/dpup/userjs/errors"
	"google.golang.org/grpc/codes"
)

// URL returns path with params appended as a query string. Keys are sorted and
// slice values become repeated keys.
func URL(path string, params map[string]any) string {
	if len(params) == 0 {
		return path
	}
	q := url.Values{}
	for k, v := range params {
		rv := reflect.ValueOf(v)
		if v != nil && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) {
			if b, ok := v.([]byte); ok {
				q.Add(k, string(b))
				continue
			}
			for i := 0; i < rv.Len(); i++ {
				q.Add(k, queryValue(rv.Index(i).Interface()))
			}
			continue
		}
		q.Add(k, queryValue(v))
	}
	return path + "?" + q.Encode()
}

func queryValue(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Dict builds a map from alternating keys and values, so templates can pass
// query params: `{{userjsURL (dict "jsonp" "init")}}`.
func Dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, errors.NewC("dict: odd number of arguments", codes.InvalidArgument)
	}
	m := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		k, ok := pairs[i].(string)
		if !ok {
			return nil, errors.NewC(fmt.Sprintf("dict: key %d is a %T, not a string", i/2, pairs[i]), codes.InvalidArgument)
		}
		m[k] = pairs[i+1]
	}
	return m, nil
}
