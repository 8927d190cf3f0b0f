package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNoRecords is returned when a document holds no record list where one is required.
var ErrNoRecords = errors.New("json: no record list")

// Object is a decoded JSON object that remembers its key order, so flattened
// columns follow the order the API emits them.
type Object struct {
	Keys   []string
	Values map[string]any
}

// Get returns the value of key and whether it is present.
func (o *Object) Get(key string) (any, bool) {
	v, ok := o.Values[key]
	return v, ok
}

func (o *Object) set(key string, v any) {
	if _, exists := o.Values[key]; !exists {
		o.Keys = append(o.Keys, key)
	}
	o.Values[key] = v
}

// Decode reads one JSON document. Objects decode to *Object, arrays to []any,
// numbers to json.Number.
//
// Errors:
//   - Any syntax error, wrapped with the token position context.
//   - Trailing non-whitespace data after the document.
func Decode(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("json: empty document")
		}
		return nil, fmt.Errorf("json: read first token: %w", err)
	}
	v, err := materialize(dec, tok)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("json: unexpected data after document")
	}
	return v, nil
}

func materialize(dec *json.Decoder, tok json.Token) (any, error) {
	d, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch d {
	case '{':
		obj := &Object{Values: map[string]any{}}
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: read object key: %w", err)
			}
			key, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("json: object key not a string (got %T)", kt)
			}
			vt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: read value of %q: %w", key, err)
			}
			v, err := materialize(dec, vt)
			if err != nil {
				return nil, err
			}
			obj.set(key, v)
		}
		if end, err := dec.Token(); err != nil || end != json.Delim('}') {
			return nil, fmt.Errorf("json: expected object end '}': %v", err)
		}
		return obj, nil

	case '[':
		arr := []any{}
		for dec.More() {
			et, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: read array element: %w", err)
			}
			v, err := materialize(dec, et)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if end, err := dec.Token(); err != nil || end != json.Delim(']') {
			return nil, fmt.Errorf("json: expected array end ']': %v", err)
		}
		return arr, nil

	default:
		return nil, fmt.Errorf("json: unexpected delimiter %q", d)
	}
}

// Records locates the record list of an API document:
//
//   - a root array: its object elements (null elements are skipped);
//   - a root object (envelope): the first field holding a non-empty array of
//     objects;
//   - otherwise the root object itself is the single record.
//
// Errors:
//   - A root array with non-object elements.
//   - A scalar root.
func Records(root any) ([]*Object, error) {
	switch v := root.(type) {
	case []any:
		return objects(v)
	case *Object:
		for _, k := range v.Keys {
			arr, ok := v.Values[k].([]any)
			if !ok || len(arr) == 0 {
				continue
			}
			if recs, err := objects(arr); err == nil && len(recs) > 0 {
				return recs, nil
			}
		}
		return []*Object{v}, nil
	default:
		return nil, fmt.Errorf("json: unsupported root %T (want object or array)", root)
	}
}

// FirstList returns the objects of the first field of root whose value is an
// array, even when the array is empty. It mirrors envelope APIs whose payload
// field name is not stable.
func FirstList(root any) ([]*Object, error) {
	obj, ok := root.(*Object)
	if !ok {
		return nil, fmt.Errorf("%w: root is %T, want object", ErrNoRecords, root)
	}
	for _, k := range obj.Keys {
		if arr, ok := obj.Values[k].([]any); ok {
			return objects(arr)
		}
	}
	return nil, ErrNoRecords
}

// Field returns the objects of the named array field of a root object.
func Field(root any, name string) ([]*Object, error) {
	obj, ok := root.(*Object)
	if !ok {
		return nil, fmt.Errorf("%w: root is %T, want object", ErrNoRecords, root)
	}
	arr, ok := obj.Values[name].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: field %q missing or not a list", ErrNoRecords, name)
	}
	return objects(arr)
}

func objects(arr []any) ([]*Object, error) {
	out := make([]*Object, 0, len(arr))
	for i, e := range arr {
		if e == nil {
			continue
		}
		o, ok := e.(*Object)
		if !ok {
			return nil, fmt.Errorf("json: array element %d not an object (got %T)", i, e)
		}
		out = append(out, o)
	}
	return out, nil
}
