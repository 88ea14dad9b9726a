package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Field is an optional JSON value. Set reports that the key was present in
// the document; Null that its value was the JSON null literal.
type Field[T any] struct {
	Set   bool
	Null  bool
	Value T
}

func Some[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

func Null[T any]() Field[T] {
	return Field[T]{Set: true, Null: true}
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if string(data) == "null" {
		f.Null = true
		return nil
	}
	return json.Unmarshal(data, &f.Value)
}

// Get returns the value and whether it is present and non-null.
func (f Field[T]) Get() (T, bool) {
	return f.Value, f.Set && !f.Null
}

// Rating accepts numbers, numeric strings and booleans. Empty strings,
// false and null coerce to 0; fractional numbers are truncated.
type Rating int

func (r *Rating) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*r = 0
	case bool:
		*r = 0
		if t {
			*r = 1
		}
	case float64:
		*r = Rating(int(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			*r = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("rating: %q is not an integer", t)
		}
		*r = Rating(n)
	default:
		return fmt.Errorf("rating: unsupported value %s", data)
	}
	return nil
}

// RawDate keeps whatever the client sent for a date field. Non-string
// values decode to the empty string so ParseDate can drop them.
type RawDate string

func (d *RawDate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*d = ""
		return nil
	}
	*d = RawDate(s)
	return nil
}
