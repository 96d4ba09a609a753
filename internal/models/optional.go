package models

import (
	"bytes"
	"encoding/json"
)

// Optional is a tri-state field: unset, set to null, or set to a value.
// The zero value is unset. In JSON an absent key leaves it unset and a
// literal null marks it null.
type Optional[T any] struct {
	value T
	set   bool
	null  bool
}

func Some[T any](value T) Optional[T] {
	return Optional[T]{value: value, set: true}
}

func Null[T any]() Optional[T] {
	return Optional[T]{set: true, null: true}
}

// IsSet reports whether the field was present at all, null included.
func (o Optional[T]) IsSet() bool {
	return o.set
}

func (o Optional[T]) IsNull() bool {
	return o.set && o.null
}

// Get returns the value and true only when the field carries a value.
func (o Optional[T]) Get() (T, bool) {
	if !o.set || o.null {
		var zero T
		return zero, false
	}
	return o.value, true
}

// Or returns the carried value, or fallback when unset or null.
func (o Optional[T]) Or(fallback T) T {
	if v, ok := o.Get(); ok {
		return v
	}
	return fallback
}

// IsZero lets `omitzero` drop unset fields when marshaling.
func (o Optional[T]) IsZero() bool {
	return !o.set
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Null[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.set || o.null {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}
