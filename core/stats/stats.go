// Package stats carries dashboard aggregates that may individually fail.
package stats

import (
	"context"
	"encoding/json"
	"sort"
)

// Value is an aggregate together with the error that prevented computing it.
// It renders as {"value": v, "available": true}, or with the zero value and
// "available": false when it could not be computed.
type Value[T any] struct {
	Value T
	Err   error
}

func Of[T any](v T, err error) Value[T] {
	if err != nil {
		var zero T
		return Value[T]{Value: zero, Err: err}
	}
	return Value[T]{Value: v}
}

func (v Value[T]) Available() bool { return v.Err == nil }

// Or returns the value, or def when it is unavailable.
func (v Value[T]) Or(def T) T {
	if v.Err != nil {
		return def
	}
	return v.Value
}

func (v Value[T]) MarshalJSON() ([]byte, error) {
	out := struct {
		Value     T    `json:"value"`
		Available bool `json:"available"`
	}{Available: v.Available()}
	if v.Available() {
		out.Value = v.Value
	}
	return json.Marshal(out)
}

// Count runs a counting query.
func Count(ctx context.Context, fn func(ctx context.Context) (int, error)) Value[int] {
	return Of(fn(ctx))
}

// Unavailable lists the sorted names of the unavailable values of a dashboard, for logging.
func Unavailable(values map[string]interface{ Available() bool }) []string {
	var names []string
	for name, v := range values {
		if !v.Available() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
