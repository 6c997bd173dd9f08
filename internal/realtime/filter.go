package realtime

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidFilter = errors.New("invalid filter")

// Filter is a single column equality in the column=eq.value syntax.
type Filter struct {
	Column string
	Value  string
}

// ParseFilter parses "column=eq.value". An empty string is no filter.
func ParseFilter(raw string) (*Filter, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	column, expr, ok := strings.Cut(raw, "=")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFilter, raw)
	}
	column = strings.TrimSpace(column)
	op, value, ok := strings.Cut(expr, ".")
	if !ok || column == "" || op != "eq" {
		return nil, fmt.Errorf("%w: %q (only column=eq.value is supported)", ErrInvalidFilter, raw)
	}
	return &Filter{Column: column, Value: value}, nil
}

func (f Filter) String() string {
	return f.Column + "=eq." + f.Value
}

// Binding selects changes by event type, schema, table and an optional filter.
type Binding struct {
	Event  EventType
	Schema string
	Table  string
	Filter string
}

type compiledBinding struct {
	Binding
	filter *Filter
}

func compile(b Binding) (compiledBinding, error) {
	if b.Table == "" {
		return compiledBinding{}, fmt.Errorf("%w: binding has no table", ErrInvalidFilter)
	}
	if b.Event == "" {
		b.Event = EventAny
	}
	if b.Schema == "" {
		b.Schema = "public"
	}
	filter, err := ParseFilter(b.Filter)
	if err != nil {
		return compiledBinding{}, err
	}
	return compiledBinding{Binding: b, filter: filter}, nil
}

// Matches reports whether the change satisfies the binding.
func (b compiledBinding) Matches(change Change) bool {
	if b.Event != EventAny && b.Event != change.Type {
		return false
	}
	if b.Schema != change.Schema || b.Table != change.Table {
		return false
	}
	if b.filter == nil {
		return true
	}
	value, ok := change.Value(b.filter.Column)
	return ok && value == b.filter.Value
}

// Match compiles b and reports whether change satisfies it.
func Match(b Binding, change Change) (bool, error) {
	compiled, err := compile(b)
	if err != nil {
		return false, err
	}
	return compiled.Matches(change), nil
}
