package registry

import (
	"fmt"
	"sync"
)

// Component is a named setting surface registered by a console tab.
// Implementations must be comparable (pointer types) because the registry
// indexes them in both directions.
type Component interface {
	// Kind names the widget type, e.g. "textbox" or "checkbox".
	Kind() string
	// Interactive reports whether the value is user-editable and therefore
	// saved with the settings.
	Interactive() bool
	Value() any
	SetValue(v any) error
}

// Field is the in-memory Component used by the console.
type Field struct {
	mu          sync.RWMutex
	kind        string
	value       any
	interactive bool
	validate    func(any) error
}

// FieldOption configures a Field.
type FieldOption func(*Field)

// ReadOnly marks the field as display-only.
func ReadOnly() FieldOption {
	return func(f *Field) {
		f.interactive = false
	}
}

// WithValidator rejects values for which fn returns an error.
func WithValidator(fn func(any) error) FieldOption {
	return func(f *Field) {
		f.validate = fn
	}
}

// NewField creates an interactive field of kind with an initial value.
func NewField(kind string, value any, opts ...FieldOption) *Field {
	f := &Field{kind: kind, value: value, interactive: true}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Kind returns the widget kind.
func (f *Field) Kind() string { return f.kind }

// Interactive reports whether the field is saved with settings.
func (f *Field) Interactive() bool { return f.interactive }

// Value returns the current value.
func (f *Field) Value() any {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.value
}

// SetValue validates and stores v.
func (f *Field) SetValue(v any) error {
	if f.validate != nil {
		if err := f.validate(v); err != nil {
			return fmt.Errorf("invalid %s value: %w", f.kind, err)
		}
	}
	f.mu.Lock()
	f.value = v
	f.mu.Unlock()
	return nil
}

// String returns the value as text, or "" when it is not a string.
func (f *Field) String() string {
	s, _ := f.Value().(string) //nolint:errcheck
	return s
}

// Bool returns the value as a bool, or false when it is not one.
func (f *Field) Bool() bool {
	b, _ := f.Value().(bool) //nolint:errcheck
	return b
}
