package variant

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Type identifies a dimension, e.g. "buildType" or "targetMachine"
type Type string

// Key is a typed handle for a dimension type. It is used both to declare a
// dimension and to read the value a variant selected for it.
type Key[T comparable] struct {
	typ Type
}

func NewKey[T comparable](name string) Key[T] {
	return Key[T]{typ: Type(name)}
}

func (k Key[T]) Type() Type { return k.typ }

// From returns the value selected for this dimension, if any
func (k Key[T]) From(v Variant) (T, bool) {
	raw, ok := v.Value(k.typ)
	if !ok {
		var zero T
		return zero, false
	}
	val, ok := raw.(T)
	return val, ok
}

type attributeFunc struct {
	key    string
	derive func(any) any
}

// Dimension is one independent axis of variation with a finite, ordered set of values
type Dimension struct {
	typ      Type
	values   []any
	required bool
	suffix   func(any) string
	attrs    []attributeFunc
}

// Option configures a Dimension of values of type T
type Option[T comparable] func(*dimensionConfig[T])

type dimensionConfig[T comparable] struct {
	name     func(T) string
	raw      func(T) string
	attrs    []attributeFunc
	optional bool
}

// Named sets the display name of a value. The name only shows up in variant
// names when the dimension is visible.
func Named[T comparable](name func(T) string) Option[T] {
	return func(c *dimensionConfig[T]) { c.name = name }
}

// Suffixed sets the raw suffix function. Visibility is left to the caller.
func Suffixed[T comparable](suffix func(T) string) Option[T] {
	return func(c *dimensionConfig[T]) { c.raw = suffix }
}

// Attribute derives the attribute key from the selected value
func Attribute[T comparable](key string, derive func(T) any) Option[T] {
	return func(c *dimensionConfig[T]) {
		c.attrs = append(c.attrs, attributeFunc{
			key:    key,
			derive: func(v any) any { return derive(v.(T)) },
		})
	}
}

// Optional marks the dimension as optional: with no values it contributes a
// single absent placeholder instead of failing enumeration.
func Optional[T comparable]() Option[T] {
	return func(c *dimensionConfig[T]) { c.optional = true }
}

// NewDimension declares a dimension for key over values. Duplicate values are
// dropped, keeping the first occurrence.
func NewDimension[T comparable](key Key[T], values []T, opts ...Option[T]) Dimension {
	var cfg dimensionConfig[T]
	for _, opt := range opts {
		opt(&cfg)
	}

	seen := make(map[T]struct{}, len(values))
	distinct := make([]any, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		distinct = append(distinct, v)
	}

	d := Dimension{
		typ:      key.typ,
		values:   distinct,
		required: !cfg.optional,
		attrs:    cfg.attrs,
	}

	switch {
	case cfg.raw != nil:
		d.suffix = func(v any) string { return cfg.raw(v.(T)) }
	case cfg.name != nil:
		visible := IsVisible(len(distinct))
		d.suffix = func(v any) string {
			if !visible {
				return ""
			}
			return capitalize(strings.ToLower(cfg.name(v.(T))))
		}
	default:
		d.suffix = func(any) string { return "" }
	}

	return d
}

func (d Dimension) Type() Type     { return d.typ }
func (d Dimension) Len() int       { return len(d.values) }
func (d Dimension) Required() bool { return d.required }

// Visible reports whether the dimension's value has to appear in variant names
func (d Dimension) Visible() bool { return IsVisible(len(d.values)) }

// AttributeKeys lists the attribute keys this dimension contributes
func (d Dimension) AttributeKeys() []string {
	keys := make([]string, len(d.attrs))
	for i, a := range d.attrs {
		keys[i] = a.key
	}
	return keys
}

func (d Dimension) attributesOf(v any) Attributes {
	var attrs Attributes
	for _, a := range d.attrs {
		attrs = attrs.With(a.key, a.derive(v))
	}
	return attrs
}

// IsVisible reports whether a dimension with the given number of distinct
// values needs a name suffix.
func IsVisible(distinct int) bool {
	return distinct > 1
}

// Suffix returns the name suffix of value for a dimension with distinct values
func Suffix(value string, distinct int) string {
	if !IsVisible(distinct) {
		return ""
	}
	return capitalize(strings.ToLower(value))
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func uncapitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
