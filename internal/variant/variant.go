// Package variant enumerates the build variants of a component: the cartesian
// product of its dimensions (build type, target machine, linkage, ...), each
// variant carrying a derived name and the merged attributes of its values.
package variant

import (
	"fmt"
	"strings"
	"sync"
)

// pick is one dimension's choice in a variant. present is false for the
// placeholder of an empty optional dimension.
type pick struct {
	dim     *Dimension
	value   any
	present bool
}

// Variant is one combination of dimension values. It is immutable.
type Variant struct {
	name  string
	picks []pick
	attrs Attributes
}

func (v Variant) Name() string           { return v.name }
func (v Variant) Attributes() Attributes { return v.attrs }

// Value returns the value selected for the dimension of type t
func (v Variant) Value(t Type) (any, bool) {
	for _, p := range v.picks {
		if p.dim.typ == t {
			return p.value, p.present
		}
	}
	return nil, false
}

func (v Variant) Has(t Type) bool {
	_, ok := v.Value(t)
	return ok
}

// String lists the selected values in dimension order, e.g. "buildType:debug, linkage:static"
func (v Variant) String() string {
	parts := make([]string, 0, len(v.picks))
	for _, p := range v.picks {
		if p.present {
			parts = append(parts, fmt.Sprintf("%s:%v", p.dim.typ, p.value))
		}
	}
	return strings.Join(parts, ", ")
}

// selection is the accumulator threaded through enumeration. Each step links a
// new node onto its parent, so sibling branches never share mutable state.
type selection struct {
	parent *selection
	pick   pick
	depth  int
}

func (s *selection) with(p pick) *selection {
	depth := 1
	if s != nil {
		depth = s.depth + 1
	}
	return &selection{parent: s, pick: p, depth: depth}
}

func (s *selection) finalize() Variant {
	if s == nil {
		return Variant{}
	}

	picks := make([]pick, s.depth)
	for n := s; n != nil; n = n.parent {
		picks[n.depth-1] = n.pick
	}

	var name strings.Builder
	var attrs Attributes
	for _, p := range picks {
		if !p.present {
			continue
		}
		name.WriteString(p.dim.suffix(p.value))
		attrs = attrs.Merge(p.dim.attributesOf(p.value))
	}

	return Variant{
		name:  uncapitalize(name.String()),
		picks: picks,
		attrs: attrs,
	}
}

// Enumerate returns every combination of the dimensions' values. Dimension
// order determines name suffix order; each dimension's values are iterated in
// declaration order.
func Enumerate(dims ...Dimension) ([]Variant, error) {
	if err := validate(dims); err != nil {
		return nil, err
	}

	// copy so picks can point at stable dimensions
	owned := make([]Dimension, len(dims))
	copy(owned, dims)

	var out []Variant
	collect(&out, nil, owned)
	return out, nil
}

func collect(out *[]Variant, ctx *selection, dims []Dimension) {
	if len(dims) == 0 {
		*out = append(*out, ctx.finalize())
		return
	}

	dim := &dims[0]
	if len(dim.values) == 0 {
		collect(out, ctx.with(pick{dim: dim}), dims[1:])
		return
	}
	for _, v := range dim.values {
		collect(out, ctx.with(pick{dim: dim, value: v, present: true}), dims[1:])
	}
}

func validate(dims []Dimension) error {
	types := make(map[Type]struct{}, len(dims))
	owners := make(map[string]Type)

	for _, d := range dims {
		if _, dup := types[d.typ]; dup {
			return &ConfigurationError{Dimension: d.typ, Reason: "dimension is declared more than once"}
		}
		types[d.typ] = struct{}{}

		if d.required && len(d.values) == 0 {
			return &ConfigurationError{Dimension: d.typ, Reason: "at least one value must be specified"}
		}

		for _, a := range d.attrs {
			if owner, ok := owners[a.key]; ok {
				return &AttributeConflictError{Key: a.key, First: owner, Second: d.typ}
			}
			owners[a.key] = d.typ
		}
	}
	return nil
}

// Source produces a dimension on demand
type Source func() (Dimension, error)

// Fixed wraps an already built dimension
func Fixed(d Dimension) Source {
	return func() (Dimension, error) { return d, nil }
}

// Set is a lazily enumerated, memoised list of variants
type Set struct {
	sources  []Source
	once     sync.Once
	variants []Variant
	err      error
}

func Lazy(sources ...Source) *Set {
	return &Set{sources: sources}
}

// Get resolves the sources and enumerates them on first use. Later calls
// return the same result.
func (s *Set) Get() ([]Variant, error) {
	s.once.Do(func() {
		dims := make([]Dimension, 0, len(s.sources))
		for _, src := range s.sources {
			d, err := src()
			if err != nil {
				s.err = err
				return
			}
			dims = append(dims, d)
		}
		s.variants, s.err = Enumerate(dims...)
	})
	return s.variants, s.err
}
