package variant

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Attributes is an immutable, insertion-ordered attribute set. The zero value
// is an empty set.
type Attributes struct {
	keys   []string
	values map[string]any
}

func (a Attributes) Len() int { return len(a.keys) }

func (a Attributes) Get(key string) (any, bool) {
	v, ok := a.values[key]
	return v, ok
}

// Keys returns the keys in insertion order
func (a Attributes) Keys() []string {
	return slices.Clone(a.keys)
}

// With returns a copy of a with key set to value. An existing key keeps its
// position and takes the new value.
func (a Attributes) With(key string, value any) Attributes {
	res := Attributes{
		keys:   slices.Clone(a.keys),
		values: maps.Clone(a.values),
	}
	if res.values == nil {
		res.values = make(map[string]any)
	}
	if _, ok := res.values[key]; !ok {
		res.keys = append(res.keys, key)
	}
	res.values[key] = value
	return res
}

// Merge returns the union of a and other, other winning on collisions
func (a Attributes) Merge(other Attributes) Attributes {
	res := a
	for _, k := range other.keys {
		res = res.With(k, other.values[k])
	}
	return res
}

// Map returns a mutable copy of the attributes
func (a Attributes) Map() map[string]any {
	return maps.Clone(a.values)
}

func (a Attributes) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range a.keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %v", k, a.values[k])
	}
	sb.WriteByte('}')
	return sb.String()
}
