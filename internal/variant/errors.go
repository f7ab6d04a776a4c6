package variant

import "fmt"

// ConfigurationError is returned when the declared dimensions can't produce
// variants, e.g. a required dimension has no values.
type ConfigurationError struct {
	Dimension Type
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("dimension %q: %s", e.Dimension, e.Reason)
}

// AttributeConflictError is returned when an attribute key is derived more than
// once, by two dimensions or twice by the same one
type AttributeConflictError struct {
	Key    string
	First  Type
	Second Type
}

func (e *AttributeConflictError) Error() string {
	if e.First == e.Second {
		return fmt.Sprintf("attribute %q is set twice by dimension %q", e.Key, e.First)
	}
	return fmt.Sprintf("attribute %q is set by both dimension %q and dimension %q", e.Key, e.First, e.Second)
}
