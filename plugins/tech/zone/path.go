package zone

import "strings"

// Path addresses a value inside a Document, one mapping key per segment.
type Path []string

// ParsePath splits a dotted path such as "zone.flags.relayState".
func ParsePath(dotted string) Path {
	if dotted == "" {
		return nil
	}
	return Path(strings.Split(dotted, "."))
}

func (p Path) String() string {
	return strings.Join(p, ".")
}

// Extract walks path from the document root and returns the value it names.
// It reports false when a segment is missing, when an intermediate value is
// not a mapping, or when the leaf is null.
func Extract(doc Document, path Path) (any, bool) {
	var current any = map[string]any(doc)
	for _, segment := range path {
		fields, ok := asMapping(current)
		if !ok {
			return nil, false
		}
		next, ok := fields[segment]
		if !ok {
			return nil, false
		}
		current = next
	}
	if current == nil {
		return nil, false
	}
	return current, true
}

func asMapping(value any) (map[string]any, bool) {
	switch m := value.(type) {
	case map[string]any:
		return m, m != nil
	case Document:
		return m, m != nil
	default:
		return nil, false
	}
}
