package zone

import (
	"math"
	"strconv"
)

// Identity names a zone within its module.
type Identity struct {
	ID   string
	Name string
}

// Identify reads zone.id and description.name. The vendor sends numeric ids;
// they are rendered without a fraction. It reports false when the id is missing.
func Identify(doc Document) (Identity, bool) {
	raw, ok := Extract(doc, Path{"zone", "id"})
	if !ok {
		return Identity{}, false
	}

	var id string
	switch v := raw.(type) {
	case string:
		id = v
	default:
		n, ok := number(v)
		if !ok || n != math.Trunc(n) {
			return Identity{}, false
		}
		id = strconv.FormatFloat(n, 'f', -1, 64)
	}
	if id == "" {
		return Identity{}, false
	}

	name := stringField(doc, Path{"description", "name"})
	if name == "" {
		name = "Zone " + id
	}
	return Identity{ID: id, Name: name}, true
}
