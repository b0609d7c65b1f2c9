// Package zone projects raw Tech zone status documents onto typed zone state.
//
// Documents come from the vendor API with no schema guarantees. Every lookup
// tolerates missing sections and unexpected types: a field that cannot be read
// is reported as absent and never aborts the rest of the projection.
package zone

import (
	"encoding/json"
	"fmt"
)

// Document is one raw zone status document: nested string-keyed mappings with
// scalar leaves, exactly as decoded from the vendor API.
type Document map[string]any

// Decode parses a JSON object into a Document. A JSON null yields an empty document.
func Decode(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode zone document: %w", err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}
