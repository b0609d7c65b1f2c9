package zone

import (
	"encoding/json"
	"math"
)

// Transform converts an extracted raw value into a domain value. Apply is only
// called with present values; it reports false when the value has a type the
// transform cannot handle, which callers treat as an absent field.
//
// Implementations are small comparable value types so sensor definitions can be
// compared and tested in isolation.
type Transform interface {
	Apply(raw any) (any, bool)
	String() string
}

// ScaleTenths converts a tenths-of-a-degree integer into degrees.
type ScaleTenths struct{}

func (ScaleTenths) Apply(raw any) (any, bool) {
	v, ok := number(raw)
	if !ok {
		return nil, false
	}
	return v / 10, true
}

func (ScaleTenths) String() string { return "scale_tenths" }

// EqualsToken reports whether a string field equals a known token.
type EqualsToken string

func (t EqualsToken) Apply(raw any) (any, bool) {
	s, ok := raw.(string)
	if !ok {
		return nil, false
	}
	return s == string(t), true
}

func (t EqualsToken) String() string { return "equals(" + string(t) + ")" }

// HeatMode reports whether a zoneState token puts the zone in heat mode.
type HeatMode struct{}

func (HeatMode) Apply(raw any) (any, bool) {
	s, ok := raw.(string)
	if !ok {
		return nil, false
	}
	return ModeFromZoneState(s) == ModeHeat, true
}

func (HeatMode) String() string { return "heat_mode" }

// Boolean passes boolean values through and rejects everything else.
type Boolean struct{}

func (Boolean) Apply(raw any) (any, bool) {
	b, ok := raw.(bool)
	return b, ok
}

func (Boolean) String() string { return "boolean" }

// Resolve extracts path from doc and applies t to the value when present.
// A nil transform returns the raw value.
func Resolve(doc Document, path Path, t Transform) (any, bool) {
	raw, ok := Extract(doc, path)
	if !ok {
		return nil, false
	}
	if t == nil {
		return raw, true
	}
	return t.Apply(raw)
}

func number(raw any) (float64, bool) {
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int32:
		v = float64(n)
	case int64:
		v = float64(n)
	case uint:
		v = float64(n)
	case uint32:
		v = float64(n)
	case uint64:
		v = float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		v = f
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
