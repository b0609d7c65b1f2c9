package zone

// SensorSpec binds one exposed value to a document path and a transform, so a
// new reading can be exposed without new projection code.
type SensorSpec struct {
	Path      Path
	Transform Transform
}

// Standard sensor bindings for Tech zones.
var (
	HeatingOn         = SensorSpec{Path: Path{"zone", "zoneState"}, Transform: HeatMode{}}
	FloorWithinLimits = SensorSpec{Path: Path{"underfloor", "currentState"}, Transform: EqualsToken("parametersReached")}
	FloorTemperature  = SensorSpec{Path: Path{"underfloor", "temperature"}, Transform: ScaleTenths{}}
)

// Reading is the value of one sensor for one document.
type Reading struct {
	Value   any
	Present bool
}

// Value computes the sensor's value for doc.
func (s SensorSpec) Value(doc Document) Reading {
	value, ok := Resolve(doc, s.Path, s.Transform)
	return Reading{Value: value, Present: ok}
}

// Bool reads the sensor as a boolean; non-boolean results count as absent.
func (s SensorSpec) Bool(doc Document) (bool, bool) {
	r := s.Value(doc)
	if !r.Present {
		return false, false
	}
	b, ok := r.Value.(bool)
	return b, ok
}

// Float reads the sensor as a number; non-numeric results count as absent.
func (s SensorSpec) Float(doc Document) (float64, bool) {
	r := s.Value(doc)
	if !r.Present {
		return 0, false
	}
	return number(r.Value)
}

// Evaluate computes every spec against the same document, in order.
func Evaluate(doc Document, specs []SensorSpec) []Reading {
	out := make([]Reading, len(specs))
	for i, spec := range specs {
		out[i] = spec.Value(doc)
	}
	return out
}
