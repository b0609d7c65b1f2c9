package zone

// OperatingState is what the heating relay of a zone is doing right now.
type OperatingState string

const (
	OperatingHeating OperatingState = "heating"
	OperatingIdle    OperatingState = "idle"
	OperatingOff     OperatingState = "off"
)

// Mode is the zone's requested HVAC mode.
type Mode string

const (
	ModeHeat Mode = "heat"
	ModeOff  Mode = "off"
)

// Modes lists the modes a zone accepts.
var Modes = []Mode{ModeHeat, ModeOff}

var (
	pathSetTemperature     = Path{"zone", "setTemperature"}
	pathCurrentTemperature = Path{"zone", "currentTemperature"}
	pathRelayState         = Path{"zone", "flags", "relayState"}
	pathZoneState          = Path{"zone", "zoneState"}
	pathVisibility         = Path{"zone", "visibility"}
)

// Snapshot is the typed state of one zone at one refresh. Pointer fields are
// nil when the upstream value is absent or unreadable.
type Snapshot struct {
	TargetTemperature      *float64
	CurrentTemperature     *float64
	OperatingState         OperatingState
	Mode                   Mode
	UnderfloorTemperature  *float64
	UnderfloorWithinLimits *bool
	Visible                bool
}

// Project builds a snapshot from a raw document. It is a pure function of doc:
// each field is derived independently and falls back to absent or its default.
func Project(doc Document) Snapshot {
	snap := Snapshot{
		TargetTemperature:      floatField(doc, pathSetTemperature, ScaleTenths{}),
		CurrentTemperature:     floatField(doc, pathCurrentTemperature, ScaleTenths{}),
		OperatingState:         OperatingStateFromRelay(stringField(doc, pathRelayState)),
		Mode:                   ModeFromZoneState(stringField(doc, pathZoneState)),
		UnderfloorTemperature:  floatField(doc, FloorTemperature.Path, FloorTemperature.Transform),
		UnderfloorWithinLimits: boolField(doc, FloorWithinLimits.Path, FloorWithinLimits.Transform),
	}
	if visible := boolField(doc, pathVisibility, Boolean{}); visible != nil {
		snap.Visible = *visible
	}
	return snap
}

// OperatingStateFromRelay maps a relayState flag. Unknown values, including
// the empty string used for a missing flag, map to off.
func OperatingStateFromRelay(relay string) OperatingState {
	switch relay {
	case "on":
		return OperatingHeating
	case "off":
		return OperatingIdle
	default:
		return OperatingOff
	}
}

// ModeFromZoneState maps a zoneState token. Anything but zoneOn or noAlarm is off.
func ModeFromZoneState(state string) Mode {
	switch state {
	case "zoneOn", "noAlarm":
		return ModeHeat
	default:
		return ModeOff
	}
}

// ParseMode accepts the lowercase mode names used on every outbound surface.
func ParseMode(value string) (Mode, bool) {
	switch Mode(value) {
	case ModeHeat:
		return ModeHeat, true
	case ModeOff:
		return ModeOff, true
	default:
		return "", false
	}
}

// WithTargetTemperature returns a copy of s that displays celsius as the target.
func (s Snapshot) WithTargetTemperature(celsius float64) Snapshot {
	s.TargetTemperature = &celsius
	return s
}

// Equal compares snapshots field by field, following pointers.
func (s Snapshot) Equal(other Snapshot) bool {
	return equalFloat(s.TargetTemperature, other.TargetTemperature) &&
		equalFloat(s.CurrentTemperature, other.CurrentTemperature) &&
		s.OperatingState == other.OperatingState &&
		s.Mode == other.Mode &&
		equalFloat(s.UnderfloorTemperature, other.UnderfloorTemperature) &&
		equalBool(s.UnderfloorWithinLimits, other.UnderfloorWithinLimits) &&
		s.Visible == other.Visible
}

func floatField(doc Document, path Path, t Transform) *float64 {
	value, ok := Resolve(doc, path, t)
	if !ok {
		return nil
	}
	f, ok := value.(float64)
	if !ok {
		return nil
	}
	return &f
}

func boolField(doc Document, path Path, t Transform) *bool {
	value, ok := Resolve(doc, path, t)
	if !ok {
		return nil
	}
	b, ok := value.(bool)
	if !ok {
		return nil
	}
	return &b
}

func stringField(doc Document, path Path) string {
	value, ok := Extract(doc, path)
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return s
}

func equalFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalBool(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
