package zone

import (
	"encoding/json"
	"testing"
)

const scenarioA = `{"zone":{"id":"1","setTemperature":215,"currentTemperature":198,"flags":{"relayState":"on"},"zoneState":"zoneOn","visibility":true},"description":{"name":"Lounge"}}`

func mustDecode(t *testing.T, raw string) Document {
	t.Helper()
	doc, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return doc
}

func TestProjectScenarioA(t *testing.T) {
	snap := Project(mustDecode(t, scenarioA))

	if snap.TargetTemperature == nil || *snap.TargetTemperature != 21.5 {
		t.Fatalf("unexpected target: %v", snap.TargetTemperature)
	}
	if snap.CurrentTemperature == nil || *snap.CurrentTemperature != 19.8 {
		t.Fatalf("unexpected current: %v", snap.CurrentTemperature)
	}
	if snap.OperatingState != OperatingHeating {
		t.Fatalf("unexpected operating state: %s", snap.OperatingState)
	}
	if snap.Mode != ModeHeat {
		t.Fatalf("unexpected mode: %s", snap.Mode)
	}
	if !snap.Visible {
		t.Fatalf("expected zone to be visible")
	}
	if snap.UnderfloorTemperature != nil || snap.UnderfloorWithinLimits != nil {
		t.Fatalf("expected underfloor fields to be absent: %+v", snap)
	}
}

func TestProjectScenarioB(t *testing.T) {
	snap := Project(mustDecode(t, `{"zone":{"id":"1","setTemperature":215,"currentTemperature":198,"flags":{"relayState":"off"},"zoneState":"alarm","visibility":true},"description":{"name":"Lounge"}}`))

	if snap.OperatingState != OperatingIdle {
		t.Fatalf("unexpected operating state: %s", snap.OperatingState)
	}
	if snap.Mode != ModeOff {
		t.Fatalf("unexpected mode: %s", snap.Mode)
	}
	if snap.UnderfloorTemperature != nil || snap.UnderfloorWithinLimits != nil {
		t.Fatalf("expected underfloor fields to be absent: %+v", snap)
	}
}

func TestProjectScenarioC(t *testing.T) {
	snap := Project(mustDecode(t, `{"zone":{"id":"1","setTemperature":215,"visibility":true},"underfloor":{"temperature":180,"currentState":"parametersReached"}}`))

	if snap.UnderfloorTemperature == nil || *snap.UnderfloorTemperature != 18.0 {
		t.Fatalf("unexpected underfloor temperature: %v", snap.UnderfloorTemperature)
	}
	if snap.UnderfloorWithinLimits == nil || !*snap.UnderfloorWithinLimits {
		t.Fatalf("unexpected underfloor limits: %v", snap.UnderfloorWithinLimits)
	}

	snap = Project(mustDecode(t, `{"underfloor":{"currentState":"tooHot"}}`))
	if snap.UnderfloorWithinLimits == nil || *snap.UnderfloorWithinLimits {
		t.Fatalf("expected limits reported as not reached: %v", snap.UnderfloorWithinLimits)
	}
	if snap.UnderfloorTemperature != nil {
		t.Fatalf("expected underfloor temperature absent, got %v", *snap.UnderfloorTemperature)
	}
}

func TestProjectMissingTargetTemperature(t *testing.T) {
	docs := []string{
		`{}`,
		`{"zone":{}}`,
		`{"zone":{"setTemperature":null}}`,
		`{"zone":"not-a-mapping"}`,
		`{"zone":{"setTemperature":"hot"}}`,
	}
	for _, raw := range docs {
		snap := Project(mustDecode(t, raw))
		if snap.TargetTemperature != nil {
			t.Fatalf("%s: expected absent target, got %v", raw, *snap.TargetTemperature)
		}
	}
}

func TestProjectScalesTenths(t *testing.T) {
	cases := map[int]float64{
		0:    0,
		1:    0.1,
		5:    0.5,
		215:  21.5,
		-35:  -3.5,
		300:  30,
		1999: 199.9,
	}
	for raw, want := range cases {
		doc := Document{"zone": map[string]any{"setTemperature": raw}}
		snap := Project(doc)
		if snap.TargetTemperature == nil || *snap.TargetTemperature != want {
			t.Fatalf("setTemperature %d: expected %v, got %v", raw, want, snap.TargetTemperature)
		}
	}
}

func TestOperatingStateIsExhaustive(t *testing.T) {
	cases := []struct {
		relay any
		want  OperatingState
	}{
		{"on", OperatingHeating},
		{"off", OperatingIdle},
		{"ON", OperatingOff},
		{"", OperatingOff},
		{"unknown", OperatingOff},
		{1, OperatingOff},
		{true, OperatingOff},
		{nil, OperatingOff},
	}
	for _, tc := range cases {
		doc := Document{"zone": map[string]any{"flags": map[string]any{"relayState": tc.relay}}}
		if got := Project(doc).OperatingState; got != tc.want {
			t.Fatalf("relayState %v: expected %s, got %s", tc.relay, tc.want, got)
		}
	}
	if got := Project(Document{}).OperatingState; got != OperatingOff {
		t.Fatalf("missing relay: expected off, got %s", got)
	}
}

func TestModeIsExhaustive(t *testing.T) {
	cases := []struct {
		state any
		want  Mode
	}{
		{"zoneOn", ModeHeat},
		{"noAlarm", ModeHeat},
		{"zoneOff", ModeOff},
		{"alarm", ModeOff},
		{"zoneUnregistered", ModeOff},
		{42, ModeOff},
		{nil, ModeOff},
	}
	for _, tc := range cases {
		doc := Document{"zone": map[string]any{"zoneState": tc.state}}
		if got := Project(doc).Mode; got != tc.want {
			t.Fatalf("zoneState %v: expected %s, got %s", tc.state, tc.want, got)
		}
	}
}

func TestProjectIsIdempotent(t *testing.T) {
	doc := mustDecode(t, `{"zone":{"setTemperature":215,"currentTemperature":null,"flags":{"relayState":"off"},"zoneState":"noAlarm","visibility":false},"underfloor":{"temperature":180,"currentState":"x"}}`)

	first := Project(doc)
	second := Project(doc)
	if !first.Equal(second) {
		t.Fatalf("projections differ: %+v vs %+v", first, second)
	}
	if first.TargetTemperature == second.TargetTemperature {
		t.Fatalf("expected independent snapshots")
	}
}

func TestProjectMalformedFieldsDegradeIndependently(t *testing.T) {
	snap := Project(Document{
		"zone": map[string]any{
			"setTemperature":     "215",
			"currentTemperature": 201,
			"flags":              []any{"on"},
			"zoneState":          "zoneOn",
			"visibility":         "yes",
		},
		"underfloor": "missing",
	})

	if snap.TargetTemperature != nil {
		t.Fatalf("expected absent target")
	}
	if snap.CurrentTemperature == nil || *snap.CurrentTemperature != 20.1 {
		t.Fatalf("unexpected current: %v", snap.CurrentTemperature)
	}
	if snap.OperatingState != OperatingOff {
		t.Fatalf("unexpected operating state: %s", snap.OperatingState)
	}
	if snap.Mode != ModeHeat {
		t.Fatalf("unexpected mode: %s", snap.Mode)
	}
	if snap.Visible {
		t.Fatalf("non-boolean visibility must not make the zone visible")
	}
	if snap.UnderfloorTemperature != nil || snap.UnderfloorWithinLimits != nil {
		t.Fatalf("expected underfloor fields absent")
	}
}

func TestExtract(t *testing.T) {
	doc := Document{
		"zone": map[string]any{
			"flags": map[string]any{"relayState": "on"},
			"list":  []any{1, 2},
			"nil":   nil,
		},
		"empty": map[string]any{},
	}

	cases := []struct {
		path    string
		want    any
		present bool
	}{
		{"zone.flags.relayState", "on", true},
		{"zone.flags.missing", nil, false},
		{"zone.flags.relayState.deeper", nil, false},
		{"zone.list.0", nil, false},
		{"zone.nil", nil, false},
		{"zone.nil.x", nil, false},
		{"empty.anything", nil, false},
		{"missing", nil, false},
	}
	for _, tc := range cases {
		got, ok := Extract(doc, ParsePath(tc.path))
		if ok != tc.present {
			t.Fatalf("%s: expected present=%v, got %v", tc.path, tc.present, ok)
		}
		if ok && got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.path, tc.want, got)
		}
	}

	if _, ok := Extract(nil, ParsePath("zone.id")); ok {
		t.Fatalf("expected nil document to yield absent")
	}
	if _, ok := Extract(Document{}, ParsePath("zone")); ok {
		t.Fatalf("expected empty document to yield absent")
	}
}

func TestParsePath(t *testing.T) {
	if p := ParsePath(""); len(p) != 0 {
		t.Fatalf("expected empty path, got %v", p)
	}
	p := ParsePath("underfloor.currentState")
	if len(p) != 2 || p[0] != "underfloor" || p[1] != "currentState" {
		t.Fatalf("unexpected path: %v", p)
	}
	if p.String() != "underfloor.currentState" {
		t.Fatalf("unexpected string: %s", p.String())
	}
}

func TestTransforms(t *testing.T) {
	cases := []struct {
		name string
		t    Transform
		raw  any
		want any
		ok   bool
	}{
		{"tenths float", ScaleTenths{}, 215.0, 21.5, true},
		{"tenths int", ScaleTenths{}, 180, 18.0, true},
		{"tenths json number", ScaleTenths{}, json.Number("198"), 19.8, true},
		{"tenths bad json number", ScaleTenths{}, json.Number("x"), nil, false},
		{"tenths string", ScaleTenths{}, "215", nil, false},
		{"tenths bool", ScaleTenths{}, true, nil, false},
		{"equals match", EqualsToken("parametersReached"), "parametersReached", true, true},
		{"equals miss", EqualsToken("parametersReached"), "tooCold", false, true},
		{"equals wrong type", EqualsToken("parametersReached"), 1.0, nil, false},
		{"heat mode on", HeatMode{}, "zoneOn", true, true},
		{"heat mode no alarm", HeatMode{}, "noAlarm", true, true},
		{"heat mode off", HeatMode{}, "zoneOff", false, true},
		{"heat mode wrong type", HeatMode{}, 3.0, nil, false},
		{"boolean", Boolean{}, true, true, true},
		{"boolean wrong type", Boolean{}, "true", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tc.t.Apply(tc.raw)
			if ok != tc.ok {
				t.Fatalf("expected ok=%v, got %v", tc.ok, ok)
			}
			if ok && got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestTransformsAreComparable(t *testing.T) {
	if FloorWithinLimits.Transform != Transform(EqualsToken("parametersReached")) {
		t.Fatalf("expected equal transforms")
	}
	if Transform(EqualsToken("a")) == Transform(EqualsToken("b")) {
		t.Fatalf("expected different tokens to differ")
	}
	if FloorTemperature.Transform != Transform(ScaleTenths{}) {
		t.Fatalf("expected scale tenths")
	}
}

func TestEvaluate(t *testing.T) {
	doc := mustDecode(t, `{"zone":{"zoneState":"zoneOff"},"underfloor":{"temperature":215}}`)
	custom := SensorSpec{Path: ParsePath("zone.zoneState")}

	readings := Evaluate(doc, []SensorSpec{HeatingOn, FloorWithinLimits, FloorTemperature, custom})
	if len(readings) != 4 {
		t.Fatalf("expected 4 readings, got %d", len(readings))
	}
	if !readings[0].Present || readings[0].Value != false {
		t.Fatalf("unexpected heating reading: %+v", readings[0])
	}
	if readings[1].Present {
		t.Fatalf("expected floor limits absent: %+v", readings[1])
	}
	if !readings[2].Present || readings[2].Value != 21.5 {
		t.Fatalf("unexpected floor temperature: %+v", readings[2])
	}
	if !readings[3].Present || readings[3].Value != "zoneOff" {
		t.Fatalf("unexpected raw reading: %+v", readings[3])
	}

	if v, ok := FloorTemperature.Float(doc); !ok || v != 21.5 {
		t.Fatalf("unexpected Float: %v %v", v, ok)
	}
	if _, ok := FloorWithinLimits.Bool(doc); ok {
		t.Fatalf("expected Bool absent")
	}
}

func TestIdentify(t *testing.T) {
	cases := []struct {
		raw  string
		want Identity
		ok   bool
	}{
		{scenarioA, Identity{ID: "1", Name: "Lounge"}, true},
		{`{"zone":{"id":4312},"description":{"name":"Bath"}}`, Identity{ID: "4312", Name: "Bath"}, true},
		{`{"zone":{"id":7}}`, Identity{ID: "7", Name: "Zone 7"}, true},
		{`{"zone":{"id":1.5}}`, Identity{}, false},
		{`{"zone":{"id":""}}`, Identity{}, false},
		{`{"zone":{}}`, Identity{}, false},
	}
	for _, tc := range cases {
		got, ok := Identify(mustDecode(t, tc.raw))
		if ok != tc.ok || got != tc.want {
			t.Fatalf("%s: expected %+v/%v, got %+v/%v", tc.raw, tc.want, tc.ok, got, ok)
		}
	}
}

func TestDecode(t *testing.T) {
	doc, err := Decode([]byte("null"))
	if err != nil {
		t.Fatalf("decode null: %v", err)
	}
	if doc == nil || len(doc) != 0 {
		t.Fatalf("expected empty document, got %v", doc)
	}
	if _, err := Decode([]byte("[1,2]")); err == nil {
		t.Fatalf("expected error for non-object document")
	}
}

func TestModeHelpers(t *testing.T) {
	if m, ok := ParseMode("heat"); !ok || m != ModeHeat {
		t.Fatalf("unexpected parse: %s %v", m, ok)
	}
	if _, ok := ParseMode("cool"); ok {
		t.Fatalf("expected cool to be rejected")
	}

	snap := Project(mustDecode(t, scenarioA))
	shown := snap.WithTargetTemperature(23)
	if *shown.TargetTemperature != 23 || *snap.TargetTemperature != 21.5 {
		t.Fatalf("WithTargetTemperature must not mutate the source snapshot")
	}
}
