package tech

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/joshp123/techhome/plugins/tech/zone"
)

// ErrUnsupportedMode is returned when a climate entity is asked for a mode other than heat or off.
var ErrUnsupportedMode = errors.New("unsupported hvac mode")

// ErrInvalidTemperature is returned for a NaN or infinite target temperature.
var ErrInvalidTemperature = errors.New("temperature must be a finite number")

// Fetcher returns raw zone documents.
type Fetcher interface {
	FetchZone(ctx context.Context, moduleID, zoneID string) (zone.Document, error)
	FetchModuleZones(ctx context.Context, moduleID string) (map[string]zone.Document, error)
}

// Commander forwards zone changes to the controller.
type Commander interface {
	SetConstTemp(ctx context.Context, moduleID, zoneID string, celsius float64) error
	SetZone(ctx context.Context, moduleID, zoneID string, on bool) error
}

// API is everything the entities need from the vendor.
type API interface {
	Fetcher
	Commander
}

type Platform string

const (
	PlatformClimate      Platform = "climate"
	PlatformBinarySensor Platform = "binary_sensor"
	PlatformSensor       Platform = "sensor"
)

const unitCelsius = "°C"

// Entity is one exposed view of a zone. Every entity refreshes itself with its
// own fetch; a failed refresh keeps the previous state.
type Entity interface {
	UniqueID() string
	Name() string
	Platform() Platform
	Zone() zone.Identity
	Refresh(ctx context.Context) error
	UpdatedAt() time.Time
}

type zoneRef struct {
	api      API
	moduleID string
	zone     zone.Identity
}

func (r zoneRef) fetch(ctx context.Context) (zone.Document, error) {
	doc, err := r.api.FetchZone(ctx, r.moduleID, r.zone.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch zone %s: %w", r.zone.ID, err)
	}
	return doc, nil
}

// Climate exposes a zone as a thermostat.
type Climate struct {
	ref zoneRef

	mu       sync.RWMutex
	snapshot zone.Snapshot
	updated  time.Time
}

// ClimateState is the climate entity contract as seen by consumers.
type ClimateState struct {
	UniqueID           string              `json:"unique_id"`
	Name               string              `json:"name"`
	TargetTemperature  *float64            `json:"target_temperature"`
	CurrentTemperature *float64            `json:"current_temperature"`
	Mode               zone.Mode           `json:"mode"`
	Action             zone.OperatingState `json:"action"`
	Modes              []zone.Mode         `json:"modes"`
	Unit               string              `json:"unit"`
	Attributes         map[string]any      `json:"attributes"`
}

func newClimate(ref zoneRef, doc zone.Document, now time.Time) *Climate {
	return &Climate{ref: ref, snapshot: zone.Project(doc), updated: now}
}

func (c *Climate) UniqueID() string    { return c.ref.zone.ID }
func (c *Climate) Name() string        { return c.ref.zone.Name }
func (c *Climate) Platform() Platform  { return PlatformClimate }
func (c *Climate) Zone() zone.Identity { return c.ref.zone }
func (c *Climate) ModuleID() string    { return c.ref.moduleID }

func (c *Climate) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updated
}

func (c *Climate) Refresh(ctx context.Context) error {
	doc, err := c.ref.fetch(ctx)
	if err != nil {
		return err
	}
	snap := zone.Project(doc)

	c.mu.Lock()
	c.snapshot = snap
	c.updated = time.Now()
	c.mu.Unlock()
	return nil
}

// Snapshot returns the most recent projection.
func (c *Climate) Snapshot() zone.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

func (c *Climate) State() ClimateState {
	snap := c.Snapshot()
	return ClimateState{
		UniqueID:           c.UniqueID(),
		Name:               c.Name(),
		TargetTemperature:  snap.TargetTemperature,
		CurrentTemperature: snap.CurrentTemperature,
		Mode:               snap.Mode,
		Action:             snap.OperatingState,
		Modes:              append([]zone.Mode(nil), zone.Modes...),
		Unit:               unitCelsius,
		Attributes:         climateAttributes(snap),
	}
}

func climateAttributes(snap zone.Snapshot) map[string]any {
	attrs := map[string]any{
		"underfloor_temperature":   nil,
		"underfloor_within_limits": nil,
	}
	if snap.UnderfloorTemperature != nil {
		attrs["underfloor_temperature"] = *snap.UnderfloorTemperature
	}
	if snap.UnderfloorWithinLimits != nil {
		attrs["underfloor_within_limits"] = *snap.UnderfloorWithinLimits
	}
	return attrs
}

// SetTemperature forwards celsius to the controller. On success the entity
// displays it as the target until the next refresh.
func (c *Climate) SetTemperature(ctx context.Context, celsius float64) error {
	if math.IsNaN(celsius) || math.IsInf(celsius, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidTemperature, celsius)
	}
	if err := c.ref.api.SetConstTemp(ctx, c.ref.moduleID, c.ref.zone.ID, celsius); err != nil {
		return fmt.Errorf("set temperature for zone %s: %w", c.ref.zone.ID, err)
	}
	c.mu.Lock()
	c.snapshot = c.snapshot.WithTargetTemperature(celsius)
	c.mu.Unlock()
	return nil
}

// SetMode switches the zone on for heat and off for off.
func (c *Climate) SetMode(ctx context.Context, mode zone.Mode) error {
	var on bool
	switch mode {
	case zone.ModeHeat:
		on = true
	case zone.ModeOff:
		on = false
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
	}
	if err := c.ref.api.SetZone(ctx, c.ref.moduleID, c.ref.zone.ID, on); err != nil {
		return fmt.Errorf("set mode for zone %s: %w", c.ref.zone.ID, err)
	}
	return nil
}

// BinarySensorSpec declares a boolean zone sensor and how it is displayed.
type BinarySensorSpec struct {
	Key         string
	Label       string
	DeviceClass string
	IconOn      string
	IconOff     string
	Sensor      zone.SensorSpec
}

// NumericSensorSpec declares a numeric zone sensor.
type NumericSensorSpec struct {
	Key         string
	Label       string
	Unit        string
	DeviceClass string
	StateClass  string
	Sensor      zone.SensorSpec
}

var DefaultBinarySensors = []BinarySensorSpec{
	{
		Key:         "on",
		Label:       "On",
		DeviceClass: "running",
		IconOn:      "mdi:hvac",
		IconOff:     "mdi:hvac-off",
		Sensor:      zone.HeatingOn,
	},
	{
		Key:     "floor_within_limits",
		Label:   "Floor Within Limits",
		IconOn:  "mdi:thumb-up",
		IconOff: "mdi:thermometer-alert",
		Sensor:  zone.FloorWithinLimits,
	},
}

var DefaultNumericSensors = []NumericSensorSpec{
	{
		Key:         "floor_temperature",
		Label:       "Floor Temperature",
		Unit:        unitCelsius,
		DeviceClass: "temperature",
		StateClass:  "measurement",
		Sensor:      zone.FloorTemperature,
	},
}

// BinarySensor exposes one boolean reading of a zone.
type BinarySensor struct {
	ref  zoneRef
	spec BinarySensorSpec

	mu      sync.RWMutex
	value   *bool
	updated time.Time
}

type BinarySensorState struct {
	UniqueID    string `json:"unique_id"`
	Name        string `json:"name"`
	IsOn        *bool  `json:"is_on"`
	Icon        string `json:"icon"`
	DeviceClass string `json:"device_class,omitempty"`
}

func newBinarySensor(ref zoneRef, spec BinarySensorSpec, doc zone.Document, now time.Time) *BinarySensor {
	s := &BinarySensor{ref: ref, spec: spec, updated: now}
	s.value = readBool(spec.Sensor, doc)
	return s
}

func (s *BinarySensor) UniqueID() string       { return s.ref.zone.ID + "_" + s.spec.Key }
func (s *BinarySensor) Name() string           { return s.ref.zone.Name + " " + s.spec.Label }
func (s *BinarySensor) Platform() Platform     { return PlatformBinarySensor }
func (s *BinarySensor) Zone() zone.Identity    { return s.ref.zone }
func (s *BinarySensor) Spec() BinarySensorSpec { return s.spec }

func (s *BinarySensor) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}

func (s *BinarySensor) Refresh(ctx context.Context) error {
	doc, err := s.ref.fetch(ctx)
	if err != nil {
		return err
	}
	value := readBool(s.spec.Sensor, doc)

	s.mu.Lock()
	s.value = value
	s.updated = time.Now()
	s.mu.Unlock()
	return nil
}

// IsOn is nil while the reading is absent.
func (s *BinarySensor) IsOn() *bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Icon follows the reading; an absent reading shows the off icon.
func (s *BinarySensor) Icon() string {
	if on := s.IsOn(); on != nil && *on {
		return s.spec.IconOn
	}
	return s.spec.IconOff
}

func (s *BinarySensor) State() BinarySensorState {
	return BinarySensorState{
		UniqueID:    s.UniqueID(),
		Name:        s.Name(),
		IsOn:        s.IsOn(),
		Icon:        s.Icon(),
		DeviceClass: s.spec.DeviceClass,
	}
}

// NumericSensor exposes one numeric reading of a zone.
type NumericSensor struct {
	ref  zoneRef
	spec NumericSensorSpec

	mu      sync.RWMutex
	value   *float64
	updated time.Time
}

type NumericSensorState struct {
	UniqueID    string   `json:"unique_id"`
	Name        string   `json:"name"`
	Value       *float64 `json:"value"`
	Unit        string   `json:"unit"`
	DeviceClass string   `json:"device_class,omitempty"`
	StateClass  string   `json:"state_class,omitempty"`
}

func newNumericSensor(ref zoneRef, spec NumericSensorSpec, doc zone.Document, now time.Time) *NumericSensor {
	s := &NumericSensor{ref: ref, spec: spec, updated: now}
	s.value = readFloat(spec.Sensor, doc)
	return s
}

func (s *NumericSensor) UniqueID() string        { return s.ref.zone.ID + "_" + s.spec.Key }
func (s *NumericSensor) Name() string            { return s.ref.zone.Name + " " + s.spec.Label }
func (s *NumericSensor) Platform() Platform      { return PlatformSensor }
func (s *NumericSensor) Zone() zone.Identity     { return s.ref.zone }
func (s *NumericSensor) Spec() NumericSensorSpec { return s.spec }

func (s *NumericSensor) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}

func (s *NumericSensor) Refresh(ctx context.Context) error {
	doc, err := s.ref.fetch(ctx)
	if err != nil {
		return err
	}
	value := readFloat(s.spec.Sensor, doc)

	s.mu.Lock()
	s.value = value
	s.updated = time.Now()
	s.mu.Unlock()
	return nil
}

// Value is nil while the reading is absent.
func (s *NumericSensor) Value() *float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

func (s *NumericSensor) State() NumericSensorState {
	return NumericSensorState{
		UniqueID:    s.UniqueID(),
		Name:        s.Name(),
		Value:       s.Value(),
		Unit:        s.spec.Unit,
		DeviceClass: s.spec.DeviceClass,
		StateClass:  s.spec.StateClass,
	}
}

func readBool(spec zone.SensorSpec, doc zone.Document) *bool {
	b, ok := spec.Bool(doc)
	if !ok {
		return nil
	}
	return &b
}

func readFloat(spec zone.SensorSpec, doc zone.Document) *float64 {
	f, ok := spec.Float(doc)
	if !ok {
		return nil
	}
	return &f
}
