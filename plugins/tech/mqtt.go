package tech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/joshp123/techhome/internal/config"
	"github.com/joshp123/techhome/plugins/tech/zone"
	"go.uber.org/zap"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
	commandTimeout = 15 * time.Second
)

// Publisher is the slice of an MQTT client the bridge uses.
type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
	Subscribe(topic string, cb func(payload []byte)) error
	Close()
}

type mqttClient struct {
	client mqtt.Client
	mu     sync.Mutex
	subs   map[string]func([]byte)
}

// DialMQTT connects to the broker. The availability topic carries a retained
// "offline" will so Home Assistant marks entities unavailable if the process dies.
func DialMQTT(cfg config.MQTTConfig) (Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetOrderMatters(false)
	opts.SetWill(availabilityTopic(cfg.TopicPrefix), payloadOffline, 1, true)

	mc := &mqttClient{subs: make(map[string]func([]byte))}
	opts.SetDefaultPublishHandler(mc.dispatch)
	opts.OnConnect = func(client mqtt.Client) {
		mc.resubscribeAll()
		client.Publish(availabilityTopic(cfg.TopicPrefix), 1, true, payloadOnline)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", cfg.Broker, token.Error())
	}
	mc.client = client
	return mc, nil
}

func (c *mqttClient) Publish(topic string, retained bool, payload []byte) error {
	if token := c.client.Publish(topic, 1, retained, payload); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (c *mqttClient) Subscribe(topic string, cb func([]byte)) error {
	c.mu.Lock()
	c.subs[topic] = cb
	c.mu.Unlock()

	if token := c.client.Subscribe(topic, 1, nil); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (c *mqttClient) Close() {
	c.client.Disconnect(250)
}

func (c *mqttClient) dispatch(_ mqtt.Client, msg mqtt.Message) {
	c.mu.Lock()
	cb := c.subs[msg.Topic()]
	c.mu.Unlock()
	if cb != nil {
		cb(msg.Payload())
	}
}

func (c *mqttClient) resubscribeAll() {
	c.mu.Lock()
	topics := make([]string, 0, len(c.subs))
	for topic := range c.subs {
		topics = append(topics, topic)
	}
	c.mu.Unlock()
	for _, topic := range topics {
		_ = c.client.Subscribe(topic, 1, nil).Wait()
	}
}

type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

type discoveryConfig struct {
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	ObjectID          string          `json:"object_id,omitempty"`
	AvailabilityTopic string          `json:"availability_topic"`
	StateTopic        string          `json:"state_topic,omitempty"`
	ValueTemplate     string          `json:"value_template,omitempty"`
	DeviceClass       string          `json:"device_class,omitempty"`
	StateClass        string          `json:"state_class,omitempty"`
	UnitOfMeasurement string          `json:"unit_of_measurement,omitempty"`
	Icon              string          `json:"icon,omitempty"`
	IconTemplate      string          `json:"icon_template,omitempty"`
	PayloadOn         string          `json:"payload_on,omitempty"`
	PayloadOff        string          `json:"payload_off,omitempty"`
	Device            discoveryDevice `json:"device"`

	// climate
	Modes                      []string `json:"modes,omitempty"`
	ModeStateTopic             string   `json:"mode_state_topic,omitempty"`
	ModeStateTemplate          string   `json:"mode_state_template,omitempty"`
	ModeCommandTopic           string   `json:"mode_command_topic,omitempty"`
	TemperatureStateTopic      string   `json:"temperature_state_topic,omitempty"`
	TemperatureStateTemplate   string   `json:"temperature_state_template,omitempty"`
	TemperatureCommandTopic    string   `json:"temperature_command_topic,omitempty"`
	CurrentTemperatureTopic    string   `json:"current_temperature_topic,omitempty"`
	CurrentTemperatureTemplate string   `json:"current_temperature_template,omitempty"`
	ActionTopic                string   `json:"action_topic,omitempty"`
	ActionTemplate             string   `json:"action_template,omitempty"`
	JSONAttributesTopic        string   `json:"json_attributes_topic,omitempty"`
	JSONAttributesTemplate     string   `json:"json_attributes_template,omitempty"`
	TemperatureUnit            string   `json:"temperature_unit,omitempty"`
	Precision                  float64  `json:"precision,omitempty"`
	TempStep                   float64  `json:"temp_step,omitempty"`
}

type climatePayload struct {
	Mode                   zone.Mode           `json:"mode"`
	Action                 zone.OperatingState `json:"action"`
	TargetTemperature      *float64            `json:"target_temperature"`
	CurrentTemperature     *float64            `json:"current_temperature"`
	UnderfloorTemperature  *float64            `json:"underfloor_temperature"`
	UnderfloorWithinLimits *bool               `json:"underfloor_within_limits"`
}

type binaryPayload struct {
	State *string `json:"state"`
	Icon  string  `json:"icon"`
}

type numericPayload struct {
	Value *float64 `json:"value"`
}

// Bridge mirrors registry entities into Home Assistant over MQTT discovery and
// routes climate commands back to the entities.
type Bridge struct {
	conn            Publisher
	registry        *Registry
	discoveryPrefix string
	topicPrefix     string
	logger          *zap.Logger

	// commands tracks handlers still talking to the controller.
	commands sync.WaitGroup
}

func NewBridge(conn Publisher, registry *Registry, cfg config.MQTTConfig, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		conn:            conn,
		registry:        registry,
		discoveryPrefix: strings.TrimRight(cfg.DiscoveryPrefix, "/"),
		topicPrefix:     strings.TrimRight(cfg.TopicPrefix, "/"),
		logger:          logger.Named("mqtt"),
	}
}

// Start announces every entity, subscribes to climate command topics, marks the
// bridge online and publishes current state. Later refresh ticks publish state
// through EntitiesRefreshed.
func (b *Bridge) Start(ctx context.Context) error {
	entities := b.registry.Entities()
	for _, entity := range entities {
		if err := b.announce(entity); err != nil {
			return err
		}
	}
	for _, climate := range b.registry.Climates() {
		if err := b.subscribeCommands(climate); err != nil {
			return err
		}
	}
	if err := b.conn.Publish(availabilityTopic(b.topicPrefix), true, []byte(payloadOnline)); err != nil {
		return fmt.Errorf("publish availability: %w", err)
	}
	b.registry.Subscribe(b)
	b.EntitiesRefreshed(ctx, entities, RefreshResult{OK: len(entities)})

	b.logger.Info("mqtt bridge started", zap.Int("entities", len(entities)))
	return nil
}

// Stop marks the bridge offline, waits for in-flight commands and disconnects.
func (b *Bridge) Stop() {
	b.commands.Wait()
	if err := b.conn.Publish(availabilityTopic(b.topicPrefix), true, []byte(payloadOffline)); err != nil {
		b.logger.Warn("publish offline failed", zap.Error(err))
	}
	b.conn.Close()
}

func (b *Bridge) EntitiesRefreshed(_ context.Context, entities []Entity, _ RefreshResult) {
	for _, entity := range entities {
		if err := b.publishState(entity); err != nil {
			b.logger.Warn("publish state failed", zap.String("entity_id", entity.UniqueID()), zap.Error(err))
		}
	}
}

func (b *Bridge) announce(entity Entity) error {
	cfg := discoveryConfig{
		Name:              entity.Name(),
		UniqueID:          "techhome_" + entity.UniqueID(),
		ObjectID:          "tech_" + entity.UniqueID(),
		AvailabilityTopic: availabilityTopic(b.topicPrefix),
		Device: discoveryDevice{
			Identifiers:  []string{"techhome_" + b.registry.ModuleID() + "_" + entity.Zone().ID},
			Name:         entity.Zone().Name,
			Manufacturer: "Tech",
			Model:        "emodul zone",
		},
	}
	stateTopic := b.stateTopic(entity)

	switch e := entity.(type) {
	case *Climate:
		cfg.Modes = make([]string, 0, len(zone.Modes))
		for _, mode := range zone.Modes {
			cfg.Modes = append(cfg.Modes, string(mode))
		}
		cfg.ModeStateTopic = stateTopic
		cfg.ModeStateTemplate = "{{ value_json.mode }}"
		cfg.ModeCommandTopic = b.commandTopic(e, "mode")
		cfg.TemperatureStateTopic = stateTopic
		cfg.TemperatureStateTemplate = "{{ value_json.target_temperature }}"
		cfg.TemperatureCommandTopic = b.commandTopic(e, "temperature")
		cfg.CurrentTemperatureTopic = stateTopic
		cfg.CurrentTemperatureTemplate = "{{ value_json.current_temperature }}"
		cfg.ActionTopic = stateTopic
		cfg.ActionTemplate = "{{ value_json.action }}"
		cfg.JSONAttributesTopic = stateTopic
		cfg.JSONAttributesTemplate = `{{ {"underfloor_temperature": value_json.underfloor_temperature, "underfloor_within_limits": value_json.underfloor_within_limits} | tojson }}`
		cfg.TemperatureUnit = "C"
		cfg.Precision = 0.1
		cfg.TempStep = 0.5
	case *BinarySensor:
		spec := e.Spec()
		cfg.StateTopic = stateTopic
		cfg.ValueTemplate = "{{ value_json.state }}"
		cfg.PayloadOn = "ON"
		cfg.PayloadOff = "OFF"
		cfg.DeviceClass = spec.DeviceClass
		cfg.IconTemplate = "{{ value_json.icon }}"
	case *NumericSensor:
		spec := e.Spec()
		cfg.StateTopic = stateTopic
		cfg.ValueTemplate = "{{ value_json.value }}"
		cfg.UnitOfMeasurement = spec.Unit
		cfg.DeviceClass = spec.DeviceClass
		cfg.StateClass = spec.StateClass
	default:
		return fmt.Errorf("unsupported entity %T", entity)
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("%s/%s/%s/config", b.discoveryPrefix, entity.Platform(), entity.UniqueID())
	if err := b.conn.Publish(topic, true, payload); err != nil {
		return fmt.Errorf("publish discovery for %s: %w", entity.UniqueID(), err)
	}
	return nil
}

func (b *Bridge) publishState(entity Entity) error {
	payload, err := statePayload(entity)
	if err != nil {
		return err
	}
	return b.conn.Publish(b.stateTopic(entity), true, payload)
}

func statePayload(entity Entity) ([]byte, error) {
	switch e := entity.(type) {
	case *Climate:
		snap := e.Snapshot()
		return json.Marshal(climatePayload{
			Mode:                   snap.Mode,
			Action:                 snap.OperatingState,
			TargetTemperature:      snap.TargetTemperature,
			CurrentTemperature:     snap.CurrentTemperature,
			UnderfloorTemperature:  snap.UnderfloorTemperature,
			UnderfloorWithinLimits: snap.UnderfloorWithinLimits,
		})
	case *BinarySensor:
		out := binaryPayload{Icon: e.Icon()}
		if on := e.IsOn(); on != nil {
			state := "OFF"
			if *on {
				state = "ON"
			}
			out.State = &state
		}
		return json.Marshal(out)
	case *NumericSensor:
		return json.Marshal(numericPayload{Value: e.Value()})
	default:
		return nil, fmt.Errorf("unsupported entity %T", entity)
	}
}

func (b *Bridge) subscribeCommands(climate *Climate) error {
	modeTopic := b.commandTopic(climate, "mode")
	if err := b.conn.Subscribe(modeTopic, func(payload []byte) {
		cmd := string(payload)
		b.async(func() { b.handleMode(climate, cmd) })
	}); err != nil {
		return fmt.Errorf("subscribe %s: %w", modeTopic, err)
	}

	tempTopic := b.commandTopic(climate, "temperature")
	if err := b.conn.Subscribe(tempTopic, func(payload []byte) {
		cmd := string(payload)
		b.async(func() { b.handleTemperature(climate, cmd) })
	}); err != nil {
		return fmt.Errorf("subscribe %s: %w", tempTopic, err)
	}
	return nil
}

// async runs a command off the MQTT client's callback goroutine; commands
// call the controller and must not stall message delivery.
func (b *Bridge) async(fn func()) {
	b.commands.Add(1)
	go func() {
		defer b.commands.Done()
		fn()
	}()
}

func (b *Bridge) handleMode(climate *Climate, payload string) {
	logger := b.logger.With(zap.String("entity_id", climate.UniqueID()), zap.String("payload", payload))

	mode, ok := zone.ParseMode(strings.ToLower(strings.TrimSpace(payload)))
	if !ok {
		logger.Warn("ignoring unsupported mode command")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := climate.SetMode(ctx, mode); err != nil {
		logger.Warn("mode command failed", zap.Error(err))
		return
	}
	logger.Info("mode command forwarded")
}

func (b *Bridge) handleTemperature(climate *Climate, payload string) {
	logger := b.logger.With(zap.String("entity_id", climate.UniqueID()), zap.String("payload", payload))

	celsius, err := strconv.ParseFloat(strings.TrimSpace(payload), 64)
	if err != nil {
		logger.Warn("ignoring malformed temperature command", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := climate.SetTemperature(ctx, celsius); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("temperature command timed out")
			return
		}
		logger.Warn("temperature command failed", zap.Error(err))
		return
	}
	if err := b.publishState(climate); err != nil {
		logger.Warn("publish state failed", zap.Error(err))
	}
	logger.Info("temperature command forwarded", zap.Float64("celsius", celsius))
}

func (b *Bridge) stateTopic(entity Entity) string {
	return fmt.Sprintf("%s/%s/state", b.topicPrefix, entity.UniqueID())
}

func (b *Bridge) commandTopic(climate *Climate, name string) string {
	return fmt.Sprintf("%s/%s/%s/set", b.topicPrefix, climate.UniqueID(), name)
}

func availabilityTopic(prefix string) string {
	return strings.TrimRight(prefix, "/") + "/status"
}
