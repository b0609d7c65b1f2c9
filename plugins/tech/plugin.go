package tech

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/joshp123/techhome/internal/config"
	"github.com/joshp123/techhome/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

//go:embed AGENTS.md
var agentsMD string

//go:embed dashboard.json
var dashboardJSON []byte

// Plugin implements the techhome plugin contract for one Tech module.
type Plugin struct {
	cfg      Config
	mqttCfg  config.MQTTConfig
	registry *Registry
	logger   *zap.Logger
	dial     func(config.MQTTConfig) (Publisher, error)

	mu            sync.RWMutex
	health        core.HealthStatus
	healthMessage string
}

// NewPlugin constructs the Tech plugin. It reports false when no module is configured.
func NewPlugin(techCfg config.TechConfig, mqttCfg config.MQTTConfig, logger *zap.Logger) (core.Plugin, bool) {
	if !techCfg.Enabled() {
		return nil, false
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := ConfigFromSettings(techCfg)
	if err != nil {
		return &Plugin{logger: logger, health: core.HealthError, healthMessage: err.Error()}, true
	}

	client, err := NewClient(cfg)
	if err != nil {
		return &Plugin{logger: logger, health: core.HealthError, healthMessage: err.Error()}, true
	}

	return newPlugin(cfg, mqttCfg, client, logger), true
}

func newPlugin(cfg Config, mqttCfg config.MQTTConfig, api API, logger *zap.Logger) *Plugin {
	if cfg.Coalesce {
		api = Coalesce(api, cfg.RequestTimeout)
	}
	return &Plugin{
		cfg:           cfg,
		mqttCfg:       mqttCfg,
		registry:      NewRegistry(api, cfg.ModuleID, logger, WithRefreshTimeout(cfg.RequestTimeout)),
		logger:        logger,
		dial:          DialMQTT,
		health:        core.HealthDegraded,
		healthMessage: "waiting for zone enumeration",
	}
}

func (p *Plugin) ID() string {
	return "tech"
}

func (p *Plugin) Manifest() core.Manifest {
	return core.Manifest{
		PluginID:    "tech",
		DisplayName: "Tech Controllers",
		Version:     "0.1.0",
		Services:    []string{ServiceName},
	}
}

func (p *Plugin) AgentsMD() string {
	return agentsMD
}

func (p *Plugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "tech-zones", JSON: dashboardJSON}}
}

func (p *Plugin) RegisterGRPC(server grpc.ServiceRegistrar) error {
	return RegisterTechService(server, p.registry)
}

// RegisterHTTP exposes the current entity states as JSON.
func (p *Plugin) RegisterHTTP(mux *http.ServeMux) {
	mux.HandleFunc("/tech/entities", p.handleEntities)
}

func (p *Plugin) Collectors() []prometheus.Collector {
	if p.registry == nil {
		return nil
	}
	return []prometheus.Collector{NewMetricsCollector(p.registry)}
}

func (p *Plugin) Health() core.HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.health
}

func (p *Plugin) HealthMessage() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.healthMessage
}

func (p *Plugin) setHealth(status core.HealthStatus, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.health = status
	p.healthMessage = message
}

// Run enumerates zones, starts the MQTT bridge when configured and polls
// until ctx is done. Enumeration is retried every poll interval until it succeeds.
func (p *Plugin) Run(ctx context.Context) error {
	if p.registry == nil {
		<-ctx.Done()
		return nil
	}

	if err := p.setup(ctx); err != nil {
		return nil
	}
	p.registry.Subscribe(p)

	if p.mqttCfg.Enabled() {
		bridge, err := p.startBridge(ctx)
		if err != nil {
			p.logger.Error("mqtt bridge unavailable", zap.Error(err))
			p.setHealth(core.HealthDegraded, err.Error())
		} else {
			defer bridge.Stop()
		}
	}

	return p.registry.Run(ctx, p.cfg.PollInterval)
}

func (p *Plugin) setup(ctx context.Context) error {
	for {
		err := p.registry.Setup(ctx)
		if err == nil {
			p.setHealth(core.HealthHealthy, "")
			return nil
		}
		p.logger.Warn("zone enumeration failed", zap.Error(err), zap.Duration("retry_in", p.cfg.PollInterval))
		p.setHealth(core.HealthDegraded, err.Error())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

func (p *Plugin) startBridge(ctx context.Context) (*Bridge, error) {
	conn, err := p.dial(p.mqttCfg)
	if err != nil {
		return nil, err
	}
	bridge := NewBridge(conn, p.registry, p.mqttCfg, p.logger)
	if err := bridge.Start(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("start mqtt bridge: %w", err)
	}
	return bridge, nil
}

// EntitiesRefreshed degrades health while every refresh of a tick fails.
func (p *Plugin) EntitiesRefreshed(_ context.Context, _ []Entity, result RefreshResult) {
	switch {
	case result.Failed > 0 && result.OK == 0:
		p.setHealth(core.HealthDegraded, fmt.Sprintf("all %d entity refreshes failed", result.Failed))
	case p.Health() == core.HealthDegraded && result.OK > 0:
		p.setHealth(core.HealthHealthy, "")
	}
}

type entitiesResponse struct {
	ModuleID       string               `json:"module_id"`
	Climates       []ClimateState       `json:"climates"`
	BinarySensors  []BinarySensorState  `json:"binary_sensors"`
	NumericSensors []NumericSensorState `json:"numeric_sensors"`
}

func (p *Plugin) handleEntities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if p.registry == nil {
		http.Error(w, "tech client not configured", http.StatusServiceUnavailable)
		return
	}

	resp := entitiesResponse{
		ModuleID:       p.registry.ModuleID(),
		Climates:       []ClimateState{},
		BinarySensors:  []BinarySensorState{},
		NumericSensors: []NumericSensorState{},
	}
	for _, entity := range p.registry.Entities() {
		switch e := entity.(type) {
		case *Climate:
			resp.Climates = append(resp.Climates, e.State())
		case *BinarySensor:
			resp.BinarySensors = append(resp.BinarySensors, e.State())
		case *NumericSensor:
			resp.NumericSensors = append(resp.NumericSensors, e.State())
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
