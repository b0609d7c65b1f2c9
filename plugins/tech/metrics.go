package tech

import (
	"sync"

	"github.com/joshp123/techhome/plugins/tech/zone"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector exports the registry's current zone snapshots. It never
// calls the vendor; values come from the last refresh.
type MetricsCollector struct {
	registry *Registry

	mu                sync.Mutex
	target            *prometheus.GaugeVec
	current           *prometheus.GaugeVec
	underfloor        *prometheus.GaugeVec
	underfloorInLimit *prometheus.GaugeVec
	heatingActive     *prometheus.GaugeVec
	modeHeat          *prometheus.GaugeVec
	lastUpdated       *prometheus.GaugeVec
}

func NewMetricsCollector(registry *Registry) *MetricsCollector {
	labels := []string{"module_id", "zone_id", "zone_name"}
	return &MetricsCollector{
		registry: registry,
		target: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "techhome_zone_target_temperature_celsius",
			Help: "Target temperature per zone",
		}, labels),
		current: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "techhome_zone_current_temperature_celsius",
			Help: "Current temperature per zone",
		}, labels),
		underfloor: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "techhome_zone_underfloor_temperature_celsius",
			Help: "Underfloor sensor temperature per zone",
		}, labels),
		underfloorInLimit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "techhome_zone_underfloor_within_limits_bool",
			Help: "Underfloor parameters reached per zone (1=yes, 0=no)",
		}, labels),
		heatingActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "techhome_zone_heating_active_bool",
			Help: "Heating relay energized per zone (1=on, 0=off)",
		}, labels),
		modeHeat: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "techhome_zone_mode_heat_bool",
			Help: "Zone mode per zone (1=heat, 0=off)",
		}, labels),
		lastUpdated: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "techhome_zone_last_updated_timestamp_seconds",
			Help: "Last successful refresh per zone (epoch seconds)",
		}, labels),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	c.target.Describe(ch)
	c.current.Describe(ch)
	c.underfloor.Describe(ch)
	c.underfloorInLimit.Describe(ch)
	c.heatingActive.Describe(ch)
	c.modeHeat.Describe(ch)
	c.lastUpdated.Describe(ch)
	for _, collector := range c.registry.Collectors() {
		collector.Describe(ch)
	}
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.target.Reset()
	c.current.Reset()
	c.underfloor.Reset()
	c.underfloorInLimit.Reset()
	c.heatingActive.Reset()
	c.modeHeat.Reset()
	c.lastUpdated.Reset()

	moduleID := c.registry.ModuleID()
	for _, climate := range c.registry.Climates() {
		ident := climate.Zone()
		labels := []string{moduleID, ident.ID, ident.Name}
		snap := climate.Snapshot()

		setOptional(c.target, labels, snap.TargetTemperature)
		setOptional(c.current, labels, snap.CurrentTemperature)
		setOptional(c.underfloor, labels, snap.UnderfloorTemperature)
		if snap.UnderfloorWithinLimits != nil {
			c.underfloorInLimit.WithLabelValues(labels...).Set(boolToFloat(*snap.UnderfloorWithinLimits))
		}
		c.heatingActive.WithLabelValues(labels...).Set(boolToFloat(snap.OperatingState == zone.OperatingHeating))
		c.modeHeat.WithLabelValues(labels...).Set(boolToFloat(snap.Mode == zone.ModeHeat))
		c.lastUpdated.WithLabelValues(labels...).Set(float64(climate.UpdatedAt().Unix()))
	}

	c.target.Collect(ch)
	c.current.Collect(ch)
	c.underfloor.Collect(ch)
	c.underfloorInLimit.Collect(ch)
	c.heatingActive.Collect(ch)
	c.modeHeat.Collect(ch)
	c.lastUpdated.Collect(ch)
	for _, collector := range c.registry.Collectors() {
		collector.Collect(ch)
	}
}

func setOptional(vec *prometheus.GaugeVec, labels []string, value *float64) {
	if value == nil {
		return
	}
	vec.WithLabelValues(labels...).Set(*value)
}

func boolToFloat(value bool) float64 {
	if value {
		return 1
	}
	return 0
}
