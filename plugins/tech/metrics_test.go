package tech

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCollector(t *testing.T) {
	registry := setupRegistry(t, newFakeAPI(t))
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(NewMetricsCollector(registry)); err != nil {
		t.Fatalf("register: %v", err)
	}

	expected := `
# HELP techhome_zone_target_temperature_celsius Target temperature per zone
# TYPE techhome_zone_target_temperature_celsius gauge
techhome_zone_target_temperature_celsius{module_id="mod-1",zone_id="1",zone_name="Lounge"} 21.5
techhome_zone_target_temperature_celsius{module_id="mod-1",zone_id="2",zone_name="Bath Room"} 19
# HELP techhome_zone_underfloor_temperature_celsius Underfloor sensor temperature per zone
# TYPE techhome_zone_underfloor_temperature_celsius gauge
techhome_zone_underfloor_temperature_celsius{module_id="mod-1",zone_id="2",zone_name="Bath Room"} 18
# HELP techhome_zone_heating_active_bool Heating relay energized per zone (1=on, 0=off)
# TYPE techhome_zone_heating_active_bool gauge
techhome_zone_heating_active_bool{module_id="mod-1",zone_id="1",zone_name="Lounge"} 1
techhome_zone_heating_active_bool{module_id="mod-1",zone_id="2",zone_name="Bath Room"} 0
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"techhome_zone_target_temperature_celsius",
		"techhome_zone_underfloor_temperature_celsius",
		"techhome_zone_heating_active_bool",
	)
	if err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}

	if n, err := testutil.GatherAndCount(reg, "techhome_zone_underfloor_within_limits_bool"); err != nil || n != 1 {
		t.Fatalf("expected one floor limit sample, got %d (%v)", n, err)
	}
	if n, err := testutil.GatherAndCount(reg, "techhome_zone_last_updated_timestamp_seconds"); err != nil || n != 2 {
		t.Fatalf("expected two update timestamps, got %d (%v)", n, err)
	}
}

func TestMetricsCollectorIncludesRefreshCounters(t *testing.T) {
	registry := setupRegistry(t, newFakeAPI(t))
	collector := NewMetricsCollector(registry)

	registry.RefreshAll(context.Background())
	reg := prometheus.NewRegistry()
	reg.MustRegister(collector)

	if n, err := testutil.GatherAndCount(reg, "techhome_refresh_total"); err != nil || n != 1 {
		t.Fatalf("expected refresh counter, got %d (%v)", n, err)
	}
	if got := testutil.ToFloat64(registry.refreshTotal.WithLabelValues("ok")); got != 8 {
		t.Fatalf("expected 8 ok refreshes, got %v", got)
	}
}
