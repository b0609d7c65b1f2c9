package core

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/joshp123/techhome/internal/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type stubPlugin struct {
	id            string
	name          string
	version       string
	services      []string
	dashboards    []Dashboard
	agents        string
	health        HealthStatus
	healthMessage string
	collectors    []prometheus.Collector
}

func (s stubPlugin) ID() string { return s.id }

func (s stubPlugin) Manifest() Manifest {
	return Manifest{
		PluginID:    s.id,
		DisplayName: s.name,
		Version:     s.version,
		Services:    s.services,
	}
}

func (s stubPlugin) AgentsMD() string { return s.agents }

func (s stubPlugin) Dashboards() []Dashboard { return s.dashboards }

func (s stubPlugin) RegisterGRPC(grpc.ServiceRegistrar) error { return nil }

func (s stubPlugin) Collectors() []prometheus.Collector { return s.collectors }

func (s stubPlugin) Health() HealthStatus { return s.health }

func (s stubPlugin) HealthMessage() string { return s.healthMessage }

func newStubPlugin(id string) stubPlugin {
	return stubPlugin{
		id:         id,
		name:       "Demo",
		version:    "0.1.0",
		services:   []string{"demo.v1.DemoService"},
		agents:     "demo agents",
		health:     HealthHealthy,
		dashboards: []Dashboard{{Name: "demo", JSON: []byte("{}")}},
	}
}

func TestRegistryListPlugins(t *testing.T) {
	plugin := newStubPlugin("demo")
	svc := NewRegistryService([]Plugin{plugin})

	resp, err := svc.ListPlugins(context.Background(), rpc.New(registrySchema, "ListPluginsRequest"))
	if err != nil {
		t.Fatalf("ListPlugins error: %v", err)
	}
	plugins := rpc.Messages(resp.ProtoReflect(), "plugins")
	if len(plugins) != 1 {
		t.Fatalf("expected 1 plugin, got %d", len(plugins))
	}

	got := plugins[0]
	if rpc.GetString(got, "plugin_id") != "demo" || rpc.GetString(got, "display_name") != "Demo" || rpc.GetString(got, "version") != "0.1.0" {
		t.Fatalf("unexpected plugin summary: %v", got)
	}
	if rpc.GetString(got, "status") != string(HealthHealthy) {
		t.Fatalf("unexpected health status: %s", rpc.GetString(got, "status"))
	}
}

func TestRegistryDescribePlugin(t *testing.T) {
	plugin := newStubPlugin("demo")
	svc := NewRegistryService([]Plugin{plugin})

	req := rpc.New(registrySchema, "DescribePluginRequest")
	rpc.SetString(req, "plugin_id", "demo")
	resp, err := svc.DescribePlugin(context.Background(), req)
	if err != nil {
		t.Fatalf("DescribePlugin error: %v", err)
	}
	descriptor, ok := rpc.GetMessage(resp.ProtoReflect(), "plugin")
	if !ok {
		t.Fatalf("expected plugin descriptor")
	}
	if rpc.GetString(descriptor, "plugin_id") != "demo" {
		t.Fatalf("unexpected plugin id: %s", rpc.GetString(descriptor, "plugin_id"))
	}
	if services := rpc.Strings(descriptor, "services"); len(services) != 1 || services[0] != "demo.v1.DemoService" {
		t.Fatalf("unexpected services: %v", services)
	}
	dashboards := rpc.Messages(descriptor, "dashboards")
	if len(dashboards) != 1 {
		t.Fatalf("expected 1 dashboard, got %d", len(dashboards))
	}
	if path := rpc.GetString(dashboards[0], "path"); path != "/dashboards/demo/demo.json" {
		t.Fatalf("unexpected dashboard path: %s", path)
	}
}

func TestRegistryDescribeUnknownPlugin(t *testing.T) {
	svc := NewRegistryService([]Plugin{newStubPlugin("demo")})

	req := rpc.New(registrySchema, "DescribePluginRequest")
	rpc.SetString(req, "plugin_id", "missing")
	_, err := svc.DescribePlugin(context.Background(), req)
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}

	_, err = svc.DescribePlugin(context.Background(), rpc.New(registrySchema, "DescribePluginRequest"))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestRegistryOverGRPC(t *testing.T) {
	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	if err := NewRegistryService([]Plugin{newStubPlugin("demo")}).Register(server); err != nil {
		t.Fatalf("register: %v", err)
	}
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	md := rpc.MethodByName(RegistrySchema(), "Registry", "ListPlugins")
	resp, err := rpc.Invoke(context.Background(), conn, md, rpc.New(registrySchema, "ListPluginsRequest"))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if plugins := rpc.Messages(resp, "plugins"); len(plugins) != 1 {
		t.Fatalf("expected 1 plugin, got %d", len(plugins))
	}
}

func TestFilterPlugins(t *testing.T) {
	compiled := []Plugin{newStubPlugin("demo"), newStubPlugin("extra")}

	active := FilterPlugins(compiled, map[string]bool{"demo": true}, false)
	if len(active) != 1 || active[0].ID() != "demo" {
		t.Fatalf("unexpected active plugins: %v", active)
	}

	active = FilterPlugins(compiled, map[string]bool{}, true)
	if len(active) != 2 {
		t.Fatalf("expected all plugins, got %d", len(active))
	}
}

func TestValidateEnabledPlugins(t *testing.T) {
	compiled := []Plugin{newStubPlugin("demo")}

	if err := ValidateEnabledPlugins(compiled, map[string]bool{"demo": true}, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := ValidateEnabledPlugins(compiled, map[string]bool{"missing": true}, false); err == nil {
		t.Fatalf("expected error for missing plugin")
	}
}

func TestValidatePlugins(t *testing.T) {
	if err := ValidatePlugins([]Plugin{newStubPlugin("demo")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := map[string][]Plugin{
		"empty id":  {newStubPlugin("")},
		"bad id":    {newStubPlugin("Demo-1")},
		"duplicate": {newStubPlugin("demo"), newStubPlugin("demo")},
	}
	for name, plugins := range tests {
		if err := ValidatePlugins(plugins); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestMetricsRegistry(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "demo_value", Help: "demo"})
	gauge.Set(3)
	plugin := newStubPlugin("demo")
	plugin.collectors = []prometheus.Collector{gauge}

	registry := MetricsRegistry([]Plugin{plugin})
	count, err := testutil.GatherAndCount(registry, "demo_value")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected demo_value to be registered, got %d series", count)
	}
}

func TestDashboards(t *testing.T) {
	plugins := []Plugin{newStubPlugin("demo")}

	dashboards := DashboardsMap(plugins)
	if string(dashboards["/dashboards/demo/demo.json"]) != "{}" {
		t.Fatalf("unexpected dashboards map: %v", dashboards)
	}

	dir := t.TempDir()
	written, err := WriteDashboards(dir, plugins)
	if err != nil {
		t.Fatalf("write dashboards: %v", err)
	}
	if written != 1 {
		t.Fatalf("expected 1 dashboard written, got %d", written)
	}
	if _, err := os.Stat(filepath.Join(dir, "demo", "demo.json")); err != nil {
		t.Fatalf("dashboard file missing: %v", err)
	}
}
