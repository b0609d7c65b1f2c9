package core

import (
	"context"
	"strings"
	"sync"

	"github.com/joshp123/techhome/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

var registrySchema = rpc.NewFile("techhome/registry/v1/registry.proto", "techhome.registry.v1").
	Message("PluginSummary",
		rpc.String("plugin_id", 1),
		rpc.String("display_name", 2),
		rpc.String("version", 3),
		rpc.String("status", 4),
	).
	Message("Dashboard",
		rpc.String("name", 1),
		rpc.String("path", 2),
	).
	Message("PluginDescriptor",
		rpc.String("plugin_id", 1),
		rpc.String("display_name", 2),
		rpc.String("version", 3),
		rpc.String("services", 4).Repeated(),
		rpc.String("agents_md", 5),
		rpc.String("status", 6),
		rpc.String("health_message", 7),
		rpc.Message("dashboards", 8, ".techhome.registry.v1.Dashboard").Repeated(),
	).
	Message("ListPluginsRequest").
	Message("ListPluginsResponse", rpc.Message("plugins", 1, ".techhome.registry.v1.PluginSummary").Repeated()).
	Message("DescribePluginRequest", rpc.String("plugin_id", 1)).
	Message("DescribePluginResponse", rpc.Message("plugin", 1, ".techhome.registry.v1.PluginDescriptor")).
	Service("Registry",
		rpc.Method{Name: "ListPlugins", Input: "ListPluginsRequest", Output: "ListPluginsResponse"},
		rpc.Method{Name: "DescribePlugin", Input: "DescribePluginRequest", Output: "DescribePluginResponse"},
	).
	MustRegister()

// RegistrySchema returns the techhome.registry.v1 descriptor, for clients.
func RegistrySchema() protoreflect.FileDescriptor {
	return registrySchema
}

// RegistryService provides plugin discovery to clients.
type RegistryService struct {
	plugins []Plugin
	mu      sync.RWMutex
}

func NewRegistryService(plugins []Plugin) *RegistryService {
	return &RegistryService{plugins: plugins}
}

// Register serves techhome.registry.v1.Registry on server.
func (r *RegistryService) Register(server grpc.ServiceRegistrar) error {
	return rpc.Register(server, registrySchema.Services().ByName("Registry"), rpc.Handlers{
		"ListPlugins":    r.ListPlugins,
		"DescribePlugin": r.DescribePlugin,
	})
}

func (r *RegistryService) ListPlugins(_ context.Context, _ *dynamicpb.Message) (proto.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resp := rpc.New(registrySchema, "ListPluginsResponse")
	for _, p := range r.plugins {
		manifest := p.Manifest()
		summary := rpc.AppendMessage(resp, "plugins")
		rpc.SetString(summary, "plugin_id", manifest.PluginID)
		rpc.SetString(summary, "display_name", manifest.DisplayName)
		rpc.SetString(summary, "version", manifest.Version)
		rpc.SetString(summary, "status", string(p.Health()))
	}

	return resp, nil
}

func (r *RegistryService) DescribePlugin(_ context.Context, req *dynamicpb.Message) (proto.Message, error) {
	id := strings.TrimSpace(rpc.GetString(req, "plugin_id"))
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "plugin_id is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		manifest := p.Manifest()
		if manifest.PluginID != id {
			continue
		}

		resp := rpc.New(registrySchema, "DescribePluginResponse")
		descriptor := rpc.SetMessage(resp, "plugin")
		rpc.SetString(descriptor, "plugin_id", manifest.PluginID)
		rpc.SetString(descriptor, "display_name", manifest.DisplayName)
		rpc.SetString(descriptor, "version", manifest.Version)
		for _, svc := range manifest.Services {
			rpc.AppendString(descriptor, "services", svc)
		}
		rpc.SetString(descriptor, "agents_md", p.AgentsMD())
		rpc.SetString(descriptor, "status", string(p.Health()))
		rpc.SetString(descriptor, "health_message", p.HealthMessage())

		for _, d := range p.Dashboards() {
			dash := rpc.AppendMessage(descriptor, "dashboards")
			rpc.SetString(dash, "name", d.Name)
			rpc.SetString(dash, "path", DashboardPath(manifest.PluginID, d.Name))
		}

		return resp, nil
	}

	return nil, status.Errorf(codes.NotFound, "plugin %q not found", id)
}
