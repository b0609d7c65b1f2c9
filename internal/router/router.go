package router

import (
	"fmt"
	"net/http"

	"google.golang.org/grpc"

	"github.com/joshp123/techhome/internal/core"
)

// RegisterPlugins registers plugin services and core services on the gRPC server.
func RegisterPlugins(server grpc.ServiceRegistrar, plugins []core.Plugin) error {
	if err := core.NewRegistryService(plugins).Register(server); err != nil {
		return fmt.Errorf("register registry service: %w", err)
	}

	for _, p := range plugins {
		if err := p.RegisterGRPC(server); err != nil {
			return fmt.Errorf("register %s services: %w", p.ID(), err)
		}
	}
	return nil
}

// RegisterHTTP mounts the HTTP handlers of plugins that expose any.
func RegisterHTTP(mux *http.ServeMux, plugins []core.Plugin) {
	for _, p := range plugins {
		if registrant, ok := p.(core.HTTPRegistrant); ok {
			registrant.RegisterHTTP(mux)
		}
	}
}
