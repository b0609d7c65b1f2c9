package tech

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/joshp123/techhome/internal/rate"
	"github.com/joshp123/techhome/internal/rpc"
	"github.com/joshp123/techhome/plugins/tech/zone"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

type service struct {
	registry *Registry
}

// RegisterTechService serves tech.v1.TechService backed by registry.
func RegisterTechService(server grpc.ServiceRegistrar, registry *Registry) error {
	s := &service{registry: registry}
	return rpc.Register(server, schema.Services().ByName(serviceName), rpc.Handlers{
		"ListZones":      s.ListZones,
		"GetZone":        s.GetZone,
		"ListSensors":    s.ListSensors,
		"SetTemperature": s.SetTemperature,
		"SetMode":        s.SetMode,
		"Refresh":        s.Refresh,
	})
}

func (s *service) ListZones(_ context.Context, _ *dynamicpb.Message) (proto.Message, error) {
	if s.registry == nil {
		return nil, status.Error(codes.FailedPrecondition, "tech client not configured")
	}

	resp := rpc.New(schema, "ListZonesResponse")
	for _, climate := range s.registry.Climates() {
		fillZone(rpc.AppendMessage(resp, "zones"), climate)
	}
	return resp, nil
}

func (s *service) GetZone(_ context.Context, req *dynamicpb.Message) (proto.Message, error) {
	climate, err := s.climate(req)
	if err != nil {
		return nil, err
	}

	resp := rpc.New(schema, "GetZoneResponse")
	fillZone(rpc.SetMessage(resp, "zone"), climate)
	return resp, nil
}

func (s *service) ListSensors(_ context.Context, req *dynamicpb.Message) (proto.Message, error) {
	if s.registry == nil {
		return nil, status.Error(codes.FailedPrecondition, "tech client not configured")
	}

	filter := strings.TrimSpace(rpc.GetString(req, "zone"))
	var zoneID string
	if filter != "" {
		climate, ok := s.registry.Climate(filter)
		if !ok {
			return nil, status.Errorf(codes.NotFound, "zone %q not found", filter)
		}
		zoneID = climate.Zone().ID
	}

	resp := rpc.New(schema, "ListSensorsResponse")
	for _, entity := range s.registry.Entities() {
		if zoneID != "" && entity.Zone().ID != zoneID {
			continue
		}
		switch e := entity.(type) {
		case *BinarySensor:
			fillBinarySensor(rpc.AppendMessage(resp, "sensors"), e)
		case *NumericSensor:
			fillNumericSensor(rpc.AppendMessage(resp, "sensors"), e)
		}
	}
	return resp, nil
}

func (s *service) SetTemperature(ctx context.Context, req *dynamicpb.Message) (proto.Message, error) {
	climate, err := s.climate(req)
	if err != nil {
		return nil, err
	}
	if err := climate.SetTemperature(ctx, rpc.GetDouble(req, "celsius")); err != nil {
		return nil, vendorStatus("set temperature", err)
	}

	resp := rpc.New(schema, "SetTemperatureResponse")
	fillZone(rpc.SetMessage(resp, "zone"), climate)
	return resp, nil
}

func (s *service) SetMode(ctx context.Context, req *dynamicpb.Message) (proto.Message, error) {
	climate, err := s.climate(req)
	if err != nil {
		return nil, err
	}
	raw := strings.ToLower(strings.TrimSpace(rpc.GetString(req, "mode")))
	if raw == "" {
		return nil, status.Error(codes.InvalidArgument, "mode is required")
	}
	mode, ok := zone.ParseMode(raw)
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "mode must be heat or off, got %q", raw)
	}

	if err := climate.SetMode(ctx, mode); err != nil {
		return nil, vendorStatus("set mode", err)
	}

	resp := rpc.New(schema, "SetModeResponse")
	fillZone(rpc.SetMessage(resp, "zone"), climate)
	return resp, nil
}

func (s *service) Refresh(ctx context.Context, _ *dynamicpb.Message) (proto.Message, error) {
	if s.registry == nil {
		return nil, status.Error(codes.FailedPrecondition, "tech client not configured")
	}

	result := s.registry.RefreshAll(ctx)
	resp := rpc.New(schema, "RefreshResponse")
	rpc.SetInt32(resp, "ok", int32(result.OK))
	rpc.SetInt32(resp, "failed", int32(result.Failed))
	return resp, nil
}

func (s *service) climate(req *dynamicpb.Message) (*Climate, error) {
	if s.registry == nil {
		return nil, status.Error(codes.FailedPrecondition, "tech client not configured")
	}
	ref := strings.TrimSpace(rpc.GetString(req, "zone"))
	if ref == "" {
		return nil, status.Error(codes.InvalidArgument, "zone is required")
	}
	climate, ok := s.registry.Climate(ref)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "zone %q not found", ref)
	}
	return climate, nil
}

func vendorStatus(action string, err error) error {
	var rateErr rate.RateLimitError
	var httpErr HTTPStatusError
	switch {
	case errors.Is(err, ErrUnsupportedMode), errors.Is(err, ErrInvalidTemperature):
		return status.Errorf(codes.InvalidArgument, "%s: %v", action, err)
	case errors.Is(err, ErrZoneNotFound):
		return status.Errorf(codes.NotFound, "%s: %v", action, err)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%s: %v", action, err)
	case errors.As(err, &rateErr), errors.As(err, &httpErr):
		return status.Errorf(codes.Unavailable, "%s: %v", action, err)
	default:
		return status.Errorf(codes.Internal, "%s: %v", action, err)
	}
}

func fillZone(m protoreflect.Message, climate *Climate) {
	state := climate.State()
	snap := climate.Snapshot()

	rpc.SetString(m, "zone_id", climate.Zone().ID)
	rpc.SetString(m, "name", state.Name)
	rpc.SetString(m, "module_id", climate.ModuleID())
	rpc.SetOptionalDouble(m, "target_temperature", state.TargetTemperature)
	rpc.SetOptionalDouble(m, "current_temperature", state.CurrentTemperature)
	rpc.SetString(m, "mode", string(state.Mode))
	rpc.SetString(m, "action", string(state.Action))
	rpc.SetOptionalDouble(m, "underfloor_temperature", snap.UnderfloorTemperature)
	rpc.SetOptionalBool(m, "underfloor_within_limits", snap.UnderfloorWithinLimits)
	for _, mode := range state.Modes {
		rpc.AppendString(m, "modes", string(mode))
	}
	rpc.SetString(m, "unit", state.Unit)
	rpc.SetString(m, "updated_at", climate.UpdatedAt().UTC().Format(time.RFC3339))
}

func fillBinarySensor(m protoreflect.Message, sensor *BinarySensor) {
	state := sensor.State()
	rpc.SetString(m, "unique_id", state.UniqueID)
	rpc.SetString(m, "name", state.Name)
	rpc.SetString(m, "zone_id", sensor.Zone().ID)
	rpc.SetString(m, "platform", string(sensor.Platform()))
	rpc.SetOptionalBool(m, "is_on", state.IsOn)
	rpc.SetString(m, "icon", state.Icon)
	rpc.SetString(m, "device_class", state.DeviceClass)
}

func fillNumericSensor(m protoreflect.Message, sensor *NumericSensor) {
	state := sensor.State()
	rpc.SetString(m, "unique_id", state.UniqueID)
	rpc.SetString(m, "name", state.Name)
	rpc.SetString(m, "zone_id", sensor.Zone().ID)
	rpc.SetString(m, "platform", string(sensor.Platform()))
	rpc.SetOptionalDouble(m, "value", state.Value)
	rpc.SetString(m, "unit", state.Unit)
	rpc.SetString(m, "device_class", state.DeviceClass)
	rpc.SetString(m, "state_class", state.StateClass)
}
