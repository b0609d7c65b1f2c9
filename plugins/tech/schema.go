package tech

import (
	"github.com/joshp123/techhome/internal/rpc"
	"google.golang.org/protobuf/reflect/protoreflect"
)

const (
	serviceName = "TechService"
	zoneType    = ".tech.v1.Zone"
	sensorType  = ".tech.v1.Sensor"
)

// schema describes tech.v1.TechService. Optional readings use wrapper types so
// an absent value stays distinguishable from zero on the wire.
var schema = rpc.NewFile("tech/v1/tech.proto", "tech.v1", rpc.WrappersImport).
	Message("Zone",
		rpc.String("zone_id", 1),
		rpc.String("name", 2),
		rpc.String("module_id", 3),
		rpc.Message("target_temperature", 4, rpc.DoubleValue),
		rpc.Message("current_temperature", 5, rpc.DoubleValue),
		rpc.String("mode", 6),
		rpc.String("action", 7),
		rpc.Message("underfloor_temperature", 8, rpc.DoubleValue),
		rpc.Message("underfloor_within_limits", 9, rpc.BoolValue),
		rpc.String("modes", 10).Repeated(),
		rpc.String("unit", 11),
		rpc.String("updated_at", 12),
	).
	Message("Sensor",
		rpc.String("unique_id", 1),
		rpc.String("name", 2),
		rpc.String("zone_id", 3),
		rpc.String("platform", 4),
		rpc.Message("is_on", 5, rpc.BoolValue),
		rpc.Message("value", 6, rpc.DoubleValue),
		rpc.String("unit", 7),
		rpc.String("icon", 8),
		rpc.String("device_class", 9),
		rpc.String("state_class", 10),
	).
	Message("ListZonesRequest").
	Message("ListZonesResponse", rpc.Message("zones", 1, zoneType).Repeated()).
	Message("GetZoneRequest", rpc.String("zone", 1)).
	Message("GetZoneResponse", rpc.Message("zone", 1, zoneType)).
	Message("ListSensorsRequest", rpc.String("zone", 1)).
	Message("ListSensorsResponse", rpc.Message("sensors", 1, sensorType).Repeated()).
	Message("SetTemperatureRequest", rpc.String("zone", 1), rpc.Double("celsius", 2)).
	Message("SetTemperatureResponse", rpc.Message("zone", 1, zoneType)).
	Message("SetModeRequest", rpc.String("zone", 1), rpc.String("mode", 2)).
	Message("SetModeResponse", rpc.Message("zone", 1, zoneType)).
	Message("RefreshRequest").
	Message("RefreshResponse", rpc.Int32("ok", 1), rpc.Int32("failed", 2)).
	Service(serviceName,
		rpc.Method{Name: "ListZones", Input: "ListZonesRequest", Output: "ListZonesResponse"},
		rpc.Method{Name: "GetZone", Input: "GetZoneRequest", Output: "GetZoneResponse"},
		rpc.Method{Name: "ListSensors", Input: "ListSensorsRequest", Output: "ListSensorsResponse"},
		rpc.Method{Name: "SetTemperature", Input: "SetTemperatureRequest", Output: "SetTemperatureResponse"},
		rpc.Method{Name: "SetMode", Input: "SetModeRequest", Output: "SetModeResponse"},
		rpc.Method{Name: "Refresh", Input: "RefreshRequest", Output: "RefreshResponse"},
	).
	MustRegister()

// ServiceName is the fully qualified gRPC service name.
var ServiceName = string(schema.Services().ByName(serviceName).FullName())

// Schema returns the registered tech.v1 file descriptor, for clients.
func Schema() protoreflect.FileDescriptor {
	return schema
}
