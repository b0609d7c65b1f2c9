package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/joshp123/techhome/internal/rpc"
	"github.com/joshp123/techhome/plugins/tech"
)

const techService = "TechService"

func techCall(ctx context.Context, conn *grpc.ClientConn, method string, build func(req *dynamicpb.Message)) *dynamicpb.Message {
	md := rpc.MethodByName(tech.Schema(), techService, method)
	req := dynamicpb.NewMessage(md.Input())
	if build != nil {
		build(req)
	}
	resp, err := rpc.Invoke(ctx, conn, md, req)
	if err != nil {
		fatal("tech "+method, err)
	}
	return resp
}

func techCmd(ctx context.Context, conn *grpc.ClientConn, args []string, jsonOutput bool) {
	out := outputMode{json: jsonOutput}
	if len(args) == 0 {
		techUsage()
		os.Exit(2)
	}

	switch args[0] {
	case "zones", "list":
		resp := techCall(ctx, conn, "ListZones", nil)
		if out.json {
			out.printProto(resp)
			return
		}
		rows := [][]string{{"ZONE", "ID", "MODE", "ACTION", "TARGET", "CURRENT", "FLOOR"}}
		for _, z := range rpc.Messages(resp, "zones") {
			rows = append(rows, zoneRow(z))
		}
		out.table(rows)
	case "zone":
		if len(args) < 2 {
			fatal("tech zone", fmt.Errorf("usage: techhome-cli tech zone <zone>"))
		}
		zoneID := resolveZone(ctx, conn, args[1])
		resp := techCall(ctx, conn, "GetZone", func(req *dynamicpb.Message) { rpc.SetString(req, "zone", zoneID) })
		if out.json {
			out.printProto(resp)
			return
		}
		z, _ := rpc.GetMessage(resp, "zone")
		out.table([][]string{{"ZONE", "ID", "MODE", "ACTION", "TARGET", "CURRENT", "FLOOR"}, zoneRow(z)})
	case "sensors":
		var zoneID string
		if len(args) > 1 {
			zoneID = resolveZone(ctx, conn, args[1])
		}
		resp := techCall(ctx, conn, "ListSensors", func(req *dynamicpb.Message) { rpc.SetString(req, "zone", zoneID) })
		if out.json {
			out.printProto(resp)
			return
		}
		rows := [][]string{{"SENSOR", "ID", "STATE", "ICON"}}
		for _, s := range rpc.Messages(resp, "sensors") {
			rows = append(rows, sensorRow(s))
		}
		out.table(rows)
	case "set-temp", "set":
		if len(args) < 3 {
			fatal("tech set-temp", fmt.Errorf("usage: techhome-cli tech set-temp <zone> <celsius>"))
		}
		celsius, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			fatal("tech set-temp", fmt.Errorf("invalid temperature %q", args[2]))
		}
		zoneID := resolveZone(ctx, conn, args[1])
		resp := techCall(ctx, conn, "SetTemperature", func(req *dynamicpb.Message) {
			rpc.SetString(req, "zone", zoneID)
			rpc.SetDouble(req, "celsius", celsius)
		})
		if out.json {
			out.printProto(resp)
			return
		}
		z, _ := rpc.GetMessage(resp, "zone")
		fmt.Printf("ok: %s -> %.1f°C\n", rpc.GetString(z, "name"), celsius)
	case "set-mode", "mode":
		if len(args) < 3 {
			fatal("tech set-mode", fmt.Errorf("usage: techhome-cli tech set-mode <zone> heat|off"))
		}
		zoneID := resolveZone(ctx, conn, args[1])
		resp := techCall(ctx, conn, "SetMode", func(req *dynamicpb.Message) {
			rpc.SetString(req, "zone", zoneID)
			rpc.SetString(req, "mode", args[2])
		})
		if out.json {
			out.printProto(resp)
			return
		}
		z, _ := rpc.GetMessage(resp, "zone")
		fmt.Printf("ok: %s -> %s\n", rpc.GetString(z, "name"), args[2])
	case "refresh":
		resp := techCall(ctx, conn, "Refresh", nil)
		if out.json {
			out.printProto(resp)
			return
		}
		fmt.Printf("refreshed: %d ok, %d failed\n", rpc.GetInt32(resp, "ok"), rpc.GetInt32(resp, "failed"))
	default:
		techUsage()
		os.Exit(2)
	}
}

// resolveZone maps a zone name or id to the zone id, listing the known zones on a miss.
func resolveZone(ctx context.Context, conn *grpc.ClientConn, input string) string {
	resp := techCall(ctx, conn, "ListZones", nil)
	options := make(map[string]string)
	for _, z := range rpc.Messages(resp, "zones") {
		options[rpc.GetString(z, "name")] = rpc.GetString(z, "zone_id")
	}
	zoneID, err := resolveNamedID("zone", input, options)
	if err != nil {
		fatal("tech", err)
	}
	return zoneID
}

func zoneRow(z protoreflect.Message) []string {
	return []string{
		rpc.GetString(z, "name"),
		rpc.GetString(z, "zone_id"),
		rpc.GetString(z, "mode"),
		rpc.GetString(z, "action"),
		formatCelsius(rpc.GetOptionalDouble(z, "target_temperature")),
		formatCelsius(rpc.GetOptionalDouble(z, "current_temperature")),
		formatCelsius(rpc.GetOptionalDouble(z, "underfloor_temperature")),
	}
}

func sensorRow(s protoreflect.Message) []string {
	state := "-"
	if on := rpc.GetOptionalBool(s, "is_on"); on != nil {
		state = "off"
		if *on {
			state = "on"
		}
	}
	if v := rpc.GetOptionalDouble(s, "value"); v != nil {
		state = strconv.FormatFloat(*v, 'f', 1, 64) + rpc.GetString(s, "unit")
	}
	return []string{rpc.GetString(s, "name"), rpc.GetString(s, "unique_id"), state, rpc.GetString(s, "icon")}
}

func formatCelsius(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f°C", *v)
}

func techUsage() {
	fmt.Println("techhome-cli tech <command>")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  zones")
	fmt.Println("  zone <zone>")
	fmt.Println("  sensors [zone]")
	fmt.Println("  set-temp <zone> <celsius>")
	fmt.Println("  set-mode <zone> heat|off")
	fmt.Println("  refresh")
}
