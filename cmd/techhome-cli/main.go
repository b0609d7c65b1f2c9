package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fullstorydev/grpcurl"
	"github.com/jhump/protoreflect/grpcreflect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/joshp123/techhome/internal/config"
	"github.com/joshp123/techhome/internal/core"
	"github.com/joshp123/techhome/internal/rpc"
)

func main() {
	flags := flag.NewFlagSet("techhome-cli", flag.ExitOnError)
	jsonOutput := flags.Bool("json", false, "print JSON instead of tables")
	addrFlag := flags.String("addr", "", "gRPC address (default from TECHHOME_GRPC_ADDR or config)")
	timeout := flags.Duration("timeout", 20*time.Second, "overall request timeout")
	flags.Usage = usage
	_ = flags.Parse(os.Args[1:])
	args := flags.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	addr := *addrFlag
	if addr == "" {
		addr = resolveAddr()
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, err := grpcurl.BlockingDial(ctx, "tcp", addr, insecure.NewCredentials())
	if err != nil {
		fatal("dial", err)
	}
	defer conn.Close()

	switch args[0] {
	case "plugins":
		pluginsCmd(ctx, conn, args[1:], *jsonOutput)
	case "tech":
		techCmd(ctx, conn, args[1:], *jsonOutput)
	case "services":
		servicesCmd(ctx, conn)
	case "methods":
		methodsCmd(ctx, conn, args[1:])
	case "call":
		callCmd(ctx, conn, args[1:])
	default:
		usage()
		os.Exit(2)
	}
}

func pluginsCmd(ctx context.Context, conn *grpc.ClientConn, args []string, jsonOutput bool) {
	out := outputMode{json: jsonOutput}
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	schema := core.RegistrySchema()
	switch args[0] {
	case "list":
		resp, err := rpc.Invoke(ctx, conn, rpc.MethodByName(schema, "Registry", "ListPlugins"), rpc.New(schema, "ListPluginsRequest"))
		if err != nil {
			fatal("list plugins", err)
		}
		if out.json {
			out.printProto(resp)
			return
		}
		rows := [][]string{{"ID", "NAME", "VERSION", "STATUS"}}
		for _, plugin := range rpc.Messages(resp, "plugins") {
			rows = append(rows, []string{
				rpc.GetString(plugin, "plugin_id"),
				rpc.GetString(plugin, "display_name"),
				rpc.GetString(plugin, "version"),
				rpc.GetString(plugin, "status"),
			})
		}
		out.table(rows)
	case "describe":
		if len(args) < 2 {
			fatal("describe", fmt.Errorf("missing plugin id"))
		}
		req := rpc.New(schema, "DescribePluginRequest")
		rpc.SetString(req, "plugin_id", args[1])
		resp, err := rpc.Invoke(ctx, conn, rpc.MethodByName(schema, "Registry", "DescribePlugin"), req)
		if err != nil {
			fatal("describe plugin", err)
		}
		if out.json {
			out.printProto(resp)
			return
		}
		plugin, ok := rpc.GetMessage(resp, "plugin")
		if !ok {
			fmt.Println("not found")
			return
		}
		fmt.Printf("id: %s\n", rpc.GetString(plugin, "plugin_id"))
		fmt.Printf("name: %s\n", rpc.GetString(plugin, "display_name"))
		fmt.Printf("version: %s\n", rpc.GetString(plugin, "version"))
		fmt.Printf("status: %s\n", rpc.GetString(plugin, "status"))
		if msg := rpc.GetString(plugin, "health_message"); msg != "" {
			fmt.Printf("health: %s\n", msg)
		}
		fmt.Println("services:")
		for _, svc := range rpc.Strings(plugin, "services") {
			fmt.Printf("  - %s\n", svc)
		}
		fmt.Println("dashboards:")
		for _, dash := range rpc.Messages(plugin, "dashboards") {
			fmt.Printf("  - %s (%s)\n", rpc.GetString(dash, "name"), rpc.GetString(dash, "path"))
		}
		fmt.Println("agents_md:")
		fmt.Println(rpc.GetString(plugin, "agents_md"))
	default:
		usage()
		os.Exit(2)
	}
}

func servicesCmd(ctx context.Context, conn *grpc.ClientConn) {
	descSource := reflectionSource(ctx, conn)
	services, err := grpcurl.ListServices(descSource)
	if err != nil {
		fatal("list services", err)
	}

	for _, service := range services {
		fmt.Println(service)
	}
}

func methodsCmd(ctx context.Context, conn *grpc.ClientConn, args []string) {
	if len(args) < 1 {
		fatal("methods", fmt.Errorf("missing service name"))
	}

	descSource := reflectionSource(ctx, conn)
	methods, err := grpcurl.ListMethods(descSource, args[0])
	if err != nil {
		fatal("list methods", err)
	}

	for _, method := range methods {
		fmt.Println(method)
	}
}

func callCmd(ctx context.Context, conn *grpc.ClientConn, args []string) {
	flags := flag.NewFlagSet("call", flag.ExitOnError)
	data := flags.String("data", "", "JSON request body")
	_ = flags.Parse(args)
	remaining := flags.Args()
	if len(remaining) < 1 {
		fatal("call", fmt.Errorf("missing method (service/method)"))
	}

	method := remaining[0]
	descSource := reflectionSource(ctx, conn)

	var reader io.Reader
	if *data != "" {
		reader = strings.NewReader(*data)
	} else if isStdinTerminal() {
		reader = strings.NewReader("{}")
	} else {
		reader = os.Stdin
	}

	parser, formatter, err := grpcurl.RequestParserAndFormatter(grpcurl.FormatJSON, descSource, reader, grpcurl.FormatOptions{EmitJSONDefaultFields: true})
	if err != nil {
		fatal("parse request", err)
	}

	handler := grpcurl.NewDefaultEventHandler(os.Stdout, descSource, formatter, false)
	if err := grpcurl.InvokeRPC(ctx, descSource, conn, method, nil, handler, parser.Next); err != nil {
		fatal("invoke", err)
	}
	if handler.Status.Err() != nil {
		fatal("invoke", handler.Status.Err())
	}
}

func reflectionSource(ctx context.Context, conn *grpc.ClientConn) grpcurl.DescriptorSource {
	client := grpcreflect.NewClientAuto(ctx, conn)
	return grpcurl.DescriptorSourceFromServer(ctx, client)
}

func isStdinTerminal() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return true
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func resolveAddr() string {
	if value := os.Getenv("TECHHOME_GRPC_ADDR"); value != "" {
		return value
	}
	for _, path := range configSearchPaths() {
		if addr := addrFromConfig(path); addr != "" {
			return addr
		}
	}
	return "localhost:9000"
}

func configSearchPaths() []string {
	paths := []string{config.DefaultPath}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".config", "techhome", "config.yaml"))
	}
	return paths
}

func addrFromConfig(path string) string {
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	cfg, err := config.Load(path)
	if err != nil || cfg == nil {
		return ""
	}
	return strings.Replace(cfg.Core.GRPCAddr, "0.0.0.0", "localhost", 1)
}

func usage() {
	fmt.Println("techhome-cli [--json] [--addr host:port] <command> [args]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  plugins list")
	fmt.Println("  plugins describe <plugin_id>")
	fmt.Println("  tech zones|zone|sensors|set-temp|set-mode|refresh")
	fmt.Println("  services")
	fmt.Println("  methods <service>")
	fmt.Println("  call <service/method> --data '{}' (or pipe JSON via stdin)")
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
