package rpc

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"
)

var echoFile = NewFile("techhome/test/v1/echo.proto", "techhome.test.v1", WrappersImport).
	Message("Item", String("name", 1), Message("reading", 2, DoubleValue), Message("ok", 3, BoolValue)).
	Message("EchoRequest", String("text", 1), Double("scale", 2)).
	Message("EchoResponse", String("text", 1), Message("items", 2, ".techhome.test.v1.Item").Repeated(), String("tags", 3).Repeated()).
	Service("Echo", Method{Name: "Say", Input: "EchoRequest", Output: "EchoResponse"}).
	MustRegister()

func TestRegisterIsIdempotent(t *testing.T) {
	fd, err := NewFile("techhome/test/v1/echo.proto", "techhome.test.v1", WrappersImport).Register()
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if fd != echoFile {
		t.Fatalf("expected the already registered descriptor")
	}
}

func TestOptionalFields(t *testing.T) {
	item := New(echoFile, "Item")
	if GetOptionalDouble(item, "reading") != nil || GetOptionalBool(item, "ok") != nil {
		t.Fatalf("expected unset wrappers to read as nil")
	}

	reading, ok := 21.5, false
	SetOptionalDouble(item, "reading", &reading)
	SetOptionalBool(item, "ok", &ok)

	data, err := proto.Marshal(item)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded := New(echoFile, "Item")
	if err := proto.Unmarshal(data, decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := GetOptionalDouble(decoded, "reading"); got == nil || *got != 21.5 {
		t.Fatalf("unexpected reading: %v", got)
	}
	if got := GetOptionalBool(decoded, "ok"); got == nil || *got {
		t.Fatalf("unexpected ok: %v", got)
	}

	SetOptionalDouble(decoded, "reading", nil)
	if GetOptionalDouble(decoded, "reading") != nil {
		t.Fatalf("expected cleared reading")
	}
}

func TestRegisterAndInvoke(t *testing.T) {
	sd := echoFile.Services().ByName("Echo")
	say := MethodByName(echoFile, "Echo", "Say")

	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	err := Register(server, sd, Handlers{
		"Say": func(_ context.Context, req *dynamicpb.Message) (proto.Message, error) {
			text := GetString(req, "text")
			if text == "" {
				return nil, status.Error(codes.InvalidArgument, "text is required")
			}
			resp := New(echoFile, "EchoResponse")
			SetString(resp, "text", text)
			item := AppendMessage(resp, "items")
			SetString(item, "name", "scaled")
			value := GetDouble(req, "scale") * 2
			SetOptionalDouble(item, "reading", &value)
			AppendString(resp, "tags", "a")
			AppendString(resp, "tags", "b")
			return resp, nil
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	go func() { _ = server.Serve(listener) }()
	defer server.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return listener.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	req := New(echoFile, "EchoRequest")
	SetString(req, "text", "hello")
	SetDouble(req, "scale", 1.25)

	resp, err := Invoke(context.Background(), conn, say, req)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if GetString(resp, "text") != "hello" {
		t.Fatalf("unexpected text: %s", GetString(resp, "text"))
	}
	items := Messages(resp, "items")
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if got := GetOptionalDouble(items[0], "reading"); got == nil || *got != 2.5 {
		t.Fatalf("unexpected reading: %v", got)
	}
	if tags := Strings(resp, "tags"); len(tags) != 2 || tags[1] != "b" {
		t.Fatalf("unexpected tags: %v", tags)
	}

	_, err = Invoke(context.Background(), conn, say, New(echoFile, "EchoRequest"))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestRegisterRequiresHandlers(t *testing.T) {
	server := grpc.NewServer()
	if err := Register(server, echoFile.Services().ByName("Echo"), Handlers{}); err == nil {
		t.Fatalf("expected error for missing handler")
	}
}
