// Package rpc builds protobuf descriptors in code and serves them over gRPC
// with dynamic messages, so services register with server reflection without
// a protoc step.
package rpc

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	// Registers google/protobuf/wrappers.proto for schemas that import it.
	_ "google.golang.org/protobuf/types/known/wrapperspb"
)

// WrappersImport is the import path for the well-known wrapper messages.
const WrappersImport = "google/protobuf/wrappers.proto"

// Well-known wrapper type names for optional scalar fields.
const (
	DoubleValue = ".google.protobuf.DoubleValue"
	BoolValue   = ".google.protobuf.BoolValue"
)

// Field declares one message field.
type Field struct {
	name     string
	number   int32
	kind     descriptorpb.FieldDescriptorProto_Type
	typeName string
	repeated bool
}

func String(name string, number int32) Field {
	return Field{name: name, number: number, kind: descriptorpb.FieldDescriptorProto_TYPE_STRING}
}

func Double(name string, number int32) Field {
	return Field{name: name, number: number, kind: descriptorpb.FieldDescriptorProto_TYPE_DOUBLE}
}

func Int32(name string, number int32) Field {
	return Field{name: name, number: number, kind: descriptorpb.FieldDescriptorProto_TYPE_INT32}
}

func Bool(name string, number int32) Field {
	return Field{name: name, number: number, kind: descriptorpb.FieldDescriptorProto_TYPE_BOOL}
}

// Message declares a field of message type; typeName is fully qualified with a leading dot.
func Message(name string, number int32, typeName string) Field {
	return Field{name: name, number: number, kind: descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, typeName: typeName}
}

// Repeated marks the field as a list.
func (f Field) Repeated() Field {
	f.repeated = true
	return f
}

func (f Field) proto() *descriptorpb.FieldDescriptorProto {
	label := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	if f.repeated {
		label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED
	}
	fd := &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(f.name),
		Number: proto.Int32(f.number),
		Label:  label.Enum(),
		Type:   f.kind.Enum(),
	}
	if f.typeName != "" {
		fd.TypeName = proto.String(f.typeName)
	}
	return fd
}

// Method declares a unary RPC; input and output are message names in the same file.
type Method struct {
	Name   string
	Input  string
	Output string
}

// File accumulates a proto3 file descriptor.
type File struct {
	fdp *descriptorpb.FileDescriptorProto
}

// NewFile starts a proto3 file at path declaring package pkg.
func NewFile(path, pkg string, deps ...string) *File {
	return &File{fdp: &descriptorpb.FileDescriptorProto{
		Name:       proto.String(path),
		Package:    proto.String(pkg),
		Dependency: deps,
		Syntax:     proto.String("proto3"),
	}}
}

// Message adds a message type.
func (f *File) Message(name string, fields ...Field) *File {
	msg := &descriptorpb.DescriptorProto{Name: proto.String(name)}
	for _, field := range fields {
		msg.Field = append(msg.Field, field.proto())
	}
	f.fdp.MessageType = append(f.fdp.MessageType, msg)
	return f
}

// Service adds a service with unary methods.
func (f *File) Service(name string, methods ...Method) *File {
	svc := &descriptorpb.ServiceDescriptorProto{Name: proto.String(name)}
	prefix := "." + f.fdp.GetPackage() + "."
	for _, m := range methods {
		svc.Method = append(svc.Method, &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(m.Name),
			InputType:  proto.String(prefix + m.Input),
			OutputType: proto.String(prefix + m.Output),
		})
	}
	f.fdp.Service = append(f.fdp.Service, svc)
	return f
}

// Register builds the descriptor and adds it to the global registry so that
// reflection can serve it. Registering the same path twice returns the first.
func (f *File) Register() (protoreflect.FileDescriptor, error) {
	if existing, err := protoregistry.GlobalFiles.FindFileByPath(f.fdp.GetName()); err == nil {
		return existing, nil
	}
	fd, err := protodesc.NewFile(f.fdp, protoregistry.GlobalFiles)
	if err != nil {
		return nil, fmt.Errorf("build descriptor %s: %w", f.fdp.GetName(), err)
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		return nil, fmt.Errorf("register descriptor %s: %w", f.fdp.GetName(), err)
	}
	return fd, nil
}

// MustRegister is Register for package-level schema variables.
func (f *File) MustRegister() protoreflect.FileDescriptor {
	fd, err := f.Register()
	if err != nil {
		panic(err)
	}
	return fd
}
