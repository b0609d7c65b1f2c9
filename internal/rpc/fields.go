package rpc

import (
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// New returns an empty dynamic message of the named type from file fd.
func New(fd protoreflect.FileDescriptor, name string) *dynamicpb.Message {
	md := fd.Messages().ByName(protoreflect.Name(name))
	if md == nil {
		panic(fmt.Sprintf("rpc: message %s not found in %s", name, fd.Path()))
	}
	return dynamicpb.NewMessage(md)
}

// MethodByName looks up a method of service svc in fd.
func MethodByName(fd protoreflect.FileDescriptor, svc, method string) protoreflect.MethodDescriptor {
	sd := fd.Services().ByName(protoreflect.Name(svc))
	if sd == nil {
		panic(fmt.Sprintf("rpc: service %s not found in %s", svc, fd.Path()))
	}
	md := sd.Methods().ByName(protoreflect.Name(method))
	if md == nil {
		panic(fmt.Sprintf("rpc: method %s.%s not found", svc, method))
	}
	return md
}

func field(m protoreflect.Message, name string) protoreflect.FieldDescriptor {
	fd := m.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		panic(fmt.Sprintf("rpc: field %s not found in %s", name, m.Descriptor().FullName()))
	}
	return fd
}

func SetString(m protoreflect.Message, name, value string) {
	m.Set(field(m, name), protoreflect.ValueOfString(value))
}

func GetString(m protoreflect.Message, name string) string {
	return m.Get(field(m, name)).String()
}

func SetBool(m protoreflect.Message, name string, value bool) {
	m.Set(field(m, name), protoreflect.ValueOfBool(value))
}

func GetBool(m protoreflect.Message, name string) bool {
	return m.Get(field(m, name)).Bool()
}

func SetDouble(m protoreflect.Message, name string, value float64) {
	m.Set(field(m, name), protoreflect.ValueOfFloat64(value))
}

func GetDouble(m protoreflect.Message, name string) float64 {
	return m.Get(field(m, name)).Float()
}

func SetInt32(m protoreflect.Message, name string, value int32) {
	m.Set(field(m, name), protoreflect.ValueOfInt32(value))
}

func GetInt32(m protoreflect.Message, name string) int32 {
	return int32(m.Get(field(m, name)).Int())
}

// SetOptionalDouble stores value in a DoubleValue wrapper field; nil clears it.
func SetOptionalDouble(m protoreflect.Message, name string, value *float64) {
	fd := field(m, name)
	if value == nil {
		m.Clear(fd)
		return
	}
	m.Set(fd, protoreflect.ValueOfMessage(wrapperspb.Double(*value).ProtoReflect()))
}

// GetOptionalDouble reads a DoubleValue wrapper field; unset yields nil.
func GetOptionalDouble(m protoreflect.Message, name string) *float64 {
	inner, ok := wrapped(m, name)
	if !ok {
		return nil
	}
	v := inner.Float()
	return &v
}

// SetOptionalBool stores value in a BoolValue wrapper field; nil clears it.
func SetOptionalBool(m protoreflect.Message, name string, value *bool) {
	fd := field(m, name)
	if value == nil {
		m.Clear(fd)
		return
	}
	m.Set(fd, protoreflect.ValueOfMessage(wrapperspb.Bool(*value).ProtoReflect()))
}

// GetOptionalBool reads a BoolValue wrapper field; unset yields nil.
func GetOptionalBool(m protoreflect.Message, name string) *bool {
	inner, ok := wrapped(m, name)
	if !ok {
		return nil
	}
	v := inner.Bool()
	return &v
}

func wrapped(m protoreflect.Message, name string) (protoreflect.Value, bool) {
	fd := field(m, name)
	if !m.Has(fd) {
		return protoreflect.Value{}, false
	}
	w := m.Get(fd).Message()
	return w.Get(w.Descriptor().Fields().ByName("value")), true
}

// SetMessage stores a message of the field's type and returns it for filling in.
func SetMessage(m protoreflect.Message, name string) protoreflect.Message {
	return m.Mutable(field(m, name)).Message()
}

// GetMessage returns the message field, or false when unset.
func GetMessage(m protoreflect.Message, name string) (protoreflect.Message, bool) {
	fd := field(m, name)
	if !m.Has(fd) {
		return nil, false
	}
	return m.Get(fd).Message(), true
}

// AppendMessage adds an element to a repeated message field and returns it.
func AppendMessage(m protoreflect.Message, name string) protoreflect.Message {
	list := m.Mutable(field(m, name)).List()
	elem := list.NewElement()
	list.Append(elem)
	return elem.Message()
}

// AppendString adds a value to a repeated string field.
func AppendString(m protoreflect.Message, name, value string) {
	m.Mutable(field(m, name)).List().Append(protoreflect.ValueOfString(value))
}

// Messages returns the elements of a repeated message field.
func Messages(m protoreflect.Message, name string) []protoreflect.Message {
	list := m.Get(field(m, name)).List()
	out := make([]protoreflect.Message, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		out = append(out, list.Get(i).Message())
	}
	return out
}

// Strings returns the elements of a repeated string field.
func Strings(m protoreflect.Message, name string) []string {
	list := m.Get(field(m, name)).List()
	out := make([]string, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		out = append(out, list.Get(i).String())
	}
	return out
}
