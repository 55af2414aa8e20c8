package server

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"srpc/errs"
)

// Service is the adapter contract the server consumes. Given a method name
// and the still-encoded positional argument array, an adapter returns either
// a JSON-encodable result value or a failure kind.
//
// Adapters must return NoSuchMethod for unknown methods and
// ArgumentsNotMatch when the argument array does not decode into the
// method's parameter types.
type Service interface {
	Invoke(method string, args json.RawMessage) (any, *errs.Error)
}

// methodType stores the reflection metadata for a single exposed method.
type methodType struct {
	method   reflect.Method
	argTypes []reflect.Type // Parameter types after the receiver
	hasErr   bool           // Last return value is error
}

// typeList renders the parameter types for the ArgumentsNotMatch detail,
// e.g. "int,int".
func (m *methodType) typeList() string {
	names := make([]string, len(m.argTypes))
	for i, t := range m.argTypes {
		names[i] = t.String()
	}
	return strings.Join(names, ",")
}

// service is the reflection-based Service adapter. It wraps a user-defined
// struct pointer and maps method names to their reflection metadata, so a
// plain implementation becomes registerable without generated code.
type service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType
}

// NewService builds an adapter from a pointer to a struct. The service name
// is the struct name; every exported method is exposed.
//
// Method shape: any number of JSON-decodable parameters, any number of
// return values, optionally ending with an error. Multi-value returns reach
// the caller as a JSON array; a non-nil trailing error becomes kind Other.
func NewService(rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("rpc: rcvr must be a pointer, got %v", typ)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("rpc: rcvr must point to a struct, got %s", typ.Elem().Kind())
	}

	srv := &service{
		name:   typ.Elem().Name(),
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}
	srv.registerMethods()
	return srv, nil
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// registerMethods scans the receiver's exported methods and records their
// parameter and return shapes for dispatch.
func (s *service) registerMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		method := s.typ.Method(i)

		mt := &methodType{method: method}
		// Inputs after the receiver are the call's positional arguments
		for j := 1; j < method.Type.NumIn(); j++ {
			mt.argTypes = append(mt.argTypes, method.Type.In(j))
		}
		if n := method.Type.NumOut(); n > 0 && method.Type.Out(n-1) == errorType {
			mt.hasErr = true
		}
		s.method[method.Name] = mt
	}
}

// Invoke implements Service: decode the positional arguments, call the
// method, and encode its return values.
func (s *service) Invoke(method string, args json.RawMessage) (any, *errs.Error) {
	mt, ok := s.method[method]
	if !ok {
		return nil, errs.New(errs.NoSuchMethod, "")
	}

	argv, err := s.decodeArgs(mt, args)
	if err != nil {
		return nil, errs.New(errs.ArgumentsNotMatch,
			"Arguments are not of type (%s) for method '%s'", mt.typeList(), mt.method.Name)
	}

	in := append([]reflect.Value{s.rcvr}, argv...)
	out := mt.method.Func.Call(in)

	if mt.hasErr {
		if errv := out[len(out)-1]; !errv.IsNil() {
			return nil, errs.New(errs.Other, "%v", errv.Interface())
		}
		out = out[:len(out)-1]
	}

	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0].Interface(), nil
	default:
		results := make([]any, len(out))
		for i, v := range out {
			results[i] = v.Interface()
		}
		return results, nil
	}
}

// decodeArgs unpacks the JSON argument array into one value per parameter.
func (s *service) decodeArgs(mt *methodType, args json.RawMessage) ([]reflect.Value, error) {
	var raw []json.RawMessage
	if len(args) > 0 {
		if err := json.Unmarshal(args, &raw); err != nil {
			return nil, err
		}
	}
	if len(raw) != len(mt.argTypes) {
		return nil, fmt.Errorf("got %d arguments, want %d", len(raw), len(mt.argTypes))
	}

	argv := make([]reflect.Value, len(raw))
	for i, r := range raw {
		v := reflect.New(mt.argTypes[i])
		if err := json.Unmarshal(r, v.Interface()); err != nil {
			return nil, err
		}
		argv[i] = v.Elem()
	}
	return argv, nil
}
