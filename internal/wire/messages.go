// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package wire

import (
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"
)

// Field names used in messages.
const (
	FieldPhase   = "phase"
	FieldBroker  = "broker"
	FieldCallID  = "call_id"
	FieldMethod  = "method"
	FieldMethods = "methods"
	FieldArgs    = "args"
	FieldValue   = "value"
	FieldRefs    = "refs"
	FieldKey     = "key"
	FieldName    = "name"
	FieldFound   = "found"
	FieldID      = "id"
	FieldVersion = "version"
	FieldState   = "state"
)

// Lifecycle phases carried in FieldPhase.
const (
	PhaseCreate  = "create"
	PhaseStart   = "start"
	PhaseEnd     = "end"
	PhaseDestroy = "destroy"
)

func str(s *structpb.Struct, field string) string {
	return s.GetFields()[field].GetStringValue()
}

// NewLifecycleRequest asks the plugin to run the hook for phase. broker is
// the broker id of the host service, sent with the create phase only.
func NewLifecycleRequest(phase, callID string, broker uint32) *structpb.Struct {
	fields := map[string]*structpb.Value{
		FieldPhase:  structpb.NewStringValue(phase),
		FieldCallID: structpb.NewStringValue(callID),
	}
	if broker != 0 {
		fields[FieldBroker] = structpb.NewNumberValue(float64(broker))
	}
	return &structpb.Struct{Fields: fields}
}

// LifecycleRequest is a decoded lifecycle request.
type LifecycleRequest struct {
	Phase  string
	CallID string
	Broker uint32
}

// ParseLifecycleRequest decodes a request built by NewLifecycleRequest.
func ParseLifecycleRequest(s *structpb.Struct) LifecycleRequest {
	return LifecycleRequest{
		Phase:  str(s, FieldPhase),
		CallID: str(s, FieldCallID),
		Broker: uint32(s.GetFields()[FieldBroker].GetNumberValue()),
	}
}

// NewDescription lists the methods a plugin serves.
func NewDescription(name string, methods []string) *structpb.Struct {
	list := &structpb.ListValue{}
	for _, m := range methods {
		list.Values = append(list.Values, structpb.NewStringValue(m))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldName:    structpb.NewStringValue(name),
		FieldMethods: structpb.NewListValue(list),
	}}
}

// ParseDescription returns the methods of a description.
func ParseDescription(s *structpb.Struct) []string {
	var out []string
	for _, v := range s.GetFields()[FieldMethods].GetListValue().GetValues() {
		out = append(out, v.GetStringValue())
	}
	return out
}

// NewCallRequest asks the plugin to run method with args.
func NewCallRequest(method, callID string, args []any, isNone NoneChecker) (*structpb.Struct, error) {
	list, err := ToList(args, isNone)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldMethod: structpb.NewStringValue(method),
		FieldCallID: structpb.NewStringValue(callID),
		FieldArgs:   structpb.NewListValue(list),
	}}, nil
}

// CallRequest is a decoded call or invoke request.
type CallRequest struct {
	Method string
	CallID string
	Args   []any
}

// ParseCallRequest decodes a request built by NewCallRequest.
func ParseCallRequest(s *structpb.Struct) CallRequest {
	return CallRequest{
		Method: str(s, FieldMethod),
		CallID: str(s, FieldCallID),
		Args:   FromList(s.GetFields()[FieldArgs].GetListValue()),
	}
}

// NewInvokeRequest asks the host to invoke key with args. callID links the
// request to the host call the plugin is serving, if any.
func NewInvokeRequest(key, callID string, args []any) (*structpb.Struct, error) {
	req, err := NewCallRequest(key, callID, args, nil)
	if err != nil {
		return nil, err
	}
	req.Fields[FieldKey] = req.Fields[FieldMethod]
	delete(req.Fields, FieldMethod)
	return req, nil
}

// ParseInvokeRequest decodes a request built by NewInvokeRequest. The key
// is returned in Method.
func ParseInvokeRequest(s *structpb.Struct) CallRequest {
	return CallRequest{
		Method: str(s, FieldKey),
		CallID: str(s, FieldCallID),
		Args:   FromList(s.GetFields()[FieldArgs].GetListValue()),
	}
}

// NewResult encodes a call outcome. refs maps parameter index to the new
// value of a by-reference parameter.
func NewResult(value any, refs map[int]any, isNone NoneChecker) (*structpb.Struct, error) {
	v, err := ToValue(value, isNone)
	if err != nil {
		return nil, err
	}
	refFields := make(map[string]*structpb.Value, len(refs))
	for i, r := range refs {
		enc, err := ToValue(r, isNone)
		if err != nil {
			return nil, err
		}
		refFields[strconv.Itoa(i)] = enc
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldValue: v,
		FieldRefs:  structpb.NewStructValue(&structpb.Struct{Fields: refFields}),
	}}, nil
}

// Result is a decoded call outcome.
type Result struct {
	Value any
	Refs  map[int]any
}

// ParseResult decodes a result built by NewResult. Ref keys that are not
// indexes are ignored.
func ParseResult(s *structpb.Struct) Result {
	res := Result{Value: FromValue(s.GetFields()[FieldValue])}
	for k, v := range s.GetFields()[FieldRefs].GetStructValue().GetFields() {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 {
			continue
		}
		if res.Refs == nil {
			res.Refs = make(map[int]any)
		}
		res.Refs[i] = FromValue(v)
	}
	return res
}

// NewFindPluginRequest asks the host for a plugin by name.
func NewFindPluginRequest(name string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldName: structpb.NewStringValue(name),
	}}
}

// PluginInfo describes a live plugin.
type PluginInfo struct {
	Name    string
	ID      string
	Version string
	State   string
}

// NewPluginInfo encodes a FindPlugin reply. A nil info means not found.
func NewPluginInfo(info *PluginInfo) *structpb.Struct {
	if info == nil {
		return &structpb.Struct{Fields: map[string]*structpb.Value{
			FieldFound: structpb.NewBoolValue(false),
		}}
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldFound:   structpb.NewBoolValue(true),
		FieldName:    structpb.NewStringValue(info.Name),
		FieldID:      structpb.NewStringValue(info.ID),
		FieldVersion: structpb.NewStringValue(info.Version),
		FieldState:   structpb.NewStringValue(info.State),
	}}
}

// ParsePluginInfo decodes a FindPlugin reply.
func ParsePluginInfo(s *structpb.Struct) (PluginInfo, bool) {
	if !s.GetFields()[FieldFound].GetBoolValue() {
		return PluginInfo{}, false
	}
	return PluginInfo{
		Name:    str(s, FieldName),
		ID:      str(s, FieldID),
		Version: str(s, FieldVersion),
		State:   str(s, FieldState),
	}, true
}

// NameOf returns the name field of a request.
func NameOf(s *structpb.Struct) string {
	return str(s, FieldName)
}
