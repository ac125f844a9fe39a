// Package protocol defines the named-event frames exchanged between the chat
// client and server.
package protocol

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Event names used on the wire.
const (
	// Client to server.
	EventJoin    = "join"
	EventMessage = "message"

	// Both directions: a request from the client, the roster snapshot from
	// the server.
	EventActiveUsers = "getActiveUsers"

	// Server to client.
	EventNewMessage   = "newMessage"
	EventUserJoined   = "userJoined"
	EventUserLeft     = "userLeft"
	EventConnectError = "connect_error"
	EventError        = "error"
)

const (
	fieldEvent = "event"
	fieldData  = "data"
)

// Frame is a single named event with an optional payload.
//
// Data holds plain values only: nil, string, bool, numbers, []any,
// map[string]any, or one of the payload types of this package. After Decode
// it holds what structpb produces (string, float64, []any, map[string]any).
type Frame struct {
	Event string
	Data  any
}

// Encode encodes the frame into bytes using protobuf
func (f *Frame) Encode() ([]byte, error) {
	pbFrame, err := f.toProto()
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	data, err := proto.Marshal(pbFrame)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

// Decode decodes bytes into a frame using protobuf
func (f *Frame) Decode(data []byte) error {
	pbFrame := &structpb.Struct{}
	if err := proto.Unmarshal(data, pbFrame); err != nil {
		return fmt.Errorf("failed to decode frame: %w", err)
	}
	if err := f.fromProto(pbFrame); err != nil {
		return fmt.Errorf("failed to decode frame: %w", err)
	}
	return nil
}

// toProto converts the Frame into the structpb envelope sent on the wire.
func (f *Frame) toProto() (*structpb.Struct, error) {
	if f.Event == "" {
		return nil, fmt.Errorf("event name is required")
	}
	fields := map[string]any{fieldEvent: f.Event}
	data, err := plain(f.Data)
	if err != nil {
		return nil, err
	}
	if data != nil {
		fields[fieldData] = data
	}
	return structpb.NewStruct(fields)
}

// fromProto populates the Frame from the structpb envelope.
func (f *Frame) fromProto(pbFrame *structpb.Struct) error {
	event := pbFrame.GetFields()[fieldEvent].GetStringValue()
	if event == "" {
		return fmt.Errorf("missing event name")
	}
	f.Event = event
	f.Data = nil
	if v, ok := pbFrame.GetFields()[fieldData]; ok {
		f.Data = v.AsInterface()
	}
	return nil
}

// fielder is implemented by the payload types of this package.
type fielder interface {
	fields() map[string]any
}

// plain converts a payload into values structpb accepts.
func plain(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string, bool, int, int32, int64, float64, []any, map[string]any:
		return t, nil
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, nil
	case fielder:
		return t.fields(), nil
	default:
		return nil, fmt.Errorf("unsupported payload type %T", v)
	}
}
