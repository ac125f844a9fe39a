package protocol

import (
	"fmt"
	"math"
	"time"
)

// ChatMessage is the payload of a newMessage event.
type ChatMessage struct {
	User      string
	Content   string
	Timestamp time.Time
}

func (m ChatMessage) fields() map[string]any {
	out := map[string]any{
		"user":    m.User,
		"content": m.Content,
	}
	if !m.Timestamp.IsZero() {
		out["timestamp"] = m.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return out
}

// SendPayload is the payload of an outbound message event.
type SendPayload struct {
	Content string
}

func (p SendPayload) fields() map[string]any {
	return map[string]any{"content": p.Content}
}

// ErrorPayload is the payload of error and connect_error events.
type ErrorPayload struct {
	Message string
}

func (p ErrorPayload) fields() map[string]any {
	return map[string]any{"message": p.Message}
}

// DecodeChatMessage reads a newMessage payload. The timestamp may be an
// RFC 3339 string or epoch milliseconds; when absent or unparsable the
// returned Timestamp is zero.
func DecodeChatMessage(data any) (ChatMessage, error) {
	m, ok := data.(map[string]any)
	if !ok {
		return ChatMessage{}, fmt.Errorf("chat message payload must be an object, got %T", data)
	}
	user, _ := m["user"].(string)
	content, _ := m["content"].(string)
	return ChatMessage{
		User:      user,
		Content:   content,
		Timestamp: decodeTime(m["timestamp"]),
	}, nil
}

// DecodeSendPayload reads the payload of an outbound message event.
func DecodeSendPayload(data any) (SendPayload, error) {
	m, ok := data.(map[string]any)
	if !ok {
		return SendPayload{}, fmt.Errorf("message payload must be an object, got %T", data)
	}
	content, ok := m["content"].(string)
	if !ok {
		return SendPayload{}, fmt.Errorf("message payload is missing content")
	}
	return SendPayload{Content: content}, nil
}

// DecodeName reads a single user name payload. Anything other than a string
// yields "".
func DecodeName(data any) string {
	name, _ := data.(string)
	return name
}

// DecodeNames reads a roster payload, preserving order and duplicates.
func DecodeNames(data any) ([]string, error) {
	if data == nil {
		return []string{}, nil
	}
	list, ok := data.([]any)
	if !ok {
		return nil, fmt.Errorf("roster payload must be a list, got %T", data)
	}
	names := make([]string, 0, len(list))
	for i, v := range list {
		name, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("roster entry %d must be a string, got %T", i, v)
		}
		names = append(names, name)
	}
	return names, nil
}

// DecodeErrorMessage reads the message of an error payload, which may be a
// bare string or an object with a message field.
func DecodeErrorMessage(data any) string {
	switch t := data.(type) {
	case string:
		return t
	case map[string]any:
		msg, _ := t["message"].(string)
		return msg
	default:
		return ""
	}
}

func decodeTime(v any) time.Time {
	switch t := v.(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts
			}
		}
	case float64:
		if t > 0 && t < math.MaxInt64 {
			return time.UnixMilli(int64(t))
		}
	}
	return time.Time{}
}
