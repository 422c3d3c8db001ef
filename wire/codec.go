package wire

import (
	"encoding/json"
	"fmt"

	"github.com/BaSui01/streambridge/types"
)

// 每种消息类型一个序列化形状，只输出该类型拥有的字段

type headWire struct {
	Type      Type   `json:"type"`
	RequestID string `json:"requestId"`
	Head
}

type bodyWire struct {
	Type      Type   `json:"type"`
	RequestID string `json:"requestId"`
	Content   []byte `json:"content"`
}

type endWire struct {
	Type      Type   `json:"type"`
	RequestID string `json:"requestId"`
	Status    int    `json:"status"`
}

type controlWire struct {
	Type      Type   `json:"type"`
	RequestID string `json:"requestId"`
}

type requestWire struct {
	Type      Type   `json:"type"`
	RequestID string `json:"requestId"`
	Request
}

// envelope is the union used for decoding.
type envelope struct {
	Type           Type              `json:"type"`
	RequestID      string            `json:"requestId"`
	ContentType    string            `json:"contentType"`
	ContentLength  *int64            `json:"contentLength"`
	ContentCharset string            `json:"contentCharset"`
	Content        []byte            `json:"content"`
	Status         int               `json:"status"`
	URL            string            `json:"url"`
	Method         string            `json:"method"`
	Headers        map[string]string `json:"headers"`
	OnDemand       bool              `json:"onDemand"`
}

// MarshalJSON implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case TypeHead:
		return json.Marshal(headWire{Type: m.Type, RequestID: m.RequestID, Head: m.Head})
	case TypeBody:
		content := m.Content
		if content == nil {
			content = []byte{}
		}
		return json.Marshal(bodyWire{Type: m.Type, RequestID: m.RequestID, Content: content})
	case TypeEnd:
		return json.Marshal(endWire{Type: m.Type, RequestID: m.RequestID, Status: m.Status})
	case TypeRequest:
		return json.Marshal(requestWire{Type: m.Type, RequestID: m.RequestID, Request: m.Request})
	case TypePull, TypeCancel, TypePause, TypeResume:
		return json.Marshal(controlWire{Type: m.Type, RequestID: m.RequestID})
	default:
		return nil, fmt.Errorf("unknown message type %q", m.Type)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	*m = Message{Type: env.Type, RequestID: env.RequestID}
	switch env.Type {
	case TypeHead:
		m.Head = Head{
			ContentType:    env.ContentType,
			ContentLength:  env.ContentLength,
			ContentCharset: env.ContentCharset,
		}
	case TypeBody:
		m.Content = env.Content
		if m.Content == nil {
			m.Content = []byte{}
		}
	case TypeEnd:
		m.Status = env.Status
	case TypeRequest:
		m.Request = Request{
			URL:      env.URL,
			Method:   env.Method,
			Headers:  env.Headers,
			OnDemand: env.OnDemand,
		}
	}
	return nil
}

// Encode validates and serializes a message for the channel.
func Encode(m *Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, types.NewError(types.ErrInvalidMessage, "encode").WithCause(err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidMessage, "encode").
			WithStreamID(m.RequestID).WithCause(err)
	}
	return data, nil
}

// Decode parses and validates a message received from the channel.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, types.NewError(types.ErrInvalidMessage, "decode").WithCause(err)
	}
	if err := m.Validate(); err != nil {
		return nil, types.NewError(types.ErrInvalidMessage, "decode").
			WithStreamID(m.RequestID).WithCause(err)
	}
	return &m, nil
}
