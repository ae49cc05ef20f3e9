// Package wire defines the two payload kinds carried on the persistent
// connection: binary frames of raw PCM16 audio and UTF-8 JSON control
// messages. It is stateless translation only; transport and ordering are
// the connection layer's concern.
package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies the framing of a payload on the connection.
type Kind int

const (
	// KindBinary carries raw PCM16 little-endian audio samples.
	KindBinary Kind = iota
	// KindText carries a UTF-8 JSON control message.
	KindText
)

// String returns a human-readable payload kind.
func (k Kind) String() string {
	switch k {
	case KindBinary:
		return "binary"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// MessageType identifies a JSON control message.
type MessageType string

const (
	// Client → server
	TypeConfig MessageType = "config" // audio format, once per connection
	TypeText   MessageType = "text"   // client-originated text payload

	// Server → client
	TypeTranscription MessageType = "transcription"
	TypeResponse      MessageType = "response"
	TypeError         MessageType = "error"

)

// ControlMessage is the decoded form of a JSON control message.
// Exactly the fields for the message's Type are meaningful.
type ControlMessage struct {
	Type MessageType `json:"type"`

	// config
	SampleRate int    `json:"sampleRate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Encoding   string `json:"encoding,omitempty"`

	// transcription / response
	Text string `json:"text,omitempty"`

	// error
	Message string `json:"message,omitempty"`

	// text (client-originated)
	Content   string `json:"content,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"` // Unix milliseconds
}

// NewConfig builds the config handshake message the client sends once
// after each successful connection.
func NewConfig(sampleRate, channels int, encoding string) ControlMessage {
	return ControlMessage{
		Type:       TypeConfig,
		SampleRate: sampleRate,
		Channels:   channels,
		Encoding:   encoding,
	}
}

// NewText builds a client-originated text message.
func NewText(content string) ControlMessage {
	return ControlMessage{
		Type:      TypeText,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Encode returns the JSON encoding of the message.
func (m ControlMessage) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s message: %w", m.Type, err)
	}
	return data, nil
}

// Decode parses a JSON control message. A syntactically valid message with
// an unrecognized type decodes successfully with Known() == false; callers
// drop it and continue. Malformed JSON is an error.
func Decode(data []byte) (ControlMessage, error) {
	var m ControlMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return ControlMessage{}, fmt.Errorf("wire: decode message: %w", err)
	}
	return m, nil
}

// Known reports whether the message type is one this client understands.
func (m ControlMessage) Known() bool {
	switch m.Type {
	case TypeConfig, TypeText, TypeTranscription, TypeResponse, TypeError:
		return true
	default:
		return false
	}
}
