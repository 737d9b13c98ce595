package types

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// FrameType tags one envelope exchanged over a client connection.
type FrameType string

// Inbound frame types (client -> relay)
const (
	FrameTextMessage  FrameType = "text_message"
	FrameAudioMessage FrameType = "audio_message"
	FrameAudioData    FrameType = "audio-data"
	FrameGetHistory   FrameType = "get_history"
	FrameStartGemini  FrameType = "start-gemini"
	FrameStopGemini   FrameType = "stop-gemini"
)

// Outbound frame types (relay -> client)
const (
	FrameWelcome             FrameType = "welcome"
	FrameTextResponse        FrameType = "text_response"
	FrameAudioResponse       FrameType = "audio_response"
	FrameConversationHistory FrameType = "conversation_history"
	FrameGeminiReady         FrameType = "gemini-ready"
	FrameGeminiResponse      FrameType = "gemini-response"
	FrameGeminiAudioResponse FrameType = "gemini-audio-response"
	FrameError               FrameType = "error"
)

// Frame is a decoded inbound envelope: a type tag plus the remaining
// payload fields preserved as an opaque mapping for the handler to
// interpret. Immutable once constructed.
type Frame struct {
	Type   FrameType
	fields map[string]json.RawMessage
}

// DecodeFrame parses one inbound text frame. It fails with a
// MALFORMED_FRAME error when the bytes are not a JSON object or the
// "type" field is missing or not a string. Unknown type strings decode
// successfully; dispatching on them is the caller's concern.
func DecodeFrame(raw []byte) (*Frame, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, NewError(ErrMalformedFrame, "Invalid JSON format").WithCause(err)
	}

	rawType, ok := fields["type"]
	if !ok {
		return nil, NewError(ErrMalformedFrame, "missing type field")
	}
	var typ string
	if err := json.Unmarshal(rawType, &typ); err != nil {
		return nil, NewError(ErrMalformedFrame, "type field is not a string").WithCause(err)
	}
	delete(fields, "type")

	return &Frame{Type: FrameType(typ), fields: fields}, nil
}

// StringField returns the named payload field as a string, or "" when
// the field is absent or not a JSON string.
func (f *Frame) StringField(key string) string {
	raw, ok := f.fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// BytesField decodes the named payload field from standard base64.
// Absent fields yield an empty slice; invalid base64 is a
// MALFORMED_FRAME error.
func (f *Frame) BytesField(key string) ([]byte, error) {
	encoded := f.StringField(key)
	if encoded == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, NewError(ErrMalformedFrame, "invalid base64 payload").WithCause(err)
	}
	return data, nil
}

// Has reports whether the named payload field is present.
func (f *Frame) Has(key string) bool {
	_, ok := f.fields[key]
	return ok
}

// Outbound is implemented by every relay -> client envelope.
type Outbound interface {
	FrameType() FrameType
}

// Welcome greets a freshly accepted connection.
type Welcome struct {
	Type     FrameType `json:"type"`
	Message  string    `json:"message"`
	ClientID string    `json:"client_id"`
}

// TextResponse answers a text_message.
type TextResponse struct {
	Type      FrameType `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// AudioResponse acknowledges an audio_message.
type AudioResponse struct {
	Type      FrameType `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationHistory carries the full per-session history snapshot.
type ConversationHistory struct {
	Type      FrameType      `json:"type"`
	History   []HistoryEntry `json:"history"`
	Timestamp time.Time      `json:"timestamp"`
}

// GeminiReady signals a completed upstream handshake.
type GeminiReady struct {
	Type    FrameType `json:"type"`
	Message string    `json:"message"`
}

// GeminiResponse relays one upstream text fragment.
type GeminiResponse struct {
	Type      FrameType `json:"type"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// GeminiAudioResponse relays one upstream audio chunk, base64-encoded.
type GeminiAudioResponse struct {
	Type      FrameType `json:"type"`
	AudioData string    `json:"audioData"`
	MimeType  string    `json:"mimeType"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorFrame reports a failure to the client without closing the connection.
type ErrorFrame struct {
	Type    FrameType `json:"type"`
	Message string    `json:"message"`
}

func (Welcome) FrameType() FrameType             { return FrameWelcome }
func (TextResponse) FrameType() FrameType        { return FrameTextResponse }
func (AudioResponse) FrameType() FrameType       { return FrameAudioResponse }
func (ConversationHistory) FrameType() FrameType { return FrameConversationHistory }
func (GeminiReady) FrameType() FrameType         { return FrameGeminiReady }
func (GeminiResponse) FrameType() FrameType      { return FrameGeminiResponse }
func (GeminiAudioResponse) FrameType() FrameType { return FrameGeminiAudioResponse }
func (ErrorFrame) FrameType() FrameType          { return FrameError }

// NewWelcome creates the connection greeting envelope.
func NewWelcome(clientID string) Welcome {
	return Welcome{Type: FrameWelcome, Message: "Connected to conversation server", ClientID: clientID}
}

// NewTextResponse creates a text_response envelope.
func NewTextResponse(message string) TextResponse {
	return TextResponse{Type: FrameTextResponse, Message: message, Timestamp: time.Now()}
}

// NewAudioResponse creates the audio_message acknowledgement envelope.
func NewAudioResponse() AudioResponse {
	return AudioResponse{Type: FrameAudioResponse, Message: "Audio received and processed", Timestamp: time.Now()}
}

// NewConversationHistory creates a conversation_history envelope.
// A nil snapshot serializes as an empty array, not null.
func NewConversationHistory(history []HistoryEntry) ConversationHistory {
	if history == nil {
		history = []HistoryEntry{}
	}
	return ConversationHistory{Type: FrameConversationHistory, History: history, Timestamp: time.Now()}
}

// NewGeminiReady creates a gemini-ready envelope.
func NewGeminiReady(message string) GeminiReady {
	return GeminiReady{Type: FrameGeminiReady, Message: message}
}

// NewGeminiResponse creates a gemini-response envelope.
func NewGeminiResponse(text string) GeminiResponse {
	return GeminiResponse{Type: FrameGeminiResponse, Text: text, Timestamp: time.Now()}
}

// NewGeminiAudioResponse creates a gemini-audio-response envelope,
// base64-encoding the raw upstream bytes.
func NewGeminiAudioResponse(data []byte, mimeType string) GeminiAudioResponse {
	return GeminiAudioResponse{
		Type:      FrameGeminiAudioResponse,
		AudioData: base64.StdEncoding.EncodeToString(data),
		MimeType:  mimeType,
		Timestamp: time.Now(),
	}
}

// NewErrorFrame creates an error envelope.
func NewErrorFrame(message string) ErrorFrame {
	return ErrorFrame{Type: FrameError, Message: message}
}

// EncodeFrame serializes an outbound envelope to its wire form.
// Total for every envelope constructed through the New* helpers:
// the outbound set is closed and contains no unmarshalable values.
func EncodeFrame(v Outbound) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Unreachable for the closed outbound set; kept as a guard so a
		// future envelope carrying a bad value fails loudly in tests.
		panic("liverelay/types: encode frame: " + err.Error())
	}
	return data
}
