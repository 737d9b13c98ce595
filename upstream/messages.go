package upstream

import (
	"encoding/base64"
)

// Gemini Live wire envelopes. Field layout follows the BidiGenerateContent
// protocol: one top-level key per message kind, camelCase field names.

type setupMessage struct {
	Setup setupPayload `json:"setup"`
}

type setupPayload struct {
	Model             string           `json:"model"`
	GenerationConfig  generationConfig `json:"generationConfig"`
	SystemInstruction *contentPayload  `json:"systemInstruction,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities"`
}

type contentPayload struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // standard base64
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []inlineData `json:"mediaChunks"`
}

type clientContentMessage struct {
	ClientContent clientContent `json:"clientContent"`
}

type clientContent struct {
	Turns        []contentPayload `json:"turns"`
	TurnComplete bool             `json:"turnComplete"`
}

type serverMessage struct {
	SetupComplete map[string]any `json:"setupComplete,omitempty"`
	ServerContent *serverContent `json:"serverContent,omitempty"`
}

type serverContent struct {
	ModelTurn    *contentPayload `json:"modelTurn,omitempty"`
	TurnComplete bool            `json:"turnComplete,omitempty"`
}

// Message is one translated upstream response: either a text fragment
// or a raw binary chunk tagged with its MIME type.
type Message struct {
	Text     string
	Data     []byte
	MimeType string
}

// translate unwraps a server message into the content it actually
// carries. Envelopes with neither text nor inline data (setupComplete
// acks, bare turnComplete markers) yield nothing.
func (m *serverMessage) translate() []Message {
	if m.ServerContent == nil || m.ServerContent.ModelTurn == nil {
		return nil
	}

	var out []Message
	for _, p := range m.ServerContent.ModelTurn.Parts {
		if p.Text != "" {
			out = append(out, Message{Text: p.Text})
			continue
		}
		if p.InlineData != nil && p.InlineData.Data != "" {
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				continue
			}
			out = append(out, Message{Data: data, MimeType: p.InlineData.MimeType})
		}
	}
	return out
}
