package types

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantType FrameType
		wantErr  bool
	}{
		{
			name:     "text message",
			raw:      `{"type":"text_message","message":"Hello there"}`,
			wantType: FrameTextMessage,
		},
		{
			name:     "get history without payload",
			raw:      `{"type":"get_history"}`,
			wantType: FrameGetHistory,
		},
		{
			name:     "unknown type decodes",
			raw:      `{"type":"made-up","x":1}`,
			wantType: FrameType("made-up"),
		},
		{
			name:    "not json",
			raw:     `not-json`,
			wantErr: true,
		},
		{
			name:    "json but not an object",
			raw:     `[1,2,3]`,
			wantErr: true,
		},
		{
			name:    "missing type field",
			raw:     `{"message":"hi"}`,
			wantErr: true,
		},
		{
			name:    "non-string type field",
			raw:     `{"type":42}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := DecodeFrame([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, ErrMalformedFrame, GetErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, frame.Type)
		})
	}
}

func TestFrame_StringField(t *testing.T) {
	frame, err := DecodeFrame([]byte(`{"type":"text_message","message":"hi","count":3}`))
	require.NoError(t, err)

	assert.Equal(t, "hi", frame.StringField("message"))
	assert.Equal(t, "", frame.StringField("absent"))
	// Non-string fields degrade to empty, they do not panic.
	assert.Equal(t, "", frame.StringField("count"))
	assert.True(t, frame.Has("count"))
	assert.False(t, frame.Has("type"))
}

func TestFrame_BytesField(t *testing.T) {
	payload := []byte{0x00, 0xFF, 0x80, 0x01}
	raw, err := json.Marshal(map[string]string{
		"type":      "audio-data",
		"audioData": base64.StdEncoding.EncodeToString(payload),
	})
	require.NoError(t, err)

	frame, err := DecodeFrame(raw)
	require.NoError(t, err)

	got, err := frame.BytesField("audioData")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	absent, err := frame.BytesField("missing")
	require.NoError(t, err)
	assert.Nil(t, absent)
}

func TestFrame_BytesField_InvalidBase64(t *testing.T) {
	frame, err := DecodeFrame([]byte(`{"type":"audio-data","audioData":"%%%not-base64%%%"}`))
	require.NoError(t, err)

	_, err = frame.BytesField("audioData")
	require.Error(t, err)
	assert.Equal(t, ErrMalformedFrame, GetErrorCode(err))
}

func TestEncodeFrame_WireShapes(t *testing.T) {
	tests := []struct {
		name     string
		envelope Outbound
		want     map[string]any
	}{
		{
			name:     "welcome",
			envelope: NewWelcome("client-1"),
			want: map[string]any{
				"type":      "welcome",
				"message":   "Connected to conversation server",
				"client_id": "client-1",
			},
		},
		{
			name:     "error",
			envelope: NewErrorFrame("Invalid JSON format"),
			want: map[string]any{
				"type":    "error",
				"message": "Invalid JSON format",
			},
		},
		{
			name:     "gemini ready",
			envelope: NewGeminiReady("Gemini Live session started, ready for audio"),
			want: map[string]any{
				"type":    "gemini-ready",
				"message": "Gemini Live session started, ready for audio",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]any
			require.NoError(t, json.Unmarshal(EncodeFrame(tt.envelope), &got))
			for key, want := range tt.want {
				assert.Equal(t, want, got[key], "field %q", key)
			}
		})
	}
}

func TestEncodeFrame_EmptyHistoryIsArray(t *testing.T) {
	data := EncodeFrame(NewConversationHistory(nil))
	assert.Contains(t, string(data), `"history":[]`)
}

// Decode(Encode(e)) preserves the type tag and every payload field for
// outbound envelopes carrying binary payloads of any size.
func TestAudioRoundTrip_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 0, 2048).Draw(t, "payload")
		mime := rapid.SampledFrom([]string{"audio/pcm", "audio/pcm;rate=16000", "audio/wav"}).Draw(t, "mime")

		encoded := EncodeFrame(NewGeminiAudioResponse(payload, mime))
		frame, err := DecodeFrame(encoded)
		require.NoError(t, err)

		require.Equal(t, FrameGeminiAudioResponse, frame.Type)
		got, err := frame.BytesField("audioData")
		require.NoError(t, err)
		if len(payload) == 0 {
			require.Empty(t, got)
		} else {
			require.Equal(t, payload, got)
		}
		require.Equal(t, mime, frame.StringField("mimeType"))
	})
}

func TestAudioRoundTrip_FixedSizes(t *testing.T) {
	for _, size := range []int{0, 1, 1500} {
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(i % 251)
		}

		encoded := EncodeFrame(NewGeminiAudioResponse(payload, "audio/pcm"))
		frame, err := DecodeFrame(encoded)
		require.NoError(t, err)

		got, err := frame.BytesField("audioData")
		require.NoError(t, err)
		if size == 0 {
			assert.Empty(t, got)
		} else {
			assert.Equal(t, payload, got)
		}
	}
}
