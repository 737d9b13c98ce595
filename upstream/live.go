package upstream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/liverelay/types"
)

// State represents the lifecycle of an upstream session.
type State string

const (
	StateUnopened State = "unopened"
	StateOpen     State = "open"
	StateClosed   State = "closed"
)

const (
	// DefaultEndpoint is the Gemini Live duplex endpoint.
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// DefaultModel is the live model used when none is configured.
	DefaultModel = "models/gemini-2.0-flash-live-001"

	defaultHandshakeTimeout = 10 * time.Second
	defaultSendTimeout      = 10 * time.Second

	// Audio turns can be large; the websocket default read limit is far too small.
	readLimit = 16 << 20
)

// Config configures one upstream session.
type Config struct {
	Endpoint           string        `yaml:"endpoint"`
	APIKey             string        `yaml:"api_key"`
	Model              string        `yaml:"model"`
	ResponseModalities []string      `yaml:"response_modalities"`
	SystemInstruction  string        `yaml:"system_instruction"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	SendTimeout        time.Duration `yaml:"send_timeout"`
}

// withDefaults fills zero-value fields so callers can set only what they care about.
func (c Config) withDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if len(c.ResponseModalities) == 0 {
		c.ResponseModalities = []string{"TEXT"}
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.SendTimeout == 0 {
		c.SendTimeout = defaultSendTimeout
	}
	return c
}

// Session is one live duplex channel to Gemini. It is exclusively owned
// by the client session that opened it and must not be shared.
type Session struct {
	conn   *websocket.Conn
	cfg    Config
	logger *zap.Logger

	recvCh chan Message
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	state State
	err   error // terminal receive error, set at most once
}

// Dial establishes an upstream session: connect, send the setup
// envelope, and await setupComplete within the handshake timeout.
// On any failure no open channel is left behind.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	logger = logger.With(zap.String("component", "upstream_session"))

	dialCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, endpointURL(cfg), nil)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamUnavailable, "failed to connect to Gemini Live API").
			WithCause(err).WithRetryable(true)
	}
	conn.SetReadLimit(readLimit)

	if err := handshake(dialCtx, conn, cfg); err != nil {
		conn.Close(websocket.StatusPolicyViolation, "setup failed")
		return nil, err
	}

	recvCtx, recvCancel := context.WithCancel(context.Background())
	s := &Session{
		conn:   conn,
		cfg:    cfg,
		logger: logger,
		recvCh: make(chan Message, 16),
		cancel: recvCancel,
		done:   make(chan struct{}),
		state:  StateOpen,
	}
	go s.receiveLoop(recvCtx)

	logger.Info("upstream session established", zap.String("model", cfg.Model))
	return s, nil
}

// endpointURL appends the API key query parameter to the configured endpoint.
func endpointURL(cfg Config) string {
	return fmt.Sprintf("%s?key=%s", cfg.Endpoint, url.QueryEscape(cfg.APIKey))
}

// handshake sends the setup envelope and awaits the setupComplete ack.
func handshake(ctx context.Context, conn *websocket.Conn, cfg Config) error {
	setup := setupMessage{
		Setup: setupPayload{
			Model: cfg.Model,
			GenerationConfig: generationConfig{
				ResponseModalities: cfg.ResponseModalities,
			},
		},
	}
	if cfg.SystemInstruction != "" {
		setup.Setup.SystemInstruction = &contentPayload{
			Parts: []part{{Text: cfg.SystemInstruction}},
		}
	}

	data, err := json.Marshal(setup)
	if err != nil {
		return types.NewError(types.ErrUpstreamHandshakeFailed, "failed to encode setup message").WithCause(err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return types.NewError(types.ErrUpstreamHandshakeFailed, "failed to send setup message").WithCause(err)
	}

	_, resp, err := conn.Read(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return types.NewError(types.ErrUpstreamHandshakeFailed, "setup acknowledgement timed out").
				WithCause(err).WithRetryable(true)
		}
		return types.NewError(types.ErrUpstreamHandshakeFailed, "failed to read setup acknowledgement").WithCause(err)
	}

	var ack serverMessage
	if err := json.Unmarshal(resp, &ack); err != nil || ack.SetupComplete == nil {
		return types.NewError(types.ErrUpstreamHandshakeFailed, "upstream rejected setup configuration")
	}
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the terminal receive error, if any. It is set before the
// Receive channel closes, so readers may check it after drain.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SendAudio forwards one raw audio chunk upstream as a realtime media chunk.
func (s *Session) SendAudio(ctx context.Context, data []byte, mimeType string) error {
	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []inlineData{{
				MimeType: mimeType,
				Data:     base64.StdEncoding.EncodeToString(data),
			}},
		},
	}
	return s.send(ctx, msg)
}

// SendText forwards one user text turn upstream, marking the turn complete.
func (s *Session) SendText(ctx context.Context, text string) error {
	msg := clientContentMessage{
		ClientContent: clientContent{
			Turns: []contentPayload{{
				Role:  "user",
				Parts: []part{{Text: text}},
			}},
			TurnComplete: true,
		},
	}
	return s.send(ctx, msg)
}

func (s *Session) send(ctx context.Context, msg any) error {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return types.NewError(types.ErrInvalidState, "send on closed upstream session")
	}
	s.mu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return types.NewError(types.ErrUpstreamSendFailed, "failed to encode upstream message").WithCause(err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	if err := s.conn.Write(sendCtx, websocket.MessageText, data); err != nil {
		s.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			return types.NewError(types.ErrTimeout, "upstream send timed out").WithCause(err).WithRetryable(true)
		}
		return types.NewError(types.ErrUpstreamSendFailed, "failed to send to Gemini Live API").WithCause(err)
	}
	return nil
}

// Receive returns the translated response sequence. The channel closes
// when the upstream channel ends, gracefully or not; call Err to
// distinguish the two.
func (s *Session) Receive() <-chan Message {
	return s.recvCh
}

// receiveLoop drains the websocket until close or error, translating
// each server message and skipping envelopes that carry no content.
func (s *Session) receiveLoop(ctx context.Context) {
	defer close(s.done)
	defer close(s.recvCh)

	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			s.finishReceive(ctx, err)
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("failed to parse upstream response", zap.Error(err))
			continue
		}

		for _, m := range msg.translate() {
			select {
			case s.recvCh <- m:
			case <-ctx.Done():
				return
			}
		}
	}
}

// finishReceive classifies the read error that ended the loop. A normal
// close status or our own cancellation ends the sequence without error;
// anything else is recorded as a receive failure.
func (s *Session) finishReceive(ctx context.Context, err error) {
	if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		s.markClosed(nil)
		return
	}
	s.logger.Warn("upstream receive failed", zap.Error(err))
	s.markClosed(types.NewError(types.ErrUpstreamReceiveFailed, "Gemini Live API connection lost").
		WithCause(err).WithRetryable(true))
}

// markClosed transitions to Closed exactly once, recording the terminal
// error and releasing the underlying channel. Safe from any goroutine.
func (s *Session) markClosed(terminal error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.err = terminal
	s.mu.Unlock()

	s.cancel()
	_ = s.conn.Close(websocket.StatusNormalClosure, "closing")
}

// Close tears down the session. Idempotent and safe to call
// concurrently with in-flight sends and receives, which observe the
// close promptly instead of hanging.
func (s *Session) Close() error {
	s.markClosed(nil)
	<-s.done
	s.logger.Debug("upstream session closed")
	return nil
}
