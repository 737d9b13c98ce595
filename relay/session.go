package relay

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/liverelay/internal/metrics"
	"github.com/BaSui01/liverelay/types"
	"github.com/BaSui01/liverelay/upstream"
)

// UpstreamSession 抽象一条已打开的上游会话，供测试注入假实现。
type UpstreamSession interface {
	SendAudio(ctx context.Context, data []byte, mimeType string) error
	SendText(ctx context.Context, text string) error
	Receive() <-chan upstream.Message
	Err() error
	Close() error
}

// UpstreamDialer 按需建立上游会话。默认实现包装 upstream.Dial。
type UpstreamDialer func(ctx context.Context, cfg upstream.Config, logger *zap.Logger) (UpstreamSession, error)

func defaultDialer(ctx context.Context, cfg upstream.Config, logger *zap.Logger) (UpstreamSession, error) {
	return upstream.Dial(ctx, cfg, logger)
}

const (
	writeTimeout     = 10 * time.Second
	defaultAudioMime = "audio/pcm;rate=16000"
)

// Session 聚合一条客户端连接、追加式会话历史与至多一个上游适配器。
// 适配器（若存在）由本会话独占，不跨会话共享。客户端写操作经 writeMu
// 串行化，因为入站循环与响应中继任务写同一条连接。
type Session struct {
	id          string
	conn        *websocket.Conn
	upstreamCfg upstream.Config
	responder   Responder
	dialer      UpstreamDialer
	collector   *metrics.Collector
	logger      *zap.Logger
	createdAt   time.Time

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex // 保护客户端连接的写操作

	mu          sync.Mutex
	history     []types.HistoryEntry
	adapter     UpstreamSession
	relayCancel context.CancelFunc
	relayDone   chan struct{}
	starting    bool
	closed      bool
}

// newSession 创建客户端会话。连接的所有权随之转移给会话所属的处理循环。
func newSession(id string, conn *websocket.Conn, upstreamCfg upstream.Config, responder Responder, dialer UpstreamDialer, collector *metrics.Collector, logger *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:          id,
		conn:        conn,
		upstreamCfg: upstreamCfg,
		responder:   responder,
		dialer:      dialer,
		collector:   collector,
		logger:      logger.With(zap.String("component", "client_session")),
		createdAt:   time.Now(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// ID 返回连接身份。
func (s *Session) ID() string { return s.id }

// CreatedAt 返回会话建立时间。
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// History 返回会话历史的快照。
func (s *Session) History() []types.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]types.HistoryEntry, len(s.history))
	copy(snapshot, s.history)
	return snapshot
}

// UpstreamActive 报告当前是否挂有上游适配器。
func (s *Session) UpstreamActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adapter != nil
}

func (s *Session) appendHistory(entry types.HistoryEntry) {
	s.mu.Lock()
	s.history = append(s.history, entry)
	s.mu.Unlock()
}

// sendFrame 编码并写出一帧。写失败是会话级致命错误，由调用方终止循环。
func (s *Session) sendFrame(env types.Outbound) error {
	data := types.EncodeFrame(env)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
	defer cancel()

	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return err
	}
	s.collector.FrameSent(string(env.FrameType()))
	return nil
}

// sendError 将一个失败上报为 error 帧；连接保持打开。
func (s *Session) sendError(code types.ErrorCode, message string) error {
	s.collector.ErrorReported(string(code))
	return s.sendFrame(types.NewErrorFrame(message))
}

// HandleFrame 解码并分发一帧入站消息。返回非 nil 仅当客户端连接的
// 写操作失败，此时调用方应终止会话。
func (s *Session) HandleFrame(raw []byte) error {
	frame, err := types.DecodeFrame(raw)
	if err != nil {
		s.logger.Warn("failed to parse message", zap.Error(err))
		return s.sendError(types.ErrMalformedFrame, "Invalid JSON format")
	}
	s.collector.FrameReceived(string(frame.Type))

	switch frame.Type {
	case types.FrameTextMessage:
		return s.handleTextMessage(frame)
	case types.FrameAudioMessage:
		return s.handleAudioMessage(frame)
	case types.FrameAudioData:
		return s.handleAudioData(frame)
	case types.FrameGetHistory:
		return s.handleGetHistory()
	case types.FrameStartGemini:
		return s.handleStartGemini()
	case types.FrameStopGemini:
		return s.handleStopGemini()
	default:
		// 未知类型只记录，不关闭连接
		s.logger.Warn("unknown message type", zap.String("type", string(frame.Type)))
		return nil
	}
}

// handleTextMessage 追加用户消息、生成回复并回写 text_response。
// 历史恰好增长两条：先 user 后 assistant。
func (s *Session) handleTextMessage(frame *types.Frame) error {
	userMessage := frame.StringField("message")
	s.logger.Info("received text message", zap.String("message", userMessage))

	s.appendHistory(types.NewUserEntry(userMessage))

	reply, err := s.responder.Respond(s.ctx, userMessage)
	if err != nil {
		s.logger.Error("responder failed", zap.Error(err))
		return s.sendError(types.ErrInternalError, "Server error: "+err.Error())
	}

	s.appendHistory(types.NewAssistantEntry(reply))
	return s.sendFrame(types.NewTextResponse(reply))
}

// handleAudioMessage 是仅确认变体：不转发，直接回执。
func (s *Session) handleAudioMessage(frame *types.Frame) error {
	s.logger.Info("received audio message", zap.Bool("has_payload", frame.Has("audio_data")))
	return s.sendFrame(types.NewAudioResponse())
}

// handleAudioData 将解码后的音频字节上行转发；无适配器时上报
// NO_ACTIVE_SESSION，连接保持打开。
func (s *Session) handleAudioData(frame *types.Frame) error {
	s.mu.Lock()
	adapter := s.adapter
	s.mu.Unlock()

	if adapter == nil {
		s.logger.Warn("no active Gemini session for this client")
		return s.sendError(types.ErrNoActiveSession, "No active Gemini session, send start-gemini first")
	}

	data, err := frame.BytesField("audioData")
	if err != nil {
		return s.sendError(types.ErrMalformedFrame, "Invalid audio payload")
	}

	if err := adapter.SendAudio(s.ctx, data, defaultAudioMime); err != nil {
		s.logger.Error("failed to send audio to Gemini", zap.Error(err))
		// 发送失败后适配器已转入 Closed，卸下以便客户端重启会话
		if code := types.GetErrorCode(err); code != types.ErrInvalidState {
			s.stopUpstream()
		}
		return s.sendError(types.GetErrorCode(err), "Failed to send audio to Gemini: "+err.Error())
	}
	return nil
}

// handleGetHistory 回写会话历史快照。
func (s *Session) handleGetHistory() error {
	return s.sendFrame(types.NewConversationHistory(s.History()))
}

// handleStartGemini 按需建立上游会话并启动响应中继任务。
// 已有适配器时重复 start 是显式错误，而非未定义的并发行为。
func (s *Session) handleStartGemini() error {
	s.mu.Lock()
	if s.adapter != nil || s.starting {
		s.mu.Unlock()
		return s.sendError(types.ErrInvalidState, "Gemini Live session already active")
	}
	s.starting = true
	s.mu.Unlock()

	s.logger.Info("starting Gemini Live session")
	adapter, err := s.dialer(s.ctx, s.upstreamCfg, s.logger)
	if err != nil {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
		s.collector.UpstreamFailed()
		s.logger.Error("failed to start Gemini Live session", zap.Error(err))
		// 会话仍可用于纯文本流程，客户端可重试 start
		return s.sendError(types.GetErrorCode(err), "Failed to start Gemini Live session: "+err.Error())
	}

	relayCtx, relayCancel := context.WithCancel(s.ctx)
	done := make(chan struct{})

	s.mu.Lock()
	if s.closed {
		s.starting = false
		s.mu.Unlock()
		relayCancel()
		_ = adapter.Close()
		return nil
	}
	s.adapter = adapter
	s.relayCancel = relayCancel
	s.relayDone = done
	s.starting = false
	s.mu.Unlock()

	s.collector.UpstreamStarted()
	go s.relayResponses(relayCtx, adapter, done)

	return s.sendFrame(types.NewGeminiReady("Gemini Live session started, ready for audio"))
}

// handleStopGemini 显式关闭上游会话；关闭不存在的适配器是 no-op。
func (s *Session) handleStopGemini() error {
	s.stopUpstream()
	return nil
}

// relayResponses 持续抽取上游响应并转发给客户端，直到上游序列结束
// 或会话销毁。该任务由会话跟踪，销毁时被取消并合流。
func (s *Session) relayResponses(ctx context.Context, adapter UpstreamSession, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-adapter.Receive():
			if !ok {
				if err := adapter.Err(); err != nil && ctx.Err() == nil {
					s.logger.Warn("upstream response stream failed", zap.Error(err))
					_ = s.sendError(types.GetErrorCode(err), "Error handling Gemini responses: "+err.Error())
				}
				s.detach(adapter)
				return
			}

			var err error
			switch {
			case len(msg.Data) > 0:
				mime := msg.MimeType
				if mime == "" {
					mime = "audio/pcm"
				}
				s.collector.UpstreamResponse("audio")
				err = s.sendFrame(types.NewGeminiAudioResponse(msg.Data, mime))
			case msg.Text != "":
				s.collector.UpstreamResponse("text")
				err = s.sendFrame(types.NewGeminiResponse(msg.Text))
			}
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("failed to relay upstream response", zap.Error(err))
					s.detach(adapter)
				}
				return
			}
		}
	}
}

// detach 卸下由中继任务观察到已结束的适配器。仅当适配器仍是当前
// 挂载的那一个时生效，避免与并发的 stopUpstream 重复计数。
func (s *Session) detach(adapter UpstreamSession) {
	s.mu.Lock()
	if s.adapter != adapter {
		s.mu.Unlock()
		return
	}
	s.adapter = nil
	s.relayCancel = nil
	s.relayDone = nil
	s.mu.Unlock()

	_ = adapter.Close()
	s.collector.UpstreamClosed()
}

// stopUpstream 关闭并卸下当前适配器，取消中继任务并等待其退出。
// 幂等；无适配器时为 no-op。
func (s *Session) stopUpstream() {
	s.mu.Lock()
	adapter := s.adapter
	relayCancel := s.relayCancel
	done := s.relayDone
	s.adapter = nil
	s.relayCancel = nil
	s.relayDone = nil
	s.mu.Unlock()

	if adapter == nil {
		return
	}

	if relayCancel != nil {
		relayCancel()
	}
	_ = adapter.Close()
	if done != nil {
		<-done
	}
	s.collector.UpstreamClosed()
	s.logger.Info("Gemini Live session stopped")
}

// teardown 销毁会话：先关闭上游适配器，再取消会话上下文。
// 幂等，任何退出路径都必须走到这里。
func (s *Session) teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.stopUpstream()
	s.cancel()
}
