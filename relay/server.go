package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/liverelay/internal/metrics"
	"github.com/BaSui01/liverelay/types"
	"github.com/BaSui01/liverelay/upstream"
)

// Config 中继服务器的连接级配置。
type Config struct {
	// 客户端 ping/liveness 探测间隔
	PingInterval time.Duration `yaml:"ping_interval"`
	// 单次 ping 等待 pong 的超时
	PingTimeout time.Duration `yaml:"ping_timeout"`
}

// DefaultConfig 返回默认连接配置。
func DefaultConfig() Config {
	return Config{
		PingInterval: 20 * time.Second,
		PingTimeout:  10 * time.Second,
	}
}

// Server 接受客户端 WebSocket 连接，每连接创建并注册一个 Session，
// 驱动其消息循环，并保证所有退出路径上的清理。实现 http.Handler。
type Server struct {
	cfg         Config
	upstreamCfg upstream.Config
	registry    *Registry
	responder   Responder
	dialer      UpstreamDialer
	collector   *metrics.Collector
	logger      *zap.Logger
}

// Option 配置 Server 的可选协作者。
type Option func(*Server)

// WithResponder 替换默认的规则表应答器。
func WithResponder(r Responder) Option {
	return func(s *Server) { s.responder = r }
}

// WithDialer 替换默认的上游拨号器，测试用。
func WithDialer(d UpstreamDialer) Option {
	return func(s *Server) { s.dialer = d }
}

// WithCollector 接入指标收集器。
func WithCollector(c *metrics.Collector) Option {
	return func(s *Server) { s.collector = c }
}

// NewServer 创建中继服务器。
func NewServer(cfg Config, upstreamCfg upstream.Config, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = DefaultConfig().PingInterval
	}
	if cfg.PingTimeout == 0 {
		cfg.PingTimeout = DefaultConfig().PingTimeout
	}

	s := &Server{
		cfg:         cfg,
		upstreamCfg: upstreamCfg,
		registry:    NewRegistry(logger),
		responder:   NewCannedResponder(),
		dialer:      defaultDialer,
		logger:      logger.With(zap.String("component", "relay_server")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry 返回会话注册表。
func (s *Server) Registry() *Registry { return s.registry }

// Shutdown 关闭所有存活会话。
func (s *Server) Shutdown() {
	s.registry.CloseAll()
}

// ServeHTTP 将请求升级为 WebSocket 并接管连接。
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	s.handleConnection(r.Context(), conn, uuid.NewString())
}

// handleConnection 驱动单条连接的完整生命周期。注销与适配器关闭在
// 每条退出路径上执行：正常流结束、读写错误或取消。
func (s *Server) handleConnection(ctx context.Context, conn *websocket.Conn, clientID string) {
	logger := s.logger.With(zap.String("client_id", clientID))
	session := newSession(clientID, conn, s.upstreamCfg, s.responder, s.dialer, s.collector, logger)

	if err := s.registry.Register(clientID, session); err != nil {
		// 不变量违例：身份重复。仅终止本连接，不影响进程。
		logger.Error("duplicate session identity", zap.Error(err))
		session.teardown()
		conn.Close(websocket.StatusInternalError, "duplicate session identity")
		return
	}
	s.collector.ConnectionOpened()
	logger.Info("client connected")

	defer func() {
		session.teardown()
		s.registry.Unregister(clientID)
		s.collector.ConnectionClosed()
		conn.Close(websocket.StatusNormalClosure, "session closed")
		logger.Info("client disconnected")
	}()

	if err := session.sendFrame(types.NewWelcome(clientID)); err != nil {
		logger.Warn("failed to send welcome", zap.Error(err))
		return
	}

	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()
	go s.pingLoop(readCtx, conn, cancelRead, logger)

	for {
		_, data, err := conn.Read(readCtx)
		if err != nil {
			// 客户端关闭不是错误，走正常销毁
			if readCtx.Err() == nil && websocket.CloseStatus(err) == -1 {
				logger.Warn("client read failed", zap.Error(err))
			}
			return
		}
		if err := session.HandleFrame(data); err != nil {
			logger.Warn("session terminated by write failure", zap.Error(err))
			return
		}
	}
}

// pingLoop 周期性探测客户端存活；探测失败时取消读循环以触发销毁。
func (s *Server) pingLoop(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, logger *zap.Logger) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, s.cfg.PingTimeout)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("client ping failed, closing connection", zap.Error(err))
					cancel()
				}
				return
			}
		}
	}
}
