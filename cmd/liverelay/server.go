package main

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/liverelay/config"
	"github.com/BaSui01/liverelay/internal/metrics"
	"github.com/BaSui01/liverelay/internal/server"
	"github.com/BaSui01/liverelay/relay"
	"github.com/BaSui01/liverelay/upstream"
)

// =============================================================================
// 🖥️ App 结构
// =============================================================================

// App 组装 liverelay 的全部组件：WebSocket 中继服务器、Metrics 服务器
// 与指标收集器，并统一驱动生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	relayManager   *server.Manager
	metricsManager *server.Manager

	// 中继核心
	relayServer *relay.Server

	// 指标收集器
	collector *metrics.Collector
}

// NewApp 创建应用实例
func NewApp(cfg *config.Config, logger *zap.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Run 组装并运行全部服务，阻塞直到收到关闭信号或任一服务器异常退出，
// 随后关闭所有存活会话。
func (a *App) Run() error {
	// 1. 初始化指标收集器
	a.collector = metrics.NewCollector("liverelay", a.logger)

	// 2. 创建中继服务器
	a.relayServer = relay.NewServer(
		relay.Config{
			PingInterval: a.cfg.Server.PingInterval,
			PingTimeout:  a.cfg.Server.PingTimeout,
		},
		upstreamConfig(a.cfg.Upstream),
		a.logger,
		relay.WithCollector(a.collector),
	)

	// 3. 组装 HTTP 服务器
	a.relayManager = server.NewManager("relay", a.relayMux(), server.Config{
		Addr: a.cfg.Server.ListenAddr(),
		// WebSocket 连接长期存活，读写超时必须为零
		IdleTimeout:     0,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	}, a.logger)

	a.metricsManager = server.NewManager("metrics", a.metricsMux(), server.Config{
		Addr:            a.cfg.Server.MetricsAddr(),
		ReadTimeout:     a.cfg.Server.ReadTimeout,
		WriteTimeout:    a.cfg.Server.WriteTimeout,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	}, a.logger)

	a.logger.Info("All servers configured",
		zap.String("relay_addr", a.cfg.Server.ListenAddr()),
		zap.String("metrics_addr", a.cfg.Server.MetricsAddr()),
	)

	// 4. 运行直到信号或异常，随后关闭存活会话
	err := server.Run(context.Background(), a.logger, a.relayManager, a.metricsManager)
	a.relayServer.Shutdown()
	return err
}

// =============================================================================
// 🌐 路由
// =============================================================================

// relayMux 挂载 WebSocket 中继端点与健康检查。
func (a *App) relayMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", a.relayServer)
	mux.Handle("/", a.relayServer)
	mux.HandleFunc("/healthz", a.handleHealthz)
	return mux
}

// metricsMux 挂载 Prometheus 指标端点。
func (a *App) metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", a.handleHealthz)
	return mux
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// =============================================================================
// 🔧 配置转换
// =============================================================================

// upstreamConfig 将外部配置转换为上游拨号配置。config 包与 upstream
// 包保持各自独立的结构，避免配置层反向依赖协议层的默认值。
func upstreamConfig(cfg config.UpstreamConfig) upstream.Config {
	return upstream.Config{
		Endpoint:           cfg.Endpoint,
		APIKey:             cfg.APIKey,
		Model:              cfg.Model,
		ResponseModalities: cfg.ResponseModalities,
		SystemInstruction:  cfg.SystemInstruction,
		HandshakeTimeout:   cfg.HandshakeTimeout,
		SendTimeout:        cfg.SendTimeout,
	}
}
