package relay

import (
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/liverelay/types"
)

// Registry 是进程级的连接身份 → 会话映射。
// 会话仅在 accept 到销毁完成的区间内存在于表中；同一身份不会映射到
// 两个会话。所有方法并发安全。
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *zap.Logger
}

// NewRegistry 创建空的会话注册表。
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger.With(zap.String("component", "session_registry")),
	}
}

// Register 插入会话。身份已存在时返回 DUPLICATE_IDENTITY —
// 正确的连接处理下不应发生，观察到即视为该连接的致命不变量违例。
func (r *Registry) Register(id string, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return types.NewError(types.ErrDuplicateIdentity, "session already registered: "+id)
	}
	r.sessions[id] = s
	r.logger.Debug("session registered", zap.String("client_id", id), zap.Int("total", len(r.sessions)))
	return nil
}

// Unregister 幂等移除；身份不存在时为 no-op。
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; !exists {
		return
	}
	delete(r.sessions, id)
	r.logger.Debug("session unregistered", zap.String("client_id", id), zap.Int("total", len(r.sessions)))
}

// Lookup 按身份查询会话。
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len 返回当前存活会话数。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll 关闭所有存活会话，用于服务优雅停机。
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.teardown()
	}
}
