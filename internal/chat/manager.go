package chat

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager 按会话 ID 管理会话，各会话之间不共享任何状态
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	idleTimeout time.Duration
}

func NewManager(idleTimeout time.Duration) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		idleTimeout: idleTimeout,
	}
}

// Create 新建一个随机 ID 的会话
func (m *Manager) Create() *Session {
	s := NewSession(uuid.NewString())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return s
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// GetOrCreate 用外部给定的 ID 取会话（如 QQ 号），不存在就新建
func (m *Manager) GetOrCreate(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s
	}
	s := NewSession(id)
	m.sessions[id] = s
	return s
}

func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Reap 清理超时未活动的会话，返回被清理的 ID；正在等待回答的会话不清理
func (m *Manager) Reap(now time.Time) []string {
	if m.idleTimeout <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for id, s := range m.sessions {
		if s.Pending() {
			continue
		}
		if now.Sub(s.LastActive()) > m.idleTimeout {
			delete(m.sessions, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		slog.Debug("reaped idle sessions", "count", len(removed), "remaining", len(m.sessions))
	}
	return removed
}
