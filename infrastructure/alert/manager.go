package alert

import (
	"fmt"
	"sync"
	"time"
)

// Alert 告警信息
type Alert struct {
	Level     string // "WARNING", "ERROR", "CRITICAL"
	Message   string
	Timestamp time.Time
	Fields    map[string]interface{}
}

// Channel 告警通道接口
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Manager 告警管理器：把同一条消息按 level:message 维度限流后广播到所有通道。
// 重建失败这类告警每个轮询周期都会触发一次，没有限流会刷屏。
type Manager struct {
	channels []Channel
	throttle *Throttler
	mu       sync.RWMutex
}

// NewManager 创建告警管理器
func NewManager(channels []Channel, throttleInterval time.Duration) *Manager {
	return &Manager{
		channels: channels,
		throttle: NewThrottler(throttleInterval),
	}
}

// Send 发送告警；被限流时静默丢弃。所有通道都失败才返回错误。
func (m *Manager) Send(a Alert) error {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	if !m.throttle.Allow(a.Level + ":" + a.Message) {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var lastErr error
	sent := 0
	for _, ch := range m.channels {
		if err := ch.Send(a); err != nil {
			lastErr = fmt.Errorf("channel %s failed: %w", ch.Name(), err)
		} else {
			sent++
		}
	}
	if sent == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

// Warning 发送WARNING级别告警
func (m *Manager) Warning(message string, fields map[string]interface{}) error {
	return m.Send(Alert{Level: "WARNING", Message: message, Fields: fields})
}

// Error 发送ERROR级别告警
func (m *Manager) Error(message string, fields map[string]interface{}) error {
	return m.Send(Alert{Level: "ERROR", Message: message, Fields: fields})
}

// Critical 发送CRITICAL级别告警
func (m *Manager) Critical(message string, fields map[string]interface{}) error {
	return m.Send(Alert{Level: "CRITICAL", Message: message, Fields: fields})
}

// Throttler 按 key 限流
type Throttler struct {
	lastSent map[string]time.Time
	interval time.Duration
	mu       sync.Mutex
}

// NewThrottler 创建限流器
func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{
		lastSent: make(map[string]time.Time),
		interval: interval,
	}
}

// Allow 检查并登记一次发送；同一 key 在间隔内只放行一次。
func (t *Throttler) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if last, ok := t.lastSent[key]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.lastSent[key] = now
	return true
}
