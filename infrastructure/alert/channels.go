package alert

import (
	"fmt"
	"log"
	"os"
)

// LogChannel 日志告警通道
type LogChannel struct {
	logger *log.Logger
	name   string
}

// NewLogChannel 创建日志告警通道；output 为 nil 时写到 stdout。
func NewLogChannel(name string, output *os.File) *LogChannel {
	if output == nil {
		output = os.Stdout
	}
	return &LogChannel{
		logger: log.New(output, "[ALERT] ", log.LstdFlags),
		name:   name,
	}
}

func (c *LogChannel) Send(a Alert) error {
	msg := fmt.Sprintf("[%s] %s", a.Level, a.Message)
	for k, v := range a.Fields {
		msg += fmt.Sprintf(" %s=%v", k, v)
	}
	c.logger.Println(msg)
	return nil
}

func (c *LogChannel) Name() string {
	return c.name
}

// MockChannel 模拟告警通道（用于测试）
type MockChannel struct {
	name      string
	alerts    []Alert
	shouldErr bool
}

// NewMockChannel 创建模拟告警通道
func NewMockChannel(name string) *MockChannel {
	return &MockChannel{name: name}
}

func (c *MockChannel) Send(a Alert) error {
	if c.shouldErr {
		return fmt.Errorf("mock error")
	}
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *MockChannel) Name() string {
	return c.name
}

// Alerts 获取所有接收到的告警
func (c *MockChannel) Alerts() []Alert {
	return c.alerts
}

// Count 返回接收到的告警数量
func (c *MockChannel) Count() int {
	return len(c.alerts)
}

// SetShouldError 设置是否返回错误
func (c *MockChannel) SetShouldError(shouldErr bool) {
	c.shouldErr = shouldErr
}
