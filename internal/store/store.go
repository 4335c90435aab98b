// Package store holds the shared state published by the reconcile loop
// and read by the web layer.
package store

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"order-monitor-go/metrics"
	"order-monitor-go/order"
	"order-monitor-go/positions"
)

// 净值历史长度上限。面板只画趋势，不需要完整序列。
const netLiqHistoryCap = 100

// Policy 回答某个订单当前是否被忽略。快照在读取时实时询问它，
// 引擎周期之间的忽略名单变更立即反映到面板上。
type Policy interface {
	IsIgnored(orderID string) bool
}

// EventSink 结构化事件出口，由上层接到日志。
type EventSink func(string, map[string]interface{})

// NetLiqPoint 净清算价值采样点，序列化为 [ts, value] 二元组。
type NetLiqPoint struct {
	TS    int64
	Value float64
}

func (p NetLiqPoint) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("[%d,%g]", p.TS, p.Value)), nil
}

func (p *NetLiqPoint) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	p.TS = int64(pair[0])
	p.Value = pair[1]
	return nil
}

// Snapshot 某一时刻的完整监控状态视图。
type Snapshot struct {
	Orders           []order.Order   `json:"orders"`
	PositionStats    positions.Stats `json:"position_stats"`
	NetLiquidation   float64         `json:"net_liquidation"`
	NetLiqHistory    []NetLiqPoint   `json:"net_liq_history"`
	MonitoringActive bool            `json:"monitoring_active"`
	OrdersRecreated  int             `json:"orders_recreated"`
	LastUpdated      time.Time       `json:"last_updated"`
}

// Store 维护引擎和面板之间的共享状态。写入方只有轮询循环，
// 读取方是 HTTP 处理器和 websocket 推送。
type Store struct {
	mu     sync.RWMutex
	policy Policy
	sink   EventSink

	activeOrders     []order.Order
	positionStats    positions.Stats
	netLiq           float64
	netLiqHistory    []NetLiqPoint
	monitoringActive bool
	ordersRecreated  int
	lastUpdated      time.Time
}

func New(policy Policy, sink EventSink) *Store {
	return &Store{
		policy:        policy,
		netLiqHistory: make([]NetLiqPoint, 0, netLiqHistoryCap),
		sink:          sink,
	}
}

// PublishCycle 用一个对账周期的结果整体覆盖共享状态。
func (s *Store) PublishCycle(orders []order.Order, stats positions.Stats, netLiq float64) {
	now := time.Now()
	s.mu.Lock()
	s.activeOrders = make([]order.Order, len(orders))
	copy(s.activeOrders, orders)
	s.positionStats = stats
	if netLiq != 0 {
		s.netLiq = netLiq
		s.netLiqHistory = append(s.netLiqHistory, NetLiqPoint{TS: now.Unix(), Value: netLiq})
		if len(s.netLiqHistory) > netLiqHistoryCap {
			s.netLiqHistory = s.netLiqHistory[len(s.netLiqHistory)-netLiqHistoryCap:]
		}
	}
	s.lastUpdated = now
	count := len(s.activeOrders)
	s.mu.Unlock()

	metrics.OrdersTracked.Set(float64(count))
	if netLiq != 0 {
		metrics.NetLiquidation.Set(netLiq)
	}
	s.logEvent("state_published", map[string]interface{}{
		"orders":  count,
		"net_liq": netLiq,
	})
}

// SetMonitoringActive 标记引擎是否在运行。
func (s *Store) SetMonitoringActive(active bool) {
	s.mu.Lock()
	s.monitoringActive = active
	s.mu.Unlock()
	v := 0.0
	if active {
		v = 1
	}
	metrics.MonitoringActive.Set(v)
}

// MonitoringActive 引擎是否在运行。
func (s *Store) MonitoringActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.monitoringActive
}

// IncOrdersRecreated 累计成功重建的订单数。
func (s *Store) IncOrdersRecreated() {
	s.mu.Lock()
	s.ordersRecreated++
	s.mu.Unlock()
}

// Snapshot 返回当前状态的一致拷贝。IsMonitored 不是存量字段，
// 在读取时对着忽略名单实时计算。
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	snap := Snapshot{
		Orders:           make([]order.Order, len(s.activeOrders)),
		PositionStats:    s.positionStats,
		NetLiquidation:   s.netLiq,
		NetLiqHistory:    make([]NetLiqPoint, len(s.netLiqHistory)),
		MonitoringActive: s.monitoringActive,
		OrdersRecreated:  s.ordersRecreated,
		LastUpdated:      s.lastUpdated,
	}
	copy(snap.Orders, s.activeOrders)
	copy(snap.NetLiqHistory, s.netLiqHistory)
	s.mu.RUnlock()

	for i := range snap.Orders {
		snap.Orders[i].IsMonitored = s.policy == nil || !s.policy.IsIgnored(snap.Orders[i].ID)
	}
	return snap
}

func (s *Store) logEvent(event string, fields map[string]interface{}) {
	if s == nil || s.sink == nil {
		return
	}
	s.sink(event, fields)
}
