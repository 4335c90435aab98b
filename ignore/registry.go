package ignore

import (
	"encoding/json"
	"os"
	"sync"

	"order-monitor-go/infrastructure/logger"
	"order-monitor-go/metrics"
)

// Registry 保存不参与重建的订单 ID 集合（以及按标的忽略的集合，当前仅持久化，
// 不参与抑制判断）。引擎每个周期读它，面板的写操作随时改它，内部自带锁。
//
// 持久化是尽力而为：每次变更后整文件重写，失败只记日志不回滚内存——
// 用户看到的忽略状态始终以内存为准，下次成功保存时自行修复。
type Registry struct {
	mu      sync.Mutex
	orders  map[string]struct{}
	symbols map[string]struct{}
	path    string
	log     *logger.Logger
}

type persisted struct {
	Orders  []string `json:"orders"`
	Symbols []string `json:"symbols"`
}

// Load 从磁盘加载忽略名单。文件缺失或损坏时降级为空集合，
// 绝不因此阻止监控启动。
func Load(path string, log *logger.Logger) *Registry {
	r := &Registry{
		orders:  make(map[string]struct{}),
		symbols: make(map[string]struct{}),
		path:    path,
		log:     log,
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.LogError(err, map[string]interface{}{"op": "ignore_load", "path": path})
		}
		return r
	}
	var p persisted
	if err := json.Unmarshal(raw, &p); err != nil {
		log.LogError(err, map[string]interface{}{"op": "ignore_load", "path": path})
		return r
	}
	for _, id := range p.Orders {
		if id != "" {
			r.orders[id] = struct{}{}
		}
	}
	for _, sym := range p.Symbols {
		if sym != "" {
			r.symbols[sym] = struct{}{}
		}
	}
	metrics.IgnoredOrders.Set(float64(len(r.orders)))
	return r
}

// IsIgnored 判断订单是否被忽略。没有 ID 的订单永远视为受监控。
func (r *Registry) IsIgnored(orderID string) bool {
	if orderID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.orders[orderID]
	return ok
}

// Add 把订单加入忽略名单；已存在则为 no-op。变更触发持久化。
func (r *Registry) Add(orderID string) {
	if orderID == "" {
		return
	}
	r.mu.Lock()
	_, exists := r.orders[orderID]
	if !exists {
		r.orders[orderID] = struct{}{}
	}
	count := len(r.orders)
	r.mu.Unlock()

	if !exists {
		metrics.IgnoredOrders.Set(float64(count))
		r.save()
	}
}

// Remove 把订单移出忽略名单；不存在则为 no-op。变更触发持久化。
func (r *Registry) Remove(orderID string) {
	if orderID == "" {
		return
	}
	r.mu.Lock()
	_, exists := r.orders[orderID]
	if exists {
		delete(r.orders, orderID)
	}
	count := len(r.orders)
	r.mu.Unlock()

	if exists {
		metrics.IgnoredOrders.Set(float64(count))
		r.save()
	}
}

// SetMonitoring 把订单监控状态切换到期望值，返回切换后的权威状态。
// 并发切换互相竞争时，调用方拿到的是本次转换完成后的真实值。
func (r *Registry) SetMonitoring(orderID string, monitored bool) bool {
	if orderID == "" {
		return true
	}
	r.mu.Lock()
	_, ignored := r.orders[orderID]
	changed := false
	if monitored && ignored {
		delete(r.orders, orderID)
		changed = true
	} else if !monitored && !ignored {
		r.orders[orderID] = struct{}{}
		changed = true
	}
	_, stillIgnored := r.orders[orderID]
	count := len(r.orders)
	r.mu.Unlock()

	if changed {
		metrics.IgnoredOrders.Set(float64(count))
		r.save()
	}
	return !stillIgnored
}

// OrderIDs 返回被忽略订单 ID 的副本，供面板序列化。
func (r *Registry) OrderIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.orders))
	for id := range r.orders {
		ids = append(ids, id)
	}
	return ids
}

// save 先在锁内做快照，文件 I/O 放在锁外，避免轮询循环被磁盘卡住。
func (r *Registry) save() {
	r.mu.Lock()
	p := persisted{
		Orders:  make([]string, 0, len(r.orders)),
		Symbols: make([]string, 0, len(r.symbols)),
	}
	for id := range r.orders {
		p.Orders = append(p.Orders, id)
	}
	for sym := range r.symbols {
		p.Symbols = append(p.Symbols, sym)
	}
	r.mu.Unlock()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		r.log.LogError(err, map[string]interface{}{"op": "ignore_save"})
		return
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		r.log.LogError(err, map[string]interface{}{"op": "ignore_save", "path": r.path})
		return
	}
	r.log.LogCycle("ignore_saved", map[string]interface{}{
		"orders":  len(p.Orders),
		"symbols": len(p.Symbols),
		"path":    r.path,
	})
}
