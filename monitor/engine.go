// Package monitor runs the reconcile loop: poll the broker's live
// orders, diff against the tracked set, and re-submit what disappeared.
package monitor

import (
	"context"
	"sync"
	"time"

	"order-monitor-go/gateway"
	"order-monitor-go/ignore"
	"order-monitor-go/infrastructure/alert"
	"order-monitor-go/infrastructure/logger"
	"order-monitor-go/internal/store"
	"order-monitor-go/metrics"
	"order-monitor-go/monitor/logschema"
	"order-monitor-go/order"
	"order-monitor-go/positions"
)

// 按错误类别退避：认证问题等外部刷新流程，恢复最慢；
// 网络抖动次之；API 拒绝通常很快自愈。
const (
	backoffAuth         = 60 * time.Second
	backoffConnectivity = 30 * time.Second
	backoffAPI          = 15 * time.Second
	backoffUnexpected   = 10 * time.Second
)

// BrokerClient 引擎需要的券商操作子集。
type BrokerClient interface {
	FetchActiveOrders(accountHash string) ([]order.Order, error)
	PlaceOrder(accountHash string, spec order.PlacementSpec) (string, error)
	FetchAccountSnapshot(accountHash string) ([]positions.Position, float64, error)
}

// Engine 对账引擎。单 goroutine 驱动，tracker 不需要锁。
type Engine struct {
	Client    BrokerClient
	Account   string
	Registry  *ignore.Registry
	Store     *store.Store
	Log       *logger.Logger
	Alerts    *alert.Manager
	Interval  time.Duration
	CachePath string

	// Watchdog 每个周期结束后调用一次，用于 systemd 看门狗喂食。
	Watchdog func()

	mu      sync.Mutex // 保护 Interval 的热更新
	tracker *order.Tracker
}

// SetInterval 更新轮询间隔，下一个周期生效。配置热加载时调用。
func (e *Engine) SetInterval(d time.Duration) {
	e.mu.Lock()
	e.Interval = d
	e.mu.Unlock()
}

// Run 启动轮询循环，ctx 取消后返回。
func (e *Engine) Run(ctx context.Context) {
	e.tracker = order.NewTracker()
	// 缓存只做参考信息。跟踪基线始终由第一轮成功抓取建立，
	// 停机期间消失的订单不触发重建。
	if cached, err := LoadOrders(e.CachePath); err != nil {
		e.Log.LogError(err, map[string]interface{}{"op": "load_order_cache", "path": e.CachePath})
	} else if len(cached) > 0 {
		e.Log.LogCycle("order_cache_loaded", map[string]interface{}{
			"orders": len(cached),
			"path":   e.CachePath,
		})
	}

	e.Store.SetMonitoringActive(true)
	defer e.Store.SetMonitoringActive(false)

	for {
		delay := e.runCycle()
		if e.Watchdog != nil {
			e.Watchdog()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (e *Engine) interval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Interval > 0 {
		return e.Interval
	}
	return time.Second
}

func backoffFor(class string) time.Duration {
	switch class {
	case "auth_error":
		return backoffAuth
	case "connectivity_error":
		return backoffConnectivity
	case "api_error":
		return backoffAPI
	default:
		return backoffUnexpected
	}
}

// runCycle 执行一轮对账，返回下一轮之前的等待时间。
func (e *Engine) runCycle() time.Duration {
	start := time.Now()

	latest, err := e.Client.FetchActiveOrders(e.Account)
	if err != nil {
		class := gateway.Classify(err)
		backoff := backoffFor(class)
		metrics.RecordCycle(class)
		e.logEvent("cycle_error", map[string]interface{}{
			"error_class": class,
			"backoff_ms":  backoff.Milliseconds(),
			"error":       err.Error(),
		})
		if class == "auth_error" && e.Alerts != nil {
			e.Alerts.Critical("broker authentication failing, token refresh needed",
				map[string]interface{}{"error": err.Error()})
		}
		return backoff
	}

	disappeared, appeared := e.tracker.Diff(latest)
	var toRecreate []order.Order
	for _, o := range disappeared {
		metrics.OrdersDisappeared.Inc()
		sym, _ := order.SymbolOf(o)
		e.Log.LogOrderEvent("order_disappeared", o.ID, map[string]interface{}{
			"symbol": sym,
			"status": o.Status,
			"type":   o.Type,
		})
		if e.Registry != nil && e.Registry.IsIgnored(o.ID) {
			continue
		}
		toRecreate = append(toRecreate, o)
	}
	for _, id := range appeared {
		e.Log.LogOrderEvent("order_tracked", id, nil)
	}

	e.tracker.Sync(latest)
	if e.Registry != nil {
		e.tracker.EvictIgnored(e.Registry.IsIgnored)
	}

	// 账户快照失败不终止本轮：订单对账照常，仓位数据降级为空。
	accountPositions, netLiq, accErr := e.Client.FetchAccountSnapshot(e.Account)
	if accErr != nil {
		e.Log.LogError(accErr, map[string]interface{}{"op": "fetch_account"})
		accountPositions, netLiq = nil, 0
	}
	stats, prices := positions.Analyze(latest, accountPositions)
	display := positions.AttachPrices(latest, prices)
	e.Store.PublishCycle(display, stats, netLiq)

	if err := SaveOrders(e.CachePath, latest); err != nil {
		e.Log.LogError(err, map[string]interface{}{"op": "save_order_cache", "path": e.CachePath})
	}

	for _, o := range toRecreate {
		e.recreate(o)
	}

	metrics.RecordCycle("success")
	e.logEvent("cycle_complete", map[string]interface{}{
		"tracked":     e.tracker.Len(),
		"disappeared": len(disappeared),
		"appeared":    len(appeared),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return e.interval()
}

// recreate 重建一张消失的订单。失败不重试：下一轮对账还会发现它不在，
// 自然再试一次。
func (e *Engine) recreate(o order.Order) {
	sym, _ := order.SymbolOf(o)
	spec, err := order.BuildPlacementSpec(o)
	if err == nil {
		_, err = e.Client.PlaceOrder(e.Account, spec)
	}
	if err != nil {
		metrics.RecreateErrors.Inc()
		e.logEvent("recreate_error", map[string]interface{}{
			"order_id": o.ID,
			"symbol":   sym,
			"error":    err.Error(),
		})
		if e.Alerts != nil {
			e.Alerts.Error("order recreation failed", map[string]interface{}{
				"order_id": o.ID,
				"symbol":   sym,
			})
		}
		return
	}

	metrics.OrdersRecreated.Inc()
	e.Store.IncOrdersRecreated()
	e.logEvent("order_recreated", map[string]interface{}{
		"order_id": o.ID,
		"symbol":   sym,
	})
	if e.Alerts != nil {
		e.Alerts.Warning("order disappeared and was recreated", map[string]interface{}{
			"order_id": o.ID,
			"symbol":   sym,
		})
	}
}

// logEvent 先按 schema 校验字段再落日志，缺字段在开发期立刻暴露。
func (e *Engine) logEvent(event string, fields map[string]interface{}) {
	if err := logschema.Validate(event, fields); err != nil {
		e.Log.LogError(err, map[string]interface{}{"op": "log_schema", "event": event})
	}
	switch event {
	case "order_disappeared", "order_recreated", "recreate_error":
		id, _ := fields["order_id"].(string)
		e.Log.LogOrderEvent(event, id, fields)
	default:
		e.Log.LogCycle(event, fields)
	}
}
