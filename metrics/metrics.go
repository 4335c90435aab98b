// Package metrics provides Prometheus metrics for the order monitor
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CyclesTotal 轮询周期计数，按结果分类
	// (success/auth_error/api_error/connectivity_error/unexpected_error)
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_cycles_total",
		Help: "对账周期总数（按结果分类）",
	}, []string{"outcome"})

	// OrdersTracked 当前跟踪的活跃订单数
	OrdersTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_orders_tracked",
		Help: "当前跟踪的活跃订单数",
	})

	// OrdersDisappeared 检测到的订单消失次数
	OrdersDisappeared = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_orders_disappeared_total",
		Help: "检测到的订单消失次数",
	})

	// OrdersRecreated 成功重建的订单数
	OrdersRecreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_orders_recreated_total",
		Help: "成功重建的订单数",
	})

	// RecreateErrors 重建失败次数
	RecreateErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_recreate_errors_total",
		Help: "订单重建失败次数",
	})

	// IgnoredOrders 忽略名单中的订单数
	IgnoredOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_ignored_orders",
		Help: "忽略名单中的订单数",
	})

	// NetLiquidation 账户净清算价值
	NetLiquidation = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_net_liquidation",
		Help: "账户净清算价值",
	})

	// MonitoringActive 监控是否在运行(1/0)
	MonitoringActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_active",
		Help: "监控是否在运行(1=运行,0=停止)",
	})

	// RESTRequests 券商REST请求总数
	RESTRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_rest_requests_total",
		Help: "券商REST请求总数",
	}, []string{"action"})

	// RESTErrors 券商REST错误总数
	RESTErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_rest_errors_total",
		Help: "券商REST错误总数",
	}, []string{"action"})

	// RESTLatency 券商REST请求耗时
	RESTLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "monitor_rest_latency_seconds",
		Help:    "券商REST请求耗时",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})
)

// RecordCycle 记录一次轮询周期结果
func RecordCycle(outcome string) {
	CyclesTotal.WithLabelValues(outcome).Inc()
}

// StartMetricsServer 启动Prometheus指标服务器；addr 为空则关闭。
func StartMetricsServer(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}
