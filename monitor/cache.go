package monitor

import (
	"encoding/json"
	"os"

	"order-monitor-go/order"
)

// 订单缓存让进程重启后立刻恢复上一轮的跟踪集合，
// 不必等第一次成功拉取。缓存损坏按空集合处理。

// SaveOrders 把当前跟踪的订单整文件写盘。
func SaveOrders(path string, orders []order.Order) error {
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(orders, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadOrders 读取上次保存的订单集合。文件缺失不算错误。
func LoadOrders(path string) ([]order.Order, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var orders []order.Order
	if err := json.Unmarshal(raw, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}
