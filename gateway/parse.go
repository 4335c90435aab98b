package gateway

import (
	"encoding/json"
	"strconv"

	"order-monitor-go/order"
)

// 券商返回的订单 ID 是数字，内部统一用字符串。转换只发生在这条边界上。

type wireInstrument struct {
	Symbol    string `json:"symbol"`
	AssetType string `json:"assetType"`
}

type wireLeg struct {
	Instruction    string          `json:"instruction"`
	PositionEffect string          `json:"positionEffect"`
	Quantity       float64         `json:"quantity"`
	Instrument     *wireInstrument `json:"instrument"`
}

type wireOrder struct {
	OrderID    json.Number     `json:"orderId"`
	Status     string          `json:"status"`
	OrderType  string          `json:"orderType"`
	Duration   string          `json:"duration"`
	Quantity   float64         `json:"quantity"`
	StopPrice  float64         `json:"stopPrice"`
	Price      float64         `json:"price"`
	Instrument *wireInstrument `json:"instrument"`
	Legs       []wireLeg       `json:"orderLegCollection"`
}

func (w wireOrder) toOrder() order.Order {
	o := order.Order{
		ID:         w.OrderID.String(),
		Status:     w.Status,
		Type:       w.OrderType,
		Duration:   w.Duration,
		Quantity:   w.Quantity,
		StopPrice:  w.StopPrice,
		LimitPrice: w.Price,
	}
	if o.ID == "0" || o.ID == "<nil>" {
		o.ID = ""
	}
	if w.Instrument != nil {
		o.Instrument = &order.Instrument{
			Symbol:    w.Instrument.Symbol,
			AssetType: w.Instrument.AssetType,
		}
	}
	for _, l := range w.Legs {
		leg := order.Leg{
			Instruction:    l.Instruction,
			PositionEffect: l.PositionEffect,
			Quantity:       l.Quantity,
		}
		if l.Instrument != nil {
			leg.Instrument = order.Instrument{
				Symbol:    l.Instrument.Symbol,
				AssetType: l.Instrument.AssetType,
			}
		}
		o.Legs = append(o.Legs, leg)
	}
	return o
}

func parseOrders(data []byte) ([]order.Order, error) {
	var wire []wireOrder
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &APIError{Msg: "decode orders: " + err.Error()}
	}
	orders := make([]order.Order, 0, len(wire))
	for _, w := range wire {
		orders = append(orders, w.toOrder())
	}
	return orders, nil
}

// parseOrderID 从 Location 头或响应体里尽力解析新订单 ID，拿不到返回空串。
func parseOrderID(location string, body []byte) string {
	if location != "" {
		for i := len(location) - 1; i >= 0; i-- {
			if location[i] == '/' {
				id := location[i+1:]
				if _, err := strconv.ParseInt(id, 10, 64); err == nil {
					return id
				}
				break
			}
		}
	}
	var resp struct {
		OrderID json.Number `json:"orderId"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && resp.OrderID.String() != "" && resp.OrderID.String() != "0" {
		return resp.OrderID.String()
	}
	return ""
}
