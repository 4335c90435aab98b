// Package positions derives per-symbol prices and SPX exposure stats
// from the broker account snapshot.
package positions

import (
	"strings"

	"order-monitor-go/order"
)

// 期权合约乘数。SPX 期权报价按每股计，市值按 100 股计。
const optionMultiplier = 100

// Position 账户持仓的网关视图。
type Position struct {
	Symbol        string
	AssetType     string
	LongQuantity  float64
	ShortQuantity float64
	MarketValue   float64
	AveragePrice  float64
}

// Stats 面板展示用的持仓汇总。
type Stats struct {
	LongCount         int `json:"long_count"`
	ShortCount        int `json:"short_count"`
	SPXLongContracts  int `json:"spx_long_contracts"`
	SPXShortContracts int `json:"spx_short_contracts"`
	SPXActiveStops    int `json:"spx_active_stops"`
	SPXClosingOrders  int `json:"spx_closing_orders"`
}

// IsSPXOption 判断标的是否为 SPX 系列期权。
func IsSPXOption(symbol string) bool {
	return strings.HasPrefix(symbol, "SPX") && order.DetectAssetType(symbol) == order.AssetOption
}

func isStopOrder(o order.Order) bool {
	return o.Type == "STOP" || o.Type == "STOP_LIMIT"
}

// Analyze 汇总持仓统计并推导每个标的的当前单位价格。
// 期权价格从市值反推时除以合约乘数，回到报价口径。
func Analyze(activeOrders []order.Order, positions []Position) (Stats, map[string]float64) {
	var stats Stats
	prices := make(map[string]float64, len(positions))

	for _, p := range positions {
		qty := p.LongQuantity
		if p.ShortQuantity > qty {
			qty = p.ShortQuantity
		}
		if p.LongQuantity > 0 {
			stats.LongCount++
		}
		if p.ShortQuantity > 0 {
			stats.ShortCount++
		}
		if IsSPXOption(p.Symbol) {
			stats.SPXLongContracts += int(p.LongQuantity)
			stats.SPXShortContracts += int(p.ShortQuantity)
		}
		if qty > 0 && p.Symbol != "" {
			unit := p.MarketValue / qty
			if order.DetectAssetType(p.Symbol) == order.AssetOption {
				unit /= optionMultiplier
			}
			if unit < 0 {
				unit = -unit
			}
			prices[p.Symbol] = unit
		}
	}

	for _, o := range activeOrders {
		sym, ok := order.SymbolOf(o)
		if !ok || !IsSPXOption(sym) {
			continue
		}
		if isStopOrder(o) {
			stats.SPXActiveStops++
		}
		if len(o.Legs) > 0 && o.Legs[0].PositionEffect == "CLOSING" {
			stats.SPXClosingOrders++
		}
	}
	return stats, prices
}

// AttachPrices 把推导出的当前价格写到止损类订单上，供面板并排展示
// 触发价和现价。SPX 期权价格经过乘数换算，打上调整标记。
func AttachPrices(orders []order.Order, prices map[string]float64) []order.Order {
	out := make([]order.Order, len(orders))
	copy(out, orders)
	for i := range out {
		if !isStopOrder(out[i]) {
			continue
		}
		sym, ok := order.SymbolOf(out[i])
		if !ok {
			continue
		}
		price, ok := prices[sym]
		if !ok {
			continue
		}
		out[i].CurrentPrice = price
		out[i].IsAdjustedPrice = IsSPXOption(sym)
	}
	return out
}
