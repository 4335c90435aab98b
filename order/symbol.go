package order

import "unicode"

// Asset types used when rebuilding a placement spec.
const (
	AssetEquity = "EQUITY"
	AssetOption = "OPTION"
)

// SymbolOf 尽力从订单中取出标的代码：优先顶层 instrument，其次第一条腿。
// 仅用于日志与消失订单排查；身份判定始终以订单 ID 为准。
func SymbolOf(o Order) (string, bool) {
	if o.Instrument != nil && o.Instrument.Symbol != "" {
		return o.Instrument.Symbol, true
	}
	if len(o.Legs) > 0 && o.Legs[0].Instrument.Symbol != "" {
		return o.Legs[0].Instrument.Symbol, true
	}
	return "", false
}

// DetectAssetType classifies a symbol as OPTION or EQUITY. Option symbols
// always carry digits (strike/expiry encoding); equity tickers never do.
// The result overrides whatever assetType the broker reported, which has
// proven unreliable for re-submission.
func DetectAssetType(symbol string) string {
	for _, r := range symbol {
		if unicode.IsDigit(r) {
			return AssetOption
		}
	}
	return AssetEquity
}
