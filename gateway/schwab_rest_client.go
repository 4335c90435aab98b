package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"order-monitor-go/metrics"
	"order-monitor-go/order"
	"order-monitor-go/positions"
)

// 查询活跃订单时回看的时间窗口。
const orderLookback = 7 * 24 * time.Hour

// SchwabRESTClient 券商 REST 客户端；默认不发起真实网络调用，HTTPClient 可注入 httptest。
type SchwabRESTClient struct {
	BaseURL    string
	Tokens     TokenSource
	HTTPClient *http.Client
	Limiter    RateLimiter
}

// AccountNumber 账号与其 API 用散列值的映射。
type AccountNumber struct {
	AccountNumber string `json:"accountNumber"`
	HashValue     string `json:"hashValue"`
}

// do 统一处理限流、鉴权头、指标和错误分类。
func (c *SchwabRESTClient) do(action, method, path string, body io.Reader) ([]byte, string, error) {
	if c == nil || c.HTTPClient == nil {
		return nil, "", fmt.Errorf("http client not set")
	}
	if c.Limiter != nil {
		c.Limiter.Wait()
	}
	token, err := c.Tokens.AccessToken()
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	metrics.RESTRequests.WithLabelValues(action).Inc()
	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	metrics.RESTLatency.WithLabelValues(action).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RESTErrors.WithLabelValues(action).Inc()
		return nil, "", &ConnectivityError{Err: err}
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		metrics.RESTErrors.WithLabelValues(action).Inc()
		return nil, "", &ConnectivityError{Err: readErr}
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		metrics.RESTErrors.WithLabelValues(action).Inc()
		return nil, "", &AuthError{Status: resp.StatusCode, Msg: string(data)}
	case resp.StatusCode >= 400:
		metrics.RESTErrors.WithLabelValues(action).Inc()
		return nil, "", &APIError{Status: resp.StatusCode, Msg: string(data)}
	}
	return data, resp.Header.Get("Location"), nil
}

// FetchAccountNumbers 获取账号到散列值的映射。后续所有账户接口都用散列值寻址。
func (c *SchwabRESTClient) FetchAccountNumbers() ([]AccountNumber, error) {
	data, _, err := c.do("account_numbers", http.MethodGet, "/accounts/accountNumbers", nil)
	if err != nil {
		return nil, err
	}
	var accounts []AccountNumber
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, &APIError{Msg: "decode account numbers: " + err.Error()}
	}
	return accounts, nil
}

// FetchActiveOrders 拉取回看窗口内的订单，只返回活跃状态的部分。
// 过滤发生在网关边界，上层拿到的集合就是对账的输入。
func (c *SchwabRESTClient) FetchActiveOrders(accountHash string) ([]order.Order, error) {
	now := time.Now().UTC()
	q := url.Values{}
	q.Set("fromEnteredTime", now.Add(-orderLookback).Format("2006-01-02T15:04:05.000Z"))
	q.Set("toEnteredTime", now.Format("2006-01-02T15:04:05.000Z"))
	path := "/accounts/" + url.PathEscape(accountHash) + "/orders?" + q.Encode()

	data, _, err := c.do("fetch_orders", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	orders, err := parseOrders(data)
	if err != nil {
		return nil, err
	}
	return order.FilterActive(orders), nil
}

// PlaceOrder 提交下单请求。201/200 视为成功；新订单 ID 解析是尽力而为，
// 拿不到也不算失败，下一轮对账会以真实 ID 重新跟踪它。
func (c *SchwabRESTClient) PlaceOrder(accountHash string, spec order.PlacementSpec) (string, error) {
	payload, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("encode order spec: %w", err)
	}
	path := "/accounts/" + url.PathEscape(accountHash) + "/orders"
	data, location, err := c.do("place_order", http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	return parseOrderID(location, data), nil
}

type wireAccount struct {
	SecuritiesAccount struct {
		Positions []struct {
			Instrument    wireInstrument `json:"instrument"`
			LongQuantity  float64        `json:"longQuantity"`
			ShortQuantity float64        `json:"shortQuantity"`
			MarketValue   float64        `json:"marketValue"`
			AveragePrice  float64        `json:"averagePrice"`
		} `json:"positions"`
		CurrentBalances struct {
			LiquidationValue float64 `json:"liquidationValue"`
		} `json:"currentBalances"`
	} `json:"securitiesAccount"`
}

// FetchAccountSnapshot 拉取持仓和净清算价值。
func (c *SchwabRESTClient) FetchAccountSnapshot(accountHash string) ([]positions.Position, float64, error) {
	path := "/accounts/" + url.PathEscape(accountHash) + "?fields=positions"
	data, _, err := c.do("fetch_account", http.MethodGet, path, nil)
	if err != nil {
		return nil, 0, err
	}
	var acct wireAccount
	if err := json.Unmarshal(data, &acct); err != nil {
		return nil, 0, &APIError{Msg: "decode account: " + err.Error()}
	}
	pos := make([]positions.Position, 0, len(acct.SecuritiesAccount.Positions))
	for _, p := range acct.SecuritiesAccount.Positions {
		pos = append(pos, positions.Position{
			Symbol:        p.Instrument.Symbol,
			AssetType:     p.Instrument.AssetType,
			LongQuantity:  p.LongQuantity,
			ShortQuantity: p.ShortQuantity,
			MarketValue:   p.MarketValue,
			AveragePrice:  p.AveragePrice,
		})
	}
	return pos, acct.SecuritiesAccount.CurrentBalances.LiquidationValue, nil
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
