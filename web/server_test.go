package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"order-monitor-go/ignore"
	"order-monitor-go/infrastructure/logger"
	"order-monitor-go/internal/store"
	"order-monitor-go/order"
	"order-monitor-go/positions"
)

func newTestServer(t *testing.T) (*Server, *store.Store, *ignore.Registry) {
	t.Helper()
	dir := t.TempDir()
	reg := ignore.Load(filepath.Join(dir, "ignored.json"), logger.NewNop())
	st := store.New(reg, nil)

	tokenPath := filepath.Join(dir, "token.json")
	now := time.Now().Unix()
	content := `{"token": {"access_token": "abc", "expires_at": ` +
		strconv.FormatInt(now+1800, 10) + `}, "creation_timestamp": ` +
		strconv.FormatInt(now-86400, 10) + `}`
	if err := os.WriteFile(tokenPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return NewServer(st, reg, tokenPath, "", "", logger.NewNop()), st, reg
}

func TestGetOrders(t *testing.T) {
	srv, st, reg := newTestServer(t)
	st.PublishCycle([]order.Order{
		{ID: "1", Status: "WORKING"},
		{ID: "2", Status: "QUEUED"},
	}, positions.Stats{LongCount: 1}, 75000)
	reg.Add("2")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Orders []struct {
			ID          string `json:"orderId"`
			IsMonitored bool   `json:"isMonitored"`
		} `json:"orders"`
		NetLiquidation float64  `json:"net_liquidation"`
		IgnoredOrders  []string `json:"ignored_orders"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(resp.Orders))
	}
	if !resp.Orders[0].IsMonitored || resp.Orders[1].IsMonitored {
		t.Fatalf("monitored flags wrong: %+v", resp.Orders)
	}
	if resp.NetLiquidation != 75000 {
		t.Fatalf("net liq = %v", resp.NetLiquidation)
	}
	if len(resp.IgnoredOrders) != 1 || resp.IgnoredOrders[0] != "2" {
		t.Fatalf("ignored = %v", resp.IgnoredOrders)
	}
}

func TestStopMonitoring(t *testing.T) {
	srv, _, reg := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec,
		httptest.NewRequest(http.MethodPost, "/api/orders/42/stop_monitoring", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Success bool   `json:"success"`
		OrderID string `json:"order_id"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Success || resp.OrderID != "42" {
		t.Fatalf("resp = %+v", resp)
	}
	if !reg.IsIgnored("42") {
		t.Fatal("order should now be ignored")
	}
}

func TestToggleMonitoring(t *testing.T) {
	srv, _, reg := newTestServer(t)
	reg.Add("7")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/api/orders/7/toggle_monitoring", strings.NewReader(`{"monitor": true}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Success    bool `json:"success"`
		Monitoring bool `json:"monitoring"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Success || !resp.Monitoring {
		t.Fatalf("resp = %+v", resp)
	}
	if reg.IsIgnored("7") {
		t.Fatal("order should be monitored again")
	}

	// 非法请求体
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/api/orders/7/toggle_monitoring", strings.NewReader("{bad")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body status = %d", rec.Code)
	}
}

func TestTokenStatus(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/token-status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Valid       bool `json:"valid"`
		NeedsReauth bool `json:"needs_reauth"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Valid || resp.NeedsReauth {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestBasicAuth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	srv.username = "admin"
	srv.password = "secret"
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no creds: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.SetBasicAuth("admin", "wrong")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong creds: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.SetBasicAuth("admin", "secret")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("good creds: status = %d", rec.Code)
	}
}

func TestStreamPushesSnapshots(t *testing.T) {
	srv, st, _ := newTestServer(t)
	srv.pushInterval = 20 * time.Millisecond
	st.PublishCycle([]order.Order{{ID: "1", Status: "WORKING"}}, positions.Stats{}, 0)

	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/api/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first struct {
		Orders []struct {
			ID string `json:"orderId"`
		} `json:"orders"`
	}
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(first.Orders) != 1 || first.Orders[0].ID != "1" {
		t.Fatalf("first push: %+v", first.Orders)
	}

	// 后续周期的变化会出现在下一次推送里
	st.PublishCycle([]order.Order{
		{ID: "1", Status: "WORKING"}, {ID: "2", Status: "QUEUED"},
	}, positions.Stats{}, 0)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("never saw the updated snapshot")
		}
		var next struct {
			Orders []struct {
				ID string `json:"orderId"`
			} `json:"orders"`
		}
		if err := conn.ReadJSON(&next); err != nil {
			t.Fatalf("read: %v", err)
		}
		if len(next.Orders) == 2 {
			return
		}
	}
}
