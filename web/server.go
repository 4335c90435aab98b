// Package web exposes the monitor state over HTTP for the dashboard.
package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"order-monitor-go/gateway"
	"order-monitor-go/ignore"
	"order-monitor-go/infrastructure/logger"
	"order-monitor-go/internal/store"
)

// Server 面板后端。读共享状态，写忽略名单，不直接碰券商。
type Server struct {
	store     *store.Store
	registry  *ignore.Registry
	tokenPath string
	username  string
	password  string
	log       *logger.Logger

	upgrader     websocket.Upgrader
	pushInterval time.Duration
}

func NewServer(st *store.Store, reg *ignore.Registry, tokenPath, username, password string, log *logger.Logger) *Server {
	return &Server{
		store:     st,
		registry:  reg,
		tokenPath: tokenPath,
		username:  username,
		password:  password,
		log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		pushInterval: time.Second,
	}
}

// Handler 组装路由。凭据未配置时跳过认证，本机部署不强制开。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/orders", s.handleOrders)
	mux.HandleFunc("POST /api/orders/{id}/stop_monitoring", s.handleStopMonitoring)
	mux.HandleFunc("POST /api/orders/{id}/toggle_monitoring", s.handleToggleMonitoring)
	mux.HandleFunc("GET /api/token-status", s.handleTokenStatus)
	mux.HandleFunc("GET /api/stream", s.handleStream)
	return s.withAuth(mux)
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	if s.username == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.username || pass != s.password {
			w.Header().Set("WWW-Authenticate", `Basic realm="order monitor"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type ordersResponse struct {
	store.Snapshot
	IgnoredOrders []string `json:"ignored_orders"`
}

func (s *Server) ordersPayload() ordersResponse {
	return ordersResponse{
		Snapshot:      s.store.Snapshot(),
		IgnoredOrders: s.registry.OrderIDs(),
	}
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ordersPayload())
}

func (s *Server) handleStopMonitoring(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false, "message": "order id required",
		})
		return
	}
	s.registry.SetMonitoring(id, false)
	s.log.LogOrderEvent("ignore_update", id, map[string]interface{}{
		"order_id": id, "monitored": false,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"order_id": id,
		"message":  "order will no longer be recreated",
	})
}

func (s *Server) handleToggleMonitoring(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Monitor bool `json:"monitor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false, "message": "invalid request body",
		})
		return
	}
	monitoring := s.registry.SetMonitoring(id, req.Monitor)
	s.log.LogOrderEvent("ignore_update", id, map[string]interface{}{
		"order_id": id, "monitored": monitoring,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"order_id":   id,
		"monitoring": monitoring,
	})
}

func (s *Server) handleTokenStatus(w http.ResponseWriter, r *http.Request) {
	st := gateway.ReadTokenStatus(s.tokenPath)
	writeJSON(w, http.StatusOK, struct {
		gateway.TokenStatus
		NeedsReauth bool `json:"needs_reauth"`
	}{st, st.NeedsReauth()})
}

// handleStream 把快照按固定节奏推给 websocket 客户端。
// 写失败视为客户端断开，直接收尾。
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.LogError(err, map[string]interface{}{"op": "ws_upgrade"})
		return
	}
	defer conn.Close()

	// 丢弃入站消息，同时感知对端关闭
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	if err := conn.WriteJSON(s.ordersPayload()); err != nil {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.ordersPayload()); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
