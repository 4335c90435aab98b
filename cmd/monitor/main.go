package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"order-monitor-go/config"
	"order-monitor-go/gateway"
	"order-monitor-go/ignore"
	"order-monitor-go/infrastructure/alert"
	"order-monitor-go/infrastructure/logger"
	"order-monitor-go/internal/store"
	"order-monitor-go/metrics"
	"order-monitor-go/monitor"
	"order-monitor-go/order"
	"order-monitor-go/positions"
	"order-monitor-go/web"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	account := flag.String("account", "", "账号（留空取第一个）")
	dryRun := flag.Bool("dryRun", false, "仅日志输出，不真正下单")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	zlog, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Outputs:    cfg.Logging.Outputs,
		OutputFile: cfg.Logging.OutputFile,
		Format:     cfg.Logging.Format,
	})
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zlog.Close()

	if st := gateway.ReadTokenStatus(cfg.Broker.TokenPath); !st.Valid {
		zlog.LogCycle("token_invalid", map[string]interface{}{
			"path": cfg.Broker.TokenPath, "error": st.Error,
		})
	} else if st.NeedsReauth() {
		zlog.LogCycle("token_reauth_needed", map[string]interface{}{
			"refresh_token_age_days": st.RefreshTokenAgeDays,
		})
	}

	alerts := alert.NewManager(
		[]alert.Channel{alert.NewLogChannel("log", nil)},
		time.Duration(cfg.Alert.ThrottleSeconds)*time.Second,
	)

	restClient := &gateway.SchwabRESTClient{
		BaseURL:    cfg.Broker.BaseURL,
		Tokens:     &gateway.FileTokenSource{Path: cfg.Broker.TokenPath},
		HTTPClient: gateway.NewDefaultHTTPClient(),
		Limiter:    gateway.NewTokenBucketLimiter(cfg.Monitor.RestRate, cfg.Monitor.RestBurst),
	}
	var client monitor.BrokerClient = restClient
	if *dryRun {
		client = &dryRunClient{inner: restClient, log: zlog}
	}

	registry := ignore.Load(cfg.Monitor.IgnoreListPath, zlog)
	sharedStore := store.New(registry, zlog.LogCycle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 账号散列拿不到就不启动引擎，面板照常服务，monitoring_active 保持 false。
	accountHash, err := resolveAccount(restClient, *account)
	if err != nil {
		zlog.LogError(err, map[string]interface{}{"op": "resolve_account"})
		alerts.Critical("cannot resolve account hash, monitoring disabled",
			map[string]interface{}{"error": err.Error()})
	} else {
		engine := &monitor.Engine{
			Client:    client,
			Account:   accountHash,
			Registry:  registry,
			Store:     sharedStore,
			Log:       zlog,
			Alerts:    alerts,
			Interval:  cfg.Monitor.CheckInterval(),
			CachePath: cfg.Monitor.OrdersCachePath,
			Watchdog: func() {
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			},
		}
		go engine.Run(ctx)
		go watchConfig(ctx, *cfgPath, engine, zlog)
	}

	metrics.StartMetricsServer(cfg.Metrics.Addr)

	webSrv := web.NewServer(sharedStore, registry, cfg.Broker.TokenPath,
		cfg.Web.Username, cfg.Web.Password, zlog)
	httpSrv := &http.Server{Addr: cfg.Web.Addr, Handler: webSrv.Handler()}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.LogError(err, map[string]interface{}{"op": "web_serve", "addr": cfg.Web.Addr})
			cancel()
		}
	}()
	zlog.LogCycle("monitor_started", map[string]interface{}{
		"web_addr":     cfg.Web.Addr,
		"metrics_addr": cfg.Metrics.Addr,
		"dry_run":      *dryRun,
	})
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	zlog.LogCycle("monitor_exit", nil)
}

// resolveAccount 把账号换成 API 寻址用的散列值。
func resolveAccount(client *gateway.SchwabRESTClient, want string) (string, error) {
	accounts, err := client.FetchAccountNumbers()
	if err != nil {
		return "", err
	}
	if len(accounts) == 0 {
		return "", &gateway.APIError{Msg: "no accounts returned"}
	}
	if want == "" {
		return accounts[0].HashValue, nil
	}
	for _, a := range accounts {
		if a.AccountNumber == want {
			return a.HashValue, nil
		}
	}
	return "", &gateway.APIError{Msg: "account " + want + " not found"}
}

// watchConfig 监听配置文件变更，轮询间隔热生效，其余字段重启生效。
func watchConfig(ctx context.Context, path string, engine *monitor.Engine, zlog *logger.Logger) {
	w := &config.Watcher{Path: path}
	err := w.Start(ctx, func(cfg config.AppConfig) {
		engine.SetInterval(cfg.Monitor.CheckInterval())
		zlog.LogCycle("config_reloaded", map[string]interface{}{
			"check_interval_ms": cfg.Monitor.CheckIntervalMs,
		})
	})
	if err != nil && err != context.Canceled {
		zlog.LogError(err, map[string]interface{}{"op": "config_watch"})
	}
}

// dryRunClient 拦截下单调用，只读接口原样透传。
type dryRunClient struct {
	inner monitor.BrokerClient
	log   *logger.Logger
}

func (d *dryRunClient) FetchActiveOrders(accountHash string) ([]order.Order, error) {
	return d.inner.FetchActiveOrders(accountHash)
}

func (d *dryRunClient) FetchAccountSnapshot(accountHash string) ([]positions.Position, float64, error) {
	return d.inner.FetchAccountSnapshot(accountHash)
}

func (d *dryRunClient) PlaceOrder(_ string, spec order.PlacementSpec) (string, error) {
	symbol := ""
	if len(spec.Legs) > 0 {
		symbol = spec.Legs[0].Instrument.Symbol
	}
	d.log.LogCycle("order_place_dry_run", map[string]interface{}{
		"symbol":     symbol,
		"order_type": spec.OrderType,
		"stop_price": spec.StopPrice,
		"price":      spec.Price,
	})
	return "", nil
}
