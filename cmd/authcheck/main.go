// authcheck 独立检查令牌健康度，可选验证账号接口连通性。
// 部署后、重新授权前用它确认凭据状态，不用启动整个监控进程。
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"order-monitor-go/config"
	"order-monitor-go/gateway"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	verify := flag.Bool("verify", false, "调用账号接口验证令牌可用")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	st := gateway.ReadTokenStatus(cfg.Broker.TokenPath)
	fmt.Printf("token file:       %s\n", cfg.Broker.TokenPath)
	fmt.Printf("valid:            %v\n", st.Valid)
	if st.Error != "" {
		fmt.Printf("error:            %s\n", st.Error)
	}
	fmt.Printf("expires in:       %ds\n", st.ExpiresInSeconds)
	fmt.Printf("refresh age:      %.1f days\n", st.RefreshTokenAgeDays)
	if st.NeedsReauth() {
		fmt.Println("refresh token is near expiry, re-authorization needed")
	}
	if !st.Valid {
		os.Exit(1)
	}

	if *verify {
		client := &gateway.SchwabRESTClient{
			BaseURL:    cfg.Broker.BaseURL,
			Tokens:     &gateway.FileTokenSource{Path: cfg.Broker.TokenPath},
			HTTPClient: gateway.NewDefaultHTTPClient(),
		}
		accounts, err := client.FetchAccountNumbers()
		if err != nil {
			fmt.Printf("verification failed (%s): %v\n", gateway.Classify(err), err)
			os.Exit(1)
		}
		fmt.Printf("verified:         %d account(s) visible\n", len(accounts))
		for _, a := range accounts {
			fmt.Printf("  %s -> %s\n", a.AccountNumber, a.HashValue)
		}
	}
}
