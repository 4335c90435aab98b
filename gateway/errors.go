package gateway

import (
	"errors"
	"fmt"
)

// 错误分类决定轮询循环的退避策略：认证失败等 token 刷新，API 拒绝等服务端恢复，
// 网络不通等链路恢复。分类发生在网关边界，上层只看类型。

// AuthError 认证或授权失败（401/403、token 缺失或过期）。
type AuthError struct {
	Status int
	Msg    string
}

func (e *AuthError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("auth error (status %d): %s", e.Status, e.Msg)
	}
	return "auth error: " + e.Msg
}

// APIError 券商 API 返回的非认证类错误（4xx/5xx）。
type APIError struct {
	Status int
	Msg    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Msg)
}

// ConnectivityError 网络层失败（超时、连接拒绝、DNS）。
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string {
	return "connectivity error: " + e.Err.Error()
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// Classify 把错误映射到指标/日志用的结果标签。
func Classify(err error) string {
	if err == nil {
		return "success"
	}
	var authErr *AuthError
	var apiErr *APIError
	var connErr *ConnectivityError
	switch {
	case errors.As(err, &authErr):
		return "auth_error"
	case errors.As(err, &apiErr):
		return "api_error"
	case errors.As(err, &connErr):
		return "connectivity_error"
	default:
		return "unexpected_error"
	}
}
