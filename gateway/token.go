package gateway

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// TokenSource 提供当前可用的访问令牌。
type TokenSource interface {
	AccessToken() (string, error)
}

// FileTokenSource 每次调用都重读 token 文件：外部刷新流程会原子替换该文件，
// 进程内缓存会拿到过期令牌。
type FileTokenSource struct {
	Path string
}

type tokenFile struct {
	Token struct {
		AccessToken string `json:"access_token"`
		ExpiresAt   int64  `json:"expires_at"`
	} `json:"token"`
	CreationTimestamp int64 `json:"creation_timestamp"`
}

func (s *FileTokenSource) AccessToken() (string, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return "", &AuthError{Msg: fmt.Sprintf("read token file: %v", err)}
	}
	var tf tokenFile
	if err := json.Unmarshal(raw, &tf); err != nil {
		return "", &AuthError{Msg: fmt.Sprintf("parse token file: %v", err)}
	}
	if tf.Token.AccessToken == "" {
		return "", &AuthError{Msg: "token file has no access_token"}
	}
	return tf.Token.AccessToken, nil
}

// TokenStatus 面板和 authcheck 展示用的令牌健康信息。
type TokenStatus struct {
	Valid               bool    `json:"valid"`
	ExpiresInSeconds    int64   `json:"expires_in_seconds"`
	RefreshTokenAgeDays float64 `json:"refresh_token_age_days"`
	Error               string  `json:"error,omitempty"`
}

// 刷新令牌 7 天过期，超过 6 天就该重新授权了。
const refreshTokenWarnDays = 6

// ReadTokenStatus 读取令牌文件并计算剩余有效期。文件问题不返回 error，
// 而是编码进状态里，方便直接序列化给前端。
func ReadTokenStatus(path string) TokenStatus {
	raw, err := os.ReadFile(path)
	if err != nil {
		return TokenStatus{Valid: false, Error: fmt.Sprintf("read token file: %v", err)}
	}
	var tf tokenFile
	if err := json.Unmarshal(raw, &tf); err != nil {
		return TokenStatus{Valid: false, Error: fmt.Sprintf("parse token file: %v", err)}
	}
	now := time.Now().Unix()
	st := TokenStatus{
		ExpiresInSeconds: tf.Token.ExpiresAt - now,
	}
	if tf.CreationTimestamp > 0 {
		st.RefreshTokenAgeDays = float64(now-tf.CreationTimestamp) / 86400.0
	}
	st.Valid = tf.Token.AccessToken != "" && st.ExpiresInSeconds > 0
	return st
}

// NeedsReauth 判断刷新令牌是否临近过期。
func (st TokenStatus) NeedsReauth() bool {
	return st.RefreshTokenAgeDays >= refreshTokenWarnDays
}
