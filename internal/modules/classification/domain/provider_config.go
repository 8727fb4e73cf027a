package domain

import (
	"fmt"
	"maps"
	"os"
	"strings"
	"time"
)

const (
	// DefaultInputSize ローカルモデルの入力サイズ（正方形）
	DefaultInputSize = 128
	// DefaultConfidenceThreshold 信頼度の参考閾値
	DefaultConfidenceThreshold = 0.3
	// DefaultRequestTimeout リモート呼び出しの上限時間
	DefaultRequestTimeout = 30 * time.Second
)

// ProviderConfig プロバイダー設定（不変の値。切り替えは新しい値を返す）
type ProviderConfig struct {
	active              BackendID
	fallback            BackendID
	credentials         map[BackendID]string
	localModelPath      string
	localInputSize      int
	confidenceThreshold float64
	topKDefault         int
	requestTimeout      time.Duration
}

// ProviderConfigParams ProviderConfigの生成パラメータ
type ProviderConfigParams struct {
	Active              BackendID
	Fallback            BackendID
	Credentials         map[BackendID]string
	LocalModelPath      string
	LocalInputSize      int
	ConfidenceThreshold float64
	TopKDefault         int
	RequestTimeout      time.Duration
}

// NewProviderConfig 新しいProviderConfigを作成
func NewProviderConfig(p ProviderConfigParams) (*ProviderConfig, error) {
	if _, err := ParseBackendID(string(p.Active)); err != nil {
		return nil, fmt.Errorf("invalid active provider: %w", err)
	}
	if p.Fallback != "" {
		if _, err := ParseBackendID(string(p.Fallback)); err != nil {
			return nil, fmt.Errorf("invalid fallback provider: %w", err)
		}
	}

	cfg := &ProviderConfig{
		active:              p.Active,
		fallback:            p.Fallback,
		credentials:         maps.Clone(p.Credentials),
		localModelPath:      p.LocalModelPath,
		localInputSize:      p.LocalInputSize,
		confidenceThreshold: p.ConfidenceThreshold,
		topKDefault:         p.TopKDefault,
		requestTimeout:      p.RequestTimeout,
	}
	if cfg.credentials == nil {
		cfg.credentials = map[BackendID]string{}
	}
	if cfg.localInputSize <= 0 {
		cfg.localInputSize = DefaultInputSize
	}
	if cfg.topKDefault < 1 {
		cfg.topKDefault = DefaultTopK
	}
	if cfg.confidenceThreshold <= 0 {
		cfg.confidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.requestTimeout <= 0 {
		cfg.requestTimeout = DefaultRequestTimeout
	}
	return cfg, nil
}

func (c *ProviderConfig) Active() BackendID { return c.active }
func (c *ProviderConfig) Fallback() BackendID { return c.fallback }
func (c *ProviderConfig) LocalModelPath() string { return c.localModelPath }
func (c *ProviderConfig) LocalInputSize() int { return c.localInputSize }
func (c *ProviderConfig) ConfidenceThreshold() float64 { return c.confidenceThreshold }
func (c *ProviderConfig) TopKDefault() int { return c.topKDefault }
func (c *ProviderConfig) RequestTimeout() time.Duration { return c.requestTimeout }

// Credential バックエンドの認証情報
func (c *ProviderConfig) Credential(b BackendID) string {
	return c.credentials[b]
}

// IsConfigured バックエンドが選択可能か。
// ローカルはモデルファイルの存在、リモートは空でない認証情報
func (c *ProviderConfig) IsConfigured(b BackendID) bool {
	switch b {
	case BackendLocal:
		if c.localModelPath == "" {
			return false
		}
		info, err := os.Stat(c.localModelPath)
		return err == nil && !info.IsDir()
	case BackendHuggingFace, BackendGemini, BackendOpenAI:
		return strings.TrimSpace(c.credentials[b]) != ""
	default:
		return false
	}
}

// ConfiguredMap 全バックエンドの設定状況
func (c *ProviderConfig) ConfiguredMap() map[BackendID]bool {
	status := make(map[BackendID]bool, len(AllBackends))
	for _, b := range AllBackends {
		status[b] = c.IsConfigured(b)
	}
	return status
}

// UsableFallback フォールバックが使えるかを判定し、使えない理由を返す
func (c *ProviderConfig) UsableFallback() (BackendID, *ConfigurationError) {
	switch {
	case c.fallback == "":
		return "", &ConfigurationError{Reason: "no fallback provider configured"}
	case c.fallback == c.active:
		return c.fallback, &ConfigurationError{Backend: c.fallback, Reason: "fallback provider is the active provider"}
	case !c.IsConfigured(c.fallback):
		return c.fallback, &ConfigurationError{Backend: c.fallback, Reason: "fallback provider has no credential or model file"}
	}
	return c.fallback, nil
}

// WithActive アクティブを切り替えた新しい設定を返す。未設定のバックエンドは拒否
func (c *ProviderConfig) WithActive(target BackendID) (*ProviderConfig, error) {
	if _, err := ParseBackendID(string(target)); err != nil {
		return nil, &ConfigurationError{Backend: target, Reason: err.Error()}
	}
	if !c.IsConfigured(target) {
		return nil, &ConfigurationError{Backend: target, Reason: "provider has no credential or model file"}
	}
	next := *c
	next.credentials = maps.Clone(c.credentials)
	next.active = target
	return &next, nil
}
