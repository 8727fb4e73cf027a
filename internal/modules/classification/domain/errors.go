package domain

import (
	"errors"
	"fmt"
)

// ErrUnconfigured 認証情報またはモデルファイルが無いバックエンド
var ErrUnconfigured = errors.New("backend is not configured")

// ConfigurationError 選択されたバックエンドが利用できない
type ConfigurationError struct {
	Backend BackendID
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error (%s): %s", e.Backend, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrUnconfigured
}

// PreprocessingError 画像をデコードできない（ローカル経路のみ）
type PreprocessingError struct {
	Err error
}

func (e *PreprocessingError) Error() string {
	return fmt.Sprintf("preprocessing failed: %v", e.Err)
}

func (e *PreprocessingError) Unwrap() error {
	return e.Err
}

// ProviderError バックエンド固有の失敗（HTTPステータス、タイムアウト、応答の解析失敗）
type ProviderError struct {
	Backend    BackendID
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s: request timed out: %v", e.Backend, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: API returned status %d: %v", e.Backend, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Backend, e.Err)
	}
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// AllBackendsFailedError アクティブとフォールバックの両方が失敗した（終端エラー）
type AllBackendsFailedError struct {
	PrimaryBackend  BackendID
	Primary         error
	FallbackBackend BackendID
	Fallback        error
}

func (e *AllBackendsFailedError) Error() string {
	return fmt.Sprintf("all AI providers failed: primary %s: %v; fallback %s: %v",
		e.PrimaryBackend, e.Primary, e.FallbackBackend, e.Fallback)
}

// Unwrap 両方の失敗理由を返す（errors.Is/Asで辿れる）
func (e *AllBackendsFailedError) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}

// FailureKind ログ用の失敗種別
func FailureKind(err error) string {
	var cfgErr *ConfigurationError
	var preErr *PreprocessingError
	var provErr *ProviderError
	switch {
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.As(err, &preErr):
		return "preprocessing"
	case errors.As(err, &provErr):
		if provErr.Timeout {
			return "timeout"
		}
		if provErr.StatusCode != 0 {
			return "http_status"
		}
		return "provider"
	default:
		return "unknown"
	}
}
