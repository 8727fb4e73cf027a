package handler

import (
	"encoding/json"
	"net/http"

	"wastewise-api/internal/modules/classification/domain"
	"wastewise-api/internal/modules/classification/usecase"
)

// Version APIのバージョン
const Version = "1.0.0"

// ProviderStatusSource プロバイダー設定状況の取得元
type ProviderStatusSource interface {
	GetProviderStatus() usecase.ProviderStatus
}

// HealthHandler ヘルスチェックのハンドラー
type HealthHandler struct {
	providers ProviderStatusSource
}

// NewHealthHandler 新しいHealthHandlerを作成
func NewHealthHandler(providers ProviderStatusSource) *HealthHandler {
	return &HealthHandler{providers: providers}
}

// HealthResponse ヘルスチェックのレスポンス
type HealthResponse struct {
	Status         string           `json:"status"`
	Version        string           `json:"version"`
	ActiveProvider domain.BackendID `json:"active_provider"`
}

// ServeHTTP ヘルスチェックを処理。アクティブが未設定でも分類はフォールバックできるので ok のまま
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:         "ok",
		Version:        Version,
		ActiveProvider: h.providers.GetProviderStatus().Active,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}
