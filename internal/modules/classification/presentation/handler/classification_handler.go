package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"wastewise-api/internal/modules/classification/domain"
	"wastewise-api/internal/modules/classification/usecase"
	"wastewise-api/internal/modules/shared/infrastructure/cache"
)

// multipartOverhead マルチパートの境界やヘッダー分の余裕
const multipartOverhead = 1 << 20

// ClassificationUseCaseInterface 分類ユースケースのインターフェース
type ClassificationUseCaseInterface interface {
	Classify(ctx context.Context, req domain.ClassificationRequest) (*domain.ClassificationResult, error)
	GetWasteInfo(category string) (domain.RecommendationEntry, error)
	SwitchActiveBackend(ctx context.Context, target domain.BackendID) bool
	SwitchHistory(ctx context.Context, limit int) ([]*domain.ProviderSwitchEvent, error)
	GetProviderStatus() usecase.ProviderStatus
	ProviderName(backend domain.BackendID) string
}

// Options ハンドラーの設定
type Options struct {
	MaxUploadBytes int64
	CacheTTL       time.Duration
}

// ClassificationHandler 廃棄物分類APIのハンドラー
type ClassificationHandler struct {
	useCase   ClassificationUseCaseInterface
	cacheRepo domain.CacheRepository
	opts      Options
}

// NewClassificationHandler 新しいClassificationHandlerを作成。cacheRepo は nil でもよい
func NewClassificationHandler(
	useCase ClassificationUseCaseInterface,
	cacheRepo domain.CacheRepository,
	opts Options,
) *ClassificationHandler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = domain.DefaultMaxImageBytes
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	return &ClassificationHandler{
		useCase:   useCase,
		cacheRepo: cacheRepo,
		opts:      opts,
	}
}

// ClassifyResponse 分類APIレスポンス
type ClassifyResponse struct {
	Success             bool                `json:"success"`
	WasteType           domain.Category     `json:"waste_type"`
	RawCategory         string              `json:"raw_category"`
	Confidence          float64             `json:"confidence"`
	LowConfidence       bool                `json:"low_confidence"`
	AllPredictions      []domain.Prediction `json:"all_predictions"`
	Recommendations     []string            `json:"recommendations"`
	EnvironmentalImpact string              `json:"environmental_impact"`
	ProviderUsed        domain.BackendID    `json:"provider_used"`
	ProviderName        string              `json:"provider_name"`
	FallbackUsed        bool                `json:"fallback_used"`
	Reasoning           string              `json:"reasoning,omitempty"`
	ProcessedAt         time.Time           `json:"processed_at"`
}

// ErrorResponse エラーレスポンス
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// FailureResponse 全バックエンド失敗時のレスポンス
type FailureResponse struct {
	Success          bool             `json:"success"`
	Error            string           `json:"error"`
	PrimaryProvider  domain.BackendID `json:"primary_provider"`
	PrimaryError     string           `json:"primary_error"`
	FallbackProvider domain.BackendID `json:"fallback_provider,omitempty"`
	FallbackError    string           `json:"fallback_error"`
}

// SwitchProviderRequest プロバイダー切り替えリクエスト
type SwitchProviderRequest struct {
	Provider string `json:"provider"`
}

// SwitchEventResponse 切り替え履歴1件
type SwitchEventResponse struct {
	ID        string           `json:"id"`
	From      domain.BackendID `json:"from_provider"`
	To        domain.BackendID `json:"to_provider"`
	Succeeded bool             `json:"succeeded"`
	Reason    string           `json:"reason,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// HandleClassify 画像分類ハンドラー
func (h *ClassificationHandler) HandleClassify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	// マルチパートフォームのパース
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.sendError(w, "Image file is too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.sendError(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	topK := 0
	if v := r.FormValue("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.sendError(w, "top_k must be a positive integer", http.StatusBadRequest)
			return
		}
		topK = n
	}

	// 画像ファイルの取得
	file, _, err := r.FormFile("image")
	if err != nil {
		h.sendError(w, "Image file is required", http.StatusBadRequest)
		return
	}
	defer func() {
		_ = file.Close()
	}()

	imageData, err := io.ReadAll(file)
	if err != nil {
		h.sendError(w, "Failed to read image", http.StatusInternalServerError)
		return
	}

	if err := domain.ValidateImageData(imageData, h.opts.MaxUploadBytes); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	status := h.useCase.GetProviderStatus()
	effectiveTopK := topK
	if effectiveTopK == 0 {
		effectiveTopK = status.TopK
	}

	// Redisキャッシュチェック
	if cached, ok := h.cachedResult(ctx, cache.ClassificationKey(imageData, effectiveTopK, status.Active)); ok {
		h.writeJSON(w, http.StatusOK, "HIT", json.RawMessage(cached))
		return
	}

	result, err := h.useCase.Classify(ctx, domain.NewClassificationRequest(imageData, topK))
	if err != nil {
		h.sendClassifyError(w, err)
		return
	}

	response := ClassifyResponse{
		Success:             true,
		WasteType:           result.WasteType(),
		RawCategory:         result.RawCategory(),
		Confidence:          result.Confidence(),
		LowConfidence:       !result.MeetsThreshold(status.ConfidenceThreshold),
		AllPredictions:      result.AllPredictions(),
		Recommendations:     result.Recommendations(),
		EnvironmentalImpact: result.EnvironmentalImpact(),
		ProviderUsed:        result.ProviderUsed(),
		ProviderName:        h.useCase.ProviderName(result.ProviderUsed()),
		FallbackUsed:        result.FallbackUsed(),
		Reasoning:           result.Reasoning(),
		ProcessedAt:         result.ProcessedAt(),
	}

	body, err := json.Marshal(response)
	if err != nil {
		h.sendError(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	// フォールバック結果はキャッシュしない。キーは実際に使われたバックエンドで作る
	if h.cacheRepo != nil && !result.FallbackUsed() {
		cacheKey := cache.ClassificationKey(imageData, effectiveTopK, result.ProviderUsed())
		if err := h.cacheRepo.Set(ctx, cacheKey, body, h.opts.CacheTTL); err != nil {
			slog.Warn("Failed to cache classification", "error", err)
		}
	}

	h.writeJSON(w, http.StatusOK, "MISS", json.RawMessage(body))
}

// cachedResult キャッシュ済みのレスポンスを返す。壊れたエントリは削除してミス扱い
func (h *ClassificationHandler) cachedResult(ctx context.Context, key string) ([]byte, bool) {
	if h.cacheRepo == nil {
		return nil, false
	}
	cached, err := h.cacheRepo.Get(ctx, key)
	if err != nil || len(cached) == 0 {
		return nil, false
	}
	if !json.Valid(cached) {
		slog.Warn("Discarding corrupt cache entry", "key", key)
		if err := h.cacheRepo.Delete(ctx, key); err != nil {
			slog.Warn("Failed to delete cache entry", "key", key, "error", err)
		}
		return nil, false
	}
	return cached, true
}

// HandleWasteInfo カテゴリの廃棄情報ハンドラー
func (h *ClassificationHandler) HandleWasteInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entry, err := h.useCase.GetWasteInfo(r.PathValue("type"))
	if err != nil {
		h.sendError(w, "Waste type not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, "", struct {
		Success bool `json:"success"`
		domain.RecommendationEntry
	}{Success: true, RecommendationEntry: entry})
}

// HandleProviders プロバイダー設定状況ハンドラー
func (h *ClassificationHandler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.writeJSON(w, http.StatusOK, "", h.statusResponse())
}

// HandleSwitchProvider アクティブプロバイダー切り替えハンドラー
func (h *ClassificationHandler) HandleSwitchProvider(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request SwitchProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	target, err := domain.ParseBackendID(request.Provider)
	if err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !h.useCase.SwitchActiveBackend(r.Context(), target) {
		h.sendError(w, fmt.Sprintf("provider %s is not configured", target), http.StatusConflict)
		return
	}

	h.writeJSON(w, http.StatusOK, "", h.statusResponse())
}

// HandleSwitchHistory 切り替え履歴ハンドラー
func (h *ClassificationHandler) HandleSwitchHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.sendError(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := h.useCase.SwitchHistory(r.Context(), limit)
	if errors.Is(err, usecase.ErrHistoryUnavailable) {
		h.sendError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		slog.Error("Failed to load switch history", "error", err)
		h.sendError(w, "Failed to load switch history", http.StatusInternalServerError)
		return
	}

	items := make([]SwitchEventResponse, len(events))
	for i, e := range events {
		items[i] = SwitchEventResponse{
			ID:        e.ID,
			From:      e.From,
			To:        e.To,
			Succeeded: e.Succeeded,
			Reason:    e.Reason,
			CreatedAt: e.CreatedAt,
		}
	}

	h.writeJSON(w, http.StatusOK, "", struct {
		Success bool                  `json:"success"`
		Events  []SwitchEventResponse `json:"events"`
	}{Success: true, Events: items})
}

func (h *ClassificationHandler) statusResponse() any {
	status := h.useCase.GetProviderStatus()
	return struct {
		Success bool `json:"success"`
		usecase.ProviderStatus
		ActiveName string `json:"active_provider_name"`
	}{
		Success:        true,
		ProviderStatus: status,
		ActiveName:     h.useCase.ProviderName(status.Active),
	}
}

// sendClassifyError 分類失敗をステータスコードに変換
func (h *ClassificationHandler) sendClassifyError(w http.ResponseWriter, err error) {
	var allFailed *domain.AllBackendsFailedError
	if !errors.As(err, &allFailed) {
		slog.Error("Classification failed", "error", err)
		h.sendError(w, "Classification failed", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusBadGateway, "", FailureResponse{
		Success:          false,
		Error:            "all AI providers failed",
		PrimaryProvider:  allFailed.PrimaryBackend,
		PrimaryError:     errorString(allFailed.Primary),
		FallbackProvider: allFailed.FallbackBackend,
		FallbackError:    errorString(allFailed.Fallback),
	})
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// writeJSON JSONレスポンスを送信。cacheStatus が空でなければ X-Cache を付ける
func (h *ClassificationHandler) writeJSON(w http.ResponseWriter, statusCode int, cacheStatus string, body any) {
	w.Header().Set("Content-Type", "application/json")
	if cacheStatus != "" {
		w.Header().Set("X-Cache", cacheStatus)
	}
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// sendError エラーレスポンスを送信
func (h *ClassificationHandler) sendError(w http.ResponseWriter, message string, statusCode int) {
	h.writeJSON(w, statusCode, "", ErrorResponse{
		Success: false,
		Error:   message,
	})
}
