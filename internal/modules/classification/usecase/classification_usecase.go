package usecase

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"wastewise-api/internal/modules/classification/domain"
)

// ErrHistoryUnavailable 切り替え履歴の保存先が無い
var ErrHistoryUnavailable = errors.New("provider switch history is not available")

// ProviderStatus バックエンドの設定状況
type ProviderStatus struct {
	Active              domain.BackendID          `json:"active_provider"`
	Fallback            domain.BackendID          `json:"fallback_provider"`
	Configured          map[domain.BackendID]bool `json:"configured"`
	ConfidenceThreshold float64                   `json:"confidence_threshold"`
	TopK                int                       `json:"top_k"`
}

// attempt 1バックエンドへの1回の呼び出し結果
type attempt struct {
	backend domain.BackendID
	output  *domain.BackendOutput
	err     error
	elapsed time.Duration
}

// ClassificationUseCase 廃棄物分類のユースケース
type ClassificationUseCase struct {
	repos  map[domain.BackendID]domain.ClassifierRepository
	config atomic.Pointer[domain.ProviderConfig]
	events domain.ProviderEventRepository
}

// NewClassificationUseCase 新しいClassificationUseCaseを作成。events は nil でもよい
func NewClassificationUseCase(cfg *domain.ProviderConfig, repos []domain.ClassifierRepository, events domain.ProviderEventRepository) *ClassificationUseCase {
	uc := &ClassificationUseCase{
		repos:  make(map[domain.BackendID]domain.ClassifierRepository, len(repos)),
		events: events,
	}
	for _, repo := range repos {
		uc.repos[repo.Backend()] = repo
	}
	uc.config.Store(cfg)
	return uc
}

// Classify 画像を分類する。アクティブが失敗した場合はフォールバックを1回だけ試す。
// バックエンド呼び出しは呼び出し元のキャンセルで中断しない
func (uc *ClassificationUseCase) Classify(ctx context.Context, req domain.ClassificationRequest) (*domain.ClassificationResult, error) {
	cfg := uc.config.Load()
	topK := req.TopK
	if topK < 1 {
		topK = cfg.TopKDefault()
	}
	ctx = context.WithoutCancel(ctx)

	primary := uc.invoke(ctx, cfg, cfg.Active(), req.Image, topK)
	if primary.err == nil {
		return buildResult(primary, topK, false), nil
	}
	logFailure(primary, "primary")

	fallback, cfgErr := cfg.UsableFallback()
	if cfgErr != nil {
		return nil, &domain.AllBackendsFailedError{
			PrimaryBackend:  primary.backend,
			Primary:         primary.err,
			FallbackBackend: fallback,
			Fallback:        cfgErr,
		}
	}

	slog.Info("Trying fallback provider", "primary", primary.backend, "fallback", fallback)
	secondary := uc.invoke(ctx, cfg, fallback, req.Image, topK)
	if secondary.err == nil {
		return buildResult(secondary, topK, true), nil
	}
	logFailure(secondary, "fallback")

	return nil, &domain.AllBackendsFailedError{
		PrimaryBackend:  primary.backend,
		Primary:         primary.err,
		FallbackBackend: secondary.backend,
		Fallback:        secondary.err,
	}
}

// invoke バックエンドを1回だけ呼び出す
func (uc *ClassificationUseCase) invoke(ctx context.Context, cfg *domain.ProviderConfig, backend domain.BackendID, image []byte, topK int) attempt {
	a := attempt{backend: backend}
	if !cfg.IsConfigured(backend) {
		a.err = &domain.ConfigurationError{Backend: backend, Reason: "provider has no credential or model file"}
		return a
	}
	repo, ok := uc.repos[backend]
	if !ok {
		a.err = &domain.ConfigurationError{Backend: backend, Reason: "no adapter registered"}
		return a
	}

	start := time.Now()
	a.output, a.err = repo.Classify(ctx, image, topK)
	a.elapsed = time.Since(start)
	if a.err == nil && (a.output == nil || len(a.output.Predictions) == 0) {
		a.err = &domain.ProviderError{Backend: backend, Err: errors.New("backend returned no predictions")}
	}
	return a
}

func logFailure(a attempt, role string) {
	slog.Warn("Provider failed",
		"role", role,
		"provider", a.backend,
		"kind", domain.FailureKind(a.err),
		"duration", a.elapsed,
		"error", a.err,
	)
}

// buildResult 生の予測を正規化し、信頼度の降順で topK 件に絞る
func buildResult(a attempt, topK int, fallbackUsed bool) *domain.ClassificationResult {
	predictions := make([]domain.Prediction, len(a.output.Predictions))
	for i, raw := range a.output.Predictions {
		predictions[i] = domain.Prediction{
			Category:   domain.Normalize(raw.RawLabel, a.backend),
			RawLabel:   raw.RawLabel,
			Confidence: raw.Score,
		}
	}

	top := predictions[0]
	if a.backend.UsesKeywordMatching() {
		top = keywordTop(predictions)
	}

	slices.SortStableFunc(predictions, func(x, y domain.Prediction) int {
		return cmp.Compare(y.Confidence, x.Confidence)
	})
	if !a.backend.UsesKeywordMatching() {
		top = predictions[0]
	}
	if len(predictions) > topK {
		predictions = predictions[:topK]
	}

	return domain.NewClassificationResult(domain.ResultParams{
		Predictions:  predictions,
		RawCategory:  top.RawLabel,
		WasteType:    top.Category,
		Confidence:   top.Confidence,
		ProviderUsed: a.backend,
		FallbackUsed: fallbackUsed,
		Reasoning:    a.output.Reasoning,
		Entry:        domain.Recommend(top.Category),
	})
}

// keywordTop 応答順で最初にキーワード一致した予測。無ければ先頭をgeneralとする
func keywordTop(predictions []domain.Prediction) domain.Prediction {
	for _, p := range predictions {
		if p.Category != domain.CategoryGeneral {
			return p
		}
	}
	top := predictions[0]
	top.Category = domain.CategoryGeneral
	return top
}

// GetRecommendations カテゴリの廃棄のヒントを返す。未知のカテゴリはgeneral
func (uc *ClassificationUseCase) GetRecommendations(category string) []string {
	return domain.Recommend(domain.Category(strings.ToLower(strings.TrimSpace(category)))).Tips
}

// GetWasteInfo カテゴリの推奨エントリを返す
func (uc *ClassificationUseCase) GetWasteInfo(category string) (domain.RecommendationEntry, error) {
	c, err := domain.ParseCategory(category)
	if err != nil {
		return domain.RecommendationEntry{}, err
	}
	return domain.Recommend(c), nil
}

// SwitchActiveBackend アクティブバックエンドを切り替える。
// 未設定のバックエンドへの切り替えは false を返し、設定は変更しない
func (uc *ClassificationUseCase) SwitchActiveBackend(ctx context.Context, target domain.BackendID) bool {
	for {
		current := uc.config.Load()
		next, err := current.WithActive(target)
		if err != nil {
			slog.Warn("Provider switch rejected", "from", current.Active(), "to", target, "error", err)
			uc.recordSwitch(ctx, current.Active(), target, err)
			return false
		}
		if uc.config.CompareAndSwap(current, next) {
			slog.Info("Active provider switched", "from", current.Active(), "to", target)
			uc.recordSwitch(ctx, current.Active(), target, nil)
			return true
		}
	}
}

func (uc *ClassificationUseCase) recordSwitch(ctx context.Context, from, to domain.BackendID, cause error) {
	if uc.events == nil {
		return
	}
	event := domain.NewProviderSwitchEvent(from, to, cause)
	if err := uc.events.Save(ctx, event); err != nil {
		slog.Error("Failed to record provider switch", "id", event.ID, "error", err)
	}
}

// SwitchHistory 最近の切り替え履歴を返す
func (uc *ClassificationUseCase) SwitchHistory(ctx context.Context, limit int) ([]*domain.ProviderSwitchEvent, error) {
	if uc.events == nil {
		return nil, ErrHistoryUnavailable
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	events, err := uc.events.FindRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load switch history: %w", err)
	}
	return events, nil
}

// GetProviderStatus 現在の設定状況を返す
func (uc *ClassificationUseCase) GetProviderStatus() ProviderStatus {
	cfg := uc.config.Load()
	return ProviderStatus{
		Active:              cfg.Active(),
		Fallback:            cfg.Fallback(),
		Configured:          cfg.ConfiguredMap(),
		ConfidenceThreshold: cfg.ConfidenceThreshold(),
		TopK:                cfg.TopKDefault(),
	}
}

// ProviderName バックエンドのプロバイダー名を返す
func (uc *ClassificationUseCase) ProviderName(backend domain.BackendID) string {
	if repo, ok := uc.repos[backend]; ok {
		return repo.ProviderName()
	}
	return string(backend)
}
