package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"wastewise-api/internal/config"
	"wastewise-api/internal/modules/classification/domain"
)

// captionScore キャプション生成モデルはスコアを返さないため固定値を使う
const captionScore = 0.5

// HuggingFaceRepository Hugging Face Inference APIのリポジトリ実装
type HuggingFaceRepository struct {
	apiKey      string
	timeout     time.Duration
	httpClient  *http.Client
	apiEndpoint string // テスト用にエンドポイントを差し替え可能に
}

// NewHuggingFaceRepository 新しいHuggingFaceRepositoryを作成
func NewHuggingFaceRepository(cfg *config.HuggingFaceConfig, timeout time.Duration) *HuggingFaceRepository {
	if timeout <= 0 {
		timeout = domain.DefaultRequestTimeout
	}
	return &HuggingFaceRepository{
		apiKey:      cfg.APIKey,
		timeout:     timeout,
		httpClient:  &http.Client{Timeout: timeout},
		apiEndpoint: strings.TrimRight(cfg.APIURL, "/") + "/" + cfg.Model,
	}
}

// setHTTPClient テスト用にHTTPクライアントを設定（テストコードからのみ使用）
func (r *HuggingFaceRepository) setHTTPClient(client *http.Client) {
	r.httpClient = client
}

// Backend バックエンドIDを返す
func (r *HuggingFaceRepository) Backend() domain.BackendID {
	return domain.BackendHuggingFace
}

// ProviderName プロバイダー名を返す
func (r *HuggingFaceRepository) ProviderName() string {
	return "Hugging Face Inference API"
}

// IsConfigured APIキーが設定されているか
func (r *HuggingFaceRepository) IsConfigured() bool {
	return strings.TrimSpace(r.apiKey) != ""
}

// Classify 画像の生バイト列を送信し、応答の先頭 topK 件をそのままの順序で返す
func (r *HuggingFaceRepository) Classify(ctx context.Context, imageData []byte, topK int) (*domain.BackendOutput, error) {
	if !r.IsConfigured() {
		return nil, &domain.ConfigurationError{Backend: domain.BackendHuggingFace, Reason: "HUGGINGFACE_API_KEY is not set"}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.apiEndpoint, bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", domain.DetectMediaType(imageData))

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, requestError(ctx, domain.BackendHuggingFace, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(domain.BackendHuggingFace, resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, requestError(ctx, domain.BackendHuggingFace, err)
	}

	predictions, err := parseLabelScores(body, topK)
	if err != nil {
		return nil, &domain.ProviderError{Backend: domain.BackendHuggingFace, Err: err}
	}
	return &domain.BackendOutput{Predictions: predictions}, nil
}

// parseLabelScores [{label, score}] 形式の応答を読む。
// キャプション生成モデルの [{generated_text}] も受け付ける
func parseLabelScores(body []byte, topK int) ([]domain.RawPrediction, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("response is not valid JSON")
	}
	result := gjson.ParseBytes(body)
	if !result.IsArray() {
		if msg := result.Get("error"); msg.Exists() {
			return nil, fmt.Errorf("API error: %s", msg.String())
		}
		return nil, errors.New("response is not a JSON array")
	}

	if topK < 1 {
		topK = 1
	}
	var predictions []domain.RawPrediction
	for _, item := range result.Array() {
		if len(predictions) == topK {
			break
		}
		label := item.Get("label").String()
		if label == "" {
			label = item.Get("generated_text").String()
		}
		if label == "" {
			continue
		}
		score := captionScore
		if s := item.Get("score"); s.Exists() {
			score = clamp01(s.Float())
		}
		predictions = append(predictions, domain.RawPrediction{RawLabel: label, Score: score})
	}

	if len(predictions) == 0 {
		return nil, errors.New("response contains no predictions")
	}
	return predictions, nil
}
