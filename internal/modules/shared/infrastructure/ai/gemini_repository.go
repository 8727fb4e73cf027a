package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"wastewise-api/internal/config"
	"wastewise-api/internal/modules/classification/domain"
)

// geminiMaxOutputTokens 判定JSONに十分な出力上限
const geminiMaxOutputTokens = 300

// GeminiRepository Gemini generateContent APIのリポジトリ実装
type GeminiRepository struct {
	apiKey  string
	model   string
	timeout time.Duration
	client  *genai.Client // APIキー未設定のときは nil
}

// NewGeminiRepository 新しいGeminiRepositoryを作成。APIキーが無ければクライアントは作らない
func NewGeminiRepository(cfg *config.GeminiConfig, timeout time.Duration) (*GeminiRepository, error) {
	return newGeminiRepository(cfg, timeout, nil)
}

func newGeminiRepository(cfg *config.GeminiConfig, timeout time.Duration, httpClient *http.Client) (*GeminiRepository, error) {
	if timeout <= 0 {
		timeout = domain.DefaultRequestTimeout
	}
	repo := &GeminiRepository{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		timeout: timeout,
	}
	if !repo.IsConfigured() {
		return repo, nil
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.APIURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{
			BaseURL: cfg.APIURL,
		}
	}

	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	repo.client = client
	return repo, nil
}

// Backend バックエンドIDを返す
func (r *GeminiRepository) Backend() domain.BackendID {
	return domain.BackendGemini
}

// ProviderName プロバイダー名を返す
func (r *GeminiRepository) ProviderName() string {
	return "Google Gemini (" + r.model + ")"
}

// IsConfigured APIキーが設定されているか
func (r *GeminiRepository) IsConfigured() bool {
	return strings.TrimSpace(r.apiKey) != ""
}

// Classify 画像とプロンプトを送信し、応答テキスト中のJSONから分類を取り出す
func (r *GeminiRepository) Classify(ctx context.Context, imageData []byte, topK int) (*domain.BackendOutput, error) {
	if r.client == nil {
		return nil, &domain.ConfigurationError{Backend: domain.BackendGemini, Reason: "GEMINI_API_KEY is not set"}
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: classificationPrompt},
				{InlineData: &genai.Blob{
					MIMEType: domain.DetectMediaType(imageData),
					Data:     imageData,
				}},
			},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.client.Models.GenerateContent(ctx, r.model, contents, &genai.GenerateContentConfig{
		MaxOutputTokens: geminiMaxOutputTokens,
	})
	if err != nil {
		return nil, geminiError(ctx, err)
	}

	var text strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		reason := "no candidates"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = string(resp.PromptFeedback.BlockReason)
		}
		return nil, &domain.ProviderError{Backend: domain.BackendGemini, Err: errors.New("empty response: " + reason)}
	}

	return parseVerdict(domain.BackendGemini, text.String())
}

// geminiError SDKのエラーをProviderErrorに変換する
func geminiError(ctx context.Context, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &domain.ProviderError{
			Backend:    domain.BackendGemini,
			StatusCode: apiErr.Code,
			Err:        fmt.Errorf("generate content failed: %w", err),
		}
	}
	return requestError(ctx, domain.BackendGemini, err)
}
