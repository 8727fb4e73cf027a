package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"wastewise-api/internal/config"
	"wastewise-api/internal/modules/classification/domain"
)

// OpenAIRepository OpenAI Chat Completions APIのリポジトリ実装
type OpenAIRepository struct {
	apiKey    string
	model     string
	maxTokens int
	timeout   time.Duration
	client    openai.Client
}

// NewOpenAIRepository 新しいOpenAIRepositoryを作成
func NewOpenAIRepository(cfg *config.OpenAIConfig, timeout time.Duration) *OpenAIRepository {
	return newOpenAIRepository(cfg, timeout, nil)
}

func newOpenAIRepository(cfg *config.OpenAIConfig, timeout time.Duration, httpClient *http.Client) *OpenAIRepository {
	if timeout <= 0 {
		timeout = domain.DefaultRequestTimeout
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 300
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	return &OpenAIRepository{
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: maxTokens,
		timeout:   timeout,
		client:    openai.NewClient(opts...),
	}
}

// Backend バックエンドIDを返す
func (r *OpenAIRepository) Backend() domain.BackendID {
	return domain.BackendOpenAI
}

// ProviderName プロバイダー名を返す
func (r *OpenAIRepository) ProviderName() string {
	return "OpenAI (" + r.model + ")"
}

// IsConfigured APIキーが設定されているか
func (r *OpenAIRepository) IsConfigured() bool {
	return strings.TrimSpace(r.apiKey) != ""
}

// Classify 画像をdata URLで送信し、応答テキスト中のJSONから分類を取り出す
func (r *OpenAIRepository) Classify(ctx context.Context, imageData []byte, topK int) (*domain.BackendOutput, error) {
	if !r.IsConfigured() {
		return nil, &domain.ConfigurationError{Backend: domain.BackendOpenAI, Reason: "OPENAI_API_KEY is not set"}
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", domain.DetectMediaType(imageData), base64.StdEncoding.EncodeToString(imageData))
	message := openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
					{OfText: &openai.ChatCompletionContentPartTextParam{Text: classificationPrompt}},
					{OfImageURL: &openai.ChatCompletionContentPartImageParam{
						ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL},
					}},
				},
			},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     r.model,
		Messages:  []openai.ChatCompletionMessageParamUnion{message},
		MaxTokens: openai.Int(int64(r.maxTokens)),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &domain.ProviderError{
				Backend:    domain.BackendOpenAI,
				StatusCode: apiErr.StatusCode,
				Err:        fmt.Errorf("chat completion failed: %w", err),
			}
		}
		return nil, requestError(ctx, domain.BackendOpenAI, err)
	}

	if len(resp.Choices) == 0 {
		return nil, &domain.ProviderError{Backend: domain.BackendOpenAI, Err: errors.New("response has no choices")}
	}

	return parseVerdict(domain.BackendOpenAI, resp.Choices[0].Message.Content)
}
