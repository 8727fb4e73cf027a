package di

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"wastewise-api/internal/config"
	classificationDomain "wastewise-api/internal/modules/classification/domain"
	classificationHandler "wastewise-api/internal/modules/classification/presentation/handler"
	classificationUsecase "wastewise-api/internal/modules/classification/usecase"
	sharedAI "wastewise-api/internal/modules/shared/infrastructure/ai"
	sharedCache "wastewise-api/internal/modules/shared/infrastructure/cache"
	sharedDB "wastewise-api/internal/modules/shared/infrastructure/database"
	sharedInference "wastewise-api/internal/modules/shared/infrastructure/inference"
	httpHandler "wastewise-api/internal/presentation/http/handler"
)

// Container DIコンテナ
type Container struct {
	// Shared Infrastructure
	localRepo *sharedInference.LocalRepository
	cacheRepo *sharedCache.RedisRepository
	eventRepo *sharedDB.BunProviderEventRepository

	// Classification Module
	classificationUseCase *classificationUsecase.ClassificationUseCase
	classificationHandler *classificationHandler.ClassificationHandler

	healthHandler *httpHandler.HealthHandler
}

// NewContainer 新しいContainerを作成。
// Redis/MySQLはホスト未設定または接続失敗のとき無効のまま起動する
func NewContainer(cfg *config.Config) (*Container, error) {
	container := &Container{}

	providerConfig, err := NewProviderConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize provider config: %w", err)
	}

	// Shared Infrastructure: Classifier Repositories
	timeout := providerConfig.RequestTimeout()
	container.localRepo = sharedInference.NewLocalRepository(&cfg.Classifier)
	geminiRepo, err := sharedAI.NewGeminiRepository(&cfg.Gemini, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gemini repository: %w", err)
	}
	repos := []classificationDomain.ClassifierRepository{
		container.localRepo,
		sharedAI.NewHuggingFaceRepository(&cfg.HuggingFace, timeout),
		geminiRepo,
		sharedAI.NewOpenAIRepository(&cfg.OpenAI, timeout),
	}

	// Shared Infrastructure: Cache Repository
	var cacheRepo classificationDomain.CacheRepository
	if cfg.Redis.Host != "" {
		repo, err := sharedCache.NewRedisRepository(&cfg.Redis)
		if err != nil {
			slog.Warn("Result cache disabled", "error", err)
		} else {
			container.cacheRepo = repo
			cacheRepo = repo
		}
	}

	// Shared Infrastructure: Provider Switch Event Repository
	var eventRepo classificationDomain.ProviderEventRepository
	if cfg.MySQL.Host != "" {
		repo, err := sharedDB.NewBunProviderEventRepository(&cfg.MySQL)
		if err != nil {
			slog.Warn("Provider switch history disabled", "error", err)
		} else {
			container.eventRepo = repo
			eventRepo = repo
		}
	}

	// Classification Module: UseCase
	container.classificationUseCase = classificationUsecase.NewClassificationUseCase(providerConfig, repos, eventRepo)

	// Classification Module: Handler
	container.classificationHandler = classificationHandler.NewClassificationHandler(
		container.classificationUseCase,
		cacheRepo,
		classificationHandler.Options{
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
			CacheTTL:       cfg.Classifier.CacheTTL,
		},
	)

	container.healthHandler = httpHandler.NewHealthHandler(container.classificationUseCase)

	status := container.classificationUseCase.GetProviderStatus()
	slog.Info("Classifier initialized",
		"active", status.Active,
		"fallback", status.Fallback,
		"configured", status.Configured,
		"cache", container.cacheRepo != nil,
		"switch_history", container.eventRepo != nil,
	)

	return container, nil
}

// NewProviderConfig 設定ファイルの内容からプロバイダー設定を作成
func NewProviderConfig(cfg *config.Config) (*classificationDomain.ProviderConfig, error) {
	active, err := classificationDomain.ParseBackendID(cfg.Classifier.ActiveProvider)
	if err != nil {
		return nil, err
	}

	var fallback classificationDomain.BackendID
	switch strings.ToLower(strings.TrimSpace(cfg.Classifier.FallbackProvider)) {
	case "", "none":
	default:
		fallback, err = classificationDomain.ParseBackendID(cfg.Classifier.FallbackProvider)
		if err != nil {
			return nil, err
		}
	}

	return classificationDomain.NewProviderConfig(classificationDomain.ProviderConfigParams{
		Active:   active,
		Fallback: fallback,
		Credentials: map[classificationDomain.BackendID]string{
			classificationDomain.BackendHuggingFace: cfg.HuggingFace.APIKey,
			classificationDomain.BackendGemini:      cfg.Gemini.APIKey,
			classificationDomain.BackendOpenAI:      cfg.OpenAI.APIKey,
		},
		LocalModelPath:      cfg.Classifier.LocalModelPath,
		LocalInputSize:      cfg.Classifier.LocalInputSize,
		ConfidenceThreshold: cfg.Classifier.ConfidenceThreshold,
		TopKDefault:         cfg.Classifier.TopK,
		RequestTimeout:      cfg.Classifier.RequestTimeout,
	})
}

// ClassificationUseCase 分類ユースケースを取得
func (c *Container) ClassificationUseCase() *classificationUsecase.ClassificationUseCase {
	return c.classificationUseCase
}

// ClassificationHandler 分類APIハンドラーを取得
func (c *Container) ClassificationHandler() *classificationHandler.ClassificationHandler {
	return c.classificationHandler
}

// HealthHandler ヘルスチェックハンドラーを取得
func (c *Container) HealthHandler() *httpHandler.HealthHandler {
	return c.healthHandler
}

// Close リソースをクローズ
func (c *Container) Close() error {
	var errs []error

	if c.localRepo != nil {
		if err := c.localRepo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close local model: %w", err))
		}
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close cache repository: %w", err))
		}
	}

	if c.eventRepo != nil {
		if err := c.eventRepo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close provider event repository: %w", err))
		}
	}

	return errors.Join(errs...)
}
