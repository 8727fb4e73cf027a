package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"wastewise-api/internal/config"
	"wastewise-api/internal/logging"
	"wastewise-api/internal/presentation/di"
	"wastewise-api/internal/presentation/http/router"
)

// AppConfig アプリケーション設定
type AppConfig struct {
	ConfigPath string
	Port       string
}

// ServerInterface サーバーインターフェース（Seam化）
type ServerInterface interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App アプリケーション構造体（Seamパターン）
type App struct {
	config     *AppConfig
	container  *di.Container
	server     *http.Server
	serverSeam ServerInterface // テスト用のSeam
	logCloser  io.Closer
}

// NewApp 新しいAppを作成
func NewApp(appCfg *AppConfig) (*App, error) {
	// 設定の読み込み
	cfg, err := config.Load(appCfg.ConfigPath)
	if err != nil {
		log.Printf("Failed to load config: %v. Using defaults.", err)
		cfg = config.DefaultConfig()
	}

	// ポートは引数 > 設定ファイル > 8080 の順
	if appCfg.Port == "" {
		appCfg.Port = cfg.Server.Port
	}
	if appCfg.Port == "" {
		appCfg.Port = "8080"
	}

	logCloser, err := logging.Setup(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	// DIコンテナの初期化
	container, err := di.NewContainer(cfg)
	if err != nil {
		_ = logCloser.Close()
		return nil, fmt.Errorf("failed to initialize DI container: %w", err)
	}

	// ルーターの作成
	handler := router.NewRouter(container)

	// サーバーの設定。書き込みタイムアウトはアクティブとフォールバックの2回分を見込む
	server := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2*cfg.Classifier.RequestTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	app := &App{
		config:    appCfg,
		container: container,
		server:    server,
		logCloser: logCloser,
	}
	// デフォルトでは実際のサーバーを使用
	app.serverSeam = server

	return app, nil
}

// Start サーバーを起動
func (a *App) Start() error {
	// 起動メッセージ
	a.printStartupMessage()

	// サーバー起動（Seamを使用）
	return a.serverSeam.ListenAndServe()
}

// printStartupMessage 起動メッセージを出力
func (a *App) printStartupMessage() {
	status := a.container.ClassificationUseCase().GetProviderStatus()
	fmt.Println("=== WasteWise Classification API ===")
	fmt.Printf("Active provider:   %s\n", a.container.ClassificationUseCase().ProviderName(status.Active))
	fmt.Printf("Fallback provider: %s\n", status.Fallback)
	fmt.Printf("Server listening on http://0.0.0.0:%s\n", a.config.Port)
	fmt.Println()
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /health                        - Health check")
	fmt.Println("  POST /api/v1/classify               - Classify a waste image")
	fmt.Println("  GET  /api/v1/waste-info/{type}      - Disposal tips for a category")
	fmt.Println("  GET  /api/v1/ai/providers           - Provider status")
	fmt.Println("  POST /api/v1/ai/switch-provider     - Switch the active provider")
	fmt.Println("  GET  /api/v1/ai/switch-history      - Provider switch history")
	fmt.Println()
}

// Shutdown サーバーをシャットダウン
func (a *App) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down server...")

	// サーバーのシャットダウン（Seamを使用）
	if err := a.serverSeam.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// コンテナのクローズ
	if err := a.container.Close(); err != nil {
		return fmt.Errorf("container close failed: %w", err)
	}

	slog.Info("Server stopped")
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
	return nil
}

// Run アプリケーションを実行（グレースフルシャットダウン付き）
func (a *App) Run() error {
	// サーバー起動（goroutine）
	serverErr := make(chan error, 1)
	go func() {
		if err := a.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// シグナルの待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
		// グレースフルシャットダウン
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return a.Shutdown(ctx)
	}
}

// configPathFromEnv 設定ファイルのパス。WASTEWISE_CONFIG が無ければ config.yaml
func configPathFromEnv() string {
	if p := os.Getenv("WASTEWISE_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// realMain 実際のmain処理（テスト可能にするため分離）
func realMain() error {
	// .env は無くてもよい
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load .env: %v", err)
	}

	// アプリケーションの作成
	app, err := NewApp(&AppConfig{
		ConfigPath: configPathFromEnv(),
		Port:       os.Getenv("PORT"),
	})
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	// アプリケーションの実行
	return app.Run()
}

func main() {
	if err := realMain(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}
