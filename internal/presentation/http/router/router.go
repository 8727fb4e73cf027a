package router

import (
	"net/http"

	"wastewise-api/internal/presentation/di"
	"wastewise-api/internal/presentation/http/middleware"
)

// NewRouter 新しいルーターを作成
func NewRouter(container *di.Container) http.Handler {
	mux := http.NewServeMux()

	// 分類 API ハンドラー
	classificationHandler := container.ClassificationHandler()
	mux.HandleFunc("/api/v1/classify", classificationHandler.HandleClassify)
	mux.HandleFunc("/api/v1/waste-info/{type}", classificationHandler.HandleWasteInfo)

	// プロバイダー管理
	mux.HandleFunc("/api/v1/ai/providers", classificationHandler.HandleProviders)
	mux.HandleFunc("/api/v1/ai/switch-provider", classificationHandler.HandleSwitchProvider)
	mux.HandleFunc("/api/v1/ai/switch-history", classificationHandler.HandleSwitchHistory)

	// Health check
	mux.Handle("/health", container.HealthHandler())

	// ミドルウェアの適用
	var h http.Handler = mux
	h = middleware.Recovery(h)
	h = middleware.LoggerWithHealthCheck(h)
	h = middleware.CORS(h)
	h = middleware.RequestID(h)

	return h
}
