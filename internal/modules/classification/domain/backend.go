package domain

import (
	"context"
	"fmt"
	"strings"
)

// BackendID 分類バックエンドの識別子
type BackendID string

const (
	// BackendLocal オンデバイスのONNXモデル
	BackendLocal BackendID = "local"
	// BackendHuggingFace 汎用ラベル/スコア分類サービス
	BackendHuggingFace BackendID = "huggingface"
	// BackendGemini 構造化プロンプト型のビジョン言語サービス（A）
	BackendGemini BackendID = "gemini"
	// BackendOpenAI 構造化プロンプト型のビジョン言語サービス（B）
	BackendOpenAI BackendID = "openai"
)

// AllBackends 全バックエンド（表示順）
var AllBackends = []BackendID{BackendLocal, BackendHuggingFace, BackendGemini, BackendOpenAI}

// ParseBackendID 文字列からBackendIDを解決
func ParseBackendID(s string) (BackendID, error) {
	id := BackendID(strings.ToLower(strings.TrimSpace(s)))
	for _, b := range AllBackends {
		if b == id {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown backend: %q", s)
}

// String 文字列表現
func (b BackendID) String() string {
	return string(b)
}

// UsesKeywordMatching ラベル語彙が自由なためキーワード照合で正規化するか
func (b BackendID) UsesKeywordMatching() bool {
	return b == BackendHuggingFace
}

// BackendOutput バックエンドの生の出力（正規化前）
type BackendOutput struct {
	// Predictions バックエンド固有の順序で並んだ生の予測
	Predictions []RawPrediction
	// Reasoning ビジョン言語サービスが返した判定理由
	Reasoning string
}

// ClassifierRepository 分類バックエンドのリポジトリインターフェース
type ClassifierRepository interface {
	// Classify 画像を分類して生の予測を返す
	Classify(ctx context.Context, imageData []byte, topK int) (*BackendOutput, error)

	// Backend バックエンドIDを返す
	Backend() BackendID

	// ProviderName プロバイダー名を返す
	ProviderName() string
}
