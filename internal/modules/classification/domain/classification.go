package domain

import (
	"slices"
	"time"
)

// DefaultTopK top_k未指定時の既定値
const DefaultTopK = 3

// RawPrediction バックエンド固有ラベルとスコア
type RawPrediction struct {
	RawLabel string
	Score    float64
}

// Prediction 正規化済みの予測1件
type Prediction struct {
	Category   Category `json:"category"`
	RawLabel   string   `json:"raw_label"`
	Confidence float64  `json:"confidence"`
}

// ClassificationRequest 分類リクエスト
type ClassificationRequest struct {
	Image []byte
	TopK  int
}

// NewClassificationRequest 新しいClassificationRequestを作成
func NewClassificationRequest(image []byte, topK int) ClassificationRequest {
	return ClassificationRequest{Image: slices.Clone(image), TopK: topK}
}

// ClassificationResult 分類結果のエンティティ（生成後は不変）
type ClassificationResult struct {
	wasteType           Category
	rawCategory         string
	confidence          float64
	allPredictions      []Prediction
	providerUsed        BackendID
	fallbackUsed        bool
	reasoning           string
	recommendations     []string
	environmentalImpact string
	processedAt         time.Time
}

// ResultParams ClassificationResultの生成パラメータ
type ResultParams struct {
	Predictions  []Prediction
	RawCategory  string
	WasteType    Category
	Confidence   float64
	ProviderUsed BackendID
	FallbackUsed bool
	Reasoning    string
	Entry        RecommendationEntry
}

// NewClassificationResult 新しいClassificationResultを作成
func NewClassificationResult(p ResultParams) *ClassificationResult {
	return &ClassificationResult{
		wasteType:           p.WasteType,
		rawCategory:         p.RawCategory,
		confidence:          p.Confidence,
		allPredictions:      slices.Clone(p.Predictions),
		providerUsed:        p.ProviderUsed,
		fallbackUsed:        p.FallbackUsed,
		reasoning:           p.Reasoning,
		recommendations:     slices.Clone(p.Entry.Tips),
		environmentalImpact: p.Entry.ImpactStatement,
		processedAt:         time.Now(),
	}
}

func (r *ClassificationResult) WasteType() Category { return r.wasteType }
func (r *ClassificationResult) RawCategory() string { return r.rawCategory }
func (r *ClassificationResult) Confidence() float64 { return r.confidence }
func (r *ClassificationResult) ProviderUsed() BackendID { return r.providerUsed }
func (r *ClassificationResult) FallbackUsed() bool { return r.fallbackUsed }
func (r *ClassificationResult) Reasoning() string { return r.reasoning }
func (r *ClassificationResult) ProcessedAt() time.Time { return r.processedAt }

// AllPredictions 予測一覧のコピーを返す
func (r *ClassificationResult) AllPredictions() []Prediction {
	return slices.Clone(r.allPredictions)
}

// Recommendations 廃棄のヒントのコピーを返す
func (r *ClassificationResult) Recommendations() []string {
	return slices.Clone(r.recommendations)
}

// EnvironmentalImpact 環境への影響
func (r *ClassificationResult) EnvironmentalImpact() string {
	return r.environmentalImpact
}

// MeetsThreshold 信頼度が閾値以上か（判定の参考値。拒否には使わない）
func (r *ClassificationResult) MeetsThreshold(threshold float64) bool {
	return r.confidence >= threshold
}
