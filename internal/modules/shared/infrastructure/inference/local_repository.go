package inference

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"wastewise-api/internal/config"
	"wastewise-api/internal/modules/classification/domain"
)

// ClassIndicesFile モデルと同じディレクトリに置くラベル定義
const ClassIndicesFile = "class_indices.json"

// LocalRepository オンデバイスONNXモデルによる分類リポジトリ
type LocalRepository struct {
	modelPath string
	inputSize int
	loader    SessionLoader

	once    sync.Once
	session Session
	labels  []string
	loadErr error
}

// NewLocalRepository 新しいLocalRepositoryを作成。モデルは初回の分類時に読み込む
func NewLocalRepository(cfg *config.ClassifierConfig) *LocalRepository {
	inputSize := cfg.LocalInputSize
	if inputSize <= 0 {
		inputSize = domain.DefaultInputSize
	}
	return &LocalRepository{
		modelPath: cfg.LocalModelPath,
		inputSize: inputSize,
		loader:    NewONNXSessionLoader(cfg.ONNXRuntimeLib),
	}
}

// SetSessionLoader テスト用にセッションの読み込み処理を設定（テストコードからのみ使用）
func (r *LocalRepository) SetSessionLoader(loader SessionLoader) {
	r.loader = loader
}

// Backend バックエンドIDを返す
func (r *LocalRepository) Backend() domain.BackendID {
	return domain.BackendLocal
}

// ProviderName プロバイダー名を返す
func (r *LocalRepository) ProviderName() string {
	return "Local ONNX model"
}

// IsConfigured モデルファイルが存在するか
func (r *LocalRepository) IsConfigured() bool {
	if r.modelPath == "" {
		return false
	}
	info, err := os.Stat(r.modelPath)
	return err == nil && info.Mode().IsRegular()
}

// Classify 画像を分類して確率の高い順に topK 件の生ラベルを返す。
// 確率が同じ場合はクラスインデックスの小さい方を先にする
func (r *LocalRepository) Classify(ctx context.Context, imageData []byte, topK int) (*domain.BackendOutput, error) {
	if !r.IsConfigured() {
		return nil, &domain.ConfigurationError{Backend: domain.BackendLocal, Reason: "model file not found: " + r.modelPath}
	}

	input, err := Preprocess(imageData, r.inputSize)
	if err != nil {
		return nil, err
	}

	session, labels, err := r.load()
	if err != nil {
		return nil, &domain.ProviderError{Backend: domain.BackendLocal, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return nil, &domain.ProviderError{Backend: domain.BackendLocal, Timeout: errors.Is(err, context.DeadlineExceeded), Err: err}
	}

	probs, err := session.Run(input, len(labels))
	if err != nil {
		return nil, &domain.ProviderError{Backend: domain.BackendLocal, Err: err}
	}
	if len(probs) != len(labels) {
		return nil, &domain.ProviderError{
			Backend: domain.BackendLocal,
			Err:     fmt.Errorf("model returned %d scores for %d classes", len(probs), len(labels)),
		}
	}

	return &domain.BackendOutput{Predictions: topPredictions(probs, labels, topK)}, nil
}

// Close 読み込み済みのセッションを破棄
func (r *LocalRepository) Close() error {
	if r.session == nil {
		return nil
	}
	return r.session.Close()
}

// load 初回のみモデルとラベルを読み込む。失敗も記憶する
func (r *LocalRepository) load() (Session, []string, error) {
	r.once.Do(func() {
		labels, err := loadClassIndices(r.modelPath)
		if err != nil {
			r.loadErr = err
			return
		}
		session, err := r.loader(r.modelPath)
		if err != nil {
			r.loadErr = fmt.Errorf("failed to load model %s: %w", r.modelPath, err)
			return
		}
		r.session = session
		r.labels = labels
	})
	return r.session, r.labels, r.loadErr
}

// loadClassIndices class_indices.json（{"battery": 0, ...}）があればそのラベル順を使う
func loadClassIndices(modelPath string) ([]string, error) {
	path := filepath.Join(filepath.Dir(modelPath), ClassIndicesFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return slices.Clone(domain.RawCategories), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read class indices: %w", err)
	}

	var indices map[string]int
	if err := json.Unmarshal(data, &indices); err != nil {
		return nil, fmt.Errorf("failed to parse class indices: %w", err)
	}
	if len(indices) == 0 {
		return nil, errors.New("class indices file is empty")
	}

	labels := make([]string, len(indices))
	for label, idx := range indices {
		if idx < 0 || idx >= len(labels) || labels[idx] != "" {
			return nil, fmt.Errorf("invalid class index %d for %q", idx, label)
		}
		labels[idx] = label
	}
	return labels, nil
}

func topPredictions(probs []float32, labels []string, topK int) []domain.RawPrediction {
	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(probs[b], probs[a])
	})

	if topK < 1 {
		topK = 1
	}
	if topK > len(order) {
		topK = len(order)
	}

	predictions := make([]domain.RawPrediction, 0, topK)
	for _, idx := range order[:topK] {
		predictions = append(predictions, domain.RawPrediction{
			RawLabel: labels[idx],
			Score:    float64(probs[idx]),
		})
	}
	return predictions
}
