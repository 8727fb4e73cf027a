package inference

// Session 読み込み済みモデルの推論セッション
type Session interface {
	// Run 1枚分の入力から確率ベクトルを返す
	Run(input *Tensor, outputSize int) ([]float32, error)

	// Close セッションを破棄
	Close() error
}

// SessionLoader モデルファイルからセッションを作成する関数
type SessionLoader func(modelPath string) (Session, error)
