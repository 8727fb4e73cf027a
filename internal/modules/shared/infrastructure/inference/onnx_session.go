package inference

import (
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// environmentMu ONNX Runtime環境の初期化はプロセスで1回
var environmentMu sync.Mutex

// onnxSession ONNX Runtimeによる推論セッション
type onnxSession struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
}

// NewONNXSessionLoader ONNX Runtimeを使うSessionLoaderを返す。
// sharedLibPath が空の場合はライブラリの既定パスを使う
func NewONNXSessionLoader(sharedLibPath string) SessionLoader {
	return func(modelPath string) (Session, error) {
		if err := initializeEnvironment(sharedLibPath); err != nil {
			return nil, err
		}

		inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect ONNX model: %w", err)
		}
		if len(inputs) == 0 || len(outputs) == 0 {
			return nil, errors.New("ONNX model has no inputs or outputs")
		}

		options, err := ort.NewSessionOptions()
		if err != nil {
			return nil, fmt.Errorf("failed to create session options: %w", err)
		}
		defer func() {
			_ = options.Destroy()
		}()

		session, err := ort.NewDynamicAdvancedSession(
			modelPath,
			[]string{inputs[0].Name},
			[]string{outputs[0].Name},
			options,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load ONNX model: %w", err)
		}

		return &onnxSession{
			session:    session,
			inputName:  inputs[0].Name,
			outputName: outputs[0].Name,
		}, nil
	}
}

func initializeEnvironment(sharedLibPath string) error {
	environmentMu.Lock()
	defer environmentMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if sharedLibPath != "" {
		ort.SetSharedLibraryPath(sharedLibPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}
	return nil
}

// Run 入力テンソルを推論して [1, outputSize] の出力を返す
func (s *onnxSession) Run(input *Tensor, outputSize int) ([]float32, error) {
	inputTensor, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() {
		_ = inputTensor.Destroy()
	}()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(outputSize)))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer func() {
		_ = outputTensor.Destroy()
	}()

	if err := s.session.Run(
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
	); err != nil {
		return nil, fmt.Errorf("ONNX inference failed (%s -> %s): %w", s.inputName, s.outputName, err)
	}

	// GetDataはテンソル破棄後に使えないためコピーする
	out := make([]float32, outputSize)
	copy(out, outputTensor.GetData())
	return out, nil
}

// Close セッションを破棄
func (s *onnxSession) Close() error {
	return s.session.Destroy()
}
