package inference

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"

	"wastewise-api/internal/modules/classification/domain"
)

// Tensor NHWCレイアウトの入力テンソル
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Preprocess 画像をデコードし size×size にリサイズして [1,H,W,3] の0〜1テンソルにする。
// Goのデコーダは常にRGB順で返す。アルファは捨て、保存されたRGB値をそのまま使う
func Preprocess(data []byte, size int) (*Tensor, error) {
	if len(data) == 0 {
		return nil, &domain.PreprocessingError{Err: errors.New("image data is empty")}
	}
	if size <= 0 {
		return nil, &domain.PreprocessingError{Err: fmt.Errorf("invalid input size: %d", size)}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &domain.PreprocessingError{Err: fmt.Errorf("failed to decode image: %w", err)}
	}

	resized := resize.Resize(uint(size), uint(size), dropAlpha(img), resize.Bilinear)
	bounds := resized.Bounds()

	pixels := make([]float32, 0, size*size*3)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			pixels = append(pixels,
				float32(r>>8)/255.0,
				float32(g>>8)/255.0,
				float32(b>>8)/255.0,
			)
		}
	}

	return &Tensor{
		Shape: []int64{1, int64(size), int64(size), 3},
		Data:  pixels,
	}, nil
}

// dropAlpha 非乗算のRGB値を保ったまま不透明な画像にする
func dropAlpha(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	opaque := image.NewNRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			c.A = 0xff
			opaque.SetNRGBA(x, y, c)
		}
	}
	return opaque
}
