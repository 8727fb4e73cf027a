package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"wastewise-api/internal/modules/classification/domain"
)

const (
	// defaultVerdictConfidence 応答にconfidenceが無い場合の値
	defaultVerdictConfidence = 0.7
	// maxErrorBody エラー応答から読み込む上限
	maxErrorBody = 512
)

// firstJSONObject テキスト中で最初に現れる、括弧の釣り合ったJSONオブジェクトを返す。
// 文字列リテラル内の括弧とエスケープは数えない
func firstJSONObject(text string) (string, bool) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end, ok := matchBrace(text, start); ok {
			candidate := text[start : end+1]
			if gjson.Valid(candidate) {
				return candidate, true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// parseVerdict ビジョン言語サービスの自由文から {waste_type, confidence, reasoning} を取り出す
func parseVerdict(backend domain.BackendID, text string) (*domain.BackendOutput, error) {
	obj, ok := firstJSONObject(text)
	if !ok {
		return nil, &domain.ProviderError{Backend: backend, Err: fmt.Errorf("no JSON object in response: %q", truncate(text, 120))}
	}

	verdict := gjson.Parse(obj)
	wasteType := strings.TrimSpace(verdict.Get("waste_type").String())
	if wasteType == "" {
		return nil, &domain.ProviderError{Backend: backend, Err: fmt.Errorf("response has no waste_type: %s", truncate(obj, 120))}
	}

	confidence := defaultVerdictConfidence
	if c := verdict.Get("confidence"); c.Exists() && c.Type != gjson.Null {
		confidence = clamp01(c.Float())
	}

	return &domain.BackendOutput{
		Predictions: []domain.RawPrediction{{RawLabel: wasteType, Score: confidence}},
		Reasoning:   verdict.Get("reasoning").String(),
	}, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// requestError HTTP送信の失敗をProviderErrorに変換する
func requestError(ctx context.Context, backend domain.BackendID, err error) error {
	return &domain.ProviderError{Backend: backend, Timeout: isTimeout(ctx, err), Err: fmt.Errorf("API request failed: %w", err)}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// statusError 2xx以外の応答をProviderErrorに変換する
func statusError(backend domain.BackendID, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &domain.ProviderError{
		Backend:    backend,
		StatusCode: resp.StatusCode,
		Err:        fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
	}
}
