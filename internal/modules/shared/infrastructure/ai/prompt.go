package ai

import (
	"fmt"
	"strings"

	"wastewise-api/internal/modules/classification/domain"
)

// classificationPrompt ビジョン言語サービス向けの分類プロンプト
var classificationPrompt = fmt.Sprintf(`Analyze this image and classify the waste it shows.

Available categories: %s

Reply with JSON only, in exactly this shape:
{
    "waste_type": "the most likely category from the list",
    "confidence": 0.95,
    "reasoning": "one short sentence"
}`, strings.Join(domain.RawCategories, ", "))
