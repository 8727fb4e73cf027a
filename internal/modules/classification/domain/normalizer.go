package domain

import (
	"strings"
	"unicode"
)

// RawCategories 学習済みモデルのクラスインデックス順の生ラベル
var RawCategories = []string{
	"battery", "biological", "brown-glass", "cardboard",
	"clothes", "green-glass", "metal", "paper",
	"plastic", "shoes", "trash", "white-glass",
}

// rawCategoryMapping 生ラベルから業務カテゴリへの固定マップ
var rawCategoryMapping = map[string]Category{
	"battery":     CategoryEWaste,
	"biological":  CategoryOrganic,
	"brown-glass": CategoryGlass,
	"cardboard":   CategoryPaper,
	"clothes":     CategoryTextile,
	"green-glass": CategoryGlass,
	"metal":       CategoryMetal,
	"paper":       CategoryPaper,
	"plastic":     CategoryPlastic,
	"shoes":       CategoryTextile,
	"trash":       CategoryGeneral,
	"white-glass": CategoryGlass,
}

// categoryKeywords 自由語彙ラベル向けのキーワード集合
var categoryKeywords = map[Category][]string{
	CategoryEWaste:  {"electronic", "battery", "batteries", "phone", "computer", "laptop", "device", "charger", "cable"},
	CategoryGlass:   {"glass", "jar"},
	CategoryMetal:   {"metal", "can", "aluminum", "aluminium", "steel", "iron", "tin"},
	CategoryPlastic: {"plastic", "bottle", "container", "bag", "packaging", "wrapper"},
	CategoryPaper:   {"paper", "cardboard", "newspaper", "magazine", "book", "carton"},
	CategoryOrganic: {"food", "organic", "fruit", "vegetable", "compost", "peel", "leaf", "leaves"},
	CategoryTextile: {"cloth", "clothes", "clothing", "shirt", "shoe", "textile", "fabric", "jacket"},
}

// Normalize 生ラベルを業務カテゴリに正規化する。失敗せず、不明なラベルはgeneral
func Normalize(rawLabel string, backend BackendID) Category {
	if backend.UsesKeywordMatching() {
		category, _ := MatchKeywords(rawLabel)
		return category
	}
	return mapRawCategory(rawLabel)
}

func mapRawCategory(rawLabel string) Category {
	key := strings.ToLower(strings.TrimSpace(rawLabel))
	if category, ok := rawCategoryMapping[key]; ok {
		return category
	}
	// ビジョン言語サービスは業務カテゴリ名をそのまま返すことがある
	if category := Category(key); category.IsValid() {
		return category
	}
	return CategoryGeneral
}

// MatchKeywords AllCategoriesの優先順でキーワード照合する。
// 2つ目の戻り値はgeneral以外に一致したかどうか
func MatchKeywords(label string) (Category, bool) {
	words := tokenize(label)
	for _, category := range AllCategories {
		for _, keyword := range categoryKeywords[category] {
			if containsWord(words, keyword) {
				return category, true
			}
		}
	}
	return CategoryGeneral, false
}

func tokenize(label string) []string {
	return strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsWord 単語一致（単純な複数形 -s / -es を許容）
func containsWord(words []string, keyword string) bool {
	for _, w := range words {
		if w == keyword || w == keyword+"s" || w == keyword+"es" {
			return true
		}
	}
	return false
}
