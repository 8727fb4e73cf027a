package domain

import (
	"fmt"
	"strings"
)

// Category 業務向けの正規化済み廃棄物カテゴリ
type Category string

const (
	CategoryEWaste  Category = "e-waste"
	CategoryGlass   Category = "glass"
	CategoryMetal   Category = "metal"
	CategoryPlastic Category = "plastic"
	CategoryPaper   Category = "paper"
	CategoryOrganic Category = "organic"
	CategoryTextile Category = "textile"
	CategoryGeneral Category = "general"
)

// AllCategories 閉じたカテゴリ集合。キーワード照合の優先順でもある
var AllCategories = []Category{
	CategoryEWaste,
	CategoryGlass,
	CategoryMetal,
	CategoryPlastic,
	CategoryPaper,
	CategoryOrganic,
	CategoryTextile,
	CategoryGeneral,
}

// ParseCategory 文字列からCategoryを解決
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c.IsValid() {
		return c, nil
	}
	return "", fmt.Errorf("unknown waste category: %q", s)
}

// IsValid 閉じた集合に含まれるか
func (c Category) IsValid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// String 文字列表現
func (c Category) String() string {
	return string(c)
}
