package domain

import "slices"

// RecommendationEntry カテゴリごとの廃棄ヒントと環境影響
type RecommendationEntry struct {
	Category        Category `json:"category"`
	Tips            []string `json:"tips"`
	ImpactStatement string   `json:"environmental_impact"`
}

var recommendationCatalog = map[Category]RecommendationEntry{
	CategoryPlastic: {
		Category: CategoryPlastic,
		Tips: []string{
			"Check recycling number on the bottom",
			"Rinse containers before recycling",
			"Remove caps (often different plastic type)",
			"Avoid single-use plastics when possible",
		},
		ImpactStatement: "High recyclability - can be processed into new products",
	},
	CategoryPaper: {
		Category: CategoryPaper,
		Tips: []string{
			"Keep paper dry and clean",
			"Remove plastic windows from envelopes",
			"Flatten cardboard boxes",
			"Paper can be recycled 5-7 times",
		},
		ImpactStatement: "Easily recyclable - saves trees and reduces landfill waste",
	},
	CategoryMetal: {
		Category: CategoryMetal,
		Tips: []string{
			"Clean metal containers before recycling",
			"Aluminum cans are infinitely recyclable",
			"Steel cans can be recycled with magnets",
			"Metal recycling saves significant energy",
		},
		ImpactStatement: "Infinitely recyclable - high environmental value",
	},
	CategoryGlass: {
		Category: CategoryGlass,
		Tips: []string{
			"Rinse thoroughly before disposal",
			"Remove caps and lids",
			"Can be recycled infinitely without quality loss",
		},
		ImpactStatement: "100% recyclable without quality loss",
	},
	CategoryOrganic: {
		Category: CategoryOrganic,
		Tips: []string{
			"Compost at home if possible",
			"Use for organic fertilizer production",
			"Keep separate from other waste types",
		},
		ImpactStatement: "Can be composted to create nutrient-rich soil",
	},
	CategoryEWaste: {
		Category: CategoryEWaste,
		Tips: []string{
			"Never throw in regular trash",
			"Take to designated e-waste collection centers",
			"Many electronics stores accept old devices",
		},
		ImpactStatement: "Contains recoverable metals and hazardous substances that must not reach landfill",
	},
	CategoryTextile: {
		Category: CategoryTextile,
		Tips: []string{
			"Donate wearable items to charity",
			"Recycle at textile collection bins",
			"Repurpose into cleaning rags",
		},
		ImpactStatement: "Reuse and fibre recycling cut water use and landfill volume",
	},
	CategoryGeneral: {
		Category: CategoryGeneral,
		Tips: []string{
			"Minimize non-recyclable waste",
			"Consider if items can be repurposed",
			"Dispose in designated trash bins",
		},
		ImpactStatement: "Non-recyclable - goes to landfill, so reducing it matters most",
	},
}

// Recommend カテゴリの推奨エントリを返す。未知のカテゴリはgeneral
func Recommend(category Category) RecommendationEntry {
	entry, ok := recommendationCatalog[category]
	if !ok {
		entry = recommendationCatalog[CategoryGeneral]
	}
	entry.Tips = slices.Clone(entry.Tips)
	return entry
}
