// Package stats computes aggregate statistics over the item collection.
package stats

import (
	"time"

	"github.com/vyrodovalexey/inventory-catalog/internal/model"
)

// Aggregate summarizes items. lastModified is the time of the last write to
// the backing store; a zero value is reported as null.
func Aggregate(items []model.Item, lastModified, now time.Time) model.Stats {
	result := model.Stats{
		TotalItems: len(items),
		Categories: make(map[string]int),
		Metadata: model.StatsMetadata{
			CalculatedAt: now.UTC(),
		},
	}

	if !lastModified.IsZero() {
		modified := lastModified.UTC()
		result.Metadata.LastModified = &modified
	}

	if len(items) == 0 {
		return result
	}

	minPrice, maxPrice := items[0].Price, items[0].Price
	var total float64
	for _, item := range items {
		result.Categories[item.Category]++
		minPrice = min(minPrice, item.Price)
		maxPrice = max(maxPrice, item.Price)
		total += item.Price
	}

	result.PriceRange = model.PriceRange{
		Min:     &minPrice,
		Max:     &maxPrice,
		Average: total / float64(len(items)),
	}

	return result
}
