package dmmapi

import (
	"marketsuite-backend/lib/normalize"
)

// Normalized converts a catalog item into the record shape the
// analysis pipeline consumes. The API price is a display string (it
// can carry commas or a trailing "~" on ranged prices), so it goes
// through the same digit parsing the scraped listings use.
func (item Item) Normalized() normalize.Item {
	tags := normalize.Tags(item.Genres())
	return normalize.Item{
		Title:      item.Title,
		PriceAmount: normalize.Price(item.Prices.Price),
		Rating:     item.RatingValue(),
		CountValue: item.Review.Count,
		Tags:       tags,
		AIFlag:     normalize.AIFlag(item.Title, tags),
		Circle:     item.Circle(),
		SourceURL:  item.URL,
	}
}

// NormalizedBatch converts a page of catalog items.
func NormalizedBatch(items []Item) []normalize.Item {
	out := make([]normalize.Item, len(items))
	for i, item := range items {
		out[i] = item.Normalized()
	}
	return out
}
