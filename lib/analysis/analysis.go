// Package analysis folds a batch of normalized items into summary
// reports: a price-bucket histogram, circle and tag leaderboards, and a
// rating-driven trend list. Every report is a pure function of its
// input batch.
package analysis

import (
	"errors"
	"math"
	"sort"
	"time"
)

var ErrEmptyBatch = errors.New("cannot analyze an empty batch")

type ReportType string

const (
	Price  ReportType = "price"
	Entity ReportType = "circle"
	Tag    ReportType = "genre"
	Trend  ReportType = "trend"
)

// Item is the slice of a normalized record the report engine needs.
type Item struct {
	Title  string  `json:"title"`
	Price  int     `json:"price"`
	Rating float64 `json:"rating"`
	Count  int     `json:"count"`
	Circle string  `json:"circle"`
	Tags   []string `json:"tags"`
}

type Report struct {
	Type        ReportType `json:"type"`
	GeneratedAt time.Time  `json:"generated_at"`

	Price  *PriceReport  `json:"price,omitempty"`
	Entity *EntityReport `json:"entity,omitempty"`
	Tag    *TagReport    `json:"tag,omitempty"`
	Trend  *TrendReport  `json:"trend,omitempty"`
}

// PriceBuckets are the fixed histogram boundaries, in currency minor
// units: <=500, 501-1000, 1001-1500, 1501-2000, >2000.
var PriceBuckets = []string{"~500", "501~1000", "1001~1500", "1501~2000", "2001~"}

type PriceReport struct {
	TotalItems   int            `json:"total_items"`
	Distribution map[string]int `json:"distribution"`
	AveragePrice int            `json:"average_price"`
}

type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type EntityReport struct {
	TotalCircles int          `json:"total_circles"`
	TopCircles   []NamedCount `json:"top_circles"`
}

type TagReport struct {
	TotalTags   int          `json:"total_tags"`
	PopularTags []NamedCount `json:"popular_tags"`
}

type TrendEntry struct {
	Title  string  `json:"title"`
	Price  int     `json:"price"`
	Rating float64 `json:"rating"`
	Count  int     `json:"count"`
	Circle string  `json:"circle"`
}

type TrendReport struct {
	HighRated     []TrendEntry `json:"high_rated_items"`
	AverageRating float64      `json:"average_rating"`
	AveragePrice  int          `json:"average_price"`
}

const (
	topCircles = 10
	topTags    = 15
	topTrend   = 20
)

// BuildPrice buckets prices over the fixed boundaries and reports the
// integer-rounded mean. An empty batch is an error, not a zero mean.
func BuildPrice(items []Item) (*PriceReport, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}

	dist := map[string]int{}
	for _, b := range PriceBuckets {
		dist[b] = 0
	}
	sum := 0
	for _, item := range items {
		sum += item.Price
		switch {
		case item.Price <= 500:
			dist["~500"]++
		case item.Price <= 1000:
			dist["501~1000"]++
		case item.Price <= 1500:
			dist["1001~1500"]++
		case item.Price <= 2000:
			dist["1501~2000"]++
		default:
			dist["2001~"]++
		}
	}

	return &PriceReport{
		TotalItems:   len(items),
		Distribution: dist,
		AveragePrice: int(math.Round(float64(sum) / float64(len(items)))),
	}, nil
}

// countByName groups values, counting occurrences; ties in the final
// descending sort keep first-seen order, so shuffling the input batch
// can reorder tied entries.
func countByName(names []string) []NamedCount {
	counts := map[string]int{}
	firstSeen := map[string]int{}
	for i, name := range names {
		if _, ok := counts[name]; !ok {
			firstSeen[name] = i
		}
		counts[name]++
	}

	out := make([]NamedCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, NamedCount{Name: name, Count: count})
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Count != out[b].Count {
			return out[a].Count > out[b].Count
		}
		return firstSeen[out[a].Name] < firstSeen[out[b].Name]
	})
	return out
}

func topN(counts []NamedCount, n int) []NamedCount {
	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

// BuildEntity groups the batch by circle name and reports the top 10.
func BuildEntity(items []Item) (*EntityReport, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}

	names := make([]string, len(items))
	for i, item := range items {
		name := item.Circle
		if name == "" {
			name = "不明"
		}
		names[i] = name
	}
	counts := countByName(names)

	return &EntityReport{
		TotalCircles: len(counts),
		TopCircles:   topN(counts, topCircles),
	}, nil
}

// BuildTag flattens all tags across the batch and reports the top 15.
func BuildTag(items []Item) (*TagReport, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}

	var names []string
	for _, item := range items {
		names = append(names, item.Tags...)
	}
	counts := countByName(names)

	return &TagReport{
		TotalTags:   len(counts),
		PopularTags: topN(counts, topTags),
	}, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// BuildTrend keeps items with both a rating and a count, sorts by
// rating descending (higher count breaks ties) and reports means over
// the top 20.
func BuildTrend(items []Item) (*TrendReport, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}

	var entries []TrendEntry
	for _, item := range items {
		if item.Rating == 0 || item.Count == 0 {
			continue
		}
		entries = append(entries, TrendEntry{
			Title:  item.Title,
			Price:  item.Price,
			Rating: item.Rating,
			Count:  item.Count,
			Circle: item.Circle,
		})
	}
	sort.SliceStable(entries, func(a, b int) bool {
		if entries[a].Rating != entries[b].Rating {
			return entries[a].Rating > entries[b].Rating
		}
		return entries[a].Count > entries[b].Count
	})
	if len(entries) > topTrend {
		entries = entries[:topTrend]
	}
	if len(entries) == 0 {
		return nil, ErrEmptyBatch
	}

	ratingSum := 0.0
	priceSum := 0
	for _, e := range entries {
		ratingSum += e.Rating
		priceSum += e.Price
	}

	return &TrendReport{
		HighRated:     entries,
		AverageRating: round2(ratingSum / float64(len(entries))),
		AveragePrice:  int(math.Round(float64(priceSum) / float64(len(entries)))),
	}, nil
}

// Build runs the report of the requested type over the batch.
func Build(kind ReportType, items []Item, now time.Time) (Report, error) {
	report := Report{Type: kind, GeneratedAt: now}
	var err error
	switch kind {
	case Price:
		report.Price, err = BuildPrice(items)
	case Entity:
		report.Entity, err = BuildEntity(items)
	case Tag:
		report.Tag, err = BuildTag(items)
	case Trend:
		report.Trend, err = BuildTrend(items)
	default:
		err = errors.New("unknown report type: " + string(kind))
	}
	if err != nil {
		return Report{}, err
	}
	return report, nil
}
