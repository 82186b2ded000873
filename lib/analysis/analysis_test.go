package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildPriceBuckets(t *testing.T) {
	items := []Item{
		{Price: 400},
		{Price: 600},
		{Price: 1200},
		{Price: 2500},
	}

	report, err := BuildPrice(items)
	require.NoError(t, err)
	require.Equal(t, 4, report.TotalItems)
	require.Equal(t, map[string]int{
		"~500":      1,
		"501~1000":  1,
		"1001~1500": 1,
		"1501~2000": 0,
		"2001~":     1,
	}, report.Distribution)
	require.Equal(t, 1175, report.AveragePrice)
}

func TestBuildPriceBoundaries(t *testing.T) {
	report, err := BuildPrice([]Item{
		{Price: 500}, {Price: 501},
		{Price: 1000}, {Price: 1001},
		{Price: 2000}, {Price: 2001},
	})
	require.NoError(t, err)
	require.Equal(t, 1, report.Distribution["~500"])
	require.Equal(t, 2, report.Distribution["501~1000"])
	require.Equal(t, 2, report.Distribution["1001~1500"])
	require.Equal(t, 1, report.Distribution["2001~"])
}

func TestBuildPriceEmpty(t *testing.T) {
	_, err := BuildPrice(nil)
	require.ErrorIs(t, err, ErrEmptyBatch)
}

func TestBuildEntity(t *testing.T) {
	items := []Item{
		{Circle: "circle-a"},
		{Circle: "circle-b"},
		{Circle: "circle-a"},
		{Circle: ""},
	}

	report, err := BuildEntity(items)
	require.NoError(t, err)
	require.Equal(t, 3, report.TotalCircles)
	require.Equal(t, NamedCount{Name: "circle-a", Count: 2}, report.TopCircles[0])
	// circle-b and the unnamed bucket tie at 1; first appearance wins.
	require.Equal(t, "circle-b", report.TopCircles[1].Name)
	require.Equal(t, "不明", report.TopCircles[2].Name)
}

func TestBuildEntityTieBreakFollowsInput(t *testing.T) {
	forward, err := BuildEntity([]Item{{Circle: "a"}, {Circle: "b"}})
	require.NoError(t, err)
	reversed, err := BuildEntity([]Item{{Circle: "b"}, {Circle: "a"}})
	require.NoError(t, err)

	require.Equal(t, "a", forward.TopCircles[0].Name)
	require.Equal(t, "b", reversed.TopCircles[0].Name)
}

func TestBuildEntityTopTen(t *testing.T) {
	var items []Item
	for i := 0; i < 12; i++ {
		items = append(items, Item{Circle: string(rune('a' + i))})
	}

	report, err := BuildEntity(items)
	require.NoError(t, err)
	require.Equal(t, 12, report.TotalCircles)
	require.Len(t, report.TopCircles, 10)
}

func TestBuildTag(t *testing.T) {
	items := []Item{
		{Tags: []string{"fantasy", "comedy"}},
		{Tags: []string{"fantasy"}},
		{Tags: nil},
	}

	report, err := BuildTag(items)
	require.NoError(t, err)
	require.Equal(t, 2, report.TotalTags)
	require.Equal(t, []NamedCount{
		{Name: "fantasy", Count: 2},
		{Name: "comedy", Count: 1},
	}, report.PopularTags)
}

func TestBuildTrend(t *testing.T) {
	items := []Item{
		{Title: "mid", Rating: 4.0, Count: 10, Price: 1000},
		{Title: "best", Rating: 4.5, Count: 3, Price: 500},
		{Title: "unrated", Rating: 0, Count: 50},
		{Title: "unreviewed", Rating: 5.0, Count: 0},
		{Title: "tied-popular", Rating: 4.0, Count: 20, Price: 1500},
	}

	report, err := BuildTrend(items)
	require.NoError(t, err)
	require.Len(t, report.HighRated, 3)
	require.Equal(t, "best", report.HighRated[0].Title)
	// Equal ratings fall back to review count, most-reviewed first.
	require.Equal(t, "tied-popular", report.HighRated[1].Title)
	require.Equal(t, "mid", report.HighRated[2].Title)
	require.InDelta(t, 4.17, report.AverageRating, 0.001)
	require.Equal(t, 1000, report.AveragePrice)
}

func TestBuildTrendAllFiltered(t *testing.T) {
	_, err := BuildTrend([]Item{{Rating: 0, Count: 5}, {Rating: 3, Count: 0}})
	require.ErrorIs(t, err, ErrEmptyBatch)
}

func TestBuildDispatch(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	report, err := Build(Price, []Item{{Price: 100}}, now)
	require.NoError(t, err)
	require.Equal(t, Price, report.Type)
	require.Equal(t, now, report.GeneratedAt)
	require.NotNil(t, report.Price)
	require.Nil(t, report.Entity)

	_, err = Build(ReportType("bogus"), []Item{{}}, now)
	require.Error(t, err)
}

func TestRenderText(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	report, err := Build(Price, []Item{{Price: 400}, {Price: 1600}}, now)
	require.NoError(t, err)

	out := RenderText(report)
	require.Contains(t, out, "report: price")
	require.Contains(t, out, "1501~2000")
}
