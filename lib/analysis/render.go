package analysis

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// RenderText formats a report as a plain-text table for terminal use.
func RenderText(report Report) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("report: %s (%s)\n", report.Type, report.GeneratedAt.Format("2006-01-02 15:04:05")))

	t := table.NewWriter()
	switch {
	case report.Price != nil:
		t.AppendHeader(table.Row{"price range", "items"})
		for _, bucket := range PriceBuckets {
			t.AppendRow(table.Row{bucket, report.Price.Distribution[bucket]})
		}
		t.AppendFooter(table.Row{"average", report.Price.AveragePrice})
	case report.Entity != nil:
		t.AppendHeader(table.Row{"circle", "items"})
		for _, c := range report.Entity.TopCircles {
			t.AppendRow(table.Row{c.Name, c.Count})
		}
		t.AppendFooter(table.Row{"total circles", report.Entity.TotalCircles})
	case report.Tag != nil:
		t.AppendHeader(table.Row{"genre", "items"})
		for _, g := range report.Tag.PopularTags {
			t.AppendRow(table.Row{g.Name, g.Count})
		}
		t.AppendFooter(table.Row{"total genres", report.Tag.TotalTags})
	case report.Trend != nil:
		t.AppendHeader(table.Row{"title", "rating", "reviews", "price", "circle"})
		for _, e := range report.Trend.HighRated {
			t.AppendRow(table.Row{e.Title, e.Rating, e.Count, e.Price, e.Circle})
		}
		t.AppendFooter(table.Row{"average", report.Trend.AverageRating, "", report.Trend.AveragePrice, ""})
	default:
		return sb.String() + "(empty report)\n"
	}

	sb.WriteString(t.Render())
	sb.WriteString("\n")
	return sb.String()
}
