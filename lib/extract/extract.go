// Package extract turns parsed marketplace listing pages into raw item
// records. Each site variant carries an ordered table of structural
// selectors so extraction survives markup drift between redesigns; when
// nothing site-specific matches, a degraded generic pass over anchors
// is used instead.
package extract

import (
	"errors"
	"fmt"

	"marketsuite-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoRecords is returned when no selector, including the generic
// fallback, produced a single usable record.
var ErrNoRecords = errors.New("no usable records in document")

// DefaultLimit caps how many records are pulled from one page.
const DefaultLimit = 20

type Variant int

const (
	Fanza Variant = iota
	DLsite
	Generic
)

func (v Variant) String() string {
	switch v {
	case Fanza:
		return "fanza"
	case DLsite:
		return "dlsite"
	default:
		return "generic"
	}
}

// VariantFromString maps a site tag to its variant; unknown tags get
// the generic adapter.
func VariantFromString(s string) Variant {
	switch s {
	case "fanza":
		return Fanza
	case "dlsite":
		return DLsite
	default:
		return Generic
	}
}

// Field slot names used in RawItem.Fields. Not every variant populates
// every slot.
const (
	FieldTitle     = "title"
	FieldPriceText = "price_text"
	FieldRating    = "rating_text"
	FieldCountText = "count_text"
	FieldDuration  = "duration_text"
	FieldLink      = "link"
	FieldThumbnail = "thumbnail"
	FieldCircle    = "circle"
)

type RawItem struct {
	Fields map[string]string
	Tags   []string
}

func (r RawItem) Get(field string) string {
	return r.Fields[field]
}

// textField resolves an element's text through an ordered fallback
// list, attrField does the same for attributes.
type textField struct {
	name      string
	selectors []string
}

type attrField struct {
	name      string
	attr      string
	selectors []string
}

type variantTable struct {
	// container candidates, most specific first; the first one that
	// matches at least once is used exclusively for the page
	containers []string
	texts      []textField
	attrs      []attrField
	// tag elements collected from each container match
	tagSelector string
}

var fanzaTable = variantTable{
	containers: []string{"li[data-product-id]", "li.tmb", ".productTile"},
	texts: []textField{
		{FieldTitle, []string{"p.ttl a", "p.ttl", "a[title]", ".title"}},
		{FieldPriceText, []string{"span.price", ".price", ".prc"}},
		{FieldRating, []string{".rating", ".star"}},
		{FieldCountText, []string{".review-count", ".rate-count"}},
		{FieldCircle, []string{".circle-name", ".maker"}},
	},
	attrs: []attrField{
		{FieldLink, "href", []string{"a"}},
		{FieldThumbnail, "src", []string{"img"}},
	},
	tagSelector: ".tag, .genre, .category",
}

var dlsiteTable = variantTable{
	containers: []string{".search_result_img_box", ".n_worklist_item", ".product-item"},
	texts: []textField{
		{FieldTitle, []string{".work_name a", ".work_name", ".title"}},
		{FieldPriceText, []string{".work_price", ".price"}},
		{FieldRating, []string{".star_rating", ".star", ".rating"}},
		{FieldCountText, []string{".dl_count", ".work_dl"}},
		{FieldCircle, []string{".maker_name a", ".maker_name", ".circle"}},
	},
	attrs: []attrField{
		{FieldLink, "href", []string{".work_name a", "a"}},
		{FieldThumbnail, "src", []string{"img"}},
	},
	tagSelector: ".search_tag a, .tag, .genre",
}

func tableFor(v Variant) (variantTable, bool) {
	switch v {
	case Fanza:
		return fanzaTable, true
	case DLsite:
		return dlsiteTable, true
	default:
		return variantTable{}, false
	}
}

// Items extracts up to limit raw records from the document using the
// variant's selector table. A limit <= 0 means DefaultLimit. Pages
// where the variant-specific selectors find nothing fall back to the
// degraded generic pass; ErrNoRecords is returned only when that also
// comes up empty.
func Items(doc *goquery.Document, v Variant, limit int) ([]RawItem, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	if table, ok := tableFor(v); ok {
		items := fromTable(doc, table, limit)
		if len(items) > 0 {
			return items, nil
		}
	}

	items := generic(doc, limit)
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: variant=%s", ErrNoRecords, v)
	}
	return items, nil
}

func fromTable(doc *goquery.Document, table variantTable, limit int) []RawItem {
	var matched *goquery.Selection
	for _, container := range table.containers {
		sel := doc.Find(container)
		if sel.Length() > 0 {
			matched = sel
			break
		}
	}
	if matched == nil {
		return nil
	}

	var items []RawItem
	matched.EachWithBreak(func(_ int, el *goquery.Selection) bool {
		item := RawItem{Fields: map[string]string{}}
		for _, f := range table.texts {
			if val := htmlutil.FirstText(el, f.selectors...); val != "" {
				item.Fields[f.name] = val
			}
		}
		for _, f := range table.attrs {
			if val := htmlutil.FirstAttr(el, f.attr, f.selectors...); val != "" {
				item.Fields[f.name] = val
			}
		}
		item.Tags = htmlutil.AllText(el, table.tagSelector)

		// title is the one mandatory slot
		if item.Fields[FieldTitle] == "" {
			return true
		}
		items = append(items, item)
		return len(items) < limit
	})
	return items
}

// generic is the degraded adapter: top anchors of the page become
// title/link pairs.
func generic(doc *goquery.Document, limit int) []RawItem {
	var items []RawItem
	doc.Find("a").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		title := htmlutil.CleanText(el.Text())
		if title == "" {
			return true
		}
		href, _ := el.Attr("href")
		items = append(items, RawItem{
			Fields: map[string]string{
				FieldTitle: title,
				FieldLink:  href,
			},
		})
		return len(items) < limit
	})
	return items
}
