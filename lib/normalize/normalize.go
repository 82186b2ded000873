// Package normalize converts the raw text slots of extracted records
// into typed values. Every function here is total: malformed input
// degrades to a zero value, it never produces an error and never drops
// a record.
package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"marketsuite-backend/lib/extract"
	"marketsuite-backend/lib/textutil"
)

// MaxTags caps how many tags survive normalization per item.
const MaxTags = 20

// AIKeywords flag listings that look machine-generated. Substring
// matched case-insensitively against title and tags.
var AIKeywords = []string{
	"ai", "人工知能", "stable diffusion", "midjourney", "dalle", "生成", "generated",
}

type Item struct {
	Title       string   `json:"title"`
	PriceAmount int      `json:"price"`
	Rating      float64  `json:"rating"`
	CountValue  int      `json:"count"`
	Tags        []string `json:"tags"`
	AIFlag      bool     `json:"ai_flag"`
	Circle      string   `json:"circle,omitempty"`
	SourceURL   string   `json:"source_url"`

	// Raw is retained for traceability.
	Raw extract.RawItem `json:"-"`
}

var digitRegex = regexp.MustCompile(`\d`)

// Price strips every non-digit rune and parses what remains. Currency
// symbols, commas and surrounding text all disappear; text with no
// digits at all comes out as 0.
func Price(text string) int {
	digits := strings.Join(digitRegex.FindAllString(text, -1), "")
	if digits == "" {
		return 0
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Count follows the same rules as Price.
func Count(text string) int {
	return Price(text)
}

var decimalRegex = regexp.MustCompile(`\d+(?:\.\d+)?`)

// Rating pulls the first decimal number out of the text and clamps it
// into [0, 5].
func Rating(text string) float64 {
	match := decimalRegex.FindString(text)
	if match == "" {
		return 0
	}
	f, err := strconv.ParseFloat(match, 64)
	if err != nil || f < 0 {
		return 0
	}
	if f > 5 {
		return 5
	}
	return f
}

var hourRegex = regexp.MustCompile(`(\d+)\s*(?:時間|h)`)
var minuteRegex = regexp.MustCompile(`(\d+)\s*(?:分|m)`)

// DurationMinutes parses localized duration strings like "2時間30分" or
// "2h30m" into minutes. A missing hour or minute group contributes 0.
func DurationMinutes(text string) int {
	minutes := 0
	if m := hourRegex.FindStringSubmatch(text); m != nil {
		h, err := strconv.Atoi(m[1])
		if err == nil {
			minutes += h * 60
		}
	}
	if m := minuteRegex.FindStringSubmatch(text); m != nil {
		mm, err := strconv.Atoi(m[1])
		if err == nil {
			minutes += mm
		}
	}
	return minutes
}

// Tags lowercases and trims each tag, drops empties and exact
// duplicates, preserves order and truncates to MaxTags.
func Tags(tags []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, tag := range tags {
		tag = textutil.NormalizeTag(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
		if len(out) == MaxTags {
			break
		}
	}
	return out
}

// AIFlag reports whether the title or any tag contains one of the
// AIKeywords.
func AIFlag(title string, tags []string) bool {
	if textutil.ContainsAny(title, AIKeywords) {
		return true
	}
	for _, tag := range tags {
		if textutil.ContainsAny(tag, AIKeywords) {
			return true
		}
	}
	return false
}

// FromRaw normalizes one extracted record. sourceURL is the page the
// record came from, used when the record carries no link of its own.
func FromRaw(raw extract.RawItem, sourceURL string) Item {
	tags := Tags(raw.Tags)
	title := raw.Get(extract.FieldTitle)

	link := raw.Get(extract.FieldLink)
	if link == "" {
		link = sourceURL
	}

	return Item{
		Title:       title,
		PriceAmount: Price(raw.Get(extract.FieldPriceText)),
		Rating:      Rating(raw.Get(extract.FieldRating)),
		CountValue:  Count(raw.Get(extract.FieldCountText)),
		Tags:        tags,
		AIFlag:      AIFlag(title, tags),
		Circle:      raw.Get(extract.FieldCircle),
		SourceURL:   link,
		Raw:         raw,
	}
}

// Batch normalizes a page worth of records.
func Batch(raws []extract.RawItem, sourceURL string) []Item {
	items := make([]Item, len(raws))
	for i, raw := range raws {
		items[i] = FromRaw(raw, sourceURL)
	}
	return items
}
