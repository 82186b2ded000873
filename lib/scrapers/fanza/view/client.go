// Package view sits on top of the authenticated core client and
// exposes the gated listing pages (keyword search, rankings) as
// normalized item batches, with a small expiring cache so repeated
// tool calls don't hammer the site.
package view

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"marketsuite-backend/lib/extract"
	"marketsuite-backend/lib/normalize"
	"marketsuite-backend/lib/scrapers/fanza/core"
)

var tracer = otel.Tracer("scrapers/fanza/view")

const (
	searchPathFormat  = "/dc/doujin/-/search/=/keyword=%s/sort=%s/"
	rankingPathFormat = "/dc/doujin/-/ranking/=/term=%s/"
	pageItemLimit     = 20

	cacheSize = 64
	cacheTTL  = time.Minute * 5
)

type Client struct {
	Core  *core.Client
	cache *expirable.LRU[string, []normalize.Item]
}

func NewClient(coreClient *core.Client) *Client {
	return &Client{
		Core:  coreClient,
		cache: expirable.NewLRU[string, []normalize.Item](cacheSize, nil, cacheTTL),
	}
}

func (c *Client) fetchItems(ctx context.Context, cacheKey, path string) ([]normalize.Item, error) {
	ctx, span := tracer.Start(ctx, "client:fetchItems")
	defer span.End()
	span.SetAttributes(attribute.String("cache_key", cacheKey))

	if !c.Core.Session.Authenticated() {
		err := &core.AuthError{Reason: "session is not authenticated, call login first"}
		span.RecordError(err)
		span.SetStatus(codes.Error, "unauthenticated")
		return nil, err
	}

	cached, ok := c.cache.Get(cacheKey)
	if ok {
		span.AddEvent("cache hit")
		return cached, nil
	}

	res, err := c.Core.Fetch(ctx, path, core.FetchOptions{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch listing page")
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.Body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse listing page")
		return nil, err
	}

	raws, err := extract.Items(doc, extract.Fanza, pageItemLimit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction yielded no records")
		return nil, err
	}
	items := normalize.Batch(raws, c.Core.BaseUrl.String()+path)

	c.cache.Add(cacheKey, items)
	return items, nil
}

// Search scrapes the gated keyword search. An empty sort means the
// site default, "popular".
func (c *Client) Search(ctx context.Context, query, sort string) ([]normalize.Item, error) {
	ctx, span := tracer.Start(ctx, "client:Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("query", query),
		attribute.String("sort", sort),
	)

	if sort == "" {
		sort = "popular"
	}
	path := fmt.Sprintf(searchPathFormat, url.PathEscape(query), url.PathEscape(sort))
	return c.fetchItems(ctx, "search:"+query+":"+sort, path)
}

// Ranking scrapes a gated ranking page; period is daily, weekly or
// monthly (empty means daily).
func (c *Client) Ranking(ctx context.Context, period string) ([]normalize.Item, error) {
	ctx, span := tracer.Start(ctx, "client:Ranking")
	defer span.End()
	span.SetAttributes(attribute.String("period", period))

	if period == "" {
		period = "daily"
	}
	path := fmt.Sprintf(rankingPathFormat, url.PathEscape(period))
	return c.fetchItems(ctx, "ranking:"+period, path)
}
