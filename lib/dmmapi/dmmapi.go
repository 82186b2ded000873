// Package dmmapi is a client for the DMM affiliate catalog API (v3).
// Every call carries the api_id and affiliate_id credentials plus
// output=json; the doujin floor is id 27.
package dmmapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"marketsuite-backend/lib/telemetry"
)

var tracer = otel.Tracer("marketsuite.lib.dmmapi")

const (
	DefaultBaseURL = "https://api.dmm.com/affiliate/v3"
	// DoujinFloorID scopes GenreSearch/MakerSearch to the doujin floor.
	DoujinFloorID = "27"
)

type Config struct {
	APIID       string `json:"api_id"`
	AffiliateID string `json:"affiliate_id"`
	// BaseURL overrides the production endpoint, mainly for tests.
	BaseURL string `json:"base_url,omitempty"`
}

type Client struct {
	client      *resty.Client
	apiID       string
	affiliateID string
}

func NewClient(config Config) (*Client, error) {
	if config.APIID == "" || config.AffiliateID == "" {
		return nil, fmt.Errorf("dmmapi: api_id and affiliate_id are required")
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetHeader("accept", "application/json")
	client.SetTimeout(time.Second * 30)
	telemetry.InstrumentResty(client, "lib/dmmapi")

	return &Client{
		client:      client,
		apiID:       config.APIID,
		affiliateID: config.AffiliateID,
	}, nil
}

// HTTPClient exposes the underlying resty client for test transports.
func (c *Client) HTTPClient() *resty.Client { return c.client }

type Item struct {
	ContentID    string `json:"content_id"`
	ProductID    string `json:"product_id"`
	Title        string `json:"title"`
	URL          string `json:"URL"`
	AffiliateURL string `json:"affiliateURL"`
	Date         string `json:"date"`
	ImageURL     struct {
		List  string `json:"list"`
		Small string `json:"small"`
		Large string `json:"large"`
	} `json:"imageURL"`
	Prices struct {
		Price     string `json:"price"`
		ListPrice string `json:"list_price"`
	} `json:"prices"`
	Review struct {
		Count   int         `json:"count"`
		Average json.Number `json:"average"`
	} `json:"review"`
	ItemInfo struct {
		Genre  []NamedID `json:"genre"`
		Maker  []NamedID `json:"maker"`
		Circle []NamedID `json:"circle"`
	} `json:"iteminfo"`
}

type NamedID struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Genre struct {
	GenreID int    `json:"genre_id"`
	Name    string `json:"name"`
	Ruby    string `json:"ruby"`
	ListURL string `json:"list_url"`
}

type Maker struct {
	MakerID int    `json:"maker_id"`
	Name    string `json:"name"`
	Ruby    string `json:"ruby"`
	ListURL string `json:"list_url"`
}

type Floor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

type FloorService struct {
	Name  string  `json:"name"`
	Code  string  `json:"code"`
	Floor []Floor `json:"floor"`
}

type FloorSite struct {
	Name    string         `json:"name"`
	Code    string         `json:"code"`
	Service []FloorService `json:"service"`
}

type itemListResponse struct {
	RequestID string `json:"request_id"`
	Result    struct {
		Status        int    `json:"status"`
		ResultCount   int    `json:"result_count"`
		TotalCount    int    `json:"total_count"`
		FirstPosition int    `json:"first_position"`
		Items         []Item `json:"items"`
	} `json:"result"`
}

type genreSearchResponse struct {
	Result struct {
		Status      int     `json:"status"`
		ResultCount int     `json:"result_count"`
		TotalCount  int     `json:"total_count"`
		Genre       []Genre `json:"genre"`
	} `json:"result"`
}

type makerSearchResponse struct {
	Result struct {
		Status      int     `json:"status"`
		ResultCount int     `json:"result_count"`
		TotalCount  int     `json:"total_count"`
		Maker       []Maker `json:"maker"`
	} `json:"result"`
}

type floorListResponse struct {
	Result struct {
		Site []FloorSite `json:"site"`
	} `json:"result"`
}

// ItemListParams are the ItemList query options; zero values are
// replaced with the defaults the doujin search uses.
type ItemListParams struct {
	Keyword string
	Sort    string
	Hits    int
	Offset  int
}

type ItemListResult struct {
	RequestID  string
	TotalCount int
	Items      []Item
}

func (c *Client) get(ctx context.Context, endpoint string, params map[string]string, out any) error {
	ctx, span := tracer.Start(ctx, "dmmapi:"+endpoint)
	defer span.End()

	res, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("api_id", c.apiID).
		SetQueryParam("affiliate_id", c.affiliateID).
		SetQueryParam("output", "json").
		SetQueryParams(params).
		SetResult(out).
		Get(endpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return fmt.Errorf("dmmapi %s: %w", endpoint, err)
	}
	if res.IsError() {
		err := fmt.Errorf("dmmapi %s: unexpected status %d", endpoint, res.StatusCode())
		span.RecordError(err)
		span.SetStatus(codes.Error, "api error status")
		return err
	}
	return nil
}

// ItemList searches the FANZA doujin catalog.
func (c *Client) ItemList(ctx context.Context, params ItemListParams) (ItemListResult, error) {
	if params.Sort == "" {
		params.Sort = "rank"
	}
	if params.Hits <= 0 {
		params.Hits = 20
	}
	if params.Offset <= 0 {
		params.Offset = 1
	}

	var response itemListResponse
	err := c.get(ctx, "/ItemList", map[string]string{
		"site":    "FANZA",
		"service": "doujin",
		"keyword": params.Keyword,
		"sort":    params.Sort,
		"hits":    strconv.Itoa(params.Hits),
		"offset":  strconv.Itoa(params.Offset),
	}, &response)
	if err != nil {
		return ItemListResult{}, err
	}
	return ItemListResult{
		RequestID:  response.RequestID,
		TotalCount: response.Result.TotalCount,
		Items:      response.Result.Items,
	}, nil
}

// GenreSearch lists the genres of the doujin floor, optionally
// filtered by keyword.
func (c *Client) GenreSearch(ctx context.Context, keyword string) ([]Genre, error) {
	params := map[string]string{"floor_id": DoujinFloorID}
	if keyword != "" {
		params["initial"] = keyword
	}

	var response genreSearchResponse
	err := c.get(ctx, "/GenreSearch", params, &response)
	if err != nil {
		return nil, err
	}
	return response.Result.Genre, nil
}

// MakerSearch looks up circles on the doujin floor by keyword.
func (c *Client) MakerSearch(ctx context.Context, keyword string) ([]Maker, error) {
	var response makerSearchResponse
	err := c.get(ctx, "/MakerSearch", map[string]string{
		"floor_id": DoujinFloorID,
		"keyword":  keyword,
	}, &response)
	if err != nil {
		return nil, err
	}
	return response.Result.Maker, nil
}

// FloorList returns the service/floor tree of the FANZA site only.
func (c *Client) FloorList(ctx context.Context) ([]FloorService, error) {
	var response floorListResponse
	err := c.get(ctx, "/FloorList", nil, &response)
	if err != nil {
		return nil, err
	}
	for _, site := range response.Result.Site {
		if site.Name == "FANZA" {
			return site.Service, nil
		}
	}
	return nil, nil
}

// Circle prefers the circle credit and falls back to the maker credit.
func (item Item) Circle() string {
	if len(item.ItemInfo.Circle) > 0 {
		return item.ItemInfo.Circle[0].Name
	}
	if len(item.ItemInfo.Maker) > 0 {
		return item.ItemInfo.Maker[0].Name
	}
	return ""
}

// Genres returns the genre names of the item.
func (item Item) Genres() []string {
	names := make([]string, len(item.ItemInfo.Genre))
	for i, g := range item.ItemInfo.Genre {
		names[i] = g.Name
	}
	return names
}

// RatingValue parses review.average, which the API serves as either a
// number or a quoted string.
func (item Item) RatingValue() float64 {
	f, err := item.Review.Average.Float64()
	if err != nil {
		return 0
	}
	if f < 0 {
		return 0
	}
	if f > 5 {
		return 5
	}
	return f
}
