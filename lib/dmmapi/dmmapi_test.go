package dmmapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(Config{
		APIID:       "test-api-id",
		AffiliateID: "test-affiliate-id",
		BaseURL:     "https://api.example.test/affiliate/v3",
	})
	require.NoError(t, err)

	httpmock.ActivateNonDefault(client.HTTPClient().GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return client
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(Config{APIID: "only-one"})
	require.Error(t, err)
	_, err = NewClient(Config{AffiliateID: "only-one"})
	require.Error(t, err)
}

func TestItemList(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder(http.MethodGet, "https://api.example.test/affiliate/v3/ItemList",
		func(req *http.Request) (*http.Response, error) {
			query := req.URL.Query()
			require.Equal(t, "test-api-id", query.Get("api_id"))
			require.Equal(t, "test-affiliate-id", query.Get("affiliate_id"))
			require.Equal(t, "json", query.Get("output"))
			require.Equal(t, "FANZA", query.Get("site"))
			require.Equal(t, "doujin", query.Get("service"))
			require.Equal(t, "rank", query.Get("sort"))
			require.Equal(t, "20", query.Get("hits"))
			require.Equal(t, "1", query.Get("offset"))

			return httpmock.NewJsonResponse(200, map[string]any{
				"request_id": "req-1",
				"result": map[string]any{
					"status":      200,
					"total_count": 321,
					"items": []map[string]any{
						{
							"content_id": "d_000001",
							"title":      "作品A",
							"URL":        "https://www.example.test/d_000001",
							"prices":     map[string]any{"price": "1,100"},
							"review":     map[string]any{"count": 12, "average": "4.5"},
							"iteminfo": map[string]any{
								"circle": []map[string]any{{"id": 1, "name": "テストサークル"}},
								"genre": []map[string]any{
									{"id": 10, "name": "Fantasy"},
									{"id": 11, "name": "AI生成"},
								},
							},
						},
					},
				},
			})
		})

	result, err := client.ItemList(context.Background(), ItemListParams{Keyword: "魔法"})
	require.NoError(t, err)
	require.Equal(t, "req-1", result.RequestID)
	require.Equal(t, 321, result.TotalCount)
	require.Len(t, result.Items, 1)

	item := result.Items[0]
	require.Equal(t, "作品A", item.Title)
	require.Equal(t, "テストサークル", item.Circle())
	require.Equal(t, []string{"Fantasy", "AI生成"}, item.Genres())
	require.InDelta(t, 4.5, item.RatingValue(), 0.001)
}

func TestItemListNumericAverage(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder(http.MethodGet, "https://api.example.test/affiliate/v3/ItemList",
		httpmock.NewStringResponder(200, `{"result":{"status":200,"items":[
			{"title":"A","review":{"count":3,"average":4.2}},
			{"title":"B"}
		]}}`))

	result, err := client.ItemList(context.Background(), ItemListParams{})
	require.NoError(t, err)
	require.InDelta(t, 4.2, result.Items[0].RatingValue(), 0.001)
	// Missing review block parses to a zero rating.
	require.Zero(t, result.Items[1].RatingValue())
}

func TestItemListAPIError(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder(http.MethodGet, "https://api.example.test/affiliate/v3/ItemList",
		httpmock.NewStringResponder(400, `{"result":{"status":400,"message":"BAD REQUEST"}}`))

	_, err := client.ItemList(context.Background(), ItemListParams{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "400")
}

func TestGenreSearch(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder(http.MethodGet, "https://api.example.test/affiliate/v3/GenreSearch",
		func(req *http.Request) (*http.Response, error) {
			require.Equal(t, DoujinFloorID, req.URL.Query().Get("floor_id"))
			return httpmock.NewJsonResponse(200, map[string]any{
				"result": map[string]any{
					"status": 200,
					"genre": []map[string]any{
						{"genre_id": 1, "name": "ファンタジー"},
						{"genre_id": 2, "name": "コメディ"},
					},
				},
			})
		})

	genres, err := client.GenreSearch(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, genres, 2)
	require.Equal(t, "ファンタジー", genres[0].Name)
}

func TestMakerSearch(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder(http.MethodGet, "https://api.example.test/affiliate/v3/MakerSearch",
		func(req *http.Request) (*http.Response, error) {
			query := req.URL.Query()
			require.Equal(t, DoujinFloorID, query.Get("floor_id"))
			require.Equal(t, "サークル", query.Get("keyword"))
			return httpmock.NewJsonResponse(200, map[string]any{
				"result": map[string]any{
					"status": 200,
					"maker":  []map[string]any{{"maker_id": 7, "name": "サークルA"}},
				},
			})
		})

	makers, err := client.MakerSearch(context.Background(), "サークル")
	require.NoError(t, err)
	require.Len(t, makers, 1)
	require.Equal(t, "サークルA", makers[0].Name)
}

func TestFloorListFiltersToFanza(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder(http.MethodGet, "https://api.example.test/affiliate/v3/FloorList",
		httpmock.NewStringResponder(200, `{"result":{"site":[
			{"name":"DMM.com","service":[{"name":"general","code":"mono"}]},
			{"name":"FANZA","service":[{"name":"同人","code":"doujin","floor":[{"id":"27","name":"同人","code":"digital_doujin"}]}]}
		]}}`))

	services, err := client.FloorList(context.Background())
	require.NoError(t, err)
	require.Len(t, services, 1)
	require.Equal(t, "doujin", services[0].Code)
	require.Equal(t, "27", services[0].Floor[0].ID)
}

func TestNormalized(t *testing.T) {
	item := Item{Title: "AI作品"}
	item.Prices.Price = "1,500円"
	item.Review.Count = 8
	item.Review.Average = "4.0"
	item.ItemInfo.Maker = []NamedID{{ID: 3, Name: "フォールバック"}}
	item.ItemInfo.Genre = []NamedID{{Name: "Fantasy"}, {Name: "fantasy"}}

	normalized := item.Normalized()
	require.Equal(t, 1500, normalized.PriceAmount)
	require.InDelta(t, 4.0, normalized.Rating, 0.001)
	require.Equal(t, 8, normalized.CountValue)
	require.Equal(t, []string{"fantasy"}, normalized.Tags)
	require.True(t, normalized.AIFlag)
	require.Equal(t, "フォールバック", normalized.Circle)
}
