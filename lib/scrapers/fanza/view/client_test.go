package view

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"marketsuite-backend/lib/scrapers/fanza/core"
	"marketsuite-backend/lib/telemetry"
)

const searchPageHTML = `<html><head><title>検索結果</title></head><body><ul>
<li class="tmb">
  <p class="ttl"><a href="/dc/doujin/-/detail/=/cid=d_000001/">魔法の本</a></p>
  <span class="price">1,100円</span>
</li>
<li class="tmb">
  <p class="ttl"><a href="/dc/doujin/-/detail/=/cid=d_000002/">冒険記</a></p>
  <span class="price">550円</span>
</li>
</ul></body></html>`

func newTestView(t *testing.T) (*Client, *int) {
	t.Helper()
	cleanup := telemetry.SetupForTesting(t, "test:fanza-view")
	t.Cleanup(cleanup)

	requests := new(int)
	mux := http.NewServeMux()
	mux.HandleFunc("/dc/doujin/-/", func(w http.ResponseWriter, r *http.Request) {
		*requests++
		fmt.Fprint(w, searchPageHTML)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	session := core.Restore(core.Snapshot{State: core.Authenticated, Cookie: "sid=abc"})
	coreClient, err := core.NewClient(core.ClientOptions{
		BaseUrl: server.URL,
		Session: session,
	})
	require.NoError(t, err)
	return NewClient(coreClient), requests
}

func TestSearch(t *testing.T) {
	client, requests := newTestView(t)

	items, err := client.Search(context.Background(), "魔法", "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "魔法の本", items[0].Title)
	require.Equal(t, 1100, items[0].PriceAmount)
	require.Equal(t, 550, items[1].PriceAmount)
	require.Equal(t, 1, *requests)
}

func TestSearchCached(t *testing.T) {
	client, requests := newTestView(t)

	_, err := client.Search(context.Background(), "魔法", "date")
	require.NoError(t, err)
	_, err = client.Search(context.Background(), "魔法", "date")
	require.NoError(t, err)
	require.Equal(t, 1, *requests)

	// a different sort is a different page
	_, err = client.Search(context.Background(), "魔法", "price")
	require.NoError(t, err)
	require.Equal(t, 2, *requests)
}

func TestRanking(t *testing.T) {
	client, requests := newTestView(t)

	items, err := client.Ranking(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 1, *requests)

	_, err = client.Ranking(context.Background(), "weekly")
	require.NoError(t, err)
	require.Equal(t, 2, *requests)
}

func TestRequiresAuthenticatedSession(t *testing.T) {
	coreClient, err := core.NewClient(core.ClientOptions{BaseUrl: "http://127.0.0.1:1"})
	require.NoError(t, err)
	client := NewClient(coreClient)

	_, err = client.Search(context.Background(), "魔法", "")
	var authErr *core.AuthError
	require.ErrorAs(t, err, &authErr)
}
