package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"marketsuite-backend/lib/analysis"
	"marketsuite-backend/lib/dmmapi"
	"marketsuite-backend/lib/mcp"
	"marketsuite-backend/lib/scrapers/fanza/core"
	"marketsuite-backend/lib/telemetry"
)

const catalogPage = `{
	"request_id": "req-1",
	"result": {
		"status": 200,
		"total_count": 4,
		"items": [
			{"title":"作品A","prices":{"price":"400"},"review":{"count":10,"average":"4.5"},
			 "iteminfo":{"circle":[{"id":1,"name":"circle-a"}],"genre":[{"name":"Fantasy"}]}},
			{"title":"作品B","prices":{"price":"600"},"review":{"count":5,"average":"4.0"},
			 "iteminfo":{"circle":[{"id":2,"name":"circle-b"}],"genre":[{"name":"Fantasy"}]}},
			{"title":"作品C","prices":{"price":"1200"},"review":{"count":2,"average":"3.5"},
			 "iteminfo":{"circle":[{"id":1,"name":"circle-a"}]}},
			{"title":"作品D","prices":{"price":"2500"},"review":{"count":0,"average":"0"}}
		]
	}
}`

func newTestService(t *testing.T, notifyURL string) *Service {
	t.Helper()
	cleanup := telemetry.SetupForTesting(t, "test:research")
	t.Cleanup(cleanup)

	mux := http.NewServeMux()
	mux.HandleFunc("/ItemList", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_id") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, catalogPage)
	})
	mux.HandleFunc("/GenreSearch", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{"status":200,"genre":[{"genre_id":1,"name":"ファンタジー"}]}}`)
	})
	mux.HandleFunc("/MakerSearch", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{"status":200,"maker":[
			{"maker_id":1,"name":"unrelated works"},
			{"maker_id":2,"name":"circle-alpha"},
			{"maker_id":3,"name":"circle"}
		]}}`)
	})
	mux.HandleFunc("/FloorList", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{"site":[{"name":"FANZA","service":[{"name":"同人","code":"doujin"}]}]}}`)
	})
	api := httptest.NewServer(mux)
	t.Cleanup(api.Close)

	service, err := NewService(Config{
		DMM: dmmapi.Config{
			APIID:       "test-api",
			AffiliateID: "test-affiliate",
			BaseURL:     api.URL,
		},
		// one sqlite file per test run
		StorePath: t.TempDir() + "/market.db",
		NotifyURL: notifyURL,
	})
	require.NoError(t, err)
	t.Cleanup(func() { service.Close() })
	return service
}

func TestSearchItems(t *testing.T) {
	service := newTestService(t, "")

	result, err := service.SearchItems(context.Background(), "魔法", "rank", 20, 1)
	require.NoError(t, err)
	require.Equal(t, "success", result.Status)
	require.Equal(t, 4, result.TotalCount)
	require.Equal(t, 4, result.HitCount)
	require.Equal(t, "circle-a", result.Items[0].Circle)
	require.Equal(t, "不明", result.Items[3].Circle)
}

func TestSearchEntitiesRankedBySimilarity(t *testing.T) {
	service := newTestService(t, "")

	result, err := service.SearchEntities(context.Background(), "circle")
	require.NoError(t, err)
	require.Len(t, result.Circles, 3)
	require.Equal(t, "circle", result.Circles[0].Name)
	require.Equal(t, "circle-alpha", result.Circles[1].Name)
	require.Equal(t, "unrelated works", result.Circles[2].Name)
}

func TestRunAnalysis(t *testing.T) {
	var notifyMu sync.Mutex
	var notified []notifyEnvelope
	notify := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var envelope notifyEnvelope
		if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		notifyMu.Lock()
		notified = append(notified, envelope)
		notifyMu.Unlock()
	}))
	defer notify.Close()

	service := newTestService(t, notify.URL)

	result, err := service.RunAnalysis(context.Background(), analysis.Price)
	require.NoError(t, err)
	require.Equal(t, "success", result.Status)
	require.NotEmpty(t, result.StoreKey)
	require.NotNil(t, result.Report.Price)
	require.Equal(t, map[string]int{
		"~500":      1,
		"501~1000":  1,
		"1001~1500": 1,
		"1501~2000": 0,
		"2001~":     1,
	}, result.Report.Price.Distribution)
	require.Equal(t, 1175, result.Report.Price.AveragePrice)

	batch, err := service.LatestBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Items, 4)
	require.Equal(t, "fanza", batch.Site)

	service.notifier.Flush()
	notifyMu.Lock()
	defer notifyMu.Unlock()
	require.Len(t, notified, 1)
	require.Equal(t, "analysis_complete", notified[0].Action)
	require.NotZero(t, notified[0].Timestamp)
}

func TestRunAnalysisNotifyFailureIsSwallowed(t *testing.T) {
	// port 1 refuses connections; the analysis must still succeed
	service := newTestService(t, "http://127.0.0.1:1/notify")

	result, err := service.RunAnalysis(context.Background(), analysis.Trend)
	require.NoError(t, err)
	require.Equal(t, "success", result.Status)
	service.notifier.Flush()
}

const listingPageHTML = `<html><head><title>検索結果</title></head><body>
<li class="tmb"><p class="ttl"><a href="/item/1">逸品</a></p><span class="price">880円</span></li>
</body></html>`

func newStorefrontStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/my/-/login/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><form><input name="token" value="tok-1"/></form></html>`)
	})
	mux.HandleFunc("/service/login/password/authenticate", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "sid=abc")
		w.Header().Set("Location", "/home")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/home", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><title>ホーム</title></html>")
	})
	mux.HandleFunc("/dc/doujin/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><title>同人</title></html>")
	})
	mux.HandleFunc("/dc/doujin/-/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingPageHTML)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestLoginAndAuthenticatedSearch(t *testing.T) {
	storefront := newStorefrontStub(t)
	service := newTestService(t, "")
	service.config.ScrapeBaseURL = storefront.URL

	_, err := service.SearchAuthenticated(context.Background(), "逸品", "")
	var authErr *core.AuthError
	require.ErrorAs(t, err, &authErr)

	login, err := service.Login(context.Background(), "user@example.com", "hunter2")
	require.NoError(t, err)
	require.Equal(t, "success", login.Status)
	require.Equal(t, "authenticated", login.State)

	search, err := service.SearchAuthenticated(context.Background(), "逸品", "")
	require.NoError(t, err)
	require.Equal(t, 1, search.Count)
	require.Equal(t, "逸品", search.Items[0].Title)
	require.Equal(t, 880, search.Items[0].PriceAmount)

	ranking, err := service.RankingAuthenticated(context.Background(), "weekly")
	require.NoError(t, err)
	require.Equal(t, 1, ranking.Count)
}

func TestToolSurface(t *testing.T) {
	service := newTestService(t, "")

	server := mcp.NewServer("marketsuite", "test")
	require.NoError(t, service.RegisterTools(server))

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"run-analysis","arguments":{"type":"price"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"run-analysis","arguments":{"type":"bogus"}}}`,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"search-authenticated","arguments":{"query":"x"}}}`,
	}, "\n") + "\n"

	var output bytes.Buffer
	require.NoError(t, server.Run(context.Background(), strings.NewReader(input), &output))

	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	require.Len(t, lines, 4)

	var list mcp.Response
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &list))
	tools := list.Result.(map[string]any)["tools"].([]any)
	require.Len(t, tools, 9)

	require.Contains(t, lines[1], `\"status\":\"success\"`)
	// schema rejects the bad report type before the handler runs
	require.Contains(t, lines[2], "bogus")
	require.Contains(t, lines[2], `\"status\":\"error\"`)
	// unauthenticated scrape degrades to a status error payload
	require.Contains(t, lines[3], `\"status\":\"error\"`)
	require.Contains(t, lines[3], "login first")
}
