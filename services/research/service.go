// Package research is the market research service behind the tool
// surface: catalog search through the affiliate API, authenticated
// storefront scraping, aggregate analysis with persistence, and the
// best-effort notification side channel.
package research

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"marketsuite-backend/lib/analysis"
	"marketsuite-backend/lib/dmmapi"
	"marketsuite-backend/lib/marketstore"
	"marketsuite-backend/lib/normalize"
	"marketsuite-backend/lib/scrapers/fanza/core"
	"marketsuite-backend/lib/scrapers/fanza/view"
)

var tracer = otel.Tracer("services/research")

const (
	siteTag          = "fanza"
	analysisPageSize = 100
)

type Config struct {
	DMM dmmapi.Config `json:"dmm"`
	// StorePath is the sqlite file holding analysis batches.
	StorePath string `json:"store_path"`
	// NotifyURL receives the best-effort analysis notifications;
	// empty disables them.
	NotifyURL string `json:"notify_url,omitempty"`
	// ScrapeBaseURL overrides the storefront origin, mainly for tests.
	ScrapeBaseURL string `json:"scrape_base_url,omitempty"`
	// SourceTag labels persisted batches; defaults to "market-research".
	SourceTag string `json:"source_tag,omitempty"`
}

type Service struct {
	config   Config
	dmm      *dmmapi.Client
	store    marketstore.Store
	notifier *Notifier

	mu   sync.Mutex
	view *view.Client
}

func NewService(config Config) (*Service, error) {
	if config.SourceTag == "" {
		config.SourceTag = "market-research"
	}
	dmm, err := dmmapi.NewClient(config.DMM)
	if err != nil {
		return nil, err
	}
	store, err := marketstore.Open(config.StorePath)
	if err != nil {
		return nil, err
	}
	return &Service{
		config:   config,
		dmm:      dmm,
		store:    store,
		notifier: NewNotifier(config.NotifyURL),
	}, nil
}

func (s *Service) Close() error {
	return s.store.Close()
}

type itemPayload struct {
	ContentID     string   `json:"content_id,omitempty"`
	Title         string   `json:"title"`
	Circle        string   `json:"circle,omitempty"`
	Price         string   `json:"price,omitempty"`
	ReviewAverage float64  `json:"review_average"`
	ReviewCount   int      `json:"review_count"`
	URL           string   `json:"url,omitempty"`
	Genres        []string `json:"genres,omitempty"`
}

type SearchItemsResult struct {
	Status     string        `json:"status"`
	RequestID  string        `json:"request_id,omitempty"`
	TotalCount int           `json:"total_count"`
	HitCount   int           `json:"hit_count"`
	Items      []itemPayload `json:"items"`
}

func toItemPayloads(items []dmmapi.Item) []itemPayload {
	out := make([]itemPayload, len(items))
	for i, item := range items {
		circle := item.Circle()
		if circle == "" {
			circle = "不明"
		}
		out[i] = itemPayload{
			ContentID:     item.ContentID,
			Title:         item.Title,
			Circle:        circle,
			Price:         item.Prices.Price,
			ReviewAverage: item.RatingValue(),
			ReviewCount:   item.Review.Count,
			URL:           item.URL,
			Genres:        item.Genres(),
		}
	}
	return out
}

// SearchItems queries the affiliate catalog.
func (s *Service) SearchItems(ctx context.Context, keyword, sortOrder string, hits, offset int) (SearchItemsResult, error) {
	ctx, span := tracer.Start(ctx, "service:SearchItems")
	defer span.End()
	span.SetAttributes(attribute.String("keyword", keyword))

	result, err := s.dmm.ItemList(ctx, dmmapi.ItemListParams{
		Keyword: keyword,
		Sort:    sortOrder,
		Hits:    hits,
		Offset:  offset,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "catalog search failed")
		return SearchItemsResult{}, err
	}
	return SearchItemsResult{
		Status:     "success",
		RequestID:  result.RequestID,
		TotalCount: result.TotalCount,
		HitCount:   len(result.Items),
		Items:      toItemPayloads(result.Items),
	}, nil
}

// GetRanking approximates a ranking with a rank-sorted catalog page;
// the affiliate API has no dedicated ranking endpoint. The term
// argument is accepted for interface compatibility and ignored.
func (s *Service) GetRanking(ctx context.Context, term string) (SearchItemsResult, error) {
	ctx, span := tracer.Start(ctx, "service:GetRanking")
	defer span.End()
	span.SetAttributes(attribute.String("term", term))

	return s.SearchItems(ctx, "", "rank", analysisPageSize, 1)
}

type GenresResult struct {
	Status string         `json:"status"`
	Genres []dmmapi.Genre `json:"genres"`
}

func (s *Service) GetGenres(ctx context.Context) (GenresResult, error) {
	ctx, span := tracer.Start(ctx, "service:GetGenres")
	defer span.End()

	genres, err := s.dmm.GenreSearch(ctx, "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "genre lookup failed")
		return GenresResult{}, err
	}
	return GenresResult{Status: "success", Genres: genres}, nil
}

type CirclesResult struct {
	Status  string         `json:"status"`
	Circles []dmmapi.Maker `json:"circles"`
}

// SearchEntities looks up circles by keyword and orders the results by
// name similarity to the query, closest first.
func (s *Service) SearchEntities(ctx context.Context, keyword string) (CirclesResult, error) {
	ctx, span := tracer.Start(ctx, "service:SearchEntities")
	defer span.End()
	span.SetAttributes(attribute.String("keyword", keyword))

	makers, err := s.dmm.MakerSearch(ctx, keyword)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "circle lookup failed")
		return CirclesResult{}, err
	}

	if keyword != "" {
		sort.SliceStable(makers, func(a, b int) bool {
			return matchr.JaroWinkler(keyword, makers[a].Name, false) >
				matchr.JaroWinkler(keyword, makers[b].Name, false)
		})
	}
	return CirclesResult{Status: "success", Circles: makers}, nil
}

type CategoriesResult struct {
	Status string                `json:"status"`
	Floors []dmmapi.FloorService `json:"floors"`
}

func (s *Service) GetCategories(ctx context.Context) (CategoriesResult, error) {
	ctx, span := tracer.Start(ctx, "service:GetCategories")
	defer span.End()

	floors, err := s.dmm.FloorList(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "floor lookup failed")
		return CategoriesResult{}, err
	}
	return CategoriesResult{Status: "success", Floors: floors}, nil
}

type AnalysisResult struct {
	Status   string          `json:"status"`
	StoreKey string          `json:"store_key,omitempty"`
	Report   analysis.Report `json:"report"`
}

// RunAnalysis pulls a rank-sorted page of 100 catalog items, builds
// the requested report, persists the batch and fires the notification
// side channel. Persistence failures degrade to an unsaved report
// rather than losing the analysis.
func (s *Service) RunAnalysis(ctx context.Context, kind analysis.ReportType) (AnalysisResult, error) {
	ctx, span := tracer.Start(ctx, "service:RunAnalysis")
	defer span.End()
	span.SetAttributes(attribute.String("type", string(kind)))

	page, err := s.dmm.ItemList(ctx, dmmapi.ItemListParams{
		Sort: "rank",
		Hits: analysisPageSize,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "catalog fetch failed")
		return AnalysisResult{}, err
	}
	normalized := dmmapi.NormalizedBatch(page.Items)
	if len(normalized) == 0 {
		return AnalysisResult{}, fmt.Errorf("analysis input is empty")
	}

	report, err := analysis.Build(kind, toAnalysisItems(normalized), time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "report build failed")
		return AnalysisResult{}, err
	}

	key, err := s.store.Push(ctx, marketstore.Batch{
		SourceTag:   s.config.SourceTag,
		Site:        siteTag,
		CollectedAt: report.GeneratedAt,
		Items:       normalized,
	})
	if err != nil {
		span.RecordError(err)
		key = ""
	}

	s.notifier.Notify(ctx, "analysis_complete", report)

	return AnalysisResult{Status: "success", StoreKey: key, Report: report}, nil
}

func toAnalysisItems(items []normalize.Item) []analysis.Item {
	out := make([]analysis.Item, len(items))
	for i, item := range items {
		out[i] = analysis.Item{
			Title:  item.Title,
			Price:  item.PriceAmount,
			Rating: item.Rating,
			Count:  item.CountValue,
			Circle: item.Circle,
			Tags:   item.Tags,
		}
	}
	return out
}

type LoginResult struct {
	Status  string `json:"status"`
	State   string `json:"state"`
	Message string `json:"message"`
}

// Login establishes a fresh authenticated storefront session. Each
// call builds a new session; a previous Failed session is discarded
// rather than reset.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	ctx, span := tracer.Start(ctx, "service:Login")
	defer span.End()

	coreClient, err := core.NewClient(core.ClientOptions{
		BaseUrl: s.config.ScrapeBaseURL,
	})
	if err != nil {
		return LoginResult{}, err
	}

	err = coreClient.Login(ctx, email, password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return LoginResult{}, err
	}

	s.mu.Lock()
	s.view = view.NewClient(coreClient)
	s.mu.Unlock()

	return LoginResult{
		Status:  "success",
		State:   coreClient.Session.State().String(),
		Message: "ログイン成功、年齢認証完了",
	}, nil
}

func (s *Service) authenticatedView() (*view.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view == nil {
		return nil, &core.AuthError{Reason: "no authenticated session, call login first"}
	}
	return s.view, nil
}

type ScrapeResult struct {
	Status string           `json:"status"`
	Count  int              `json:"count"`
	Items  []normalize.Item `json:"items"`
}

// SearchAuthenticated scrapes the gated keyword search.
func (s *Service) SearchAuthenticated(ctx context.Context, query, sortOrder string) (ScrapeResult, error) {
	ctx, span := tracer.Start(ctx, "service:SearchAuthenticated")
	defer span.End()
	span.SetAttributes(attribute.String("query", query))

	client, err := s.authenticatedView()
	if err != nil {
		return ScrapeResult{}, err
	}
	items, err := client.Search(ctx, query, sortOrder)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "authenticated search failed")
		return ScrapeResult{}, err
	}
	return ScrapeResult{Status: "success", Count: len(items), Items: items}, nil
}

// RankingAuthenticated scrapes a gated ranking page.
func (s *Service) RankingAuthenticated(ctx context.Context, period string) (ScrapeResult, error) {
	ctx, span := tracer.Start(ctx, "service:RankingAuthenticated")
	defer span.End()
	span.SetAttributes(attribute.String("period", period))

	client, err := s.authenticatedView()
	if err != nil {
		return ScrapeResult{}, err
	}
	items, err := client.Ranking(ctx, period)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "authenticated ranking failed")
		return ScrapeResult{}, err
	}
	return ScrapeResult{Status: "success", Count: len(items), Items: items}, nil
}

// LatestBatch exposes the most recent persisted batch for the CLI.
func (s *Service) LatestBatch(ctx context.Context) (marketstore.Batch, error) {
	return s.store.Latest(ctx, siteTag)
}
