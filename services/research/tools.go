package research

import (
	"context"
	"encoding/json"

	"marketsuite-backend/lib/analysis"
	"marketsuite-backend/lib/mcp"
)

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// RegisterTools wires every service operation onto the tool server.
func (s *Service) RegisterTools(server *mcp.Server) error {
	tools := []mcp.Tool{
		{
			Name:        "search-items",
			Description: "Search the doujin catalog through the affiliate API",
			InputSchema: objectSchema(map[string]any{
				"keyword": map[string]any{"type": "string", "description": "search keyword, empty for all items"},
				"sort":    map[string]any{"type": "string", "enum": []any{"rank", "date", "price", "review"}},
				"hits":    map[string]any{"type": "integer", "minimum": 1, "maximum": 100},
				"offset":  map[string]any{"type": "integer", "minimum": 1},
			}),
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var parsed struct {
					Keyword string `json:"keyword"`
					Sort    string `json:"sort"`
					Hits    int    `json:"hits"`
					Offset  int    `json:"offset"`
				}
				if err := json.Unmarshal(args, &parsed); err != nil {
					return nil, err
				}
				return s.SearchItems(ctx, parsed.Keyword, parsed.Sort, parsed.Hits, parsed.Offset)
			},
		},
		{
			Name:        "get-ranking",
			Description: "Fetch the current sales ranking from the catalog",
			InputSchema: objectSchema(map[string]any{
				"term": map[string]any{"type": "string", "enum": []any{"24", "week", "month"}},
			}),
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var parsed struct {
					Term string `json:"term"`
				}
				if err := json.Unmarshal(args, &parsed); err != nil {
					return nil, err
				}
				return s.GetRanking(ctx, parsed.Term)
			},
		},
		{
			Name:        "get-genres",
			Description: "List the genres of the doujin floor",
			InputSchema: objectSchema(map[string]any{}),
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				return s.GetGenres(ctx)
			},
		},
		{
			Name:        "search-entities",
			Description: "Search circles by name, ranked by similarity",
			InputSchema: objectSchema(map[string]any{
				"keyword": map[string]any{"type": "string"},
			}, "keyword"),
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var parsed struct {
					Keyword string `json:"keyword"`
				}
				if err := json.Unmarshal(args, &parsed); err != nil {
					return nil, err
				}
				return s.SearchEntities(ctx, parsed.Keyword)
			},
		},
		{
			Name:        "get-categories",
			Description: "List the site's service/floor categories",
			InputSchema: objectSchema(map[string]any{}),
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				return s.GetCategories(ctx)
			},
		},
		{
			Name:        "run-analysis",
			Description: "Collect the top 100 ranked items and build a market report",
			InputSchema: objectSchema(map[string]any{
				"type": map[string]any{"type": "string", "enum": []any{"price", "circle", "genre", "trend"}},
			}, "type"),
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var parsed struct {
					Type string `json:"type"`
				}
				if err := json.Unmarshal(args, &parsed); err != nil {
					return nil, err
				}
				return s.RunAnalysis(ctx, analysis.ReportType(parsed.Type))
			},
		},
		{
			Name:        "login",
			Description: "Log in to the storefront and clear the age gate",
			InputSchema: objectSchema(map[string]any{
				"email":    map[string]any{"type": "string"},
				"password": map[string]any{"type": "string"},
			}, "email", "password"),
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var parsed struct {
					Email    string `json:"email"`
					Password string `json:"password"`
				}
				if err := json.Unmarshal(args, &parsed); err != nil {
					return nil, err
				}
				return s.Login(ctx, parsed.Email, parsed.Password)
			},
		},
		{
			Name:        "search-authenticated",
			Description: "Search the gated storefront listing with the logged-in session",
			InputSchema: objectSchema(map[string]any{
				"query": map[string]any{"type": "string"},
				"sort":  map[string]any{"type": "string"},
			}, "query"),
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var parsed struct {
					Query string `json:"query"`
					Sort  string `json:"sort"`
				}
				if err := json.Unmarshal(args, &parsed); err != nil {
					return nil, err
				}
				return s.SearchAuthenticated(ctx, parsed.Query, parsed.Sort)
			},
		},
		{
			Name:        "ranking-authenticated",
			Description: "Scrape a gated ranking page with the logged-in session",
			InputSchema: objectSchema(map[string]any{
				"period": map[string]any{"type": "string", "enum": []any{"daily", "weekly", "monthly"}},
			}),
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var parsed struct {
					Period string `json:"period"`
				}
				if err := json.Unmarshal(args, &parsed); err != nil {
					return nil, err
				}
				return s.RankingAuthenticated(ctx, parsed.Period)
			},
		},
	}

	for _, tool := range tools {
		if err := server.Register(tool); err != nil {
			return err
		}
	}
	return nil
}
