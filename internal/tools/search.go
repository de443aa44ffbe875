package tools

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/omnimemory/internal/models"
	"github.com/raphaelgruber/omnimemory/internal/service"
)

const maxSearchLimit = 100

// SearchInput defines the input schema for the search tools.
type SearchInput struct {
	Query         string  `json:"query" jsonschema:"required,The search query text"`
	Limit         int     `json:"limit,omitempty" jsonschema:"Max results 1-100, default 10"`
	MinSimilarity float64 `json:"min_similarity,omitempty" jsonschema:"Semantic search only: drop matches below this cosine similarity (0-1)"`
}

// searchResponse is the JSON body of both search tools.
type searchResponse[T any] struct {
	Query   string `json:"query"`
	Results []T    `json:"results"`
	Count   int    `json:"count"`
}

func (in SearchInput) validate() (int, *mcp.CallToolResult) {
	if strings.TrimSpace(in.Query) == "" {
		return 0, ErrorResult("Query cannot be empty", "Provide a search query")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = service.DefaultSearchLimit
	}
	if limit > maxSearchLimit {
		return 0, ErrorResult("Limit must be 1-100", "Reduce limit value")
	}
	return limit, nil
}

// NewSemanticSearchHandler creates the semantic_search tool handler.
func NewSemanticSearchHandler(deps *Dependencies) mcp.ToolHandlerFor[SearchInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
		*mcp.CallToolResult, any, error,
	) {
		limit, errResult := input.validate()
		if errResult != nil {
			return errResult, nil, nil
		}

		results, err := deps.App.Search.SemanticSearch(ctx, input.Query, service.SemanticOptions{
			Limit:         limit,
			MinSimilarity: input.MinSimilarity,
		})
		if err != nil {
			deps.Logger.Error("semantic search failed", "error", err)
			return failure("Search failed", err), nil, nil
		}

		deps.Logger.Info("semantic search completed", "query", models.TruncateRunes(input.Query, 30), "results", len(results))
		return JSONResult(searchResponse[service.SearchResult]{
			Query:   input.Query,
			Results: results,
			Count:   len(results),
		}), nil, nil
	}
}

// NewKeywordSearchHandler creates the keyword_search tool handler.
func NewKeywordSearchHandler(deps *Dependencies) mcp.ToolHandlerFor[SearchInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
		*mcp.CallToolResult, any, error,
	) {
		limit, errResult := input.validate()
		if errResult != nil {
			return errResult, nil, nil
		}

		results, err := deps.App.Search.KeywordSearch(ctx, input.Query, limit)
		if err != nil {
			deps.Logger.Error("keyword search failed", "error", err)
			return failure("Search failed", err), nil, nil
		}

		deps.Logger.Info("keyword search completed", "query", models.TruncateRunes(input.Query, 30), "results", len(results))
		return JSONResult(searchResponse[service.KeywordResult]{
			Query:   input.Query,
			Results: results,
			Count:   len(results),
		}), nil, nil
	}
}
