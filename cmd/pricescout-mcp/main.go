package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/pricescout/models"
)

func main() {
	apiURL := strings.TrimRight(os.Getenv("PRICESCOUT_API_URL"), "/")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:10000"
	}
	c := &client{
		apiURL: apiURL,
		apiKey: os.Getenv("PRICESCOUT_API_KEY"),
		http:   &http.Client{Timeout: 180 * time.Second},
	}

	s := server.NewMCPServer(
		"pricescout",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	searchTool := mcp.NewTool("search_products",
		mcp.WithDescription("Search the configured store for products matching a query. Returns in-stock listings sorted by price, lowest first, with title, price, condition, shipping and link."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search terms, e.g. 'rtx 4090'"),
		),
		mcp.WithNumber("max_age",
			mcp.Description("Accept a cached result younger than this many milliseconds (default: always search)"),
		),
	)
	s.AddTool(searchTool, c.handleSearch)

	batchTool := mcp.NewTool("batch_search",
		mcp.WithDescription("Run several product searches concurrently and return the listings for each query."),
		mcp.WithArray("queries",
			mcp.Required(),
			mcp.Description("List of search queries (max 20)"),
		),
	)
	s.AddTool(batchTool, c.handleBatch)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// client calls the pricescout HTTP API.
type client struct {
	apiURL string
	apiKey string
	http   *http.Client
}

func (c *client) do(ctx context.Context, method, path string, payload any) ([]byte, int, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

func (c *client) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	params := url.Values{"q": {query}}
	if maxAge := request.GetInt("max_age", 0); maxAge > 0 {
		params.Set("max_age", fmt.Sprint(maxAge))
	}

	body, status, err := c.do(ctx, http.MethodGet, "/scrape?"+params.Encode(), nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if status != http.StatusOK {
		return mcp.NewToolResultError(apiError(body, status)), nil
	}

	var out models.PipelineOutcome
	if err := json.Unmarshal(body, &out); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
	}
	if out.Error != "" {
		return mcp.NewToolResultError(fmt.Sprintf("search for %q failed: %s", query, out.Error)), nil
	}
	return mcp.NewToolResultText(formatOutcome(&out)), nil
}

func (c *client) handleBatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	queries, err := request.RequireStringSlice("queries")
	if err != nil || len(queries) == 0 {
		return mcp.NewToolResultError("queries is required and must be an array of strings"), nil
	}

	body, status, err := c.do(ctx, http.MethodPost, "/batch/scrape", models.BatchRequest{Queries: queries})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if status != http.StatusOK {
		return mcp.NewToolResultError(apiError(body, status)), nil
	}
	var job models.BatchResponse
	if err := json.Unmarshal(body, &job); err != nil || job.ID == "" {
		return mcp.NewToolResultError("batch job creation failed"), nil
	}

	result, err := c.pollBatch(ctx, job.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("polling batch job failed: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Batch %s: %s (%d/%d completed)\n\n", result.ID, result.Status, result.Completed, result.Total)
	for _, out := range result.Results {
		if out == nil {
			continue
		}
		sb.WriteString(formatOutcome(out))
		sb.WriteString("\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// pollBatch polls GET /batch/:id until the job leaves "processing".
func (c *client) pollBatch(ctx context.Context, id string) (*models.BatchStatusResponse, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			body, status, err := c.do(ctx, http.MethodGet, "/batch/"+id, nil)
			if err != nil {
				return nil, err
			}
			if status != http.StatusOK {
				return nil, fmt.Errorf("%s", apiError(body, status))
			}
			var res models.BatchStatusResponse
			if err := json.Unmarshal(body, &res); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}
			if res.Status != "processing" {
				return &res, nil
			}
		}
	}
}

func formatOutcome(out *models.PipelineOutcome) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s (%d results)\n", out.Query, out.Count)
	if out.Diagnostic != nil {
		fmt.Fprintf(&sb, "Note: [%s] %s\n", out.Diagnostic.Kind, out.Diagnostic.Message)
	}
	for i, r := range out.Results {
		fmt.Fprintf(&sb, "%d. $%.2f  %s [%s, %s]\n   %s\n", i+1, r.Price, r.Title, r.Condition, r.Shipping, r.Link)
	}
	return sb.String()
}

func apiError(body []byte, status int) string {
	var er models.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != nil {
		return fmt.Sprintf("[%s] %s", er.Error.Code, er.Error.Message)
	}
	return fmt.Sprintf("API returned status %d", status)
}
