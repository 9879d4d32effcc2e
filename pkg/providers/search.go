package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Makar0n1/art-automation/pkg/metrics"
	"github.com/Makar0n1/art-automation/pkg/types"
)

const (
	serpLimit        = 10
	scrapeDelay      = 500 * time.Millisecond
	searchTimeout    = 60 * time.Second
	defaultSearchURL = "https://api.firecrawl.dev"
)

// SearchResult is one organic search hit.
type SearchResult struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ScrapeResult is the raw payload returned for one scraped page.
type ScrapeResult struct {
	Markdown string         `json:"markdown,omitempty"`
	HTML     string         `json:"html,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchClient wraps the search & scrape provider HTTP API. One client is
// constructed per job from the owner's decrypted credential.
type SearchClient struct {
	apiKey  string
	baseURL string
	http    *http.Client

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// NewSearchClient creates a client. baseURL falls back to the hosted
// provider endpoint when empty.
func NewSearchClient(apiKey, baseURL string) *SearchClient {
	if baseURL == "" {
		baseURL = defaultSearchURL
	}
	return &SearchClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: searchTimeout},
		sleep:   time.Sleep,
	}
}

// Search performs one web search and returns up to limit ordered results.
func (c *SearchClient) Search(ctx context.Context, query, region, language string, limit int) ([]SearchResult, error) {
	reqBody := map[string]any{
		"query":   query,
		"limit":   limit,
		"country": region,
		"lang":    language,
	}
	var resp struct {
		Success bool           `json:"success"`
		Data    []SearchResult `json:"data"`
	}
	if err := c.post(ctx, "/v1/search", reqBody, &resp); err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues("firecrawl", "error").Inc()
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	metrics.ProviderRequestsTotal.WithLabelValues("firecrawl", "ok").Inc()
	if !resp.Success {
		return nil, fmt.Errorf("search provider rejected query %q", query)
	}
	return resp.Data, nil
}

// Scrape fetches one URL. Failures are reported in the result, never as a
// panic or leaked transport error detail.
func (c *SearchClient) Scrape(ctx context.Context, url string) (*ScrapeResult, error) {
	reqBody := map[string]any{
		"url":     url,
		"formats": []string{"html", "markdown"},
	}
	var resp struct {
		Success bool         `json:"success"`
		Data    ScrapeResult `json:"data"`
	}
	if err := c.post(ctx, "/v1/scrape", reqBody, &resp); err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues("firecrawl", "error").Inc()
		return nil, fmt.Errorf("scrape request failed: %w", err)
	}
	metrics.ProviderRequestsTotal.WithLabelValues("firecrawl", "ok").Inc()
	if !resp.Success {
		return nil, fmt.Errorf("scrape provider rejected url %q", url)
	}
	return &resp.Data, nil
}

// FetchSERP searches for the query, scrapes each hit in order and yields a
// normalized SerpEntry per result, calling onProgress after each entry.
// Scrape failures produce an entry with its Error field set; they do not
// abort the run.
func (c *SearchClient) FetchSERP(ctx context.Context, query, region, language string, onProgress func(types.SerpEntry, int)) ([]types.SerpEntry, error) {
	results, err := c.Search(ctx, query, region, language, serpLimit)
	if err != nil {
		return nil, err
	}

	entries := make([]types.SerpEntry, 0, len(results))
	for i, result := range results {
		entry := types.SerpEntry{
			URL:      result.URL,
			Title:    result.Title,
			Position: i + 1,
		}

		scraped, err := c.Scrape(ctx, result.URL)
		if err != nil {
			entry.Error = err.Error()
		} else if scraped.HTML != "" {
			page, err := ExtractPage(scraped.HTML)
			if err != nil {
				entry.Error = err.Error()
			} else {
				entry.Headings = page.Headings
				entry.Text = page.Text
				entry.WordCount = page.WordCount
			}
		} else if scraped.Markdown != "" {
			text := normalizeText(scraped.Markdown)
			entry.Text = text
			entry.WordCount = len(strings.Fields(text))
		} else {
			entry.Error = "scrape returned no content"
		}

		entries = append(entries, entry)
		if onProgress != nil {
			onProgress(entry, i)
		}

		if i < len(results)-1 {
			c.sleep(scrapeDelay)
		}
	}
	return entries, nil
}

// Ping performs a minimal authenticated call to validate the credential.
func (c *SearchClient) Ping(ctx context.Context) error {
	_, err := c.Search(ctx, "ping", "us", "en", 1)
	return err
}

func (c *SearchClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
