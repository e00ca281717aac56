package pepper

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"sjsage522/pepperwatch/internal/deal"
	"sjsage522/pepperwatch/internal/extractor"
)

// Sort orders accepted by the site's search page
const (
	SortRelevance = ""
	SortNew       = "new"
	SortHot       = "hot"
)

// PageFetcher retrieves raw page content
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (io.Reader, error)
}

// Options configures a Client
type Options struct {
	BaseURL           string
	SearchURLTemplate string
	GroupURLTemplate  string
	FlightURL         string
	DefaultLimit      int
}

// Client turns site pages into deal records by composing fetch and extract.
// It applies no dedup; callers that need at-most-once delivery go through the store.
type Client struct {
	fetcher PageFetcher
	opts    Options
}

// NewClient creates a new site client
func NewClient(fetcher PageFetcher, opts Options) *Client {
	if opts.DefaultLimit == 0 {
		opts.DefaultLimit = 7
	}
	return &Client{
		fetcher: fetcher,
		opts:    opts,
	}
}

// SearchDeals fetches the search page for query and returns up to limit records
func (c *Client) SearchDeals(ctx context.Context, query string, limit int, sort string) ([]deal.Record, error) {
	searchURL := fmt.Sprintf(c.opts.SearchURLTemplate, url.QueryEscape(query))
	if sort != "" {
		searchURL += "&sort=" + sort
	}
	return c.fetchPage(ctx, searchURL, "", limit)
}

// GroupDeals fetches a category group page; records carry the group's slug
func (c *Client) GroupDeals(ctx context.Context, slug string, limit int) ([]deal.Record, error) {
	groupURL := fmt.Sprintf(c.opts.GroupURLTemplate, url.PathEscape(slug))
	return c.fetchPage(ctx, groupURL, slug, limit)
}

// FlightDeals fetches the flight category page for the daily digest
func (c *Client) FlightDeals(ctx context.Context, limit int) ([]deal.Record, error) {
	return c.fetchPage(ctx, c.opts.FlightURL, "loty", limit)
}

// HotDeals fetches the front page listing
func (c *Client) HotDeals(ctx context.Context, limit int) ([]deal.Record, error) {
	return c.fetchPage(ctx, c.opts.BaseURL, "", limit)
}

func (c *Client) fetchPage(ctx context.Context, pageURL, slug string, limit int) ([]deal.Record, error) {
	if limit <= 0 {
		limit = c.opts.DefaultLimit
	}

	body, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	result := extractor.Extract(body, extractor.Context{
		BaseURL:      c.opts.BaseURL,
		CategorySlug: slug,
	})

	deals := result.Deals
	if len(deals) > limit {
		deals = deals[:limit]
	}
	return deals, nil
}
