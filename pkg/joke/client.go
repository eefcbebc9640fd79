package joke

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	// DefaultBaseURL is the public joke API
	DefaultBaseURL = "https://api.chucknorris.io"

	// DefaultTimeout bounds one upstream request
	DefaultTimeout = 10 * time.Second
)

// Joke is one entry returned by the joke API
type Joke struct {
	IconURL string `json:"icon_url"`
	ID      string `json:"id"`
	URL     string `json:"url"`
	Value   string `json:"value"`
}

// Fetcher returns a random joke, optionally from one category
type Fetcher interface {
	Random(ctx context.Context, category string) (*Joke, error)
}

// Client fetches jokes from the joke API
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for baseURL, or DefaultBaseURL when empty
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// RandomURL returns the request URL for a random joke
func (c *Client) RandomURL(category string) string {
	u := c.baseURL + "/jokes/random"
	if category != "" {
		u += "?" + url.Values{"category": {category}}.Encode()
	}
	return u
}

// Random fetches a random joke. An empty category means any category.
func (c *Client) Random(ctx context.Context, category string) (*Joke, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.RandomURL(category), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch joke: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("joke API returned %d: %s", resp.StatusCode, body)
	}

	var joke Joke
	if err := json.NewDecoder(resp.Body).Decode(&joke); err != nil {
		return nil, fmt.Errorf("could not parse joke: %w", err)
	}
	return &joke, nil
}
