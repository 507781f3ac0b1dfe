// Package wiki looks up articles on the game wiki through the MediaWiki
// opensearch API. Results are cached so a popular page doesn't hammer the
// wiki every time somebody asks.
package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"spectreon/internal/discord"
	"spectreon/internal/registry"

	"github.com/bwmarrin/discordgo"
	"github.com/patrickmn/go-cache"
)

const (
	requestTimeout = 10 * time.Second
	maxResults     = 3
)

// Result is one opensearch hit.
type Result struct {
	Title string
	URL   string
}

// Client fetches opensearch results. The live implementation talks HTTP;
// tests swap in a canned one.
type Client interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// HTTPClient is the live MediaWiki client.
type HTTPClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPClient builds a client against the given api.php endpoint.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{BaseURL: baseURL, HTTP: &http.Client{Timeout: requestTimeout}}
}

// Search runs a MediaWiki opensearch query.
func (c *HTTPClient) Search(ctx context.Context, query string) ([]Result, error) {
	q := url.Values{}
	q.Set("action", "opensearch")
	q.Set("format", "json")
	q.Set("limit", fmt.Sprint(maxResults))
	q.Set("search", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wiki request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wiki returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseOpensearch(body)
}

// parseOpensearch decodes the 4-element opensearch array:
// [query, [titles], [descriptions], [urls]].
func parseOpensearch(body []byte) ([]Result, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("wiki response is not valid JSON: %w", err)
	}
	if len(raw) < 4 {
		return nil, fmt.Errorf("wiki response has %d elements, want 4", len(raw))
	}
	var titles, urls []string
	if err := json.Unmarshal(raw[1], &titles); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw[3], &urls); err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(titles))
	for i := range titles {
		if i >= len(urls) {
			break
		}
		results = append(results, Result{Title: titles[i], URL: urls[i]})
	}
	return results, nil
}

// Feature wires the wiki command into a registry.
type Feature struct {
	client Client
	cache  *cache.Cache

	mu  sync.Mutex
	say func(channelID, text string)
}

// New registers the wiki command.
func New(reg *registry.Registry, client Client) *Feature {
	f := &Feature{
		client: client,
		cache:  cache.New(5*time.Minute, 10*time.Minute),
	}

	reg.RegisterExposed(registry.ExposedCommand{
		LogicalID: "wiki",
		Name:      "wiki",
		Handler:   f.handle,
		Help:      "Search the game wiki: `wiki <article>`",
		Opts:      registry.TextOptions{Category: "Info"},
	})
	return f
}

func (f *Feature) bindSay(s *discordgo.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.say == nil && s != nil {
		f.say = func(channelID, text string) { _ = discord.Message(s, channelID, text) }
	}
}

func (f *Feature) reply(ctx *registry.MessageContext, text string) error {
	f.bindSay(ctx.Session)
	f.mu.Lock()
	say := f.say
	f.mu.Unlock()
	if say != nil {
		say(ctx.Actor.ChannelID, text)
	}
	return nil
}

func (f *Feature) handle(ctx *registry.MessageContext) error {
	query := strings.TrimSpace(ctx.Rest)
	if query == "" {
		return f.reply(ctx, "Tell me what to look up, like `wiki Delta Bulbasaur`.")
	}

	results, err := f.lookup(query)
	if err != nil {
		return fmt.Errorf("wiki lookup for %q: %w", query, err)
	}
	if len(results) == 0 {
		return f.reply(ctx, fmt.Sprintf("The wiki has nothing for **%s**.", query))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Wiki results for **%s**:\n", query)
	for _, r := range results {
		fmt.Fprintf(&b, "• [%s](<%s>)\n", r.Title, r.URL)
	}
	return f.reply(ctx, b.String())
}

// lookup consults the cache before going to the network. Empty result sets
// are cached too, so repeated misses stay cheap.
func (f *Feature) lookup(query string) ([]Result, error) {
	key := strings.ToLower(query)
	if hit, ok := f.cache.Get(key); ok {
		return hit.([]Result), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	results, err := f.client.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	f.cache.Set(key, results, cache.DefaultExpiration)
	return results, nil
}
