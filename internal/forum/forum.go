// Package forum scrapes the community forum for fresh threads. Fetches are
// rate-limited and retried, parsing sits behind an interface so the HTML
// shape is swappable, and the watch loop runs as a named background job so
// two watches for the same guild cannot overlap.
package forum

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"spectreon/pkg/jobmgr"
	"spectreon/pkg/retrylimit"

	"github.com/patrickmn/go-cache"
)

const (
	fetchTimeout     = 15 * time.Second
	latestCacheKey   = "latest"
	defaultCacheTTL  = 2 * time.Minute
	defaultWatchTick = 10 * time.Minute
)

// Thread is one forum thread as the parser sees it.
type Thread struct {
	ID     string
	Title  string
	Author string
	URL    string
}

// Parser turns a fetched page into threads. The concrete HTML layout of the
// forum lives entirely behind this boundary.
type Parser interface {
	Threads(body []byte) ([]Thread, error)
}

// Scraper fetches and watches the forum.
type Scraper struct {
	baseURL string
	parser  Parser
	limiter *retrylimit.Limiter
	jobs    *jobmgr.Manager
	cache   *cache.Cache

	// fetch is swappable for tests; the default goes over HTTP.
	fetch func(ctx context.Context, url string) ([]byte, error)

	watchTick time.Duration

	mu   sync.Mutex
	seen map[string]bool
}

// New builds a scraper over the forum at baseURL.
func New(baseURL string, parser Parser) *Scraper {
	s := &Scraper{
		baseURL: strings.TrimRight(baseURL, "/"),
		parser:  parser,
		// One request a second with a small burst keeps us polite.
		limiter:   retrylimit.NewLimiter(1, 2),
		cache:     cache.New(defaultCacheTTL, 2*defaultCacheTTL),
		watchTick: defaultWatchTick,
		seen:      make(map[string]bool),
	}
	s.jobs = jobmgr.NewManager(func(event string) {
		log.Printf("[INFO] forum job %s", event)
	})
	client := &http.Client{Timeout: fetchTimeout}
	s.fetch = func(ctx context.Context, url string) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			// A missing page will not appear on retry.
			return nil, retrylimit.Fatal(fmt.Errorf("forum returned 404 for %s", url))
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("forum returned status %d for %s", resp.StatusCode, url)
		}
		return io.ReadAll(resp.Body)
	}
	return s
}

// Latest returns the forum's current thread list, from cache when fresh.
func (s *Scraper) Latest(ctx context.Context) ([]Thread, error) {
	if hit, ok := s.cache.Get(latestCacheKey); ok {
		return hit.([]Thread), nil
	}

	var body []byte
	err := retrylimit.Do(ctx, func() error {
		var ferr error
		body, ferr = s.fetch(ctx, s.baseURL)
		return ferr
	}, s.limiter, retrylimit.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch forum index: %w", err)
	}

	threads, err := s.parser.Threads(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse forum index: %w", err)
	}
	s.cache.Set(latestCacheKey, threads, cache.DefaultExpiration)
	return threads, nil
}

// Watch starts a background job that polls the forum and calls announce for
// every thread not seen before. One watch per name; a second Watch with the
// same name errors until the first is stopped.
func (s *Scraper) Watch(name string, announce func(Thread)) error {
	return s.jobs.Start(name, func(ctx context.Context) error {
		// Prime the seen set so the first tick doesn't replay the
		// whole front page.
		if threads, err := s.Latest(ctx); err == nil {
			s.markSeen(threads)
		}

		ticker := time.NewTicker(s.watchTick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s.cache.Delete(latestCacheKey)
				threads, err := s.Latest(ctx)
				if err != nil {
					log.Printf("[WARN] forum poll failed: %v", err)
					continue
				}
				for _, th := range s.fresh(threads) {
					announce(th)
				}
			}
		}
	})
}

// Unwatch stops the named watch job.
func (s *Scraper) Unwatch(name string) error { return s.jobs.Stop(name) }

// Watching reports whether the named watch job is running.
func (s *Scraper) Watching(name string) bool { return s.jobs.Running(name) }

// Jobs lists active watch job names.
func (s *Scraper) Jobs() []string { return s.jobs.List() }

func (s *Scraper) markSeen(threads []Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, th := range threads {
		s.seen[th.ID] = true
	}
}

// fresh returns threads not seen before and marks them seen.
func (s *Scraper) fresh(threads []Thread) []Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Thread
	for _, th := range threads {
		if s.seen[th.ID] {
			continue
		}
		s.seen[th.ID] = true
		out = append(out, th)
	}
	return out
}
