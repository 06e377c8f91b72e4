package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// NewsConfig configures the news/trend source. An empty APIKey disables
// the source entirely (not an error).
type NewsConfig struct {
	APIKey   string        `yaml:"api_key"`
	BaseURL  string        `yaml:"base_url"`
	TopN     int           `yaml:"top_n"`     // topics to surface, default 5
	Timeout  time.Duration `yaml:"timeout"`   // default 6s
	CacheTTL time.Duration `yaml:"cache_ttl"` // default 15m
}

const maxCategories = 5

// Short function words excluded from headline topic extraction.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"that": true, "this": true, "after": true, "over": true, "into": true,
	"amid": true, "says": true, "will": true, "have": true, "been": true,
	"what": true, "when": true, "more": true, "than": true, "their": true,
	"your": true, "about": true, "could": true, "would": true, "were": true,
	"here": true, "they": true, "them": true, "just": true, "also": true,
}

// NewsSource extracts trending topics and a category histogram from
// recent headlines.
type NewsSource struct {
	cfg     NewsConfig
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// NewNewsSource creates the news/trend source.
func NewNewsSource(cfg NewsConfig) *NewsSource {
	if cfg.TopN <= 0 {
		cfg.TopN = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 6 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 15 * time.Minute
	}
	return &NewsSource{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(1), 2),
		now:     time.Now,
	}
}

func (n *NewsSource) Info() SourceInfo {
	return SourceInfo{ID: "news", Name: "News Trends", CacheTTL: n.cfg.CacheTTL}
}

// Headline is one article from the news feed.
type Headline struct {
	Title    string `json:"title"`
	Category string `json:"category"`
}

// Fetch retrieves headlines and normalizes them into a news snapshot.
func (n *NewsSource) Fetch(ctx context.Context) (*Payload, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("news rate limit: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/headlines?apikey=%s", n.cfg.BaseURL, url.QueryEscape(n.cfg.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build news request: %w", err)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news request: unexpected status %d", resp.StatusCode)
	}

	var decoded struct {
		Articles []Headline `json:"articles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode news response: %w", err)
	}

	snap := NormalizeNews(decoded.Articles, n.cfg.TopN, n.now())
	return &Payload{News: snap}, nil
}

// NormalizeNews extracts the topN topic strings and the top-5 category
// histogram from headlines. Output ordering is deterministic: frequency
// descending, then alphabetical.
func NormalizeNews(headlines []Headline, topN int, now time.Time) *NewsSnapshot {
	topicCounts := make(map[string]int)
	categoryCounts := make(map[string]int)

	for _, h := range headlines {
		for _, word := range strings.Fields(strings.ToLower(h.Title)) {
			word = strings.Trim(word, ".,:;!?\"'()[]")
			if len(word) < 4 || stopwords[word] {
				continue
			}
			topicCounts[word]++
		}
		if cat := strings.ToLower(strings.TrimSpace(h.Category)); cat != "" {
			categoryCounts[cat]++
		}
	}

	return &NewsSnapshot{
		Topics:     topRanked(topicCounts, topN),
		Categories: topCategories(categoryCounts, maxCategories),
		AsOf:       now,
	}
}

func topRanked(counts map[string]int, n int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func topCategories(counts map[string]int, n int) []CategoryCount {
	out := make([]CategoryCount, 0, len(counts))
	for cat, count := range counts {
		out = append(out, CategoryCount{Category: cat, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
