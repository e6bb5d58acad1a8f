// Package reference gathers material a prompt points at: the readable text
// of linked pages and, optionally, a web search digest.
package reference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

var urlPattern = regexp.MustCompile(`https?://[^\s<>"'()\[\]]+`)

// Page is the readable content of one web page.
type Page struct {
	URL     string
	Title   string
	Excerpt string
	Content string
}

func (p Page) String() string {
	out := fmt.Sprintf("TITLE: %s\n", p.Title)
	if p.Excerpt != "" {
		out += fmt.Sprintf("EXCERPT: %s\n", p.Excerpt)
	}
	return out + "\n-- CONTENT --\n" + p.Content
}

// Searcher answers a free-text query.
type Searcher interface {
	Call(ctx context.Context, query string) (string, error)
}

// Fetcher builds the reference context appended to a planning prompt.
type Fetcher struct {
	Client    *http.Client
	UserAgent string
	MaxPages  int
	MaxChars  int
	Search    Searcher
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		Client:    &http.Client{Timeout: 30 * time.Second},
		UserAgent: defaultUserAgent,
		MaxPages:  3,
		MaxChars:  8000,
	}
}

// ExtractURLs returns the distinct http(s) URLs in text, in order, up to
// max (all of them when max <= 0).
func ExtractURLs(text string, max int) []string {
	seen := map[string]bool{}
	var urls []string
	for _, u := range urlPattern.FindAllString(text, -1) {
		u = strings.TrimRight(u, ".,;:!?")
		if seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
		if max > 0 && len(urls) == max {
			break
		}
	}
	return urls
}

// Page fetches rawURL and extracts its main content as sanitized text.
func (f *Fetcher) Page(ctx context.Context, rawURL string) (Page, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return Page{}, fmt.Errorf("failed to parse URL: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", f.UserAgent)

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("failed to fetch URL: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsedURL)
	if err != nil {
		return Page{}, fmt.Errorf("failed to parse article: %v", err)
	}

	content := strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(article.TextContent))
	if f.MaxChars > 0 && len(content) > f.MaxChars {
		content = content[:f.MaxChars] + "\n... (content truncated) ..."
	}
	return Page{
		URL:     rawURL,
		Title:   article.Title,
		Excerpt: article.Excerpt,
		Content: content,
	}, nil
}

// Context fetches the pages linked from prompt and runs the optional
// search. It returns whatever could be gathered together with the joined
// errors of the lookups that failed.
func (f *Fetcher) Context(ctx context.Context, prompt string) (string, error) {
	var (
		sections []string
		errs     []error
	)
	for _, u := range ExtractURLs(prompt, f.MaxPages) {
		page, err := f.Page(ctx, u)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u, err))
			continue
		}
		sections = append(sections, "## "+u+"\n"+page.String())
	}

	if f.Search != nil {
		res, err := f.Search.Call(ctx, prompt)
		if err != nil {
			errs = append(errs, fmt.Errorf("search failed: %w", err))
		} else if res = strings.TrimSpace(res); res != "" {
			sections = append(sections, "## Web search\n"+res)
		}
	}

	if len(sections) == 0 {
		return "", errors.Join(errs...)
	}
	return "Reference material:\n\n" + strings.Join(sections, "\n\n"), errors.Join(errs...)
}
