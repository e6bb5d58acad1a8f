package reference

import (
	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// NewSearch returns a DuckDuckGo searcher returning up to maxResults hits.
func NewSearch(maxResults int) (Searcher, error) {
	ddg, err := duckduckgo.New(maxResults, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return ddg, nil
}
