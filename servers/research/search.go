package research

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	tavilygo "github.com/diverged/tavily-go"
	tavilymodels "github.com/diverged/tavily-go/models"
)

// Searcher finds papers for a topic. Implemented by the tavily-backed
// searcher in production and by fixtures in tests.
type Searcher interface {
	SearchPapers(ctx context.Context, topic string, maxResults int) (map[string]PaperInfo, error)
}

// TavilySearcher queries the Tavily search API for literature on a topic,
// biased towards pharmacological sources.
type TavilySearcher struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewTavilySearcher reads the API key from TAVILY_API_KEY when key is empty.
func NewTavilySearcher(key string) (*TavilySearcher, error) {
	if key == "" {
		key = os.Getenv("TAVILY_API_KEY")
	}
	if key == "" {
		return nil, errors.New("TAVILY_API_KEY is not set")
	}
	return &TavilySearcher{apiKey: key}, nil
}

// WithBaseURL overrides the API endpoint.
func (s *TavilySearcher) WithBaseURL(baseURL string) *TavilySearcher {
	s.baseURL = baseURL
	return s
}

// WithHTTPClient overrides the HTTP client.
func (s *TavilySearcher) WithHTTPClient(client *http.Client) *TavilySearcher {
	s.httpClient = client
	return s
}

// SearchPapers implements Searcher.
func (s *TavilySearcher) SearchPapers(ctx context.Context, topic string, maxResults int) (map[string]PaperInfo, error) {
	client := tavilygo.NewClient(s.apiKey)
	if s.baseURL != "" {
		client.BaseURL = s.baseURL
	}
	if s.httpClient != nil {
		client.HTTPClient = s.httpClient
	}

	// Bias the query towards clinical and pharmacological literature.
	query := fmt.Sprintf("%s AND (efficacy OR safety OR clinical OR pharmacology OR therapeutic OR adverse OR side effects)", topic)
	req := tavilymodels.SearchRequest{
		Query:         query,
		SearchDepth:   "basic",
		IncludeAnswer: false,
		MaxResults:    maxResults,
	}
	resp, err := tavilygo.Search(client, req)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to search papers for %s", topic)
	}

	published := time.Now().Format("2006-01-02")
	papers := make(map[string]PaperInfo, len(resp.Results))
	for i, result := range resp.Results {
		papers[paperID(result.URL, i)] = PaperInfo{
			Title:     result.Title,
			Summary:   result.Content,
			PDFURL:    result.URL,
			Published: published,
		}
	}
	return papers, nil
}

// paperID derives a stable identifier from the source URL, falling back to a
// positional one for unparsable URLs.
func paperID(rawURL string, index int) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return fmt.Sprintf("paper-%d", index+1)
	}
	id := path.Base(u.Path)
	if id == "." || id == "/" || id == "" {
		id = u.Host
	}
	return strings.TrimSuffix(id, ".pdf")
}
