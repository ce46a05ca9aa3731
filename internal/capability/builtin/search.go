package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/normanking/archon/internal/capability"
)

const duckDuckGoEndpoint = "https://api.duckduckgo.com/"

// SearchClient answers web queries through the DuckDuckGo instant-answer API.
type SearchClient struct {
	client   *http.Client
	endpoint string
}

// NewSearchClient creates a search client. An empty endpoint uses DuckDuckGo.
func NewSearchClient(endpoint string) *SearchClient {
	if endpoint == "" {
		endpoint = duckDuckGoEndpoint
	}
	return &SearchClient{
		client:   &http.Client{Timeout: 15 * time.Second},
		endpoint: endpoint,
	}
}

// Descriptor returns the registry entry for web search.
func (s *SearchClient) Descriptor() *capability.Descriptor {
	return &capability.Descriptor{
		Name:        "web_search",
		Description: "Search the web and return a short factual summary with related results.",
		Domain:      "search",
		Params: []capability.Param{
			{Name: "query", Type: "string", Description: "Search query", Required: true},
		},
		Invoke: s.invoke,
	}
}

type instantAnswer struct {
	AbstractText   string `json:"AbstractText"`
	AbstractSource string `json:"AbstractSource"`
	AbstractURL    string `json:"AbstractURL"`
	Answer         string `json:"Answer"`
	RelatedTopics  []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

func (s *SearchClient) invoke(ctx context.Context, args map[string]string) (any, error) {
	query := args["query"]
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")

	req, err := http.NewRequestWithContext(ctx, "GET", s.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	var answer instantAnswer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	summary := answer.AbstractText
	if summary == "" {
		summary = answer.Answer
	}

	related := make([]map[string]string, 0, 3)
	for _, topic := range answer.RelatedTopics {
		if topic.Text == "" {
			continue
		}
		related = append(related, map[string]string{
			"text": topic.Text,
			"url":  topic.FirstURL,
		})
		if len(related) == 3 {
			break
		}
	}

	return map[string]any{
		"query":   query,
		"summary": summary,
		"source":  answer.AbstractSource,
		"url":     answer.AbstractURL,
		"related": related,
	}, nil
}
