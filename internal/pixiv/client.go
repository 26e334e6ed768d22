// Package pixiv is the client for the upstream ranking API. Authentication
// is an external concern: the client only needs a TokenProvider.
package pixiv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/himawari-lab/pixrank/internal/domain"
	"github.com/himawari-lab/pixrank/internal/httpclient"
)

const defaultBaseURL = "https://app-api.pixiv.net"

// ErrRateLimited signals that the upstream API refused the request because
// of rate limiting. The orchestrator decides whether and when to retry.
var ErrRateLimited = errors.New("rate limited by ranking api")

// TokenProvider supplies a valid bearer token. The OAuth refresh flow behind
// it is out of scope here.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticTokenProvider returns a fixed token from configuration.
type StaticTokenProvider struct {
	Token string
}

func (p StaticTokenProvider) AccessToken(context.Context) (string, error) {
	if p.Token == "" {
		return "", errors.New("no access token configured")
	}
	return p.Token, nil
}

// Query addresses one page of one ranking list. Date empty means the current
// ranking. Offset is the opaque pagination cursor handed back via Page.Next.
type Query struct {
	Mode   string
	Date   string
	Offset int
}

// Page is one page of ranking results. Next is nil when the listing is
// exhausted.
type Page struct {
	Items []domain.RankingItem
	Next  *Query
}

// RankingSource abstracts the upstream ranking API for the orchestrator.
type RankingSource interface {
	Ranking(ctx context.Context, q Query) (*Page, error)
}

// AppClient talks to the mobile-app API.
type AppClient struct {
	baseURL string
	client  *httpclient.Client
	tokens  TokenProvider
	log     zerolog.Logger
}

func NewAppClient(tokens TokenProvider, log zerolog.Logger) *AppClient {
	return &AppClient{
		baseURL: defaultBaseURL,
		client:  httpclient.NewClient(nil, 500*time.Millisecond),
		tokens:  tokens,
		log:     log,
	}
}

// Ranking fetches one page of ranking results.
func (c *AppClient) Ranking(ctx context.Context, q Query) (*Page, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain access token: %w", err)
	}

	u, err := url.Parse(c.baseURL + "/v1/illust/ranking")
	if err != nil {
		return nil, err
	}
	query := u.Query()
	query.Set("mode", q.Mode)
	query.Set("filter", "for_ios")
	if q.Date != "" {
		query.Set("date", q.Date)
	}
	if q.Offset > 0 {
		query.Set("offset", strconv.Itoa(q.Offset))
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept-Language", "en-US")
	req.Header.Set("App-OS", "ios")
	req.Header.Set("App-OS-Version", "14.6")

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("ranking request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ranking response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests ||
		strings.Contains(strings.ToLower(string(body)), "rate limit") {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ranking request returned status %d", resp.StatusCode)
	}

	var wire rankingResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode ranking response: %w", err)
	}
	if wire.Error != nil {
		return nil, fmt.Errorf("ranking api error: %s", wire.Error.Message)
	}

	page := &Page{}
	for _, illust := range wire.Illusts {
		page.Items = append(page.Items, illust.toDomain())
	}
	page.Next = parseNext(wire.NextURL)
	return page, nil
}

// parseNext extracts the follow-up query from a next_url, nil on exhaustion.
func parseNext(nextURL string) *Query {
	if nextURL == "" {
		return nil
	}
	u, err := url.Parse(nextURL)
	if err != nil {
		return nil
	}
	values := u.Query()
	next := &Query{
		Mode: values.Get("mode"),
		Date: values.Get("date"),
	}
	if offset := values.Get("offset"); offset != "" {
		next.Offset, _ = strconv.Atoi(offset)
	}
	return next
}
