// Package twitter posts tweets through the v2 API with OAuth 1.0a
// user-context signing.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dghubble/oauth1"

	"marketcast/internal/platform"
)

const defaultBaseURL = "https://api.twitter.com"

type Config struct {
	APIKey            string
	APIKeySecret      string
	AccessToken       string
	AccessTokenSecret string

	// BaseURL overrides the API host (tests).
	BaseURL string
}

type Client struct {
	http    *http.Client
	baseURL string
}

func New(cfg Config) (*Client, error) {
	for _, f := range []struct{ name, v string }{
		{"api key", cfg.APIKey},
		{"api key secret", cfg.APIKeySecret},
		{"access token", cfg.AccessToken},
		{"access token secret", cfg.AccessTokenSecret},
	} {
		if strings.TrimSpace(f.v) == "" {
			return nil, fmt.Errorf("twitter %s is empty", f.name)
		}
	}

	oc := oauth1.NewConfig(cfg.APIKey, cfg.APIKeySecret)
	token := oauth1.NewToken(cfg.AccessToken, cfg.AccessTokenSecret)
	hc := oc.Client(oauth1.NoContext, token)
	hc.Timeout = 15 * time.Second

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{http: hc, baseURL: baseURL}, nil
}

func (c *Client) Name() string { return platform.NameTwitter }

type tweetRequest struct {
	Text string `json:"text"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// Post creates one tweet and returns its ID.
func (c *Client) Post(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(tweetRequest{Text: text})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	// Bound error-body reads; Twitter error payloads are small.
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
		var tr tweetResponse
		if err := json.Unmarshal(raw, &tr); err != nil {
			return "", fmt.Errorf("decoding tweet response: %w", err)
		}
		if tr.Data.ID == "" {
			return "", errors.New("tweet response missing post id")
		}
		return tr.Data.ID, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: %s", platform.ErrRateLimited, apiErrSnippet(raw))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: status %d: %s", platform.ErrAuth, resp.StatusCode, apiErrSnippet(raw))
	default:
		return "", fmt.Errorf("twitter api status %d: %s", resp.StatusCode, apiErrSnippet(raw))
	}
}

func apiErrSnippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "(empty body)"
	}
	return s
}
