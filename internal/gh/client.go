// Package gh is a minimal GitHub REST client covering exactly the queries and
// lifecycle calls the tracker needs. It implements progress.MetricSource and
// workflow.Forge.
package gh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"badgeforge/internal/progress"
)

const defaultBaseURL = "https://api.github.com"

// Client is an authenticated GitHub API client.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration

	login string // cached viewer login
}

// New creates a client with sane defaults.
func New(token string) *Client {
	return &Client{
		BaseURL: defaultBaseURL,
		Token:   token,
		Timeout: 15 * time.Second,
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	base := c.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	client := c.HTTPClient
	if client == nil {
		timeout := c.Timeout
		if timeout == 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Login returns the authenticated user's login, cached after the first call.
func (c *Client) Login(ctx context.Context) (string, error) {
	if c.login != "" {
		return c.login, nil
	}
	var u struct {
		Login string `json:"login"`
	}
	if err := c.do(ctx, http.MethodGet, "/user", nil, &u); err != nil {
		return "", err
	}
	if u.Login == "" {
		return "", fmt.Errorf("empty login in /user response")
	}
	c.login = u.Login
	return c.login, nil
}

type searchResult struct {
	TotalCount int `json:"total_count"`
	Items      []struct {
		RepositoryURL string `json:"repository_url"`
	} `json:"items"`
}

func (c *Client) searchIssues(ctx context.Context, query string, perPage int) (searchResult, error) {
	var res searchResult
	path := fmt.Sprintf("/search/issues?q=%s&per_page=%d", url.QueryEscape(query), perPage)
	err := c.do(ctx, http.MethodGet, path, nil, &res)
	return res, err
}

// CountMergedPullRequests counts pull requests authored by the viewer that
// were merged, via the issue search API.
func (c *Client) CountMergedPullRequests(ctx context.Context) (int, error) {
	login, err := c.Login(ctx)
	if err != nil {
		return 0, err
	}
	res, err := c.searchIssues(ctx, fmt.Sprintf("type:pr author:%s is:merged", login), 1)
	if err != nil {
		return 0, err
	}
	return res.TotalCount, nil
}

// CountRepositoriesWithMergedPullRequests counts distinct repositories among
// the viewer's merged pull requests. Only the first result page is inspected;
// the search API caps item access, so this is a lower bound beyond 100 PRs.
func (c *Client) CountRepositoriesWithMergedPullRequests(ctx context.Context) (int, error) {
	login, err := c.Login(ctx)
	if err != nil {
		return 0, err
	}
	res, err := c.searchIssues(ctx, fmt.Sprintf("type:pr author:%s is:merged", login), 100)
	if err != nil {
		return 0, err
	}
	repos := map[string]bool{}
	for _, item := range res.Items {
		if item.RepositoryURL != "" {
			repos[item.RepositoryURL] = true
		}
	}
	return len(repos), nil
}

// MaxStarsAcrossOwnedRepositories walks the viewer's owned repositories and
// returns the highest public stargazer count.
func (c *Client) MaxStarsAcrossOwnedRepositories(ctx context.Context) (int, error) {
	maxStars := 0
	for page := 1; ; page++ {
		var repos []struct {
			Private         bool `json:"private"`
			StargazersCount int  `json:"stargazers_count"`
		}
		path := fmt.Sprintf("/user/repos?type=owner&per_page=100&page=%d", page)
		if err := c.do(ctx, http.MethodGet, path, nil, &repos); err != nil {
			return 0, err
		}
		for _, r := range repos {
			if !r.Private && r.StargazersCount > maxStars {
				maxStars = r.StargazersCount
			}
		}
		if len(repos) < 100 {
			return maxStars, nil
		}
	}
}

// The remaining metrics are not exposed by the API in any form the tracker
// can query cheaply; they are reported as unobservable, never as zero.

func (c *Client) CountCoAuthoredCommits(ctx context.Context) (int, error) {
	return 0, fmt.Errorf("co-authored commits require per-repository commit analysis: %w", progress.ErrUnobservable)
}

func (c *Client) CountAcceptedDiscussionAnswers(ctx context.Context) (int, error) {
	return 0, fmt.Errorf("accepted-answer data is not exposed by the REST API: %w", progress.ErrUnobservable)
}

func (c *Client) CountUnreviewedMergedPullRequests(ctx context.Context) (int, error) {
	return 0, fmt.Errorf("review-state filtering requires per-PR analysis: %w", progress.ErrUnobservable)
}

func (c *Client) HasActiveSponsorship(ctx context.Context) (bool, error) {
	return false, fmt.Errorf("sponsorship data is private: %w", progress.ErrUnobservable)
}
