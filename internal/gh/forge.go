package gh

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"badgeforge/internal/workflow"
)

// CreateRepository creates an auto-initialized public repository under the
// viewer's account.
func (c *Client) CreateRepository(ctx context.Context, name, description string) (workflow.ArtifactRef, error) {
	login, err := c.Login(ctx)
	if err != nil {
		return workflow.ArtifactRef{}, err
	}
	body := map[string]any{
		"name":        name,
		"description": description,
		"private":     false,
		"auto_init":   true,
	}
	var repo struct {
		FullName string `json:"full_name"`
	}
	if err := c.do(ctx, http.MethodPost, "/user/repos", body, &repo); err != nil {
		return workflow.ArtifactRef{}, err
	}
	if repo.FullName == "" {
		repo.FullName = login + "/" + name
	}
	return workflow.ArtifactRef{Kind: workflow.ArtifactRepository, Repo: repo.FullName}, nil
}

// CreateIssue opens an issue in the given repository.
func (c *Client) CreateIssue(ctx context.Context, repo, title, body string) (workflow.ArtifactRef, error) {
	var issue struct {
		Number int `json:"number"`
	}
	payload := map[string]any{"title": title, "body": body}
	if err := c.do(ctx, http.MethodPost, "/repos/"+repo+"/issues", payload, &issue); err != nil {
		return workflow.ArtifactRef{}, err
	}
	return workflow.ArtifactRef{Kind: workflow.ArtifactIssue, Repo: repo, Number: issue.Number}, nil
}

// CommentIssue adds a comment to an issue.
func (c *Client) CommentIssue(ctx context.Context, issue workflow.ArtifactRef, body string) error {
	path := fmt.Sprintf("/repos/%s/issues/%d/comments", issue.Repo, issue.Number)
	return c.do(ctx, http.MethodPost, path, map[string]any{"body": body}, nil)
}

// CloseIssue transitions an issue to the closed state.
func (c *Client) CloseIssue(ctx context.Context, issue workflow.ArtifactRef) error {
	path := fmt.Sprintf("/repos/%s/issues/%d", issue.Repo, issue.Number)
	return c.do(ctx, http.MethodPatch, path, map[string]any{"state": "closed"}, nil)
}

// CreateBranch creates a branch off the repository's default branch head.
func (c *Client) CreateBranch(ctx context.Context, repo, branch string) (workflow.ArtifactRef, error) {
	var meta struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := c.do(ctx, http.MethodGet, "/repos/"+repo, nil, &meta); err != nil {
		return workflow.ArtifactRef{}, err
	}
	base := meta.DefaultBranch
	if base == "" {
		base = "main"
	}
	var head struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	if err := c.do(ctx, http.MethodGet, "/repos/"+repo+"/git/ref/"+url.PathEscape("heads/"+base), nil, &head); err != nil {
		return workflow.ArtifactRef{}, err
	}
	payload := map[string]any{"ref": "refs/heads/" + branch, "sha": head.Object.SHA}
	if err := c.do(ctx, http.MethodPost, "/repos/"+repo+"/git/refs", payload, nil); err != nil {
		return workflow.ArtifactRef{}, err
	}
	return workflow.ArtifactRef{Kind: workflow.ArtifactBranch, Repo: repo, Ref: branch}, nil
}

// CreateFile commits a new file to the given branch via the contents API.
func (c *Client) CreateFile(ctx context.Context, repo, branch, path, message, content string) (workflow.ArtifactRef, error) {
	payload := map[string]any{
		"message": message,
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
		"branch":  branch,
	}
	if err := c.do(ctx, http.MethodPut, "/repos/"+repo+"/contents/"+path, payload, nil); err != nil {
		return workflow.ArtifactRef{}, err
	}
	return workflow.ArtifactRef{Kind: workflow.ArtifactFile, Repo: repo, Ref: branch + ":" + path}, nil
}

// CreatePullRequest opens a pull request from head into base.
func (c *Client) CreatePullRequest(ctx context.Context, repo, head, base, title, body string) (workflow.ArtifactRef, error) {
	var pr struct {
		Number int `json:"number"`
	}
	payload := map[string]any{"title": title, "body": body, "head": head, "base": base}
	if err := c.do(ctx, http.MethodPost, "/repos/"+repo+"/pulls", payload, &pr); err != nil {
		return workflow.ArtifactRef{}, err
	}
	return workflow.ArtifactRef{Kind: workflow.ArtifactPullRequest, Repo: repo, Number: pr.Number}, nil
}

// MergePullRequest merges a pull request without requesting review.
func (c *Client) MergePullRequest(ctx context.Context, pr workflow.ArtifactRef) error {
	path := fmt.Sprintf("/repos/%s/pulls/%d/merge", pr.Repo, pr.Number)
	return c.do(ctx, http.MethodPut, path, map[string]any{"merge_method": "merge"}, nil)
}

// DeleteArtifact removes a created resource, best-effort. Deleting the
// repository removes everything it contains; artifacts inside a repository
// that is already gone clean up as no-ops.
func (c *Client) DeleteArtifact(ctx context.Context, ref workflow.ArtifactRef) error {
	switch ref.Kind {
	case workflow.ArtifactRepository:
		return c.do(ctx, http.MethodDelete, "/repos/"+ref.Repo, nil, nil)
	case workflow.ArtifactBranch:
		err := c.do(ctx, http.MethodDelete, "/repos/"+ref.Repo+"/git/refs/"+url.PathEscape("heads/"+ref.Ref), nil, nil)
		return ignoreGone(err)
	case workflow.ArtifactIssue:
		err := c.CloseIssue(ctx, ref)
		return ignoreGone(err)
	case workflow.ArtifactPullRequest:
		path := fmt.Sprintf("/repos/%s/pulls/%d", ref.Repo, ref.Number)
		err := c.do(ctx, http.MethodPatch, path, map[string]any{"state": "closed"}, nil)
		return ignoreGone(err)
	case workflow.ArtifactFile:
		// removed with its branch or repository
		return nil
	default:
		return fmt.Errorf("unknown artifact kind %q", ref.Kind)
	}
}

// ignoreGone treats 404/410 as success: the containing repository was already
// deleted, which is the desired end state.
func ignoreGone(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusGone {
			return nil
		}
	}
	return err
}
