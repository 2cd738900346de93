package gh_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"badgeforge/internal/gh"
	"badgeforge/internal/progress"
)

func newTestClient(t *testing.T, handler http.Handler) *gh.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := gh.New("test-token")
	c.BaseURL = srv.URL
	return c
}

func TestLoginCachesViewer(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("authorization = %q", got)
		}
		fmt.Fprint(w, `{"login":"octocat"}`)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		login, err := c.Login(ctx)
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		if login != "octocat" {
			t.Fatalf("login = %q", login)
		}
	}
	if calls != 1 {
		t.Fatalf("GET /user called %d times, want 1", calls)
	}
}

func TestCountMergedPullRequests(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"login":"octocat"}`)
	})
	mux.HandleFunc("GET /search/issues", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "type:pr author:octocat is:merged" {
			t.Errorf("q = %q", got)
		}
		fmt.Fprint(w, `{"total_count":42,"items":[]}`)
	})
	c := newTestClient(t, mux)
	n, err := c.CountMergedPullRequests(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 42 {
		t.Fatalf("count = %d, want 42", n)
	}
}

func TestCountRepositoriesDeduplicates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"login":"octocat"}`)
	})
	mux.HandleFunc("GET /search/issues", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"total_count":3,"items":[
			{"repository_url":"https://api.github.com/repos/a/one"},
			{"repository_url":"https://api.github.com/repos/a/one"},
			{"repository_url":"https://api.github.com/repos/b/two"}]}`)
	})
	c := newTestClient(t, mux)
	n, err := c.CountRepositoriesWithMergedPullRequests(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
}

func TestMaxStarsSkipsPrivateRepos(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user/repos", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"private":false,"stargazers_count":7},
			{"private":true,"stargazers_count":900},
			{"private":false,"stargazers_count":21}]`)
	})
	c := newTestClient(t, mux)
	n, err := c.MaxStarsAcrossOwnedRepositories(context.Background())
	if err != nil {
		t.Fatalf("max stars: %v", err)
	}
	if n != 21 {
		t.Fatalf("max stars = %d, want 21", n)
	}
}

func TestUnobservableMetrics(t *testing.T) {
	c := gh.New("test-token")
	ctx := context.Background()
	if _, err := c.CountCoAuthoredCommits(ctx); !errors.Is(err, progress.ErrUnobservable) {
		t.Fatalf("co-authored: %v", err)
	}
	if _, err := c.CountAcceptedDiscussionAnswers(ctx); !errors.Is(err, progress.ErrUnobservable) {
		t.Fatalf("answers: %v", err)
	}
	if _, err := c.CountUnreviewedMergedPullRequests(ctx); !errors.Is(err, progress.ErrUnobservable) {
		t.Fatalf("unreviewed: %v", err)
	}
	if _, err := c.HasActiveSponsorship(ctx); !errors.Is(err, progress.ErrUnobservable) {
		t.Fatalf("sponsorship: %v", err)
	}
}

func TestAPIErrorSurfacesStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)
	})
	c := newTestClient(t, mux)
	_, err := c.Login(context.Background())
	var apiErr *gh.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", apiErr.StatusCode)
	}
}
