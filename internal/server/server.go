// Package server exposes a read-only status API over the progress model,
// planner, and run journal. Workflows are deliberately not triggerable here:
// they perform irreversible actions and stay CLI-only.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"badgeforge/internal/catalogue"
	"badgeforge/internal/journal"
	"badgeforge/internal/planner"
	"badgeforge/internal/progress"
	"badgeforge/internal/report"
)

// Config for the HTTP API handler.
type Config struct {
	Catalogue *catalogue.Catalogue
	Computer  *progress.Computer
	Planner   *planner.Planner
	Journal   *journal.Journal // optional; runs endpoint 404s without it
	Login     string
	BasePath  string
	APIKey    string // optional static key; empty disables auth
	Log       *slog.Logger
	Now       func() time.Time
}

// New returns an HTTP handler exposing the status API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(apiKeyMiddleware(cfg.APIKey, cfg.Log))
	hcfg := huma.DefaultConfig("Badgeforge Status API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerProgress(group, cfg)
	registerPlan(group, cfg)
	registerRuns(group, cfg)

	return router, nil
}

// apiKeyMiddleware rejects requests without the configured key. An empty key
// disables the check for local use.
func apiKeyMiddleware(key string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key != "" && r.Header.Get("X-API-Key") != key {
				log.Warn("rejected request without valid api key", "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid or missing api key"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerProgress(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "progress",
		Method:      http.MethodGet,
		Path:        "/progress",
		Summary:     "Achievement progress report",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body report.Report `json:"body"`
	}, error) {
		entries := cfg.Computer.ComputeAll(ctx, cfg.Catalogue)
		plan, err := cfg.Planner.Classify(entries)
		if err != nil {
			return nil, huma.Error500InternalServerError("classify progress", err)
		}
		r := report.Build(cfg.Login, cfg.Now(), entries, plan)
		return &struct {
			Body report.Report `json:"body"`
		}{Body: r}, nil
	})
}

func registerPlan(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "plan",
		Method:      http.MethodGet,
		Path:        "/plan",
		Summary:     "Earning plan buckets",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body planner.Plan `json:"body"`
	}, error) {
		entries := cfg.Computer.ComputeAll(ctx, cfg.Catalogue)
		plan, err := cfg.Planner.Classify(entries)
		if err != nil {
			return nil, huma.Error500InternalServerError("classify progress", err)
		}
		return &struct {
			Body planner.Plan `json:"body"`
		}{Body: plan}, nil
	})
}

func registerRuns(api huma.API, cfg Config) {
	type runsQuery struct {
		Limit int `query:"limit" default:"50" minimum:"1" maximum:"500"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "runs",
		Method:      http.MethodGet,
		Path:        "/runs",
		Summary:     "Recorded workflow runs",
	}, func(ctx context.Context, input *runsQuery) (*struct {
		Body struct {
			Items []journal.RunRecord `json:"items"`
		} `json:"body"`
	}, error) {
		if cfg.Journal == nil {
			return nil, huma.Error404NotFound("run journal disabled")
		}
		items, err := cfg.Journal.ListRuns(ctx, input.Limit)
		if err != nil {
			return nil, huma.Error500InternalServerError("list runs", err)
		}
		out := &struct {
			Body struct {
				Items []journal.RunRecord `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = items
		return out, nil
	})
}
