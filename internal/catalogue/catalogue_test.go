package catalogue_test

import (
	"strings"
	"testing"

	"badgeforge/internal/catalogue"
)

func TestDefaultCatalogueIsValid(t *testing.T) {
	cat := catalogue.Default()
	if cat.Len() != 9 {
		t.Fatalf("Len() = %d, want 9", cat.Len())
	}
	wantOrder := []string{
		"Heart On Your Sleeve", "Open Sourcerer", "Starstruck", "Quickdraw",
		"Pair Extraordinaire", "Pull Shark", "Galaxy Brain", "YOLO", "Public Sponsor",
	}
	for i, d := range cat.All() {
		if d.Name != wantOrder[i] {
			t.Fatalf("definition %d = %s, want %s", i, d.Name, wantOrder[i])
		}
	}
}

func TestDefinitionLookup(t *testing.T) {
	cat := catalogue.Default()
	d, ok := cat.Definition("Pull Shark")
	if !ok {
		t.Fatal("Pull Shark not found")
	}
	if d.MaxTier().Threshold != 1024 {
		t.Fatalf("Pull Shark max tier threshold = %d, want 1024", d.MaxTier().Threshold)
	}
	if _, ok := cat.Definition("Arctic Code Vault"); ok {
		t.Fatal("retired achievement should not be in the catalogue")
	}
}

func TestNewRejectsInvalidDefinitions(t *testing.T) {
	valid := catalogue.Definition{
		Name:   "Test Badge",
		Tiers:  []catalogue.Tier{{Label: "Default", Threshold: 1}},
		Metric: catalogue.MetricMergedPullRequests,
	}
	cases := []struct {
		name    string
		mutate  func(*catalogue.Definition)
		wantErr string
	}{
		{"empty name", func(d *catalogue.Definition) { d.Name = "" }, "empty name"},
		{"no tiers", func(d *catalogue.Definition) { d.Tiers = nil }, "no tiers"},
		{"unknown metric", func(d *catalogue.Definition) { d.Metric = "commit_streak" }, "unknown metric"},
		{"zero threshold", func(d *catalogue.Definition) {
			d.Tiers = []catalogue.Tier{{Label: "Default", Threshold: 0}}
		}, "non-positive"},
		{"non-increasing", func(d *catalogue.Definition) {
			d.Tiers = []catalogue.Tier{{Label: "Default", Threshold: 4}, {Label: "Bronze", Threshold: 4}}
		}, "not strictly increasing"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := valid
			tc.mutate(&d)
			_, err := catalogue.New([]catalogue.Definition{d})
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestNewRejectsDuplicateNames(t *testing.T) {
	d := catalogue.Definition{
		Name:   "Test Badge",
		Tiers:  []catalogue.Tier{{Label: "Default", Threshold: 1}},
		Metric: catalogue.MetricMergedPullRequests,
	}
	if _, err := catalogue.New([]catalogue.Definition{d, d}); err == nil {
		t.Fatal("expected duplicate-name error")
	}
}
