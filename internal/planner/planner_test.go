package planner_test

import (
	"testing"

	"badgeforge/internal/catalogue"
	"badgeforge/internal/planner"
	"badgeforge/internal/progress"
)

func entry(name, tier string) progress.Progress {
	return progress.Progress{
		Definition:   catalogue.Definition{Name: name},
		Reading:      progress.Reading{Achievement: name, Known: true},
		AchievedTier: tier,
	}
}

func names(entries []progress.Progress) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Definition.Name)
	}
	return out
}

func TestNewCoversWholeCatalogue(t *testing.T) {
	if _, err := planner.New(catalogue.Default()); err != nil {
		t.Fatalf("capability table must cover the catalogue: %v", err)
	}
}

func TestNewRejectsUnclassifiedAchievement(t *testing.T) {
	cat, err := catalogue.New([]catalogue.Definition{{
		Name:   "Test Badge",
		Tiers:  []catalogue.Tier{{Label: "Default", Threshold: 1}},
		Metric: catalogue.MetricMergedPullRequests,
	}})
	if err != nil {
		t.Fatalf("new catalogue: %v", err)
	}
	if _, err := planner.New(cat); err == nil {
		t.Fatal("expected error for achievement outside the capability table")
	}
}

func TestClassifyBuckets(t *testing.T) {
	pl, err := planner.New(catalogue.Default())
	if err != nil {
		t.Fatalf("new planner: %v", err)
	}
	entries := []progress.Progress{
		entry("Heart On Your Sleeve", "Bronze"), // earned
		entry("Open Sourcerer", ""),
		entry("Starstruck", ""),
		entry("Quickdraw", ""),
		entry("Pair Extraordinaire", ""),
		entry("Pull Shark", ""),
		entry("Galaxy Brain", ""),
		entry("YOLO", "Default"), // earned
		entry("Public Sponsor", ""),
	}
	plan, err := pl.Classify(entries)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}

	checks := []struct {
		bucket planner.Bucket
		want   []string
	}{
		{planner.BucketCompleted, []string{"Heart On Your Sleeve", "YOLO"}},
		{planner.BucketImmediate, []string{"Quickdraw"}},
		{planner.BucketQuick, []string{"Public Sponsor"}},
		{planner.BucketShortTerm, []string{"Open Sourcerer", "Pair Extraordinaire"}},
		{planner.BucketLongTerm, []string{"Starstruck", "Pull Shark", "Galaxy Brain"}},
	}
	for _, c := range checks {
		got := names(plan.Entries(c.bucket))
		if len(got) != len(c.want) {
			t.Fatalf("%s = %v, want %v", c.bucket, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("%s = %v, want %v", c.bucket, got, c.want)
			}
		}
	}
}

func TestUnknownReadingIsNotCompleted(t *testing.T) {
	pl, err := planner.New(catalogue.Default())
	if err != nil {
		t.Fatalf("new planner: %v", err)
	}
	e := entry("Quickdraw", "")
	e.Reading.Known = false
	plan, err := pl.Classify([]progress.Progress{e})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if len(plan.Completed) != 0 {
		t.Fatal("unknown reading landed in completed")
	}
	if len(plan.Immediate) != 1 {
		t.Fatalf("immediate = %v", names(plan.Immediate))
	}
}

func TestClassifyRejectsOffCatalogueEntry(t *testing.T) {
	pl, err := planner.New(catalogue.Default())
	if err != nil {
		t.Fatalf("new planner: %v", err)
	}
	if _, err := pl.Classify([]progress.Progress{entry("Arctic Code Vault", "")}); err == nil {
		t.Fatal("entry outside the capability table must not be bucketed silently")
	}
	// unless it is already achieved, which needs no capability class
	plan, err := pl.Classify([]progress.Progress{entry("Arctic Code Vault", "Default")})
	if err != nil {
		t.Fatalf("classify achieved entry: %v", err)
	}
	if len(plan.Completed) != 1 {
		t.Fatalf("completed = %v", names(plan.Completed))
	}
}
