package catalogue

import "fmt"

// MetricKind identifies which metric-source query backs an achievement.
type MetricKind string

const (
	MetricMergedPullRequests        MetricKind = "merged_pull_requests"
	MetricReposWithMergedPRs        MetricKind = "repos_with_merged_pull_requests"
	MetricMaxRepositoryStars        MetricKind = "max_repository_stars"
	MetricFastClosedIssues          MetricKind = "fast_closed_issues"
	MetricCoAuthoredCommits         MetricKind = "coauthored_commits"
	MetricAcceptedDiscussionAnswers MetricKind = "accepted_discussion_answers"
	MetricUnreviewedMergedPRs       MetricKind = "unreviewed_merged_pull_requests"
	MetricActiveSponsorship         MetricKind = "active_sponsorship"
)

// Tier is a labeled threshold within an achievement.
type Tier struct {
	Label     string `json:"label"`
	Threshold int    `json:"threshold"`
}

// Definition describes one achievement badge. Definitions are built once at
// load time and never mutated.
type Definition struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Tiers       []Tier     `json:"tiers"`
	Metric      MetricKind `json:"metric"`
}

// MaxTier returns the highest tier of the definition.
func (d Definition) MaxTier() Tier {
	return d.Tiers[len(d.Tiers)-1]
}

// Catalogue is the fixed registry of achievement definitions. There is no
// dynamic registration; the catalogue never changes during a process lifetime.
type Catalogue struct {
	defs   []Definition
	byName map[string]int
}

var knownMetrics = map[MetricKind]bool{
	MetricMergedPullRequests:        true,
	MetricReposWithMergedPRs:        true,
	MetricMaxRepositoryStars:        true,
	MetricFastClosedIssues:          true,
	MetricCoAuthoredCommits:         true,
	MetricAcceptedDiscussionAnswers: true,
	MetricUnreviewedMergedPRs:       true,
	MetricActiveSponsorship:         true,
}

// New validates the given definitions and builds a catalogue. Tier thresholds
// must be strictly increasing within each definition; this is checked here,
// once, not per call.
func New(defs []Definition) (*Catalogue, error) {
	c := &Catalogue{byName: make(map[string]int, len(defs))}
	for i, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("definition %d has empty name", i)
		}
		if _, dup := c.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate achievement %s", d.Name)
		}
		if len(d.Tiers) == 0 {
			return nil, fmt.Errorf("achievement %s has no tiers", d.Name)
		}
		if !knownMetrics[d.Metric] {
			return nil, fmt.Errorf("achievement %s has unknown metric kind %q", d.Name, d.Metric)
		}
		prev := 0
		for j, t := range d.Tiers {
			if t.Label == "" {
				return nil, fmt.Errorf("achievement %s tier %d has empty label", d.Name, j)
			}
			if t.Threshold <= 0 {
				return nil, fmt.Errorf("achievement %s tier %s has non-positive threshold", d.Name, t.Label)
			}
			if j > 0 && t.Threshold <= prev {
				return nil, fmt.Errorf("achievement %s tier %s threshold %d not strictly increasing", d.Name, t.Label, t.Threshold)
			}
			prev = t.Threshold
		}
		c.byName[d.Name] = i
		c.defs = append(c.defs, d)
	}
	return c, nil
}

// Default returns the built-in GitHub achievement catalogue.
func Default() *Catalogue {
	c, err := New(defaultDefinitions())
	if err != nil {
		// the built-in table is validated by tests; reaching here is a bug
		panic(err)
	}
	return c
}

// Definition looks up one achievement by name.
func (c *Catalogue) Definition(name string) (Definition, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// All returns every definition in stable definition order. Callers must not
// modify the returned slice.
func (c *Catalogue) All() []Definition {
	return c.defs
}

// Len returns the number of definitions.
func (c *Catalogue) Len() int { return len(c.defs) }

func defaultDefinitions() []Definition {
	return []Definition{
		{
			Name:        "Heart On Your Sleeve",
			Description: "Submit a pull request that gets merged",
			Tiers:       []Tier{{"Default", 1}, {"Bronze", 2}, {"Silver", 4}, {"Gold", 8}},
			Metric:      MetricMergedPullRequests,
		},
		{
			Name:        "Open Sourcerer",
			Description: "Had pull requests merged in multiple public repositories",
			Tiers:       []Tier{{"Default", 1}, {"Bronze", 2}, {"Silver", 3}, {"Gold", 4}},
			Metric:      MetricReposWithMergedPRs,
		},
		{
			Name:        "Starstruck",
			Description: "Created a repository that has many stars",
			Tiers:       []Tier{{"Default", 16}, {"Bronze", 128}, {"Silver", 512}, {"Gold", 4096}},
			Metric:      MetricMaxRepositoryStars,
		},
		{
			Name:        "Quickdraw",
			Description: "Closed an issue or pull request within 5 minutes of opening",
			Tiers:       []Tier{{"Default", 1}},
			Metric:      MetricFastClosedIssues,
		},
		{
			Name:        "Pair Extraordinaire",
			Description: "Co-authored commits on merged pull requests",
			Tiers:       []Tier{{"Default", 1}, {"Bronze", 10}, {"Silver", 24}, {"Gold", 48}},
			Metric:      MetricCoAuthoredCommits,
		},
		{
			Name:        "Pull Shark",
			Description: "Opened pull requests that have been merged",
			Tiers:       []Tier{{"Default", 2}, {"Bronze", 16}, {"Silver", 128}, {"Gold", 1024}},
			Metric:      MetricMergedPullRequests,
		},
		{
			Name:        "Galaxy Brain",
			Description: "Answered discussions with accepted answers",
			Tiers:       []Tier{{"Default", 2}, {"Bronze", 8}, {"Silver", 16}, {"Gold", 32}},
			Metric:      MetricAcceptedDiscussionAnswers,
		},
		{
			Name:        "YOLO",
			Description: "Merged a pull request without a review",
			Tiers:       []Tier{{"Default", 1}},
			Metric:      MetricUnreviewedMergedPRs,
		},
		{
			Name:        "Public Sponsor",
			Description: "Sponsored an open source contributor through GitHub Sponsors",
			Tiers:       []Tier{{"Default", 1}},
			Metric:      MetricActiveSponsorship,
		},
	}
}
