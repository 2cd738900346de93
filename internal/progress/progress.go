package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"badgeforge/internal/catalogue"
)

// ErrUnobservable marks metrics the platform never exposes. A query returning
// it yields a permanently unknown reading, which is distinct from a transient
// failure and from a zero count.
var ErrUnobservable = errors.New("metric not observable via the API")

// MetricSource is the read-only query surface of the hosted service. All
// queries count toward the caller's rate-limit budget, so the computer issues
// them sequentially.
type MetricSource interface {
	CountMergedPullRequests(ctx context.Context) (int, error)
	CountRepositoriesWithMergedPullRequests(ctx context.Context) (int, error)
	MaxStarsAcrossOwnedRepositories(ctx context.Context) (int, error)
	CountCoAuthoredCommits(ctx context.Context) (int, error)
	CountAcceptedDiscussionAnswers(ctx context.Context) (int, error)
	CountUnreviewedMergedPullRequests(ctx context.Context) (int, error)
	HasActiveSponsorship(ctx context.Context) (bool, error)
}

// Reading is one observation of a metric. Known=false means the value could
// not be observed; it must never be treated as zero.
type Reading struct {
	Achievement string    `json:"achievement"`
	Value       int       `json:"value"`
	Known       bool      `json:"known"`
	Reason      string    `json:"reason,omitempty"`
	AsOf        time.Time `json:"as_of"`
}

// NextTier describes the lowest unsatisfied tier.
type NextTier struct {
	Label     string `json:"label"`
	Threshold int    `json:"threshold"`
	Remaining int    `json:"remaining"`
}

// Progress is an immutable snapshot derived from one reading. If the reading
// is unknown, AchievedTier is empty and Next is nil: no data, not zero
// progress.
type Progress struct {
	Definition   catalogue.Definition `json:"definition"`
	Reading      Reading              `json:"reading"`
	AchievedTier string               `json:"achieved_tier,omitempty"`
	Next         *NextTier            `json:"next_tier,omitempty"`
}

// Achieved reports whether any tier is satisfied.
func (p Progress) Achieved() bool { return p.AchievedTier != "" }

// MaxAchieved reports whether the highest tier is satisfied.
func (p Progress) MaxAchieved() bool { return p.Achieved() && p.Next == nil }

type queryFunc func(ctx context.Context, src MetricSource) (int, error)

// Computer derives achievement progress from a metric source. Each metric
// kind is bound to a typed query function when the computer is built, so a
// definition with an unresolvable kind fails construction instead of a later
// compute call.
type Computer struct {
	Source  MetricSource
	Now     func() time.Time
	queries map[catalogue.MetricKind]queryFunc
}

// NewComputer binds every metric kind used by the catalogue to its query.
func NewComputer(cat *catalogue.Catalogue, src MetricSource) (*Computer, error) {
	c := &Computer{
		Source:  src,
		Now:     time.Now,
		queries: dispatchTable(),
	}
	for _, d := range cat.All() {
		if _, ok := c.queries[d.Metric]; !ok {
			return nil, fmt.Errorf("no query bound for metric kind %q (achievement %s)", d.Metric, d.Name)
		}
	}
	return c, nil
}

func dispatchTable() map[catalogue.MetricKind]queryFunc {
	return map[catalogue.MetricKind]queryFunc{
		catalogue.MetricMergedPullRequests: func(ctx context.Context, s MetricSource) (int, error) {
			return s.CountMergedPullRequests(ctx)
		},
		catalogue.MetricReposWithMergedPRs: func(ctx context.Context, s MetricSource) (int, error) {
			return s.CountRepositoriesWithMergedPullRequests(ctx)
		},
		catalogue.MetricMaxRepositoryStars: func(ctx context.Context, s MetricSource) (int, error) {
			return s.MaxStarsAcrossOwnedRepositories(ctx)
		},
		catalogue.MetricCoAuthoredCommits: func(ctx context.Context, s MetricSource) (int, error) {
			return s.CountCoAuthoredCommits(ctx)
		},
		catalogue.MetricAcceptedDiscussionAnswers: func(ctx context.Context, s MetricSource) (int, error) {
			return s.CountAcceptedDiscussionAnswers(ctx)
		},
		catalogue.MetricUnreviewedMergedPRs: func(ctx context.Context, s MetricSource) (int, error) {
			return s.CountUnreviewedMergedPullRequests(ctx)
		},
		catalogue.MetricActiveSponsorship: func(ctx context.Context, s MetricSource) (int, error) {
			active, err := s.HasActiveSponsorship(ctx)
			if err != nil {
				return 0, err
			}
			if active {
				return 1, nil
			}
			return 0, nil
		},
		// The platform exposes no query for fast-closed issues; the badge can
		// be earned but never observed.
		catalogue.MetricFastClosedIssues: func(ctx context.Context, s MetricSource) (int, error) {
			return 0, ErrUnobservable
		},
	}
}

func (c *Computer) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Compute queries the source for the definition's metric and derives the tier
// snapshot. A transient query failure or an unobservable metric downgrades to
// an unknown reading carried in the result, so Compute always returns a usable
// Progress.
func (c *Computer) Compute(ctx context.Context, def catalogue.Definition) Progress {
	p := Progress{Definition: def, Reading: Reading{Achievement: def.Name, AsOf: c.now()}}
	query := c.queries[def.Metric]
	value, err := query(ctx, c.Source)
	if err != nil {
		if errors.Is(err, ErrUnobservable) {
			p.Reading.Reason = "not observable"
		} else {
			p.Reading.Reason = err.Error()
		}
		return p
	}
	p.Reading.Known = true
	p.Reading.Value = value
	for _, t := range def.Tiers {
		if value >= t.Threshold {
			p.AchievedTier = t.Label
			continue
		}
		p.Next = &NextTier{Label: t.Label, Threshold: t.Threshold, Remaining: t.Threshold - value}
		break
	}
	return p
}

// ComputeAll walks the catalogue in definition order, one blocking query at a
// time. A failure inside one achievement's query never aborts the others.
func (c *Computer) ComputeAll(ctx context.Context, cat *catalogue.Catalogue) []Progress {
	out := make([]Progress, 0, cat.Len())
	for _, def := range cat.All() {
		out = append(out, c.Compute(ctx, def))
	}
	return out
}
