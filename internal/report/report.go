// Package report aggregates progress and plan output into the human-facing
// summary. Arithmetic and selection only; no new domain logic lives here.
package report

import (
	"fmt"
	"sort"
	"time"

	"badgeforge/internal/planner"
	"badgeforge/internal/progress"
)

// Target is a not-yet-earned achievement with a known next tier.
type Target struct {
	Achievement string `json:"achievement"`
	Tier        string `json:"tier"`
	Threshold   int    `json:"threshold"`
	Remaining   int    `json:"remaining"`
}

// Report is the aggregated progress summary.
type Report struct {
	Login       string              `json:"login,omitempty"`
	GeneratedAt time.Time           `json:"generated_at"`
	Entries     []progress.Progress `json:"entries"`
	Plan        planner.Plan        `json:"plan"`
	Achieved    int                 `json:"achieved"`
	Total       int                 `json:"total"`
	Percent     float64             `json:"percent"`
	NextTargets []Target            `json:"next_targets,omitempty"`
}

// Build derives the report from computed progress and its plan.
func Build(login string, now time.Time, entries []progress.Progress, plan planner.Plan) Report {
	r := Report{
		Login:       login,
		GeneratedAt: now,
		Entries:     entries,
		Plan:        plan,
		Total:       len(entries),
	}
	for _, e := range entries {
		if e.Achieved() {
			r.Achieved++
		}
		if e.Next != nil {
			r.NextTargets = append(r.NextTargets, Target{
				Achievement: e.Definition.Name,
				Tier:        e.Next.Label,
				Threshold:   e.Next.Threshold,
				Remaining:   e.Next.Remaining,
			})
		}
	}
	if r.Total > 0 {
		r.Percent = float64(r.Achieved) / float64(r.Total) * 100
	}
	// closest targets first; ties keep catalogue order (stable sort)
	sort.SliceStable(r.NextTargets, func(i, j int) bool {
		return r.NextTargets[i].Remaining < r.NextTargets[j].Remaining
	})
	if len(r.NextTargets) > 3 {
		r.NextTargets = r.NextTargets[:3]
	}
	return r
}

// TierCell renders the achieved-tier column for one entry. Unknown readings
// render as "unknown", never as zero progress.
func TierCell(e progress.Progress) string {
	if !e.Reading.Known {
		return "unknown"
	}
	if e.AchievedTier == "" {
		return "not yet achieved"
	}
	return e.AchievedTier
}

// ValueCell renders the current-count column for one entry.
func ValueCell(e progress.Progress) string {
	if !e.Reading.Known {
		if e.Reading.Reason != "" {
			return "unknown (" + e.Reading.Reason + ")"
		}
		return "unknown"
	}
	return fmt.Sprintf("%d", e.Reading.Value)
}

// NextCell renders the next-goal column for one entry.
func NextCell(e progress.Progress) string {
	if !e.Reading.Known {
		return "-"
	}
	if e.Next == nil {
		return "max achieved"
	}
	return fmt.Sprintf("%s (%d more)", e.Next.Label, e.Next.Remaining)
}
