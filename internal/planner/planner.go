package planner

import (
	"fmt"

	"badgeforge/internal/catalogue"
	"badgeforge/internal/progress"
)

// Bucket classifies how a not-yet-earned achievement can be pursued.
type Bucket string

const (
	BucketCompleted Bucket = "completed"
	BucketImmediate Bucket = "immediate"  // fully automatable right now
	BucketQuick     Bucket = "quick"      // manual but minutes of effort
	BucketShortTerm Bucket = "short_term" // tool-assisted, days to weeks
	BucketLongTerm  Bucket = "long_term"  // unassisted, months
)

// Buckets returns the non-completed buckets in presentation order.
func Buckets() []Bucket {
	return []Bucket{BucketImmediate, BucketQuick, BucketShortTerm, BucketLongTerm}
}

// capabilities is the static automation-capability table. It is baked in, not
// user-configurable; Quickdraw and YOLO are the two achievements the timed
// workflow engine can earn on its own.
var capabilities = map[string]Bucket{
	"Quickdraw":            BucketImmediate,
	"YOLO":                 BucketImmediate,
	"Public Sponsor":       BucketQuick,
	"Heart On Your Sleeve": BucketShortTerm,
	"Open Sourcerer":       BucketShortTerm,
	"Pair Extraordinaire":  BucketShortTerm,
	"Pull Shark":           BucketLongTerm,
	"Galaxy Brain":         BucketLongTerm,
	"Starstruck":           BucketLongTerm,
}

// Plan partitions achievement progress into buckets. Entries within a bucket
// keep the catalogue's definition order; that ordering is a display-stability
// guarantee.
type Plan struct {
	Completed []progress.Progress `json:"completed"`
	Immediate []progress.Progress `json:"immediate"`
	Quick     []progress.Progress `json:"quick"`
	ShortTerm []progress.Progress `json:"short_term"`
	LongTerm  []progress.Progress `json:"long_term"`
}

// Entries returns the entries of one bucket.
func (p Plan) Entries(b Bucket) []progress.Progress {
	switch b {
	case BucketCompleted:
		return p.Completed
	case BucketImmediate:
		return p.Immediate
	case BucketQuick:
		return p.Quick
	case BucketShortTerm:
		return p.ShortTerm
	case BucketLongTerm:
		return p.LongTerm
	}
	return nil
}

// Planner assigns achievements to earning buckets.
type Planner struct{}

// New validates that the capability table covers the whole catalogue, so
// classification is a total function.
func New(cat *catalogue.Catalogue) (*Planner, error) {
	for _, d := range cat.All() {
		if _, ok := capabilities[d.Name]; !ok {
			return nil, fmt.Errorf("no capability class for achievement %s", d.Name)
		}
	}
	return &Planner{}, nil
}

// Classify buckets every progress entry. Completed achievements always land
// in the completed bucket regardless of capability class; everything else goes
// to exactly one of the four remaining buckets. An entry whose name is
// outside the capability table is an error; New validates the catalogue, not
// the entries handed here.
func (pl *Planner) Classify(entries []progress.Progress) (Plan, error) {
	var plan Plan
	for _, e := range entries {
		if e.Achieved() {
			plan.Completed = append(plan.Completed, e)
			continue
		}
		bucket, ok := capabilities[e.Definition.Name]
		if !ok {
			return Plan{}, fmt.Errorf("no capability class for achievement %s", e.Definition.Name)
		}
		switch bucket {
		case BucketImmediate:
			plan.Immediate = append(plan.Immediate, e)
		case BucketQuick:
			plan.Quick = append(plan.Quick, e)
		case BucketShortTerm:
			plan.ShortTerm = append(plan.ShortTerm, e)
		case BucketLongTerm:
			plan.LongTerm = append(plan.LongTerm, e)
		}
	}
	return plan, nil
}
