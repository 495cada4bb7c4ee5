// Package lifecycle holds the state machines for recap artifacts and weekly runs.
package lifecycle

import (
	"fmt"
	"regexp"
	"strings"
)

// ArtifactState is the approval state of one artifact version.
type ArtifactState string

const (
	ArtifactDraft      ArtifactState = "DRAFT"
	ArtifactApproved   ArtifactState = "APPROVED"
	ArtifactWithheld   ArtifactState = "WITHHELD"
	ArtifactSuperseded ArtifactState = "SUPERSEDED"
)

type artifactEdge struct{ from, to ArtifactState }

var artifactTransitions = map[artifactEdge]struct{}{
	{ArtifactDraft, ArtifactApproved}:      {},
	{ArtifactDraft, ArtifactWithheld}:      {},
	{ArtifactApproved, ArtifactSuperseded}: {},
}

// CanTransition reports whether an artifact may move from one state to another.
func CanTransition(from, to ArtifactState) bool {
	_, ok := artifactTransitions[artifactEdge{from, to}]
	return ok
}

// CheckTransition wraps ErrIllegalTransition with the offending pair.
func CheckTransition(from, to ArtifactState) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: artifact %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}

// RunState is the state of a weekly recap run.
type RunState string

const (
	RunEligible       RunState = "ELIGIBLE"
	RunDrafted        RunState = "DRAFTED"
	RunReviewRequired RunState = "REVIEW_REQUIRED"
	RunApproved       RunState = "APPROVED"
	RunWithheld       RunState = "WITHHELD"
	RunSuperseded     RunState = "SUPERSEDED"
)

type runEdge struct{ from, to RunState }

var runTransitions = map[runEdge]struct{}{
	{RunEligible, RunDrafted}:        {},
	{RunEligible, RunWithheld}:       {},
	{RunDrafted, RunReviewRequired}:  {},
	{RunDrafted, RunApproved}:        {},
	{RunDrafted, RunWithheld}:        {},
	{RunReviewRequired, RunApproved}: {},
	{RunReviewRequired, RunWithheld}: {},
	{RunApproved, RunSuperseded}:     {},

	// A fresh draft after an editorial withhold.
	{RunWithheld, RunDrafted}: {},
}

// CanTransitionRun reports whether a run may move from one state to another.
func CanTransitionRun(from, to RunState) bool {
	_, ok := runTransitions[runEdge{from, to}]
	return ok
}

// CheckRunTransition wraps ErrIllegalTransition with the offending pair.
func CheckRunTransition(from, to RunState) error {
	if !CanTransitionRun(from, to) {
		return fmt.Errorf("%w: run %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}

// ReasonUnspecified replaces an empty withheld reason.
const ReasonUnspecified = "UNSPECIFIED"

// stablePrefixes are reason families produced by the pipeline itself.
var stablePrefixes = []string{
	"MISSING_",
	"UNSAFE_",
	"NO_",
	"INSUFFICIENT_",
	"LOW_CONFIDENCE",
	"SENSITIVITY_",
	"INTENTIONAL_SILENCE",
	"MANUAL:",
}

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeWithheldReason trims reason and keeps recognized codes verbatim.
// Free text is collapsed and tagged OTHER so it never passes as a code.
func NormalizeWithheldReason(reason string) string {
	r := strings.TrimSpace(reason)
	if r == "" {
		return ReasonUnspecified
	}
	for _, p := range stablePrefixes {
		if strings.HasPrefix(r, p) {
			return r
		}
	}
	return "OTHER: " + whitespace.ReplaceAllString(r, " ")
}
