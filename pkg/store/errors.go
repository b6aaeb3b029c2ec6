package store

import "errors"

// Sentinel errors returned by store operations.
var (
	// ErrRunNotFound indicates the requested run does not exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrDuplicateReview indicates a persona review already exists for the
	// (run, persona) pair.
	ErrDuplicateReview = errors.New("persona review already exists for this run and persona")

	// ErrUnknownStep indicates a step name outside the canonical pipeline.
	ErrUnknownStep = errors.New("unknown pipeline step")

	// ErrDecisionNotFound indicates no decision row exists for the run.
	ErrDecisionNotFound = errors.New("decision not found")

	// ErrProposalNotFound indicates no proposal version exists for the run.
	ErrProposalNotFound = errors.New("proposal version not found")
)
