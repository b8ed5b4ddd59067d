package services

import "errors"

// Sentinel errors for the curation engine and storage gateway. Handlers map
// these onto HTTP statuses; callers use errors.Is.
var (
	// Resource unavailability is a hard failure; nothing works without a backend
	ErrNoBackend = errors.New("no persistence backend available")

	// The local fallback accepts writes only under an explicit development flag
	ErrReadOnlyStore = errors.New("local store is read-only")

	ErrBucketNotFound  = errors.New("harvest bucket not found")
	ErrPassageNotFound = errors.New("passage not found in expected partition")
	ErrBookNotFound    = errors.New("book not found")
	ErrArcNotFound     = errors.New("narrative arc not found")

	// Lifecycle violations; recoverable by retrying with corrected state
	ErrTerminalBucket    = errors.New("bucket is in a terminal state")
	ErrInvalidTransition = errors.New("invalid bucket state transition")
	ErrEmptyStage        = errors.New("cannot stage a bucket with no approved passages")
	ErrArcEvaluated      = errors.New("narrative arc already evaluated")
)
