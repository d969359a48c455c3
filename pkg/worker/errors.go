package worker

import "errors"

var (
	// ErrClaimFailed is returned by Start when the repository could not be
	// asked for the next job.
	ErrClaimFailed = errors.New("jobs: unable to check and start job")

	// ErrBootstrapFailed is returned by Start when the initial job could not
	// be checked or created.
	ErrBootstrapFailed = errors.New("jobs: unable to create initial job")
)
