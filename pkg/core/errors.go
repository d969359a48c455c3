package core

import (
	"errors"
	"fmt"
)

// Argument errors
var (
	ErrInvalidArgument    = errors.New("jobs: invalid argument")
	ErrInvalidJobTypeName = fmt.Errorf("%w: job type name must start with a letter and contain only letters, digits, '_', '-', '.', ':'", ErrInvalidArgument)
	ErrJobTypeNameTooLong = fmt.Errorf("%w: job type name too long", ErrInvalidArgument)
	ErrRunnerNameTooLong  = fmt.Errorf("%w: runner name too long", ErrInvalidArgument)
	ErrParametersTooLarge = fmt.Errorf("%w: job parameters exceed size limit", ErrInvalidArgument)
	ErrInvalidItemCount   = fmt.Errorf("%w: item count out of range", ErrInvalidArgument)

	// ErrMissingFindFilter is returned by FindExistingJob when neither a due
	// date nor parameters were given.
	ErrMissingFindFilter = fmt.Errorf("%w: either a due date or parameters must be given", ErrInvalidArgument)

	// ErrMissingDeleteFilter is returned by DeleteJobs when no filter was
	// given. Deleting the whole table is never allowed.
	ErrMissingDeleteFilter = fmt.Errorf("%w: at least one of type, state or age must be given", ErrInvalidArgument)
)

// Operation errors
var (
	ErrInvalidOperation = errors.New("jobs: invalid operation")

	// ErrUncommittedChanges is returned by operations that open their own
	// transaction when the storage handle is bound to an open transaction.
	ErrUncommittedChanges = fmt.Errorf("%w: storage handle has uncommitted changes", ErrInvalidOperation)
	ErrJobNotFound        = fmt.Errorf("%w: job not found", ErrInvalidOperation)
	ErrJobNotOwned        = fmt.Errorf("%w: job not started by this runner", ErrInvalidOperation)

	// ErrNoCurrentJob is returned by progress helpers called outside of a
	// processing callback.
	ErrNoCurrentJob = fmt.Errorf("%w: no current job", ErrInvalidOperation)
)
