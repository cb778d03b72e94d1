package worker

import (
	"context"
	"errors"

	"github.com/DukeRupert/hireready/internal/domain"
)

// JobHandler processes one job type. Type must match the job_type column
// written by Enqueue; Handle receives the stored JSON payload as is.
type JobHandler interface {
	Type() string
	Handle(ctx context.Context, payload []byte) error
}

// PermanentError ends a job on its first failure. Use it for payloads that
// will never succeed, such as a session that no longer exists.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether a job failure should skip the retry schedule.
// Domain errors that describe the request rather than the environment count
// as permanent without wrapping. Upstream failures, timeouts included, are
// retried unless a handler marks them otherwise.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var permErr *PermanentError
	if errors.As(err, &permErr) {
		return true
	}
	var domainErr *domain.Error
	if !errors.As(err, &domainErr) {
		return false
	}
	switch domainErr.Code {
	case domain.EINVALID, domain.ENOTFOUND, domain.EFORBIDDEN, domain.EQUOTA:
		return true
	}
	return false
}
