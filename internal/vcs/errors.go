package vcs

import "errors"

// Common errors returned by VCS operations.
//
// These errors can be checked using errors.Is() for proper error handling:
//
//	if errors.Is(err, vcs.ErrNotInVCS) {
//	    // Handle case where the backup directory is not a repository
//	}
var (
	// ErrNotInVCS is returned when the operation requires being inside
	// a repository but none was found.
	ErrNotInVCS = errors.New("not in a VCS repository")

	// ErrVCSNotAvailable is returned when the git binary is not
	// installed or not in PATH.
	ErrVCSNotAvailable = errors.New("VCS binary not available")

	// ErrNoRemote is returned when an operation requires a remote
	// but none is configured.
	ErrNoRemote = errors.New("no remote configured")

	// ErrNothingToCommit is returned when a commit is requested but
	// nothing is staged.
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrPushRejected is returned when a push is rejected by the remote,
	// typically due to non-fast-forward updates.
	ErrPushRejected = errors.New("push rejected by remote")

	// ErrTimeout is returned when a VCS operation exceeds its timeout.
	ErrTimeout = errors.New("operation timed out")
)

// IsRetryable returns true if the error is likely to succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Timeouts are often transient
	if errors.Is(err, ErrTimeout) {
		return true
	}

	// Push rejections might succeed after a pull
	return errors.Is(err, ErrPushRejected)
}

// IsFatal returns true if the error indicates a non-recoverable state
// that requires manual intervention or re-initialization.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	// Not in VCS means we can't do anything
	if errors.Is(err, ErrNotInVCS) {
		return true
	}

	// Binary not available means we can't execute commands
	return errors.Is(err, ErrVCSNotAvailable)
}
