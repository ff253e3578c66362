package repo

import (
	"errors"
	"fmt"
)

// RepoError reports a violated branch invariant.
type RepoError struct {
	// Code identifies the error category.
	Code RepoErrorCode

	// Branch is the branch involved, if any.
	Branch string

	// Message is a human-readable description.
	Message string
}

// RepoErrorCode categorizes repo errors.
type RepoErrorCode string

const (
	// ErrCodeBranchNotFound indicates a branch name that does not exist.
	ErrCodeBranchNotFound RepoErrorCode = "BRANCH_NOT_FOUND"

	// ErrCodeBranchExists indicates CreateBranch of an existing name.
	ErrCodeBranchExists RepoErrorCode = "BRANCH_EXISTS"

	// ErrCodeRemoveCurrentBranch indicates RemoveBranch of the checked-out
	// branch.
	ErrCodeRemoveCurrentBranch RepoErrorCode = "REMOVE_CURRENT_BRANCH"

	// ErrCodeInvalidBranchName indicates an empty branch name.
	ErrCodeInvalidBranchName RepoErrorCode = "INVALID_BRANCH_NAME"

	// ErrCodeInvalidSteps indicates a negative GoBack/GoForward step count.
	ErrCodeInvalidSteps RepoErrorCode = "INVALID_STEPS"
)

// Error implements the error interface.
func (e *RepoError) Error() string {
	if e.Branch != "" {
		return fmt.Sprintf("%s: %s (branch=%s)", e.Code, e.Message, e.Branch)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HasCode reports whether err is a RepoError with the given code.
func HasCode(err error, code RepoErrorCode) bool {
	var re *RepoError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsBranchNotFound returns true if err reports a missing branch.
func IsBranchNotFound(err error) bool {
	return HasCode(err, ErrCodeBranchNotFound)
}

// IsBranchExists returns true if err reports a duplicate branch.
func IsBranchExists(err error) bool {
	return HasCode(err, ErrCodeBranchExists)
}

func newError(code RepoErrorCode, branch, format string, args ...any) *RepoError {
	return &RepoError{Code: code, Branch: branch, Message: fmt.Sprintf(format, args...)}
}
