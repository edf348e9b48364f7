package domain

import "errors"

// FailureKind classifies why a run failed. Every kind is terminal for the
// run; none is retried automatically.
type FailureKind string

const (
	// FailureNone marks a run that did not fail.
	FailureNone FailureKind = ""

	// FailureConfiguration: a required credential is missing or empty.
	// Detected before any external call.
	FailureConfiguration FailureKind = "configuration"

	// FailureSetup: dependency provisioning failed. The script is never
	// started.
	FailureSetup FailureKind = "setup"

	// FailureScript: the script exited non-zero. The run does not inspect
	// the script's internal error.
	FailureScript FailureKind = "script"
)

// Failure wraps an error with its run-failure classification.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	return string(f.Kind) + " failure: " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

// FailureKindOf extracts the failure classification from an error chain.
// Errors that carry no classification report FailureNone.
func FailureKindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return FailureNone
}
