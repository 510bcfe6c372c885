package lrms

import "errors"

// ErrMisconfiguredEnvironment means a required batch-system environment
// variable was absent (spec.md §7).
var ErrMisconfiguredEnvironment = errors.New("lrms: misconfigured environment")

// ErrAllocationTooSmall means |nodes|*cores_per_node is less than the
// cores requested in the agent configuration (spec.md §4.1).
var ErrAllocationTooSmall = errors.New("lrms: allocation too small")

func missingVar(name string) error {
	return &MissingVarError{Name: name}
}

// MissingVarError names the specific environment variable that was
// required but unset, wrapping ErrMisconfiguredEnvironment.
type MissingVarError struct {
	Name string
}

func (e *MissingVarError) Error() string {
	return "lrms: required environment variable " + e.Name + " is not set"
}

func (e *MissingVarError) Unwrap() error {
	return ErrMisconfiguredEnvironment
}
