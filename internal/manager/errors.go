package manager

import "tensord/internal/registry"

// ErrModelNotFound returns an error when a requested model is neither cached
// nor present in the model directory.
func ErrModelNotFound(name string) error { return registry.ErrModelNotFound(name) }

// IsModelNotFound reports whether the error indicates a missing model.
func IsModelNotFound(err error) bool { return registry.IsModelNotFound(err) }

// dependencyUnavailableError signals a missing external dependency (the
// native backend, the history database) so the HTTP layer can return 503
// Service Unavailable instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing/failed runtime dependency.
func IsDependencyUnavailable(err error) bool {
	_, ok := err.(dependencyUnavailableError)
	return ok
}

// closedError is returned by operations on a closed Manager.
type closedError struct{}

func (closedError) Error() string { return "manager closed" }

// IsClosed reports whether err was returned because the Manager is closed.
func IsClosed(err error) bool {
	_, ok := err.(closedError)
	return ok
}
