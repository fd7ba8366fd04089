package loader

import (
	"fmt"
	"strings"
)

// NotFoundError is returned when no resolution candidate of a specifier exists.
type NotFoundError struct {
	Specifier string
	Resolved  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Module not found: %s (resolved: %s)", e.Specifier, e.Resolved)
}

// FetchError is returned when the provider fails to read a module.
type FetchError struct {
	Path string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Path, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// TransformError is returned when a module source can not be transformed.
type TransformError struct {
	Path string
	Err  error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s: %v", e.Path, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// ExecError is returned when the code of a module throws.
type ExecError struct {
	Path    string
	Message string
	Stack   string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("execute %s: %s", e.Path, e.Message)
}

// DependencyError is thrown inside module code when a required dependency was not loaded.
type DependencyError struct {
	Specifier  string
	Path       string
	Candidates []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("Dependency '%s' of '%s' not loaded. Tried: %s", e.Specifier, e.Path, strings.Join(e.Candidates, ", "))
}
