package install

import (
	"errors"
	"fmt"
)

// Step names one commit point of the installation protocol.
type Step string

const (
	StepResolve Step = "resolve"
	StepPrepare Step = "prepare"
	StepInspect Step = "inspect"
	StepExtract Step = "extract"
	StepRename  Step = "rename"
	StepLink    Step = "link"
)

var (
	// ErrInvalidPackageName rejects package names that cannot be used as a
	// single directory name.
	ErrInvalidPackageName = errors.New("invalid package name")
	// ErrNotInstalled is returned by Uninstall when nothing is installed under
	// the package name.
	ErrNotInstalled = errors.New("package not installed")
)

// StepError records which step of an installation failed.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("install %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepError(step Step, err error) error {
	return &StepError{Step: step, Err: err}
}
