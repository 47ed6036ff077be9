package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound          = errors.New("entity not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNoProviders       = errors.New("no providers selected")
	ErrNoPrompts         = errors.New("no prompts given")
	ErrNoJobIDs          = errors.New("no job ids given")
	ErrUnknownProvider   = errors.New("unknown provider")
	ErrUnsupportedMethod = errors.New("submission method not supported by provider")
)

// ErrorKind classifies where in the batch pipeline a failure happened.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindSubmission     ErrorKind = "submission"
	KindReconciliation ErrorKind = "reconciliation"
	KindTransport      ErrorKind = "transport"
	KindParse          ErrorKind = "parse"
	KindProvider       ErrorKind = "provider"
)

// ProviderError is a structured failure carried through the batch pipeline.
// Engines and adapters pass the value around instead of ad hoc strings; it is
// rendered to a display string only at the final boundary.
type ProviderError struct {
	Kind           ErrorKind
	Message        string
	ProviderDetail string
}

func (e *ProviderError) Error() string {
	if e.ProviderDetail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.ProviderDetail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Render produces the human-readable diagnostic stored in a job's result.
func (e *ProviderError) Render() string {
	if e == nil {
		return ""
	}
	if e.ProviderDetail != "" {
		return fmt.Sprintf("%s error: %s [%s]", e.Kind, e.Message, e.ProviderDetail)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// WrapProviderError converts an arbitrary error into a ProviderError,
// preserving an existing one unchanged.
func WrapProviderError(kind ErrorKind, err error) *ProviderError {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{Kind: kind, Message: err.Error()}
}
