// Package diag defines the error kinds raised across the loading and
// evaluation pipeline and the single diagnostic type used to report them.
// Every failure the engine cannot locally recover from is wrapped in an
// *Error before it unwinds, so the top level always has a kind, an
// offending identifier when one applies, and the dependency chain that
// reached the failure.
package diag

import (
	"fmt"
	"strings"

	"github.com/gridforge/gridforge/internal/ident"
)

// Kind classifies a diagnostic. Each value corresponds to one row of the
// error table in the specification.
type Kind string

const (
	SyntaxError                Kind = "SyntaxError"
	UnknownKey                 Kind = "UnknownKey"
	DuplicateKey               Kind = "DuplicateKey"
	TypeMismatch               Kind = "TypeMismatch"
	UnknownTransform           Kind = "UnknownTransform"
	DuplicateTarget            Kind = "DuplicateTarget"
	UnknownTarget              Kind = "UnknownTarget"
	UnknownProduct             Kind = "UnknownProduct"
	DependencyCycle            Kind = "DependencyCycle"
	NotConcrete                Kind = "NotConcrete"
	MissingInput               Kind = "MissingInput"
	DescriptionEvaluationError Kind = "DescriptionEvaluationError"
	InterpolationInStructural  Kind = "InterpolationInStructural"
	DuplicateProduct           Kind = "DuplicateProduct"
)

// Error is the single diagnostic type raised by the loader and evaluator.
// It is never recovered internally; it is enriched with a dependency chain
// as it unwinds and surfaced at the top level.
type Error struct {
	Kind           Kind
	Message        string
	Ident          *ident.ID
	EnvFingerprint string
	Chain          []ident.ID
	File           string
	Cause          error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Ident != nil {
		fmt.Fprintf(&sb, " (identifier: %s)", e.Ident.String())
	}
	if e.EnvFingerprint != "" {
		fmt.Fprintf(&sb, " (env: %s)", e.EnvFingerprint)
	}
	if e.File != "" {
		fmt.Fprintf(&sb, " (file: %s)", e.File)
	}
	if len(e.Chain) > 0 {
		parts := make([]string, len(e.Chain))
		for i, id := range e.Chain {
			parts[i] = id.String()
		}
		fmt.Fprintf(&sb, " (chain: %s)", strings.Join(parts, " -> "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithChainEntry returns a copy of e with id prepended to the chain,
// letting each stack frame on the way out record its own step without
// mutating a shared error value.
func (e *Error) WithChainEntry(id ident.ID) *Error {
	cp := *e
	cp.Chain = append([]ident.ID{id}, e.Chain...)
	return &cp
}

// New constructs a diagnostic of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs a diagnostic of the given kind around a cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the Kind of err if it is (or wraps) a *Error, and false
// otherwise.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return "", false
}
