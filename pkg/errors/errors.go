// Package errors defines the engine's stable error taxonomy.
//
// Every taxonomy constructor here returns an *EngineError (or a type
// embedding one) carrying a Kind (the taxonomy bucket) and a Code (a "D####"
// identifier); ParseError, ValidationError and ExecutionError are separate
// types without a Code. Codes are
// assigned once and never reassigned or reused by a later release: external
// tooling is allowed to switch on them.
package errors

import (
	"fmt"
)

// Kind buckets an EngineError by the stage that detects it.
type Kind string

const (
	KindDesignShape   Kind = "design_shape"
	KindParameter     Kind = "parameter"
	KindModelContext  Kind = "model_context"
	KindGeneric       Kind = "generic"
	KindBuildTime     Kind = "build_time"
	KindLaunch        Kind = "launch"
	KindParse         Kind = "parse"
	KindExecution     Kind = "execution"
	KindDistribution  Kind = "distribution"
)

// Code is a stable, externally-visible identifier ("D0001", ...). Once
// assigned to a constructor below it must never be reassigned.
type Code string

// EngineError is the concrete type behind every constructor in this package.
type EngineError struct {
	Code    Code
	Kind    Kind
	Subject string // descriptor id, step/build id, field name: whatever identifies the offending entity
	Message string
	Err     error
	// Failure marks a terminal error; non-failure errors are
	// informational/partial and may still let a Status accumulate a value.
	Failure bool
}

func (e *EngineError) Error() string {
	if e == nil {
		return ""
	}
	if e.Subject != "" {
		return fmt.Sprintf("%s [%s]: %s: %s", e.Kind, e.Code, e.Subject, e.Message)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Code, e.Message)
}

// Unwrap exposes the underlying error, if any.
func (e *EngineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newErr(code Code, kind Kind, subject, message string, failure bool, err error) *EngineError {
	return &EngineError{Code: code, Kind: kind, Subject: subject, Message: message, Failure: failure, Err: err}
}

// --- Design-shape errors (D01xx) ---------------------------------------------

func NewUndeclaredEntity(kindName, subject string) error {
	return newErr("D0101", KindDesignShape, subject, fmt.Sprintf("undeclared %s", kindName), true, nil)
}

func NewUnmatchedConnectionType(from, to, reason string) error {
	return newErr("D0102", KindDesignShape, from+" -> "+to, "connection type mismatch: "+reason, true, nil)
}

func NewUndefinedSelfIO(name string) error {
	return newErr("D0103", KindDesignShape, name, "undefined Self input/output", true, nil)
}

func NewMissingSelfIO(name string) error {
	return newErr("D0104", KindDesignShape, name, "missing Self input/output declaration", true, nil)
}

func NewUnsatisfiedSelfOutput(name string) error {
	return newErr("D0105", KindDesignShape, name, "Self-output not fed by any connection", true, nil)
}

func NewOverloadedSelfOutput(name string) error {
	return newErr("D0106", KindDesignShape, name, "Self-output fed by more than one connection", true, nil)
}

// --- Parameter errors (D02xx) -------------------------------------------------

func NewUnexistingParameter(subject string) error {
	return newErr("D0201", KindParameter, subject, "parameter does not exist on this descriptor", true, nil)
}

func NewUnsetParameterNoDefault(subject string) error {
	return newErr("D0202", KindParameter, subject, "parameter unset and has no default", true, nil)
}

func NewMultipleAssignments(subject string) error {
	return newErr("D0203", KindParameter, subject, "parameter assigned more than once", true, nil)
}

func NewParameterDatatypeMismatch(subject, expected, got string) error {
	return newErr("D0204", KindParameter, subject, fmt.Sprintf("expected %s, got %s", expected, got), true, nil)
}

func NewConstRequiredVarProvided(subject string) error {
	return newErr("D0205", KindParameter, subject, "const parameter fed by a variable value", true, nil)
}

func NewConstRequiredContextProvided(subject string) error {
	return newErr("D0206", KindParameter, subject, "const parameter fed by a context reference", true, nil)
}

func NewModelInstantiationNonConst(subject string) error {
	return newErr("D0207", KindParameter, subject, "model instantiation parameter fed a non-const value", true, nil)
}

func NewFunctionArityMismatch(subject string, want, got int) error {
	return newErr("D0208", KindParameter, subject, fmt.Sprintf("expected %d arguments, got %d", want, got), true, nil)
}

// --- Model / context errors (D03xx) -------------------------------------------

func NewUnmatchingModelType(subject, declared, given string) error {
	return newErr("D0301", KindModelContext, subject, fmt.Sprintf("declared base %s, given %s", declared, given), true, nil)
}

func NewUnexistingParametricModel(subject string) error {
	return newErr("D0302", KindModelContext, subject, "parametric model does not exist", true, nil)
}

func NewUnsetParametricModel(subject string) error {
	return newErr("D0303", KindModelContext, subject, "parametric model left unset", true, nil)
}

func NewUnavailableContext(subject string) error {
	return newErr("D0304", KindModelContext, subject, "context not available at this scope", true, nil)
}

// --- Generic errors (D04xx) ---------------------------------------------------

func NewUnexistingGeneric(subject string) error {
	return newErr("D0401", KindGeneric, subject, "generic name does not exist on this descriptor", true, nil)
}

func NewUndefinedGenericAtBuild(subject string) error {
	return newErr("D0402", KindGeneric, subject, "generic left undefined at build time", true, nil)
}

// UnsatisfiedTraits reports traits a generic's resolved concrete type fails to satisfy.
type UnsatisfiedTraits struct {
	*EngineError
	Generic string
	Traits  []string
}

func NewUnsatisfiedTraits(generic string, traits []string) error {
	base := newErr("D0403", KindGeneric, generic, fmt.Sprintf("resolved type does not satisfy traits %v", traits), true, nil)
	return &UnsatisfiedTraits{EngineError: base, Generic: generic, Traits: traits}
}

// --- Build-time errors (D05xx) ------------------------------------------------

// AlreadyIncludedBuildStep reports a cycle in the instantiation stack.
type AlreadyIncludedBuildStep struct {
	*EngineError
	DescriptorID string
	BuildID      int
}

func NewAlreadyIncludedBuildStep(descriptorID string, buildID int) error {
	base := newErr("D0501", KindBuildTime, descriptorID, "already included build step (cycle in instantiation)", true, nil)
	return &AlreadyIncludedBuildStep{EngineError: base, DescriptorID: descriptorID, BuildID: buildID}
}

func NewUnsatisfiedInput(subject string) error {
	return newErr("D0502", KindBuildTime, subject, "input has no feeding connection at runtime start", true, nil)
}

// --- Launch errors (D06xx) -----------------------------------------------------

func NewLaunchTargetNotTreatment(subject string) error {
	return newErr("D0601", KindLaunch, subject, "launch target is not a treatment", true, nil)
}

func NewLaunchParameterInvalid(subject, reason string) error {
	return newErr("D0602", KindLaunch, subject, "invalid launch parameter: "+reason, true, nil)
}

// ErroneousChecks is returned by launch() when the static checker accumulated
// one or more errors.
type ErroneousChecks struct {
	*EngineError
	Errors []error
}

func NewErroneousChecks(errs []error) error {
	base := newErr("D0001", KindLaunch, "", fmt.Sprintf("%d check error(s)", len(errs)), true, nil)
	return &ErroneousChecks{EngineError: base, Errors: errs}
}

// Error lists every accumulated check error under the summary line.
func (e *ErroneousChecks) Error() string {
	s := e.EngineError.Error()
	for _, err := range e.Errors {
		s += "\n\t" + err.Error()
	}
	return s
}

// --- Distribution errors (D07xx) -----------------------------------------------

func NewDistributionHandshakeRejected(subject string) error {
	return newErr("D0701", KindDistribution, subject, "remote worker rejected distribution handshake", true, nil)
}

func NewDistributionKeyMismatch(subject string) error {
	return newErr("D0702", KindDistribution, subject, "echoed distribution key does not match the one sent", true, nil)
}

func NewDistributionLaunchFailed(subject, reason string) error {
	return newErr("D0703", KindDistribution, subject, "remote launch failed: "+reason, true, nil)
}

func NewDistributionFused(subject string) error {
	return newErr("D0704", KindDistribution, subject, "distribution engine is fused after an unrecoverable failure", true, nil)
}

func NewDistributionNoAddress(subject string) error {
	return newErr("D0705", KindDistribution, subject, "no candidate address accepted the connection", true, nil)
}

func NewDistributionBatchTagMismatch(subject, expected, got string) error {
	return newErr("D0706", KindDistribution, subject, fmt.Sprintf("expected batch tag %s, got %s", expected, got), true, nil)
}

// --- Parse / validation / execution errors ---

// ParseError represents a YAML parsing failure with optional line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures descriptor/design validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ExecutionError represents a runtime failure encountered while building or
// running a track.
type ExecutionError struct {
	StepID string
	Err    error
}

// NewExecutionError constructs an ExecutionError.
func NewExecutionError(stepID string, err error) error {
	return &ExecutionError{StepID: stepID, Err: err}
}

func (e *ExecutionError) Error() string {
	if e == nil {
		return ""
	}
	if e.StepID != "" {
		return fmt.Sprintf("execution error on step %s: %v", e.StepID, e.Err)
	}
	return fmt.Sprintf("execution error: %v", e.Err)
}

// Unwrap exposes the root error.
func (e *ExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
