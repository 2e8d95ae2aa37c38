package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseErrorWrapsUnderlying(t *testing.T) {
	t.Parallel()

	underlying := fmt.Errorf("unexpected token")
	err := NewParseError("design.yaml", 12, underlying)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, "design.yaml", parseErr.Path)
	require.Equal(t, 12, parseErr.Line)
	require.True(t, stdErrors.Is(err, underlying))
	require.Contains(t, err.Error(), "design.yaml")
}

func TestValidationErrorAggregatesFields(t *testing.T) {
	t.Parallel()

	err := NewValidationError("steps[1].depends_on", "references unknown step", nil)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "steps[1].depends_on", validationErr.Field)
	require.Contains(t, validationErr.Message, "references unknown step")
}

func TestExecutionErrorIncludesStepContext(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("command failed")
	err := NewExecutionError("build_017", underlying)

	var executionErr *ExecutionError
	require.ErrorAs(t, err, &executionErr)
	require.Equal(t, "build_017", executionErr.StepID)
	require.True(t, stdErrors.Is(err, underlying))
}

func TestTaxonomyErrorsCarryStableCodes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		code Code
		kind Kind
	}{
		{"undeclared", NewUndeclaredEntity("treatment", "acme.pipeline/Render"), "D0101", KindDesignShape},
		{"unsatisfied_self_output", NewUnsatisfiedSelfOutput("result"), "D0105", KindDesignShape},
		{"unset_param", NewUnsetParameterNoDefault("threshold"), "D0202", KindParameter},
		{"const_var", NewConstRequiredVarProvided("factor"), "D0205", KindParameter},
		{"const_context", NewConstRequiredContextProvided("factor"), "D0206", KindParameter},
		{"unavailable_context", NewUnavailableContext("Request"), "D0304", KindModelContext},
		{"unexisting_generic", NewUnexistingGeneric("T"), "D0401", KindGeneric},
		{"unsatisfied_input", NewUnsatisfiedInput("x"), "D0502", KindBuildTime},
		{"launch_not_treatment", NewLaunchTargetNotTreatment("acme.pipeline/Config"), "D0601", KindLaunch},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var engineErr *EngineError
			require.ErrorAs(t, tc.err, &engineErr)
			require.Equal(t, tc.code, engineErr.Code)
			require.Equal(t, tc.kind, engineErr.Kind)
			require.True(t, engineErr.Failure)
		})
	}
}

func TestUnsatisfiedTraitsCarriesTraitList(t *testing.T) {
	t.Parallel()

	err := NewUnsatisfiedTraits("T", []string{"Add", "Order"})

	var traitsErr *UnsatisfiedTraits
	require.ErrorAs(t, err, &traitsErr)
	require.Equal(t, "T", traitsErr.Generic)
	require.Equal(t, []string{"Add", "Order"}, traitsErr.Traits)
	require.Equal(t, Code("D0403"), traitsErr.Code)
}

func TestAlreadyIncludedBuildStepCarriesCycleIdentity(t *testing.T) {
	t.Parallel()

	err := NewAlreadyIncludedBuildStep("acme.pipeline/Loop", 7)

	var cycleErr *AlreadyIncludedBuildStep
	require.ErrorAs(t, err, &cycleErr)
	require.Equal(t, "acme.pipeline/Loop", cycleErr.DescriptorID)
	require.Equal(t, 7, cycleErr.BuildID)
}

func TestErroneousChecksAggregatesUnderlyingErrors(t *testing.T) {
	t.Parallel()

	inner := []error{NewUnsetParameterNoDefault("a"), NewUnavailableContext("Request")}
	err := NewErroneousChecks(inner)

	var checksErr *ErroneousChecks
	require.ErrorAs(t, err, &checksErr)
	require.Len(t, checksErr.Errors, 2)
}
