package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(CodeDependency, cause, "fetch gateway subscription")

	assert.Equal(t, CodeDependency, err.Code())
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "DEPENDENCY_ERROR")
}

func TestAsUnwrapsThroughChain(t *testing.T) {
	inner := New(CodeStateConflict, "subscription already cancelled")
	outer := fmt.Errorf("apply event: %w", inner)

	typed := As(outer)
	require.NotNil(t, typed)
	assert.Equal(t, CodeStateConflict, typed.Code())
}

func TestGatewayUnavailableIsRetryable(t *testing.T) {
	err := New(CodeGatewayUnavailable, "gateway credentials missing")
	assert.True(t, err.Retryable())

	meta := MetadataFor(CodeGatewayUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, meta.HTTPStatus)
}

func TestValidationIsNotRetryable(t *testing.T) {
	assert.False(t, New(CodeValidation, "bad payload").Retryable())
}

func TestMetadataFallsBackToInternal(t *testing.T) {
	meta := MetadataFor(Code("UNKNOWN"))
	assert.Equal(t, http.StatusInternalServerError, meta.HTTPStatus)
}

func TestDumpCollectsChain(t *testing.T) {
	err := Wrap(CodeInternal, fmt.Errorf("boom"), "persist transaction")
	dump := Dump(err)
	assert.Equal(t, CodeInternal, dump.Code)
	assert.Len(t, dump.Chain, 2)
}
