package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermanentError(t *testing.T) {
	originalErr := errors.New("no candidates returned")
	wrapped := Permanent(ReasonNoImageFound, originalErr)

	var permErr *PermanentError
	assert.True(t, errors.As(wrapped, &permErr))
	assert.Equal(t, originalErr, permErr.Unwrap())
	assert.Equal(t, ReasonNoImageFound, permErr.Reason)
	assert.Contains(t, permErr.Error(), "permanent")
	assert.Contains(t, permErr.Error(), "no candidates returned")
}

func TestPermanentErrorWithoutCause(t *testing.T) {
	wrapped := Permanent(ReasonRecordMissing, nil)

	assert.Contains(t, wrapped.Error(), ReasonRecordMissing)
	assert.True(t, IsPermanent(wrapped))
	assert.False(t, IsTransient(wrapped))
}

func TestTransientError(t *testing.T) {
	originalErr := errors.New("upstream 503")
	wrapped := Transient("upstream_unavailable", originalErr)

	var transientErr *TransientError
	assert.True(t, errors.As(wrapped, &transientErr))
	assert.Equal(t, originalErr, transientErr.Unwrap())
	assert.Contains(t, transientErr.Error(), "transient")
	assert.Contains(t, transientErr.Error(), "upstream 503")
}

func TestClassificationThroughWrapping(t *testing.T) {
	inner := Permanent(ReasonMalformedImage, errors.New("not an image"))
	wrapped := fmt.Errorf("download stage: %w", inner)

	assert.True(t, IsPermanent(wrapped))
	assert.False(t, IsTransient(wrapped))
	assert.Equal(t, ReasonMalformedImage, FailureReason(wrapped))
}

func TestUnclassifiedErrorsAreTransient(t *testing.T) {
	plain := errors.New("connection reset")

	assert.True(t, IsTransient(plain))
	assert.False(t, IsPermanent(plain))
	assert.Equal(t, "", FailureReason(plain))
}

func TestNilErrorIsNeitherClass(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsPermanent(nil))
}

func TestContractErrors(t *testing.T) {
	assert.NotNil(t, ErrCatalogUnavailable)
	assert.NotNil(t, ErrVersionConflict)
	assert.NotNil(t, ErrRecordMissing)
	assert.NotNil(t, ErrInvalidLookupKey)
	assert.NotNil(t, ErrCheckpointClosed)

	assert.Contains(t, ErrCatalogUnavailable.Error(), "catalog unavailable")
	assert.Contains(t, ErrVersionConflict.Error(), "version conflict")
	assert.Contains(t, ErrRecordMissing.Error(), "record missing")
}
