package s3

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"

	"github.com/marmos91/blobgc/pkg/loop"
)

func apiErr(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: "test"}
}

func TestIsNotFoundError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"typed NoSuchKey", &types.NoSuchKey{}, true},
		{"typed NotFound", fmt.Errorf("wrapped: %w", &types.NotFound{}), true},
		{"api code", apiErr("NotFound"), true},
		{"access denied", apiErr("AccessDenied"), false},
		{"status text", errors.New("operation error S3: HeadObject, StatusCode: 404"), true},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isNotFoundError(tt.err))
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"slow down", apiErr("SlowDown"), true},
		{"internal", apiErr("InternalError"), true},
		{"access denied", apiErr("AccessDenied"), false},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"server error", errors.New("StatusCode: 503, ServiceUnavailable"), true},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.err))
		})
	}
}

func TestObserveMarksRetryableTransient(t *testing.T) {
	s := &Store{name: "remote"}

	err := s.observe("DeleteObject", "k", time.Now(), apiErr("SlowDown"))
	assert.True(t, loop.IsTransient(err))

	err = s.observe("DeleteObject", "k", time.Now(), apiErr("AccessDenied"))
	assert.Error(t, err)
	assert.False(t, loop.IsTransient(err))

	assert.NoError(t, s.observe("DeleteObject", "k", time.Now(), nil))
}
