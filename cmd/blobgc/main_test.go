package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/marmos91/blobgc/pkg/gc"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"plain", errors.New("boom"), 1},
		{"integrity", fmt.Errorf("merge: %w", &gc.IntegrityError{Primary: 1, Secondary: 2}), 2},
		{"sentinel", gc.ErrIntegrityViolation, 2},
		{"clock skew", gc.ErrClockSkew, 1},
		{"blobs left behind", fmt.Errorf("prune_contents: %w: 1 content ids", gc.ErrBlobsLeft), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
