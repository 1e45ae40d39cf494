package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "unsupported format is never retried",
			err:  fmt.Errorf("%w: application/zip", ErrUnsupportedFormat),
			want: false,
		},
		{
			name: "configuration error is never retried",
			err:  fmt.Errorf("%w: chunk overlap exceeds size", ErrConfiguration),
			want: false,
		},
		{
			name: "cancellation is never retried",
			err:  fmt.Errorf("%w: user request", ErrCancelled),
			want: false,
		},
		{
			name: "timeout is always retried",
			err:  fmt.Errorf("%w: classify call", ErrTimeout),
			want: true,
		},
		{
			name: "context deadline is retried",
			err:  context.DeadlineExceeded,
			want: true,
		},
		{
			name: "marked transient error is retried",
			err:  MarkRetryable(errors.New("connection reset")),
			want: true,
		},
		{
			name: "wrapped marked error is retried",
			err:  fmt.Errorf("%w: %w", ErrClassification, MarkRetryable(errors.New("502"))),
			want: true,
		},
		{
			name: "plain error is not retried",
			err:  errors.New("boom"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMarkRetryable_PreservesChain(t *testing.T) {
	base := fmt.Errorf("%w: upstream 429", ErrEmbedding)
	marked := MarkRetryable(base)

	if !errors.Is(marked, ErrEmbedding) {
		t.Errorf("MarkRetryable() broke the error chain")
	}
	if marked.Error() != base.Error() {
		t.Errorf("MarkRetryable() changed the message: %q vs %q", marked.Error(), base.Error())
	}
	if MarkRetryable(nil) != nil {
		t.Errorf("MarkRetryable(nil) should be nil")
	}
}
