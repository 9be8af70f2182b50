package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/joshu-sajeev/hookqueue/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.RegisterFunc("b", func(context.Context, *models.Job) error { return nil })
	r.RegisterFunc("a", func(context.Context, *models.Job) error { return errors.New("nope") })

	assert.Equal(t, []string{"a", "b"}, r.Types())

	h, ok := r.Lookup("a")
	require.True(t, ok)
	assert.EqualError(t, h.Handle(context.Background(), &models.Job{}), "nope")

	_, ok = r.Lookup("c")
	assert.False(t, ok)

	assert.Panics(t, func() {
		r.RegisterFunc("a", func(context.Context, *models.Job) error { return nil })
	})
}

func TestClassify(t *testing.T) {
	base := errors.New("HTTP 404")

	tests := []struct {
		name string
		err  error
		want Class
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain error", err: errors.New("boom"), want: ClassRetryable},
		{name: "deadline", err: context.DeadlineExceeded, want: ClassRetryable},
		{name: "permanent", err: Permanent(base), want: ClassPermanent},
		{name: "wrapped permanent", err: fmt.Errorf("deliver: %w", Permanent(base)), want: ClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestPermanent(t *testing.T) {
	assert.NoError(t, Permanent(nil))

	base := errors.New("HTTP 410")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "HTTP 410", err.Error())
	assert.False(t, IsPermanent(base))
}
