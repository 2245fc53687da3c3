package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckAll(t *testing.T) {
	r := NewRegistry(time.Second)
	r.Register("storage", CheckerFunc(func(ctx context.Context) error { return nil }))
	r.Register("session_store", CheckerFunc(func(ctx context.Context) error { return errors.New("connection refused") }))

	assert.Equal(t, []string{"session_store", "storage"}, r.List())

	failures := r.CheckAll(context.Background())
	assert.Len(t, failures, 1)
	assert.EqualError(t, failures["session_store"], "connection refused")
}

func TestCheckAllTimesOut(t *testing.T) {
	r := NewRegistry(10 * time.Millisecond)
	r.Register("slow", CheckerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	failures := r.CheckAll(context.Background())
	assert.ErrorIs(t, failures["slow"], context.DeadlineExceeded)
}

func TestEmptyRegistryIsHealthy(t *testing.T) {
	assert.Empty(t, NewRegistry(0).CheckAll(context.Background()))
}
