package apperror

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("open: %w", Storage("store.open", errors.New("disk full")))

	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.NotErrorIs(t, err, ErrNetwork)
	assert.Equal(t, KindStorageUnavailable, KindOf(err))
	assert.False(t, IsRetryable(err))
}

func TestRetryableKinds(t *testing.T) {
	assert.True(t, IsRetryable(Network("api.post", errors.New("refused"))))
	assert.True(t, IsRetryable(Timeout("api.post", context.DeadlineExceeded)))
	assert.True(t, IsRetryable(Delivery("sync.sales", errors.New("status 500"))))
	assert.False(t, IsRetryable(Validation("queue.enqueue", "missing %s", "barcode")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestUnwrapKeepsCause(t *testing.T) {
	err := Timeout("api.lookup", context.DeadlineExceeded)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "api.lookup [timeout]")
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("x")))
}
