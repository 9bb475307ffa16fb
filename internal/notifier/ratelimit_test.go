package notifier_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/orbitengine/pipeline/internal/notifier"
)

type notifierFunc func(ctx context.Context, userID, message string) error

func (f notifierFunc) Send(ctx context.Context, userID, message string) error {
	return f(ctx, userID, message)
}

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	limiter := notifier.NewRateLimiter(3, time.Second)
	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Reserve("user-1:email_notifications"))
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	limiter := notifier.NewRateLimiter(3, time.Second)
	for i := 0; i < 3; i++ {
		limiter.Reserve("user-1:email_notifications")
	}
	assert.False(t, limiter.Reserve("user-1:email_notifications"))
}

func TestRateLimiter_TracksKeysIndependently(t *testing.T) {
	limiter := notifier.NewRateLimiter(3, time.Second)
	for i := 0; i < 3; i++ {
		limiter.Reserve("user-1:email_notifications")
	}
	assert.True(t, limiter.Reserve("user-2:email_notifications"))
}

func TestRateLimiter_ResetsAfterWindowExpires(t *testing.T) {
	limiter := notifier.NewRateLimiter(3, 100*time.Millisecond)
	for i := 0; i < 3; i++ {
		limiter.Reserve("user-1:email_notifications")
	}
	assert.False(t, limiter.Reserve("user-1:email_notifications"))

	time.Sleep(150 * time.Millisecond)
	assert.True(t, limiter.Reserve("user-1:email_notifications"))
}

func TestRateLimiter_Remaining(t *testing.T) {
	limiter := notifier.NewRateLimiter(5, time.Second)
	assert.Equal(t, 5, limiter.Remaining("user-1:email_notifications"))

	limiter.Reserve("user-1:email_notifications")
	assert.Equal(t, 4, limiter.Remaining("user-1:email_notifications"))
}

func TestRateLimiter_Reset(t *testing.T) {
	limiter := notifier.NewRateLimiter(3, time.Second)
	for i := 0; i < 3; i++ {
		limiter.Reserve("user-1:email_notifications")
	}
	assert.False(t, limiter.Reserve("user-1:email_notifications"))

	limiter.Reset("user-1:email_notifications")
	assert.True(t, limiter.Reserve("user-1:email_notifications"))
}

func TestRateLimitedNotifier_SendBlockedAtCapacity(t *testing.T) {
	limiter := notifier.NewRateLimiter(1, time.Minute)
	sent := 0
	inner := notifierFunc(func(ctx context.Context, userID, message string) error {
		sent++
		return nil
	})
	n := notifier.NewRateLimitedNotifier(inner, limiter)

	ctx := context.Background()
	a := assert.New(t)
	a.NoError(n.Send(ctx, "user-1", "first"))
	err := n.Send(ctx, "user-1", "second")
	a.ErrorIs(err, notifier.ErrRateLimitExceeded)
	a.Equal(1, sent)
}
