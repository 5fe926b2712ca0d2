package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "1.2.3.4")
		if err != nil || !ok {
			t.Fatalf("request %d should pass (ok=%v err=%v)", i, ok, err)
		}
	}
	if ok, _ := rl.Allow(ctx, "1.2.3.4"); ok {
		t.Fatal("third request in window should be rejected")
	}
	if ok, _ := rl.Allow(ctx, "5.6.7.8"); !ok {
		t.Fatal("other clients have their own budget")
	}

	now = now.Add(61 * time.Second)
	if ok, _ := rl.Allow(ctx, "1.2.3.4"); !ok {
		t.Fatal("budget should reset after the window")
	}
}

func TestRedisRateLimiter(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	rl := NewRedisRateLimiter(client, 2, time.Minute, "test:")
	rl.now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 30, 0, time.UTC) }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "client")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "client")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = rl.Allow(ctx, "other")
	require.NoError(t, err)
	require.True(t, ok, "other clients have their own budget")

	mr.FastForward(2 * time.Minute)
	ok, err = rl.Allow(ctx, "client")
	require.NoError(t, err)
	require.True(t, ok)

	rl.now = func() time.Time { return time.Date(2026, 3, 2, 10, 1, 5, 0, time.UTC) }
	ok, err = rl.Allow(ctx, "client")
	require.NoError(t, err)
	require.True(t, ok, "a new window starts a new budget")
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestWithRateLimitFailureModes(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	open := WithRateLimit(failingLimiter{}, nil, true)(ok)
	rw := httptest.NewRecorder()
	open.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("fail-open should pass, got %d", rw.Code)
	}

	closed := WithRateLimit(failingLimiter{}, nil, false)(ok)
	rw = httptest.NewRecorder()
	closed.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("fail-closed should reject, got %d", rw.Code)
	}
}
