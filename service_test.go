package sessionguard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T, mutate func(*Config)) (*miniredis.Miniredis, *Service, *fakeClock) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := defaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	if mutate != nil {
		mutate(&cfg)
	}

	clock := newFakeClock()
	svc, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(svc.Close)

	return mr, svc, clock
}

func requestCtx(ip, userAgent string) context.Context {
	ctx := context.Background()
	if ip != "" {
		ctx = WithClientIP(ctx, ip)
	}
	if userAgent != "" {
		ctx = WithUserAgent(ctx, userAgent)
	}
	return ctx
}

func TestCreateAndValidateRoundTrip(t *testing.T) {
	_, svc, _ := newTestService(t, nil)
	ctx := requestCtx("203.0.113.1", "Mozilla/5.0 Chrome")

	token, err := svc.Create(ctx, 42, false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(token) != 64 {
		t.Fatalf("expected 64-char token, got %d chars", len(token))
	}

	snap, err := svc.Validate(ctx, token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if snap.UserID != 42 {
		t.Fatalf("expected user 42, got %d", snap.UserID)
	}
	if snap.CSRFToken == "" {
		t.Fatal("expected a CSRF token on the session")
	}
	if snap.PrivilegeLevel != PrivilegeUser {
		t.Fatalf("expected default privilege %q, got %q", PrivilegeUser, snap.PrivilegeLevel)
	}
	if snap.RequestCount != 1 {
		t.Fatalf("expected request count 1, got %d", snap.RequestCount)
	}
	if snap.RotatedToken != "" {
		t.Fatalf("expected no rotation on a fresh session, got %q", snap.RotatedToken)
	}
}

func TestCreateRequiresUser(t *testing.T) {
	_, svc, _ := newTestService(t, nil)

	if _, err := svc.Create(context.Background(), 0, false); !errors.Is(err, ErrUserRequired) {
		t.Fatalf("expected ErrUserRequired, got %v", err)
	}
	if _, err := svc.Create(context.Background(), -1, false); !errors.Is(err, ErrUserRequired) {
		t.Fatalf("expected ErrUserRequired for negative id, got %v", err)
	}
}

func TestCreateDistinctCSRFPerSession(t *testing.T) {
	_, svc, _ := newTestService(t, nil)
	ctx := requestCtx("203.0.113.1", "Mozilla/5.0 Chrome")

	t1, err := svc.Create(ctx, 42, false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t2, err := svc.Create(ctx, 42, false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	s1, err := svc.Validate(ctx, t1)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	s2, err := svc.Validate(ctx, t2)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if s1.CSRFToken == s2.CSRFToken {
		t.Fatal("expected distinct CSRF tokens per session")
	}
}

func TestSessionLimitEvictsOldest(t *testing.T) {
	_, svc, clock := newTestService(t, func(c *Config) {
		c.Hardening.MaxSessionsPerUser = 2
	})
	ctx := requestCtx("203.0.113.1", "Mozilla/5.0 Chrome")

	first, err := svc.Create(ctx, 42, false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	clock.Advance(time.Minute)

	second, err := svc.Create(ctx, 42, false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	clock.Advance(time.Minute)

	third, err := svc.Create(ctx, 42, false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := svc.Validate(ctx, first); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected oldest session evicted, got %v", err)
	}
	if _, err := svc.Validate(ctx, second); err != nil {
		t.Fatalf("expected second session live: %v", err)
	}
	if _, err := svc.Validate(ctx, third); err != nil {
		t.Fatalf("expected third session live: %v", err)
	}

	if got := svc.MetricsSnapshot().Counters[MetricSessionEvicted]; got != 1 {
		t.Fatalf("expected 1 eviction counted, got %d", got)
	}
}

func TestSessionLimitDisabledWithZeroCap(t *testing.T) {
	_, svc, _ := newTestService(t, func(c *Config) {
		c.Hardening.MaxSessionsPerUser = 0
	})
	ctx := requestCtx("203.0.113.1", "Mozilla/5.0 Chrome")

	tokens := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		token, err := svc.Create(ctx, 42, false)
		if err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
		tokens = append(tokens, token)
	}

	for i, token := range tokens {
		if _, err := svc.Validate(ctx, token); err != nil {
			t.Fatalf("expected session %d live with cap disabled: %v", i, err)
		}
	}
}

func TestDestroyIdempotent(t *testing.T) {
	_, svc, _ := newTestService(t, nil)
	ctx := requestCtx("203.0.113.1", "Mozilla/5.0 Chrome")

	token, err := svc.Create(ctx, 42, false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := svc.Destroy(ctx, token); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if _, err := svc.Validate(ctx, token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session gone after destroy, got %v", err)
	}

	// Destroying again, or destroying garbage, is a quiet no-op.
	if err := svc.Destroy(ctx, token); err != nil {
		t.Fatalf("second Destroy failed: %v", err)
	}
	if err := svc.Destroy(ctx, "not-a-token"); err != nil {
		t.Fatalf("Destroy of malformed token failed: %v", err)
	}
}

func TestStoreOutageFailsClosed(t *testing.T) {
	mr, svc, _ := newTestService(t, nil)
	ctx := requestCtx("203.0.113.1", "Mozilla/5.0 Chrome")

	token, err := svc.Create(ctx, 42, false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	mr.Close()

	if _, err := svc.Validate(ctx, token); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable on Validate, got %v", err)
	}
	if _, err := svc.Create(ctx, 42, false); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable on Create, got %v", err)
	}
	if _, err := svc.Ping(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable on Ping, got %v", err)
	}

	if got := svc.MetricsSnapshot().Counters[MetricStoreUnavailable]; got == 0 {
		t.Fatal("expected store outage to be counted")
	}
}

func TestAuditEventsCarryFragmentsOnly(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	sink := NewChannelSink(16)
	svc, err := New().
		WithRedis(client).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ctx := requestCtx("203.0.113.1", "Mozilla/5.0 Chrome")
	token, err := svc.Create(ctx, 42, false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	svc.Close()

	select {
	case event := <-sink.Events():
		if event.EventType != "session_created" {
			t.Fatalf("expected session_created, got %q", event.EventType)
		}
		if event.UserID != 42 {
			t.Fatalf("expected user 42, got %d", event.UserID)
		}
		if event.TokenFragment == token {
			t.Fatal("audit event must not carry the full token")
		}
		if len(event.TokenFragment) != 8 || token[:8] != event.TokenFragment {
			t.Fatalf("expected 8-char token prefix, got %q", event.TokenFragment)
		}
		if event.IP != "203.0.113.1" {
			t.Fatalf("expected client IP on event, got %q", event.IP)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a session_created audit event")
	}
}

func TestHijackThenFreshLoginLifecycle(t *testing.T) {
	_, svc, _ := newTestService(t, nil)
	chromeCtx := requestCtx("10.0.0.1", "Chrome")
	firefoxCtx := requestCtx("10.0.0.1", "Firefox")

	token, err := svc.Create(chromeCtx, 42, false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := svc.Validate(chromeCtx, token); err != nil {
		t.Fatalf("Validate with original client failed: %v", err)
	}

	if _, err := svc.Validate(firefoxCtx, token); !errors.Is(err, ErrHijackSuspected) {
		t.Fatalf("expected ErrHijackSuspected, got %v", err)
	}
	if _, err := svc.Validate(chromeCtx, token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session destroyed, got %v", err)
	}

	fresh, err := svc.Create(chromeCtx, 42, false)
	if err != nil {
		t.Fatalf("re-Create failed: %v", err)
	}

	infos, err := svc.ListSessions(chromeCtx, 42, fresh)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("expected exactly 1 session after the hijacked one was destroyed, got %d", len(infos))
	}
	if !infos[0].IsCurrent {
		t.Fatal("expected the fresh session to be current")
	}
}

func TestServiceNotReady(t *testing.T) {
	var svc *Service

	if _, err := svc.Create(context.Background(), 1, false); !errors.Is(err, ErrServiceNotReady) {
		t.Fatalf("expected ErrServiceNotReady, got %v", err)
	}
	if _, err := svc.Validate(context.Background(), ""); !errors.Is(err, ErrServiceNotReady) {
		t.Fatalf("expected ErrServiceNotReady, got %v", err)
	}
	if err := svc.Destroy(context.Background(), ""); !errors.Is(err, ErrServiceNotReady) {
		t.Fatalf("expected ErrServiceNotReady, got %v", err)
	}
}

func TestBuilderRequiresRedis(t *testing.T) {
	if _, err := New().Build(); err == nil {
		t.Fatal("expected Build without redis to fail")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	b := New().WithRedis(client)
	svc, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(svc.Close)

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build on same builder to fail")
	}
}
