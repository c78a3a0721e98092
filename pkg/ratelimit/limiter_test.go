package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestHostLimiterBurst(t *testing.T) {
	hl := NewHostLimiter(1.0, 2)

	// Burst capacity admits the first two requests immediately
	for i := 0; i < 2; i++ {
		if !hl.Allow("https://www.example.com/page") {
			t.Errorf("expected request %d to be allowed within burst", i+1)
		}
	}

	if hl.Allow("https://www.example.com/page") {
		t.Error("expected request to be denied once burst is spent")
	}
}

func TestHostLimiterIsolatesHosts(t *testing.T) {
	hl := NewHostLimiter(1.0, 1)

	if !hl.Allow("https://a.example/x") {
		t.Fatal("first request to a.example should be allowed")
	}
	if hl.Allow("https://a.example/y") {
		t.Error("second request to a.example should be limited")
	}
	if !hl.Allow("https://b.example/x") {
		t.Error("request to a different host must not be affected")
	}
}

func TestHostLimiterWaitCancellation(t *testing.T) {
	hl := NewHostLimiter(0.001, 1)
	hl.Allow("https://slow.example/")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := hl.Wait(ctx, "https://slow.example/"); err == nil {
		t.Error("expected Wait to fail when the context expires first")
	}
}

func TestHostLimiterInvalidURL(t *testing.T) {
	hl := NewHostLimiter(1.0, 1)

	// Unparseable URLs are let through to fail at the transport layer
	if err := hl.Wait(context.Background(), "://not-a-url"); err != nil {
		t.Errorf("Wait on invalid URL returned error: %v", err)
	}
}
