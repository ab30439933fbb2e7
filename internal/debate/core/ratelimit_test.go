package core

import (
	"context"
	"testing"
	"time"
)

func TestIntervalGateSpacesCalls(t *testing.T) {
	gate := newIntervalGate(20 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	if err := gate.Wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	if err := gate.Wait(ctx); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("second call returned after %s, want >= 20ms", elapsed)
	}
}

func TestIntervalGateZeroInterval(t *testing.T) {
	gate := newIntervalGate(0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := gate.Wait(context.Background()); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("zero interval gate should not block, took %s", elapsed)
	}
}

func TestIntervalGateCancelled(t *testing.T) {
	gate := newIntervalGate(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	if err := gate.Wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	cancel()
	if err := gate.Wait(ctx); err == nil {
		t.Fatalf("cancelled context should abort the wait")
	}
}

func TestSleepCtx(t *testing.T) {
	if err := sleepCtx(context.Background(), 0); err != nil {
		t.Fatalf("zero sleep: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Minute); err == nil {
		t.Fatalf("cancelled sleep should return the context error")
	}
}
