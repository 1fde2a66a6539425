package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewRejectsBadSpec(t *testing.T) {
	if _, err := New(Options{Spec: "every tuesday"}, zerolog.Nop()); err == nil {
		t.Fatal("非法 cron 表达式应报错")
	}
}

func TestNextUsesLocation(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	s, err := New(Options{Spec: "0 6 * * *", Location: loc}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	from := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC) // 07:00 EST
	next := s.Next(from)
	want := time.Date(2026, 10, 2, 6, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Fatalf("next = %s, want %s", next, want)
	}
}

func TestRunOnStartAndStop(t *testing.T) {
	s, err := New(Options{Spec: "@every 1h", RunOnStart: true}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	var calls atomic.Int32
	ran := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context, at time.Time) error {
			calls.Add(1)
			ran <- struct{}{}
			return errors.New("tick errors are logged, not fatal")
		})
	}()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("run-on-start tick did not execute")
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run 应返回 context.Canceled, 实际 %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one tick, got %d", calls.Load())
	}
}
