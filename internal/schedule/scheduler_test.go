package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewRejectsBadSpec(t *testing.T) {
	for _, spec := range []string{"", "not a spec", "0 0 */12 * *"} {
		if _, err := New(spec, func(context.Context) error { return nil }); err == nil {
			t.Errorf("spec %q should be rejected", spec)
		}
	}
	if _, err := New(DefaultSpec, func(context.Context) error { return nil }); err != nil {
		t.Errorf("default spec: %v", err)
	}
	if _, err := New("@every 1h", func(context.Context) error { return nil }); err != nil {
		t.Errorf("descriptor: %v", err)
	}
}

func TestRunNowRecordsOutcome(t *testing.T) {
	fail := errors.New("rates unavailable")
	calls := 0
	s, err := New(DefaultSpec, func(context.Context) error {
		calls++
		if calls == 1 {
			return fail
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.RunNow(); !errors.Is(err, fail) {
		t.Errorf("first run = %v, want %v", err, fail)
	}
	if err := s.RunNow(); err != nil {
		t.Errorf("second run = %v", err)
	}
	if s.Runs() != 2 {
		t.Errorf("runs = %d", s.Runs())
	}
}

func TestStartRunsImmediatelyAndStopCancels(t *testing.T) {
	started := make(chan struct{})
	var cancelled atomic.Bool
	s, err := New(DefaultSpec, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(true); err != nil {
		t.Fatal(err)
	}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not start")
	}
	s.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for !cancelled.Load() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !cancelled.Load() {
		t.Error("Stop did not cancel the running job")
	}
}
