package worker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoopStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	ran := 0

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := Loop(ctx, Config{
		Name:         "test",
		PollInterval: time.Millisecond,
		Process: func(context.Context) error {
			ran++
			return nil
		},
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Loop() error = %v, want context.Canceled", err)
	}

	if ran == 0 {
		t.Error("process never ran")
	}
}

func TestLoopOnErrorStops(t *testing.T) {
	boom := errors.New("boom")

	err := Loop(context.Background(), Config{
		Name:         "test",
		PollInterval: time.Millisecond,
		Process: func(context.Context) error {
			return boom
		},
		OnError: func(error) bool { return false },
	})

	if !errors.Is(err, boom) {
		t.Errorf("Loop() error = %v, want boom", err)
	}
}

func TestLoopOnErrorContinues(t *testing.T) {
	boom := errors.New("boom")
	ran := 0

	err := Loop(context.Background(), Config{
		Name:         "test",
		PollInterval: time.Millisecond,
		Process: func(context.Context) error {
			ran++
			if ran < 3 {
				return boom
			}

			return errors.New("fatal")
		},
		OnError: func(err error) bool { return errors.Is(err, boom) },
	})

	if err == nil {
		t.Fatal("expected the loop to exit on the fatal error")
	}

	if ran != 3 {
		t.Errorf("process ran %d times, want 3", ran)
	}
}

func TestWaitReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Wait(ctx, time.Hour); err == nil {
		t.Error("expected error on canceled context")
	}
}
