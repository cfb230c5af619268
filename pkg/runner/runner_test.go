package runner

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

type drainFunc func() error

func (f drainFunc) Drain() error { return f() }

func TestRunDrainsOnCancel(t *testing.T) {
	var order []string
	r := NewLifecycleRunner(drainFunc(func() error {
		order = append(order, "drain")
		return nil
	}), Hooks{
		OnStart: func(ctx context.Context) error {
			order = append(order, "start")
			return nil
		},
		OnStop: func() { order = append(order, "stop") },
	}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for r.State() != StateRunning {
		if time.Now().After(deadline) {
			t.Fatalf("runner never reached running, state %s", r.State())
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if r.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", r.State())
	}
	if len(order) != 3 || order[0] != "start" || order[1] != "drain" || order[2] != "stop" {
		t.Fatalf("unexpected hook order %v", order)
	}
	if err := r.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestRunStartFailure(t *testing.T) {
	r := NewLifecycleRunner(nil, Hooks{
		OnStart: func(ctx context.Context) error { return errors.New("port in use") },
	}, time.Second)
	err := r.Run(context.Background())
	if err == nil || err.Error() != "start: port in use" {
		t.Fatalf("unexpected error %v", err)
	}
	if r.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", r.State())
	}
}

func TestDrainTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	r := NewLifecycleRunner(drainFunc(func() error {
		<-block
		return nil
	}), Hooks{}, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err == nil || err.Error() != "drain timeout" {
		t.Fatalf("expected drain timeout, got %v", err)
	}
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	if !bytes.Contains(buf.Bytes(), []byte("Version: dev")) {
		t.Fatalf("expected version line, got %q", buf.String())
	}
}
