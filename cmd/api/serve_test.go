package main

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestServe_SetupFailureStopsStartedJobs(t *testing.T) {
	exited := make(chan struct{})
	cleaned := false
	running := func(ctx context.Context) (func() error, func(), error) {
		run := func() error {
			<-ctx.Done()
			close(exited)
			return nil
		}
		return run, func() { cleaned = true }, nil
	}
	failing := func(context.Context) (func() error, func(), error) {
		return nil, nil, errors.New("kafka brokers required")
	}

	srv := &http.Server{Addr: "127.0.0.1:0"}
	err := serve(context.Background(), srv, time.Second, zap.NewNop(), running, failing)
	if err == nil || err.Error() != "kafka brokers required" {
		t.Fatalf("expected setup error, got %v", err)
	}
	select {
	case <-exited:
	default:
		t.Fatal("job started before the failure is still running")
	}
	if !cleaned {
		t.Fatal("expected cleanup of the started job")
	}
}

func TestServe_JobFailureShutsDownServer(t *testing.T) {
	crashing := func(context.Context) (func() error, func(), error) {
		return func() error { return errors.New("relay crashed") }, nil, nil
	}

	done := make(chan error, 1)
	go func() {
		done <- serve(context.Background(), &http.Server{Addr: "127.0.0.1:0"}, time.Second, zap.NewNop(), crashing)
	}()

	select {
	case err := <-done:
		if err == nil || err.Error() != "relay crashed" {
			t.Fatalf("expected job error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after a job failed")
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := serve(ctx, &http.Server{Addr: "127.0.0.1:0"}, time.Second, zap.NewNop()); err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
}
