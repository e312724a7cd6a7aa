package broadcast

import (
	"context"
	"errors"
	"io"
	"testing"

	"feedsentry/internal/core"
)

func newTestBus() *Bus {
	return NewBus(core.NewLoggerWithLevel(io.Discard, "error"))
}

func TestPublishWithoutHandlers(t *testing.T) {
	bus := newTestBus()
	if err := bus.Publish(context.Background(), NewEvent(BadgeUpdate, BadgeUpdatePayload{Count: 1})); err != nil {
		t.Fatalf("expected nil error with no handlers, got %v", err)
	}
}

func TestPublishContinuesPastFailingHandler(t *testing.T) {
	bus := newTestBus()
	boom := errors.New("boom")

	var calls []string
	bus.Subscribe("first", HandlerFunc(func(ctx context.Context, e Event) error {
		calls = append(calls, "first")
		return boom
	}))
	bus.Subscribe("second", HandlerFunc(func(ctx context.Context, e Event) error {
		calls = append(calls, "second")
		return nil
	}))

	err := bus.Publish(context.Background(), NewEvent(FeedUpdated, FeedUpdatedPayload{FeedID: "abc"}))
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error to wrap handler failure, got %v", err)
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Errorf("expected both handlers to run in order, got %v", calls)
	}
}

func TestPublishIgnoresNoListener(t *testing.T) {
	bus := newTestBus()
	bus.Subscribe("remote", HandlerFunc(func(ctx context.Context, e Event) error {
		return ErrNoListener
	}))

	if err := bus.Publish(context.Background(), NewEvent(SyncStarted, nil)); err != nil {
		t.Errorf("expected no-listener to be treated as success, got %v", err)
	}
}

func TestPublishRecoversHandlerPanic(t *testing.T) {
	bus := newTestBus()
	ran := false
	bus.Subscribe("panics", HandlerFunc(func(ctx context.Context, e Event) error {
		panic("bad handler")
	}))
	bus.Subscribe("after", HandlerFunc(func(ctx context.Context, e Event) error {
		ran = true
		return nil
	}))

	if err := bus.Publish(context.Background(), NewEvent(SyncFailed, nil)); err == nil {
		t.Error("expected panic to surface as an error")
	}
	if !ran {
		t.Error("expected handler after the panicking one to run")
	}
}

func TestPublishStampsTimestamp(t *testing.T) {
	bus := newTestBus()
	var got Event
	bus.Subscribe("capture", HandlerFunc(func(ctx context.Context, e Event) error {
		got = e
		return nil
	}))

	bus.Publish(context.Background(), Event{Type: EntriesAdded})
	if got.Timestamp.IsZero() {
		t.Error("expected bus to stamp events without a timestamp")
	}
}

func TestFollowersRunOnlyAfterHandlersSucceed(t *testing.T) {
	bus := newTestBus()
	fail := true
	bus.Subscribe("remote", HandlerFunc(func(ctx context.Context, e Event) error {
		if fail {
			return errors.New("transport down")
		}
		return nil
	}))

	var calls []string
	bus.Follow("scheduler", HandlerFunc(func(ctx context.Context, e Event) error {
		calls = append(calls, "scheduler")
		return errors.New("restart failed")
	}))

	if err := bus.Publish(context.Background(), NewEvent(FeedUpdated, FeedUpdatedPayload{FeedID: "abc"})); err == nil {
		t.Fatal("expected handler failure to be returned")
	}
	if len(calls) != 0 {
		t.Fatalf("expected follower to be skipped after a failure, got %v", calls)
	}

	fail = false
	if err := bus.Publish(context.Background(), NewEvent(FeedUpdated, FeedUpdatedPayload{FeedID: "abc"})); err != nil {
		t.Errorf("expected follower errors to be swallowed, got %v", err)
	}
	if len(calls) != 1 {
		t.Errorf("expected follower to run once, got %v", calls)
	}
}
