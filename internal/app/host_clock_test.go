package app_test

import (
	"context"
	"testing"
	"time"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
)

func TestHostClockEndsQuestionWhenTimeRunsOut(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestRoomService()
	room, _ := svc.CreateRoom(ctx, "30001", "admin")

	timers := make(chan chan time.Time, 4)
	clock := app.NewHostClockWithTimer(store, svc, 60, func(d time.Duration) <-chan time.Time {
		if d != 60*time.Second {
			t.Errorf("expected 60s countdown, got %s", d)
		}
		c := make(chan time.Time, 1)
		timers <- c
		return c
	}, discardLogger())
	defer clock.Close()

	if err := clock.Watch(room.ID); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := clock.Watch(room.ID); err != nil {
		t.Fatalf("second watch: %v", err)
	}
	if _, err := svc.Apply(ctx, room.ID, app.Command{Action: app.ActionStart}); err != nil {
		t.Fatalf("start: %v", err)
	}

	timer := waitTimer(t, timers)
	timer <- time.Now()
	waitPhase(t, store, room.ID, domain.PhaseResult)
}

func TestHostClockIgnoresTimerForPreviousQuestion(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestRoomService()
	room, _ := svc.CreateRoom(ctx, "30002", "admin")

	timers := make(chan chan time.Time, 4)
	clock := app.NewHostClockWithTimer(store, svc, 60, func(time.Duration) <-chan time.Time {
		c := make(chan time.Time, 1)
		timers <- c
		return c
	}, discardLogger())
	defer clock.Close()

	_ = clock.Watch(room.ID)
	_, _ = svc.Apply(ctx, room.ID, app.Command{Action: app.ActionStart})
	first := waitTimer(t, timers)

	// next while playing restarts the countdown for question 2
	_, _ = svc.Apply(ctx, room.ID, app.Command{Action: app.ActionNext})
	second := waitTimer(t, timers)

	first <- time.Now()
	time.Sleep(50 * time.Millisecond)
	got, _ := store.GetRoom(ctx, room.ID)
	if got.Phase != domain.PhasePlaying {
		t.Fatalf("expected the stale countdown to be dropped, got %s", got.Phase)
	}

	second <- time.Now()
	waitPhase(t, store, room.ID, domain.PhaseResult)
}

func TestHostClockStop(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestRoomService()
	room, _ := svc.CreateRoom(ctx, "30003", "admin")

	timers := make(chan chan time.Time, 4)
	clock := app.NewHostClockWithTimer(store, svc, 60, func(time.Duration) <-chan time.Time {
		c := make(chan time.Time, 1)
		timers <- c
		return c
	}, discardLogger())
	defer clock.Close()

	_ = clock.Watch(room.ID)
	clock.Stop(room.ID)
	_, _ = svc.Apply(ctx, room.ID, app.Command{Action: app.ActionStart})

	select {
	case <-timers:
		t.Fatalf("expected no countdown after stop")
	case <-time.After(50 * time.Millisecond):
	}
}

func waitTimer(t *testing.T, timers chan chan time.Time) chan time.Time {
	t.Helper()
	select {
	case c := <-timers:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("expected countdown to start")
	}
	return nil
}

func waitPhase(t *testing.T, store interface {
	GetRoom(context.Context, string) (domain.Room, error)
}, roomID string, phase domain.Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		room, err := store.GetRoom(context.Background(), roomID)
		if err == nil && room.Phase == phase {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("room %s never reached phase %s", roomID, phase)
}
