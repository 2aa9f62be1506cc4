package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"quiz-room-service/internal/domain"
)

// HostClock ends a question on the admin's behalf once its countdown runs
// out. One watcher goroutine runs per room.
type HostClock struct {
	rooms   RoomStore
	service *RoomService
	seconds int
	after   func(time.Duration) <-chan time.Time
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	watchers map[string]*watcher
}

type watcher struct {
	cancel context.CancelFunc
}

func NewHostClock(rooms RoomStore, service *RoomService, seconds int, log *slog.Logger) *HostClock {
	return NewHostClockWithTimer(rooms, service, seconds, time.After, log)
}

// NewHostClockWithTimer is test-only for a controllable countdown.
func NewHostClockWithTimer(rooms RoomStore, service *RoomService, seconds int, after func(time.Duration) <-chan time.Time, log *slog.Logger) *HostClock {
	if seconds <= 0 {
		seconds = MaxQuestionSeconds
	}
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &HostClock{
		rooms:    rooms,
		service:  service,
		seconds:  seconds,
		after:    after,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		watchers: make(map[string]*watcher),
	}
}

// Watch starts following roomID. Watching an already watched room is a no-op.
func (c *HostClock) Watch(roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.watchers[roomID]; ok {
		return nil
	}
	if c.ctx.Err() != nil {
		return c.ctx.Err()
	}

	ctx, cancel := context.WithCancel(c.ctx)
	snaps, unsubscribe, err := c.rooms.SubscribeRoom(ctx, roomID)
	if err != nil {
		cancel()
		return err
	}
	w := &watcher{cancel: cancel}
	c.watchers[roomID] = w

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer unsubscribe()
		defer c.forget(roomID, w)
		c.run(ctx, roomID, snaps)
	}()
	return nil
}

// Stop stops following roomID.
func (c *HostClock) Stop(roomID string) {
	c.mu.Lock()
	w, ok := c.watchers[roomID]
	delete(c.watchers, roomID)
	c.mu.Unlock()
	if ok {
		w.cancel()
	}
}

// Close stops every watcher and waits for them to exit.
func (c *HostClock) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *HostClock) forget(roomID string, w *watcher) {
	w.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watchers[roomID] == w {
		delete(c.watchers, roomID)
	}
}

func (c *HostClock) run(ctx context.Context, roomID string, snaps <-chan domain.RoomSnapshot) {
	var (
		timer      <-chan time.Time
		timed      domain.Position
		wasPlaying bool
	)
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok || !snap.Exists || ctx.Err() != nil {
				return
			}
			room := snap.Room
			playing := room.Phase == domain.PhasePlaying && room.Active()
			switch {
			case playing && (!wasPlaying || room.Position() != timed):
				timed = room.Position()
				timer = c.after(time.Duration(c.seconds) * time.Second)
			case !playing:
				timer = nil
			}
			wasPlaying = playing
		case <-timer:
			timer = nil
			at := timed
			if _, err := c.service.Apply(ctx, roomID, Command{Action: ActionEnd, At: &at}); err != nil {
				c.log.Warn("auto end question", "room", roomID, "err", err)
				continue
			}
			c.log.Info("question time elapsed", "room", roomID, "level", at.Level, "currentQ", at.Question)
		}
	}
}
