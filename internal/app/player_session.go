package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"quiz-room-service/internal/domain"
)

// View is the screen a player should render.
type View string

const (
	ViewWaiting     View = "waiting"
	ViewHome        View = "home"
	ViewPlaying     View = "playing"
	ViewResult      View = "result"
	ViewLearn       View = "learn"
	ViewEndgame     View = "endgame"
	ViewOff         View = "off"
	ViewUnavailable View = "unavailable"
)

// QuestionView is the player-facing part of a question. CorrectIndex is only
// set once the player has submitted or the room has moved past playing.
type QuestionView struct {
	Level         int      `json:"level"`
	Order         int      `json:"order"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	BackgroundImg string   `json:"backgroundImg,omitempty"`
	SlideURL      string   `json:"slideUrl,omitempty"`
	CorrectIndex  *int     `json:"correctIndex,omitempty"`
}

// SubmitResult reports one submission.
type SubmitResult struct {
	Position  domain.Position `json:"position"`
	Answer    int             `json:"answer"`
	Correct   bool            `json:"correct"`
	Awarded   int             `json:"awarded"`
	Score     int             `json:"score"`
	Auto      bool            `json:"auto"`
	Duplicate bool            `json:"duplicate,omitempty"`
}

// SessionState is everything a player client renders.
type SessionState struct {
	RoomID        string           `json:"roomId"`
	Nickname      string           `json:"nickname"`
	View          View             `json:"view"`
	Room          domain.Room      `json:"room"`
	Question      *QuestionView    `json:"question,omitempty"`
	TimeLeft      int              `json:"timeLeft"`
	TimerActive   bool             `json:"timerActive"`
	Selected      int              `json:"selected"`
	Submitted     bool             `json:"submitted"`
	HiddenAnswers []int            `json:"hiddenAnswers"`
	Tools         domain.HelpTools `json:"tools"`
	DoubleActive  bool             `json:"doubleActive"`
	Score         int              `json:"score"`
	Result        *SubmitResult    `json:"result,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// Ticker is the part of time.Ticker the countdown needs.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type realTicker struct{ *time.Ticker }

func (t realTicker) Chan() <-chan time.Time { return t.C }

// NewRealTicker wraps time.NewTicker.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

// SessionConfig tunes a PlayerSession. Zero values take the defaults.
type SessionConfig struct {
	QuestionSeconds int
	ResultDelay     time.Duration
	NewTicker       func(time.Duration) Ticker
	After           func(time.Duration) <-chan time.Time
	Backoff         func() backoff.BackOff
	Logger          *slog.Logger
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.QuestionSeconds <= 0 {
		c.QuestionSeconds = MaxQuestionSeconds
	}
	if c.ResultDelay <= 0 {
		c.ResultDelay = 2 * time.Second
	}
	if c.NewTicker == nil {
		c.NewTicker = NewRealTicker
	}
	if c.After == nil {
		c.After = time.After
	}
	if c.Backoff == nil {
		c.Backoff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// PlayerSession runs one player's view of a room: it follows room snapshots,
// owns the question countdown and performs at most one submission per
// question. All state is owned by the Run goroutine; the exported methods
// hand work to it.
type PlayerSession struct {
	roomID    string
	nickname  string
	rooms     RoomStore
	questions QuestionStore
	cfg       SessionConfig
	log       *slog.Logger

	cmds    chan func(context.Context)
	updates chan SessionState
	done    chan struct{}

	room        domain.Room
	roomSeen    bool
	unavailable bool
	player      domain.Player
	question    *domain.Question
	pos         domain.Position
	timeLeft    int
	ticker      Ticker
	submitted   bool
	selected    int
	result      *SubmitResult
	showResult  bool
	resultC     <-chan time.Time
	errMsg      string
}

func NewPlayerSession(roomID, nickname string, rooms RoomStore, questions QuestionStore, cfg SessionConfig) *PlayerSession {
	cfg = cfg.withDefaults()
	return &PlayerSession{
		roomID:    roomID,
		nickname:  nickname,
		rooms:     rooms,
		questions: questions,
		cfg:       cfg,
		log:       cfg.Logger.With("room", roomID, "nickname", nickname),
		cmds:      make(chan func(context.Context)),
		updates:   make(chan SessionState, 8),
		done:      make(chan struct{}),
		selected:  domain.NoAnswer,
	}
}

// Updates delivers a state after every change. Slow readers only miss
// intermediate states.
func (s *PlayerSession) Updates() <-chan SessionState {
	return s.updates
}

// Done is closed when Run returns.
func (s *PlayerSession) Done() <-chan struct{} {
	return s.done
}

// Run drives the session until ctx is cancelled or the room disappears.
func (s *PlayerSession) Run(ctx context.Context) error {
	defer close(s.done)
	defer s.stopTimer()

	player, err := s.rooms.GetPlayer(ctx, s.roomID, s.nickname)
	if err != nil {
		return err
	}
	s.player = player

	snaps, cancel, err := s.subscribe(ctx)
	if err != nil {
		return err
	}
	defer func() { cancel() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-snaps:
			if !ok {
				cancel()
				snaps, cancel, err = s.subscribe(ctx)
				if err != nil {
					cancel = func() {}
					if errors.Is(err, domain.ErrNotFound) {
						s.unavailable = true
						s.stopTimer()
						s.publish()
					}
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				continue
			}
			s.onSnapshot(ctx, snap)
		case <-s.tickC():
			s.onTick(ctx)
		case <-s.resultC:
			s.resultC = nil
			s.showResult = true
			s.publish()
		case cmd := <-s.cmds:
			cmd(ctx)
		}
	}
}

// subscribe opens the room feed, retrying transient failures with backoff.
func (s *PlayerSession) subscribe(ctx context.Context) (<-chan domain.RoomSnapshot, func(), error) {
	var (
		snaps  <-chan domain.RoomSnapshot
		cancel func()
	)
	op := func() error {
		ch, c, err := s.rooms.SubscribeRoom(ctx, s.roomID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		snaps, cancel = ch, c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.log.Warn("room subscription failed, retrying", "err", err, "wait", wait)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(s.cfg.Backoff(), ctx), notify); err != nil {
		return nil, func() {}, err
	}
	return snaps, cancel, nil
}

func (s *PlayerSession) tickC() <-chan time.Time {
	if s.ticker == nil {
		return nil
	}
	return s.ticker.Chan()
}

func (s *PlayerSession) isPlaying(room domain.Room) bool {
	return room.Phase == domain.PhasePlaying && room.Active()
}

func (s *PlayerSession) onSnapshot(ctx context.Context, snap domain.RoomSnapshot) {
	if !snap.Exists {
		s.unavailable = true
		s.stopTimer()
		s.publish()
		return
	}
	if err := snap.Room.Validate(); err != nil {
		s.log.Warn("invalid room snapshot", "err", err)
		s.errMsg = err.Error()
		s.publish()
		return
	}

	wasPlaying := s.roomSeen && s.isPlaying(s.room)
	s.room = snap.Room
	s.roomSeen = true
	s.unavailable = false

	pos := s.room.Position()
	switch playing := s.isPlaying(s.room); {
	case playing && (!wasPlaying || pos != s.pos):
		s.enterPlaying(ctx, pos)
	case !playing:
		s.stopTimer()
		s.resultC = nil
		if s.room.Phase == domain.PhaseHome {
			s.submitted = false
			s.resetRound()
		}
	}
	s.publish()
}

// enterPlaying loads the question at pos and restarts the countdown unless
// the stored player document shows this position as already answered.
func (s *PlayerSession) enterPlaying(ctx context.Context, pos domain.Position) {
	if pos != s.pos {
		s.pos = pos
		s.question = nil
		s.resetRound()
	}

	q, err := s.questions.QueryQuestion(ctx, pos.Level, pos.Question)
	if err != nil {
		s.log.Warn("load question", "level", pos.Level, "order", pos.Question, "err", err)
		s.question = nil
		s.errMsg = err.Error()
	} else {
		s.question = &q
	}

	if player, err := s.rooms.GetPlayer(ctx, s.roomID, s.nickname); err == nil {
		s.player = player
	} else {
		s.log.Warn("reload player", "err", err)
	}

	s.submitted = s.player.SubmittedAt == pos
	switch {
	case !s.submitted:
		s.resetRound()
	case s.result == nil:
		s.selected = s.player.Answer
		s.showResult = true
	}
	s.timeLeft = s.cfg.QuestionSeconds
	if s.submitted || s.question == nil {
		s.stopTimer()
		return
	}
	s.startTimer()
}

func (s *PlayerSession) resetRound() {
	s.selected = domain.NoAnswer
	s.result = nil
	s.showResult = false
	s.resultC = nil
}

func (s *PlayerSession) startTimer() {
	s.stopTimer()
	s.ticker = s.cfg.NewTicker(time.Second)
}

func (s *PlayerSession) stopTimer() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}

func (s *PlayerSession) onTick(ctx context.Context) {
	if s.ticker == nil {
		return
	}
	if s.submitted {
		s.stopTimer()
		return
	}
	if s.timeLeft > 0 {
		s.timeLeft--
	}
	if s.timeLeft == 0 {
		s.stopTimer()
		if s.isPlaying(s.room) {
			if _, err := s.submit(ctx, s.selected, true); err != nil {
				s.log.Warn("auto submit", "err", err)
			}
		}
	}
	s.publish()
}

// submit records answer once per position. A repeated call returns the first
// result marked as duplicate and writes nothing.
func (s *PlayerSession) submit(ctx context.Context, answer int, auto bool) (SubmitResult, error) {
	if s.submitted {
		if s.result != nil {
			dup := *s.result
			dup.Duplicate = true
			return dup, nil
		}
		return SubmitResult{Position: s.pos, Answer: s.selected, Score: s.player.Score, Duplicate: true}, nil
	}
	if !s.isPlaying(s.room) || s.question == nil {
		return SubmitResult{}, domain.ErrNotPlaying
	}
	if answer != domain.NoAnswer && (answer < 0 || answer >= domain.OptionCount) {
		return SubmitResult{}, &domain.ValidationError{Field: "answer", Reason: "must be between 0 and 3"}
	}

	seconds := s.timeLeft
	if auto {
		seconds = 0
	}
	correct := answer != domain.NoAnswer && answer == s.question.CorrectIndex
	delta := ComputeDelta(correct, seconds, DoubleActive(s.player.Tools, s.pos))

	s.submitted = true
	s.selected = answer
	s.stopTimer()

	res := SubmitResult{
		Position: s.pos,
		Answer:   answer,
		Correct:  correct,
		Awarded:  delta,
		Score:    s.player.Score,
		Auto:     auto,
	}
	s.result = &res
	if auto {
		s.showResult = true
	} else {
		s.resultC = s.cfg.After(s.cfg.ResultDelay)
	}

	pos := s.pos
	if err := s.rooms.UpsertPlayer(ctx, s.roomID, s.nickname, domain.PlayerUpdate{
		Answer:      &answer,
		SubmittedAt: &pos,
	}); err != nil {
		return s.failSubmit(res, err)
	}
	s.player.Answer = answer
	s.player.SubmittedAt = pos

	if delta > 0 {
		score, err := s.rooms.IncrementPlayerScore(ctx, s.roomID, s.nickname, delta)
		if err != nil {
			return s.failSubmit(res, err)
		}
		s.player.Score = score
		res.Score = score
		s.result = &res
	}

	if _, err := s.rooms.IncrementRoomField(ctx, s.roomID, domain.CounterSubmitted, 1); err != nil {
		return s.failSubmit(res, err)
	}

	s.log.Info("answer submitted", "level", pos.Level, "order", pos.Question,
		"answer", answer, "awarded", delta, "auto", auto)
	return res, nil
}

// failSubmit keeps the question submitted; the write is not retried so the
// score cannot be applied twice.
func (s *PlayerSession) failSubmit(res SubmitResult, err error) (SubmitResult, error) {
	s.log.Error("submission write failed", "err", err)
	s.errMsg = "submission could not be saved: " + err.Error()
	return res, err
}

func (s *PlayerSession) useTool(ctx context.Context, tool domain.HelpTool) error {
	if !s.isPlaying(s.room) || s.question == nil || s.submitted {
		return domain.ErrNotPlaying
	}
	tools, err := UseTool(s.player.Tools, tool, s.pos)
	if err != nil {
		return err
	}
	if err := s.rooms.UpsertPlayer(ctx, s.roomID, s.nickname, domain.PlayerUpdate{Tools: &tools}); err != nil {
		return err
	}
	s.player.Tools = tools
	s.log.Info("help tool used", "tool", tool, "level", s.pos.Level, "order", s.pos.Question)
	return nil
}

type outcome[T any] struct {
	value T
	err   error
}

// exec runs fn on the Run goroutine and waits for its result. The result
// travels over a buffered channel so an abandoned call never shares memory
// with the loop.
func exec[T any](ctx context.Context, s *PlayerSession, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	finished := make(chan outcome[T], 1)
	cmd := func(loopCtx context.Context) {
		v, err := fn(loopCtx)
		finished <- outcome[T]{value: v, err: err}
	}
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return zero, domain.ErrSessionClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case out := <-finished:
		return out.value, out.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Select marks the option the player is leaning towards; auto-submit uses it.
func (s *PlayerSession) Select(ctx context.Context, answer int) error {
	_, err := exec(ctx, s, func(context.Context) (struct{}, error) {
		if s.submitted {
			return struct{}{}, nil
		}
		if answer != domain.NoAnswer && (answer < 0 || answer >= domain.OptionCount) {
			return struct{}{}, &domain.ValidationError{Field: "answer", Reason: "must be between 0 and 3"}
		}
		s.selected = answer
		s.publish()
		return struct{}{}, nil
	})
	return err
}

// Submit records answer with the time left on the countdown.
func (s *PlayerSession) Submit(ctx context.Context, answer int) (SubmitResult, error) {
	return exec(ctx, s, func(loopCtx context.Context) (SubmitResult, error) {
		res, err := s.submit(loopCtx, answer, false)
		s.publish()
		return res, err
	})
}

// UseTool spends a help tool on the current question.
func (s *PlayerSession) UseTool(ctx context.Context, tool domain.HelpTool) (SessionState, error) {
	return exec(ctx, s, func(loopCtx context.Context) (SessionState, error) {
		err := s.useTool(loopCtx, tool)
		if err == nil {
			s.publish()
		}
		return s.snapshot(), err
	})
}

// State returns the current state.
func (s *PlayerSession) State(ctx context.Context) (SessionState, error) {
	return exec(ctx, s, func(context.Context) (SessionState, error) {
		return s.snapshot(), nil
	})
}

func (s *PlayerSession) view() View {
	switch {
	case s.unavailable:
		return ViewUnavailable
	case !s.roomSeen:
		return ViewWaiting
	case s.room.Status == domain.StatusOff:
		return ViewOff
	}
	switch s.room.Phase {
	case domain.PhasePlaying:
		if s.showResult {
			return ViewResult
		}
		return ViewPlaying
	case domain.PhaseResult:
		return ViewResult
	case domain.PhaseLearn:
		return ViewLearn
	case domain.PhaseEndgame:
		return ViewEndgame
	case domain.PhaseHome:
		return ViewHome
	}
	return ViewWaiting
}

func (s *PlayerSession) snapshot() SessionState {
	state := SessionState{
		RoomID:        s.roomID,
		Nickname:      s.nickname,
		View:          s.view(),
		Room:          s.room,
		TimeLeft:      s.timeLeft,
		TimerActive:   s.ticker != nil,
		Selected:      s.selected,
		Submitted:     s.submitted,
		HiddenAnswers: []int{},
		Tools:         s.player.Tools,
		DoubleActive:  DoubleActive(s.player.Tools, s.pos),
		Score:         s.player.Score,
		Error:         s.errMsg,
	}
	if s.result != nil {
		res := *s.result
		state.Result = &res
	}
	if q := s.question; q != nil && q.Position() == s.room.Position() {
		qv := &QuestionView{
			Level:         q.Level,
			Order:         q.Order,
			Text:          q.Text,
			Options:       append([]string(nil), q.Options...),
			BackgroundImg: q.BackgroundImg,
			SlideURL:      q.SlideURL,
		}
		if s.submitted || s.room.Phase != domain.PhasePlaying {
			idx := q.CorrectIndex
			qv.CorrectIndex = &idx
		}
		state.Question = qv
		state.HiddenAnswers = HiddenAnswers(q.CorrectIndex, s.player.Tools)
	}
	return state
}

// publish pushes the current state, dropping the oldest queued state when
// the reader is behind. The one-time error is cleared afterwards.
func (s *PlayerSession) publish() {
	state := s.snapshot()
	s.errMsg = ""
	select {
	case s.updates <- state:
	default:
		select {
		case <-s.updates:
		default:
		}
		select {
		case s.updates <- state:
		default:
		}
	}
}
