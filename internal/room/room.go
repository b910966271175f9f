package room

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/duelmath/duelmath/internal/models"
)

// Room is one live session plus the single worker goroutine that owns it.
// Every external call is a closure sent through the mailbox and executed in
// arrival order, so joins, answers, timer ticks and rematch requests can
// never race each other. The timer tick is itself a mailbox-adjacent case in
// the same select loop, not a separate goroutine mutating shared state.
type Room struct {
	code        string
	capacity    int
	grace       time.Duration
	clock       clockwork.Clock
	broadcaster Broadcaster
	recorder    MatchRecorder
	store       *Store
	rng         *rand.Rand

	mailbox   chan func(*Room)
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the worker goroutine; never touched from outside it.
	session      *models.Session
	rematchVotes map[string]bool
	ticker       clockwork.Ticker
	gcTimer      clockwork.Timer
}

// RejoinSnapshot is the full authoritative state returned on (re)connect.
// Clients must replace any locally cached copy with this response; local
// state is only ever a render-before-data placeholder.
type RejoinSnapshot struct {
	RoomCode        string                  `json:"roomCode"`
	Players         []models.PlayerProgress `json:"players"`
	Questions       []models.Question       `json:"questions"`
	Mode            int                     `json:"mode"`
	Capacity        int                     `json:"capacity"`
	Status          models.SessionStatus    `json:"status"`
	TimeLeftSeconds int                     `json:"timeLeftSeconds"`
	PlayerState     models.PlayerProgress   `json:"playerState"`
}

// RematchStatus reports where the rematch handshake stands for the caller.
type RematchStatus struct {
	Waiting bool `json:"waiting"`
	Votes   int  `json:"votes"`
	Needed  int  `json:"needed"`
}

func newRoom(store *Store, session *models.Session, capacity int, grace time.Duration, seed int64) *Room {
	r := &Room{
		code:         session.RoomCode,
		capacity:     capacity,
		grace:        grace,
		clock:        store.clock,
		broadcaster:  store.broadcaster,
		recorder:     store.recorder,
		store:        store,
		rng:          rand.New(rand.NewSource(seed)),
		mailbox:      make(chan func(*Room), 64),
		done:         make(chan struct{}),
		session:      session,
		rematchVotes: make(map[string]bool),
	}
	go r.run()
	return r
}

// Code returns the room's stable identifier.
func (r *Room) Code() string { return r.code }

// Capacity returns the player cap for this room.
func (r *Room) Capacity() int { return r.capacity }

func (r *Room) run() {
	defer func() {
		if rec := recover(); rec != nil {
			// A corrupted session must not take down the registry or other
			// rooms. Drop this room and let clients resolve NotFound.
			log.Error().
				Str("room", r.code).
				Interface("panic", rec).
				Msg("room worker panicked, removing room")
			r.store.forget(r.code)
			r.close()
		}
		r.stopTimers()
	}()

	for {
		var tickCh, gcCh <-chan time.Time
		if r.ticker != nil {
			tickCh = r.ticker.Chan()
		}
		if r.gcTimer != nil {
			gcCh = r.gcTimer.Chan()
		}

		select {
		case <-r.done:
			return
		case fn := <-r.mailbox:
			fn(r)
		case <-tickCh:
			r.handleTick()
		case <-gcCh:
			r.handleGC()
		}
	}
}

func (r *Room) close() {
	r.closeOnce.Do(func() { close(r.done) })
}

func (r *Room) stopTimers() {
	if r.ticker != nil {
		r.ticker.Stop()
		r.ticker = nil
	}
	if r.gcTimer != nil {
		r.gcTimer.Stop()
		r.gcTimer = nil
	}
}

// do enqueues a closure for the worker. It fails fast once the room is
// closed instead of blocking on a dead mailbox.
func (r *Room) do(fn func(*Room)) error {
	select {
	case r.mailbox <- fn:
		return nil
	case <-r.done:
		return ErrRoomClosed
	}
}

// Join binds a durable player identity to the session. Joining twice with
// the same identity returns the existing state and resets nothing.
func (r *Room) Join(identity string) (models.PlayerProgress, error) {
	type resp struct {
		progress models.PlayerProgress
		err      error
	}
	ch := make(chan resp, 1)
	err := r.do(func(r *Room) {
		p, err := r.join(identity)
		ch <- resp{p, err}
	})
	if err != nil {
		return models.PlayerProgress{}, err
	}
	select {
	case out := <-ch:
		return out.progress, out.err
	case <-r.done:
		return models.PlayerProgress{}, ErrRoomClosed
	}
}

func (r *Room) join(identity string) (models.PlayerProgress, error) {
	s := r.session
	if ps, ok := s.Players[identity]; ok {
		return models.PlayerProgress{Identity: ps.Identity, Score: ps.Score, CurrentIndex: ps.CurrentIndex}, nil
	}
	if s.Status != models.StatusWaiting {
		return models.PlayerProgress{}, ErrInvalidState
	}
	if len(s.Players) >= r.capacity {
		return models.PlayerProgress{}, ErrRoomFull
	}
	ps := s.AddPlayer(identity, r.clock.Now())
	log.Info().Str("room", r.code).Str("identity", identity).Int("players", len(s.Players)).Msg("player joined")
	r.broadcastRoomUpdate()
	return models.PlayerProgress{Identity: ps.Identity, Score: ps.Score, CurrentIndex: ps.CurrentIndex}, nil
}

// Leave removes a player. A dropped connection never calls this; only an
// explicit leave does. An emptied room is abandoned.
func (r *Room) Leave(identity string) error {
	ch := make(chan error, 1)
	err := r.do(func(r *Room) { ch <- r.leave(identity) })
	if err != nil {
		return err
	}
	select {
	case err := <-ch:
		return err
	case <-r.done:
		return ErrRoomClosed
	}
}

func (r *Room) leave(identity string) error {
	s := r.session
	if _, ok := s.Players[identity]; !ok {
		return ErrPlayerNotFound
	}
	s.RemovePlayer(identity)
	delete(r.rematchVotes, identity)
	log.Info().Str("room", r.code).Str("identity", identity).Msg("player left")
	if len(s.Players) == 0 {
		switch s.Status {
		case models.StatusActive:
			r.endSession(models.EndReasonAbandoned)
		case models.StatusWaiting:
			r.store.forget(r.code)
			r.close()
		}
		return nil
	}
	r.broadcastRoomUpdate()
	if s.Status == models.StatusActive {
		r.broadcaster.BroadcastToRoom(r.code, EventProgressUpdate, s.Progress())
		// The leaver may have been the only one still answering.
		if s.AllFinished() {
			r.endSession(models.EndReasonAllFinished)
		}
	}
	return nil
}

// Start begins the game. Host only, and only once the room is full; from
// here the timer authority owns session expiry.
func (r *Room) Start(identity string) error {
	ch := make(chan error, 1)
	err := r.do(func(r *Room) { ch <- r.start(identity) })
	if err != nil {
		return err
	}
	select {
	case err := <-ch:
		return err
	case <-r.done:
		return ErrRoomClosed
	}
}

func (r *Room) start(identity string) error {
	s := r.session
	if s.Status != models.StatusWaiting {
		return ErrInvalidState
	}
	if identity != s.HostIdentity {
		return ErrNotHost
	}
	if len(s.Players) < r.capacity {
		return ErrRoomNotFull
	}
	now := r.clock.Now()
	s.Status = models.StatusActive
	s.StartedAt = now
	r.ticker = r.clock.NewTicker(time.Second)
	log.Info().Str("room", r.code).Int("mode", s.Mode).Int("players", len(s.Players)).Msg("game started")
	r.broadcaster.BroadcastToRoom(r.code, EventGameStarted, GameStartedPayload{
		Questions: s.Questions,
		Mode:      s.Mode,
		TimeLeft:  s.TimeLeft(now),
	})
	return nil
}

// SubmitAnswer validates an answer against the player's current question.
// Wrong answers are a plain {correct:false} result with no state change, so
// retries and duplicate deliveries are free of side effects.
func (r *Room) SubmitAnswer(identity string, answer int) (AnswerResult, error) {
	type resp struct {
		result AnswerResult
		err    error
	}
	ch := make(chan resp, 1)
	err := r.do(func(r *Room) {
		res, err := r.submitAnswer(identity, answer)
		ch <- resp{res, err}
	})
	if err != nil {
		return AnswerResult{}, err
	}
	select {
	case out := <-ch:
		return out.result, out.err
	case <-r.done:
		return AnswerResult{}, ErrRoomClosed
	}
}

func (r *Room) submitAnswer(identity string, answer int) (AnswerResult, error) {
	result, err := validateAnswer(r.session, identity, answer)
	if err != nil {
		return AnswerResult{}, err
	}
	if result.Correct {
		r.broadcaster.BroadcastToRoom(r.code, EventProgressUpdate, r.session.Progress())
		if r.session.AllFinished() {
			r.endSession(models.EndReasonAllFinished)
		}
	}
	return result, nil
}

// Rejoin returns the authoritative snapshot for a reconnecting client.
func (r *Room) Rejoin(identity string) (RejoinSnapshot, error) {
	type resp struct {
		snap RejoinSnapshot
		err  error
	}
	ch := make(chan resp, 1)
	err := r.do(func(r *Room) {
		snap, err := r.rejoin(identity)
		ch <- resp{snap, err}
	})
	if err != nil {
		return RejoinSnapshot{}, err
	}
	select {
	case out := <-ch:
		return out.snap, out.err
	case <-r.done:
		return RejoinSnapshot{}, ErrRoomClosed
	}
}

func (r *Room) rejoin(identity string) (RejoinSnapshot, error) {
	s := r.session
	ps, ok := s.Players[identity]
	if !ok {
		return RejoinSnapshot{}, ErrPlayerNotFound
	}
	return RejoinSnapshot{
		RoomCode:        r.code,
		Players:         s.Progress(),
		Questions:       s.Questions,
		Mode:            s.Mode,
		Capacity:        r.capacity,
		Status:          s.Status,
		TimeLeftSeconds: s.TimeLeft(r.clock.Now()),
		PlayerState: models.PlayerProgress{
			Identity:     ps.Identity,
			Score:        ps.Score,
			CurrentIndex: ps.CurrentIndex,
		},
	}, nil
}

// TimeLeft pulls the authoritative remaining seconds. Because both this and
// the tick broadcast derive from the same wall-clock function, a pulled
// value always equals what a tick at the same instant would have reported.
func (r *Room) TimeLeft() (int, error) {
	ch := make(chan int, 1)
	err := r.do(func(r *Room) { ch <- r.session.TimeLeft(r.clock.Now()) })
	if err != nil {
		return 0, err
	}
	select {
	case left := <-ch:
		return left, nil
	case <-r.done:
		return 0, ErrRoomClosed
	}
}

// RequestRematch records one player's vote for a rematch. The first vote
// notifies the rest of the room; a repeated vote from the same identity is
// idempotent. Once every current player has voted, a fresh session replaces
// the ended one and everyone is notified together.
func (r *Room) RequestRematch(identity string) (RematchStatus, error) {
	type resp struct {
		status RematchStatus
		err    error
	}
	ch := make(chan resp, 1)
	err := r.do(func(r *Room) {
		st, err := r.requestRematch(identity)
		ch <- resp{st, err}
	})
	if err != nil {
		return RematchStatus{}, err
	}
	select {
	case out := <-ch:
		return out.status, out.err
	case <-r.done:
		return RematchStatus{}, ErrRoomClosed
	}
}

func (r *Room) requestRematch(identity string) (RematchStatus, error) {
	s := r.session
	if s.Status != models.StatusEnded {
		return RematchStatus{}, ErrInvalidState
	}
	if _, ok := s.Players[identity]; !ok {
		return RematchStatus{}, ErrPlayerNotFound
	}
	needed := len(s.Players)
	if r.rematchVotes[identity] {
		// Duplicate request: no second notification, no second session.
		return RematchStatus{Waiting: true, Votes: len(r.rematchVotes), Needed: needed}, nil
	}
	r.rematchVotes[identity] = true
	if len(r.rematchVotes) < needed {
		log.Info().Str("room", r.code).Str("identity", identity).Msg("rematch requested")
		r.broadcaster.BroadcastToRoom(r.code, EventRematchRequested, RematchRequestedPayload{Name: identity})
		return RematchStatus{Waiting: true, Votes: len(r.rematchVotes), Needed: needed}, nil
	}
	r.startRematch()
	return RematchStatus{Waiting: false, Votes: needed, Needed: needed}, nil
}

func (r *Room) startRematch() {
	now := r.clock.Now()
	questions := models.GenerateQuestions(r.rng, len(r.session.Questions))
	next := r.session.Rematch(questions, now)

	// Replace, never mutate in place: observers of the old session keep a
	// consistent terminal view.
	r.session = next
	r.rematchVotes = make(map[string]bool)
	if r.gcTimer != nil {
		r.gcTimer.Stop()
		r.gcTimer = nil
	}

	// Every player already voted, so everyone is bound; go straight to
	// active and restart the clock.
	next.Status = models.StatusActive
	next.StartedAt = now
	r.ticker = r.clock.NewTicker(time.Second)

	log.Info().Str("room", r.code).Str("session", next.ID.String()).Msg("rematch started")
	r.broadcaster.BroadcastToRoom(r.code, EventRematchStarted, RematchStartedPayload{
		Questions: next.Questions,
		Mode:      next.Mode,
		Players:   next.Progress(),
		TimeLeft:  next.TimeLeft(now),
	})
}

func (r *Room) handleTick() {
	s := r.session
	if s.Status != models.StatusActive {
		return
	}
	left := s.TimeLeft(r.clock.Now())
	r.broadcaster.BroadcastToRoom(r.code, EventTimerUpdate, TimerUpdatePayload{TimeLeft: left})
	if left <= 0 {
		r.endSession(models.EndReasonTimeExpired)
	}
}

// endSession is the single, idempotent waiting|active -> ended transition.
func (r *Room) endSession(reason models.EndReason) {
	s := r.session
	if s.Status == models.StatusEnded {
		return
	}
	s.Status = models.StatusEnded
	s.EndReason = reason
	s.EndedAt = r.clock.Now()
	if r.ticker != nil {
		r.ticker.Stop()
		r.ticker = nil
	}
	log.Info().Str("room", r.code).Str("reason", string(reason)).Msg("session ended")
	r.broadcaster.BroadcastToRoom(r.code, EventGameEnded, GameEndedPayload{
		Reason:   reason,
		Progress: s.Progress(),
	})
	if r.recorder != nil {
		rec := models.MatchRecordFromSession(s)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.recorder.RecordMatch(ctx, rec); err != nil {
				log.Error().Err(err).Str("room", rec.RoomCode).Msg("failed to record match")
			}
		}()
	}
	// Grace period: the room stays resolvable for rematch and result views,
	// then gets garbage-collected unless a rematch replaced the session.
	r.gcTimer = r.clock.NewTimer(r.grace)
}

func (r *Room) handleGC() {
	if r.session.Status != models.StatusEnded {
		return
	}
	log.Info().Str("room", r.code).Msg("room expired, garbage-collecting")
	r.store.forget(r.code)
	r.close()
}

func (r *Room) broadcastRoomUpdate() {
	s := r.session
	r.broadcaster.BroadcastToRoom(r.code, EventRoomUpdate, RoomUpdatePayload{
		Players:  s.Progress(),
		Host:     s.HostIdentity,
		Capacity: r.capacity,
		Status:   s.Status,
	})
}
